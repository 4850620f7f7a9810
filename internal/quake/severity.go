package quake

import (
	"fmt"
	"math"
	"strconv"
)

// Threshold is a subscriber's minimum-severity level. Levels form an ordered
// table of magnitude predicates rather than ad hoc branching; level 4
// ("significant only") deliberately passes nothing because the feed carries no
// agreed significance cutoff yet.
type Threshold int

const (
	ThresholdAll         Threshold = 0 // every event
	ThresholdMinor       Threshold = 1 // magnitude >= 1.0
	ThresholdLight       Threshold = 2 // magnitude >= 2.5
	ThresholdModerate    Threshold = 3 // magnitude >= 4.5
	ThresholdSignificant Threshold = 4 // significant only: not implemented, passes nothing
)

// DefaultThreshold is assigned when a subscriber is first observed.
const DefaultThreshold = ThresholdLight

// InvalidThresholdError reports a level outside 0..4.
type InvalidThresholdError struct {
	Level int
}

func (e *InvalidThresholdError) Error() string {
	return fmt.Sprintf("invalid threshold level %d (want 0..4)", e.Level)
}

type gate struct {
	minMagnitude float64 // -Inf passes everything, +Inf passes nothing
	label        string
	summary      string
}

// gates is ordered by level. Indexed by Threshold after Valid().
var gates = [5]gate{
	{math.Inf(-1), "All earthquakes (Caution.. lots)", "All earthquakes are being reported on by the minute."},
	{1.0, "1.0 and above", "1.0+ earthquakes are being reported on by the minute."},
	{2.5, "2.5 and above", "2.5+ earthquakes are being reported on by the minute."},
	{4.5, "4.5 and above", "4.5+ earthquakes are being reported on by the minute."},
	{math.Inf(1), "Significant only", "Only significant earthquakes are being reported on by the minute."},
}

// ParseThreshold validates an integer level.
func ParseThreshold(level int) (Threshold, error) {
	t := Threshold(level)
	if !t.Valid() {
		return 0, &InvalidThresholdError{Level: level}
	}
	return t, nil
}

func (t Threshold) Valid() bool { return t >= ThresholdAll && t <= ThresholdSignificant }

// Passes reports whether the event clears this threshold's gate. The magnitude
// boundaries are inclusive (2.5 passes level 2; 2.4 does not). Level 0 has a
// -Inf floor: the hourly feed carries negative microquake magnitudes and those
// must reach level-0 subscribers too.
func (t Threshold) Passes(e Event) bool {
	if !t.Valid() {
		return false
	}
	return e.Magnitude >= gates[t].minMagnitude
}

// Label is the option text shown in the threshold picker.
func (t Threshold) Label() string {
	if !t.Valid() {
		return strconv.Itoa(int(t))
	}
	return gates[t].label
}

// Summary is the confirmation text sent after the threshold is applied.
func (t Threshold) Summary() string {
	if !t.Valid() {
		return ""
	}
	return gates[t].summary
}
