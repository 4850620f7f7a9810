package quake

import (
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // keep the display zone available on tzdata-less hosts
)

// displayTimeFormat renders like "11/14/2023 - 05:13 PM".
const displayTimeFormat = "01/02/2006 - 03:04 PM"

const displayZoneName = "America/New_York"

var displayZone = loadDisplayZone()

func loadDisplayZone() *time.Location {
	loc, err := time.LoadLocation(displayZoneName)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DisplayZone is the fixed zone used for human-facing timestamps and the
// "today" boundary of the summary commands.
func DisplayZone() *time.Location { return displayZone }

// DisplayTime converts feed epoch milliseconds to the display string. This is
// presentation only; it never feeds the dedup key.
func DisplayTime(ms int64) string {
	return time.UnixMilli(ms).In(displayZone).Format(displayTimeFormat)
}

// SameDisplayDay reports whether ms falls on the given calendar day in the
// display zone.
func SameDisplayDay(ms int64, day time.Time) bool {
	y1, m1, d1 := time.UnixMilli(ms).In(displayZone).Date()
	y2, m2, d2 := day.In(displayZone).Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// FormatMagnitude renders a magnitude for display, always with a fractional
// part ("5" becomes "5.0") matching the feed's usual one-decimal style.
func FormatMagnitude(m float64) string {
	s := strconv.FormatFloat(m, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
