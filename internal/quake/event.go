package quake

import "time"

// Event is one detected seismic occurrence. Created by Normalize, persisted
// once on first sighting, never mutated afterwards.
type Event struct {
	ID           string  `json:"id"`
	Place        string  `json:"place"`
	Magnitude    float64 `json:"magnitude"`
	TimeMs       int64   `json:"time_ms"`
	LocalTime    string  `json:"local_time"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	Depth        string  `json:"depth"`
	URL          string  `json:"url"`
	Alert        Alert   `json:"alert"`
	Significance int     `json:"significance,omitempty"`
	Tsunami      bool    `json:"tsunami"`
}

// Time returns the occurrence instant (feed-native epoch milliseconds).
func (e Event) Time() time.Time { return time.UnixMilli(e.TimeMs) }

// Alert is the coarse PAGER alert tier. Distinct from the numeric magnitude
// thresholds used for gating.
type Alert string

const (
	AlertGreen   Alert = "green"
	AlertYellow  Alert = "yellow"
	AlertOrange  Alert = "orange"
	AlertRed     Alert = "red"
	AlertUnknown Alert = "unknown"
)

// ParseAlert maps the feed's alert string onto the closed tier enumeration.
// Unrecognized or absent values become AlertUnknown, never an error, so new
// upstream tiers cannot break ingestion.
func ParseAlert(s string) Alert {
	switch s {
	case "green":
		return AlertGreen
	case "yellow":
		return AlertYellow
	case "orange":
		return AlertOrange
	case "red":
		return AlertRed
	default:
		return AlertUnknown
	}
}

// Known reports whether the tier is one of the four PAGER levels.
func (a Alert) Known() bool { return a != AlertUnknown && a != "" }

// Icon returns the colored-square marker used in notifications.
// Reference: https://earthquake.usgs.gov/data/pager/onepager.php
func (a Alert) Icon() string {
	switch a {
	case AlertGreen:
		return "🟩"
	case AlertYellow:
		return "🟨"
	case AlertOrange:
		return "🟧"
	case AlertRed:
		return "🟥"
	default:
		return "-"
	}
}

// Description returns the PAGER impact summary for the tier, empty for unknown.
func (a Alert) Description() string {
	switch a {
	case AlertGreen:
		return "No expected casualties or damage"
	case AlertYellow:
		return "Some casualties and localized damage possible"
	case AlertOrange:
		return "Significant casualties and regional damage likely"
	case AlertRed:
		return "high casualties and widespread catastrophic damage expected"
	default:
		return ""
	}
}
