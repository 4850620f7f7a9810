package quake

import (
	"encoding/json"
	"strconv"
	"strings"

	"quakebot/internal/feed"
)

// MalformedRecordError reports a feed record missing (or carrying an unusable
// value for) a required field. Such records are skipped by the cycle, never
// fatal to it.
type MalformedRecordError struct {
	Field string
}

func (e *MalformedRecordError) Error() string {
	return "malformed feed record: missing required field " + strconv.Quote(e.Field)
}

// Normalize converts one raw feed feature into the canonical Event. Pure:
// equal input yields an equal Event, including the derived ID. Required fields
// are place, mag, time and code (the composite-key inputs); everything else
// degrades to a sensible zero.
func Normalize(f feed.Feature) (Event, error) {
	p := f.Properties

	place := strings.TrimSpace(p.Place)
	if place == "" {
		return Event{}, &MalformedRecordError{Field: "place"}
	}
	magText := p.Mag.String()
	if magText == "" {
		return Event{}, &MalformedRecordError{Field: "mag"}
	}
	mag, err := p.Mag.Float64()
	if err != nil {
		return Event{}, &MalformedRecordError{Field: "mag"}
	}
	if p.Time == 0 {
		return Event{}, &MalformedRecordError{Field: "time"}
	}
	code := strings.TrimSpace(p.Code)
	if code == "" {
		return Event{}, &MalformedRecordError{Field: "code"}
	}

	return Event{
		ID:           magText + "-" + code + "-" + strconv.FormatInt(p.Time, 10),
		Place:        place,
		Magnitude:    mag,
		TimeMs:       p.Time,
		LocalTime:    DisplayTime(p.Time),
		Latitude:     f.Geometry.Lat(),
		Longitude:    f.Geometry.Lon(),
		Depth:        formatDepth(p.Depth),
		URL:          p.URL,
		Alert:        ParseAlert(p.Alert),
		Significance: p.Sig,
		Tsunami:      p.Tsunami != 0,
	}, nil
}

// formatDepth keeps the feed's textual depth; absent or zero becomes "unknown"
// (the feed reports depth sparsely and zero means "not measured" upstream).
func formatDepth(d json.Number) string {
	s := d.String()
	if s == "" {
		return "unknown"
	}
	if v, err := d.Float64(); err != nil || v == 0 {
		return "unknown"
	}
	return s
}
