package quake

import (
	"encoding/json"
	"errors"
	"testing"

	"quakebot/internal/feed"
)

func validFeature() feed.Feature {
	return feed.Feature{
		Properties: feed.Properties{
			Alert:   "red",
			Place:   "10km SSW of Idyllwild, CA",
			Mag:     json.Number("5.0"),
			URL:     "https://earthquake.usgs.gov/earthquakes/eventpage/abc",
			Time:    1700000000000,
			Tsunami: 1,
			Depth:   json.Number("10.16"),
			Sig:     600,
			Code:    "abc",
		},
		Geometry: feed.Geometry{Coordinates: []float64{-116.67, 33.71, 10.16}},
	}
}

func TestNormalizeDerivesCompositeID(t *testing.T) {
	t.Parallel()

	ev, err := Normalize(validFeature())
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if ev.ID != "5.0-abc-1700000000000" {
		t.Fatalf("ID = %q, want %q", ev.ID, "5.0-abc-1700000000000")
	}
	if ev.Magnitude != 5.0 {
		t.Fatalf("Magnitude = %v, want 5.0", ev.Magnitude)
	}
	if ev.Alert != AlertRed {
		t.Fatalf("Alert = %q, want red", ev.Alert)
	}
	if !ev.Tsunami {
		t.Fatal("Tsunami = false, want true")
	}
	if ev.Longitude != -116.67 || ev.Latitude != 33.71 {
		t.Fatalf("coordinates = (%v, %v), want (-116.67, 33.71)", ev.Longitude, ev.Latitude)
	}
	if ev.Depth != "10.16" {
		t.Fatalf("Depth = %q, want %q", ev.Depth, "10.16")
	}
}

func TestNormalizeKeepsFeedMagnitudeText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		mag  string
		want string
	}{
		{"trailing zero", "5.0", "5.0-abc-1700000000000"},
		{"integer", "5", "5-abc-1700000000000"},
		{"two decimals", "0.96", "0.96-abc-1700000000000"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := validFeature()
			f.Properties.Mag = json.Number(tt.mag)
			ev, err := Normalize(f)
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			if ev.ID != tt.want {
				t.Fatalf("ID = %q, want %q", ev.ID, tt.want)
			}
		})
	}
}

func TestNormalizeMissingFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*feed.Feature)
		field  string
	}{
		{"no place", func(f *feed.Feature) { f.Properties.Place = "" }, "place"},
		{"blank place", func(f *feed.Feature) { f.Properties.Place = "   " }, "place"},
		{"null mag", func(f *feed.Feature) { f.Properties.Mag = "" }, "mag"},
		{"garbage mag", func(f *feed.Feature) { f.Properties.Mag = json.Number("n/a") }, "mag"},
		{"no time", func(f *feed.Feature) { f.Properties.Time = 0 }, "time"},
		{"no code", func(f *feed.Feature) { f.Properties.Code = "" }, "code"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := validFeature()
			tt.mutate(&f)
			_, err := Normalize(f)
			var mre *MalformedRecordError
			if !errors.As(err, &mre) {
				t.Fatalf("err = %v, want MalformedRecordError", err)
			}
			if mre.Field != tt.field {
				t.Fatalf("Field = %q, want %q", mre.Field, tt.field)
			}
		})
	}
}

func TestNormalizeOptionalFields(t *testing.T) {
	t.Parallel()

	f := validFeature()
	f.Properties.Alert = "purple"
	f.Properties.Depth = ""
	f.Properties.Tsunami = 0
	f.Properties.Sig = 0
	f.Geometry.Coordinates = nil

	ev, err := Normalize(f)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if ev.Alert != AlertUnknown {
		t.Fatalf("Alert = %q, want unknown", ev.Alert)
	}
	if ev.Depth != "unknown" {
		t.Fatalf("Depth = %q, want %q", ev.Depth, "unknown")
	}
	if ev.Tsunami {
		t.Fatal("Tsunami = true, want false")
	}
	if ev.Longitude != 0 || ev.Latitude != 0 {
		t.Fatalf("coordinates = (%v, %v), want zeros", ev.Longitude, ev.Latitude)
	}
}

func TestFormatDepthZeroIsUnknown(t *testing.T) {
	t.Parallel()

	f := validFeature()
	f.Properties.Depth = json.Number("0")
	ev, err := Normalize(f)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if ev.Depth != "unknown" {
		t.Fatalf("Depth = %q, want %q", ev.Depth, "unknown")
	}
}

func TestDisplayTime(t *testing.T) {
	t.Parallel()

	// 1700000000000 ms = 2023-11-14 22:13:20 UTC = 17:13 EST.
	got := DisplayTime(1700000000000)
	want := "11/14/2023 - 05:13 PM"
	if got != want {
		t.Fatalf("DisplayTime = %q, want %q", got, want)
	}
}

func TestFormatMagnitude(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   float64
		want string
	}{
		{5, "5.0"},
		{5.0, "5.0"},
		{4.25, "4.25"},
		{0.96, "0.96"},
		{-0.5, "-0.5"},
	}
	for _, tt := range tests {
		if got := FormatMagnitude(tt.in); got != tt.want {
			t.Fatalf("FormatMagnitude(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
