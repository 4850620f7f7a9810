package render

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"quakebot/internal/quake"
	logx "quakebot/pkg/logx"
)

func sampleEvent() quake.Event {
	return quake.Event{
		ID:           "5.0-abc-1700000000000",
		Place:        "10km SSW of Idyllwild, CA",
		Magnitude:    5.0,
		TimeMs:       1700000000000,
		LocalTime:    "11/14/2023 - 05:13 PM",
		Latitude:     33.71,
		Longitude:    -116.67,
		Depth:        "10.16",
		URL:          "https://earthquake.usgs.gov/earthquakes/eventpage/abc",
		Alert:        quake.AlertRed,
		Significance: 600,
		Tsunami:      true,
	}
}

func TestAlertMessageComposition(t *testing.T) {
	msg := alertMessage(sampleEvent())

	for _, want := range []string{
		"<b>5.0 Earthquake</b>",
		"A magnitude 5.0 earthquake has just occurred 10km SSW of Idyllwild, CA.",
		"<b>Magnitude</b>: 5.0",
		"<b>Significance[1-1000]</b>: 600",
		"There is potential for a Tsunami",
		"🟥 <b>RED PAGER Alert</b>: high casualties and widespread catastrophic damage expected",
		"<b>Depth</b>: 10.16",
		"<b>Time</b>: 11/14/2023 - 05:13 PM",
		`<a href="https://earthquake.usgs.gov/earthquakes/eventpage/abc">USGS event page</a>`,
	} {
		if !strings.Contains(msg.Text, want) {
			t.Fatalf("alert text missing %q:\n%s", want, msg.Text)
		}
	}
	if msg.Opt == nil || msg.Opt.ParseMode != "HTML" {
		t.Fatalf("alert must use HTML parse mode: %+v", msg.Opt)
	}
}

func TestAlertMessageOmitsOptionalRows(t *testing.T) {
	ev := sampleEvent()
	ev.Significance = 0
	ev.Tsunami = false
	ev.Alert = quake.AlertUnknown
	ev.URL = ""

	msg := alertMessage(ev)
	for _, absent := range []string{"Significance", "Tsunami", "PAGER", "<a href"} {
		if strings.Contains(msg.Text, absent) {
			t.Fatalf("alert text should omit %q:\n%s", absent, msg.Text)
		}
	}
}

func TestAlertEscapesPlace(t *testing.T) {
	ev := sampleEvent()
	ev.Place = `5km E of "Fish & Game" Reserve`

	msg := alertMessage(ev)
	if !strings.Contains(msg.Text, "&amp;") {
		t.Fatalf("place not HTML-escaped:\n%s", msg.Text)
	}
	if strings.Contains(msg.Text, `"Fish & Game"`) {
		t.Fatalf("raw place leaked into HTML:\n%s", msg.Text)
	}
}

func TestAlertWithoutImageCommand(t *testing.T) {
	r := New(Config{}, logx.Nop())
	n, err := r.Alert(context.Background(), sampleEvent())
	if err != nil {
		t.Fatalf("Alert: %v", err)
	}
	if n.ImagePath != "" {
		t.Fatalf("expected no artifact, got %q", n.ImagePath)
	}
	if n.Text == "" {
		t.Fatalf("alert text empty")
	}
}

func TestAlertAttachesArtifact(t *testing.T) {
	dir := t.TempDir()
	r := New(Config{
		ImageCommand: []string{"sh", "-c", "printf png > {output}"},
		ArtifactDir:  dir,
	}, logx.Nop())

	n, err := r.Alert(context.Background(), sampleEvent())
	if err != nil {
		t.Fatalf("Alert: %v", err)
	}
	if n.ImagePath == "" || !strings.HasPrefix(n.ImagePath, dir) {
		t.Fatalf("artifact path = %q, want under %q", n.ImagePath, dir)
	}
}

func TestAlertDegradesWhenCommandFails(t *testing.T) {
	r := New(Config{
		ImageCommand: []string{"sh", "-c", "exit 3"},
		ArtifactDir:  t.TempDir(),
	}, logx.Nop())

	n, err := r.Alert(context.Background(), sampleEvent())
	if err != nil {
		t.Fatalf("Alert must not fail on image errors: %v", err)
	}
	if n.ImagePath != "" {
		t.Fatalf("failed command still attached artifact %q", n.ImagePath)
	}
	if n.Text == "" {
		t.Fatalf("alert text empty after degrade")
	}
}

func dayEvent(i int, mag float64, at time.Time) quake.Event {
	return quake.Event{
		ID:        fmt.Sprintf("%s-ev%02d-%d", quake.FormatMagnitude(mag), i, at.UnixMilli()),
		Place:     fmt.Sprintf("Region %02d", i),
		Magnitude: mag,
		TimeMs:    at.UnixMilli(),
	}
}

func TestTopTenOrdersAndLimits(t *testing.T) {
	now := time.Now()
	var events []quake.Event
	for i := 0; i < 12; i++ {
		events = append(events, dayEvent(i, 0.5+float64(i)*0.25, now))
	}
	// Yesterday's strongest quake must not leak into today's list.
	events = append(events, dayEvent(99, 9.9, now.Add(-48*time.Hour)))

	msg := TopTen(events, now)
	if strings.Contains(msg.Text, "Region 99") {
		t.Fatalf("yesterday's event leaked into today's top list:\n%s", msg.Text)
	}
	if strings.Count(msg.Text, "<code>") != 10 {
		t.Fatalf("expected 10 rows, got %d:\n%s", strings.Count(msg.Text, "<code>"), msg.Text)
	}
	first := strings.SplitN(msg.Text, "<code>", 3)[1]
	if !strings.Contains(first, "Region 11") {
		t.Fatalf("strongest event not first:\n%s", first)
	}
}

func TestTodaySummaryStats(t *testing.T) {
	now := time.Now()
	events := []quake.Event{
		dayEvent(1, 2.0, now),
		dayEvent(2, 3.0, now),
		dayEvent(3, 4.0, now),
		dayEvent(4, 8.0, now.Add(-48*time.Hour)),
	}

	msg := Today(events, now)
	for _, want := range []string{
		"Total Earthquakes Today: 3",
		"Magnitude 3: 2",
		"<b>Average Magnitude</b>: 3.00",
		"<b>Highest Magnitude</b>: 4.00",
		"<b>Lowest Magnitude</b>: 2.00",
	} {
		if !strings.Contains(msg.Text, want) {
			t.Fatalf("summary missing %q:\n%s", want, msg.Text)
		}
	}
}

func TestTodayEmpty(t *testing.T) {
	msg := Today(nil, time.Now())
	if !strings.Contains(msg.Text, "Total Earthquakes Today: 0") {
		t.Fatalf("empty summary wrong:\n%s", msg.Text)
	}
}
