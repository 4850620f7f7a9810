package render

import (
	"fmt"
	"sort"
	"time"

	"quakebot/internal/quake"
	"quakebot/pkg/tgui"
)

// TopTen renders the ten strongest events of the given day (display zone).
func TopTen(events []quake.Event, now time.Time) tgui.Message {
	day := filterDay(events, now)
	sort.Slice(day, func(i, j int) bool {
		if day[i].Magnitude != day[j].Magnitude {
			return day[i].Magnitude > day[j].Magnitude
		}
		return day[i].TimeMs < day[j].TimeMs
	})
	if len(day) > 10 {
		day = day[:10]
	}

	date := now.In(quake.DisplayZone()).Format("January 02, 2006")
	b := tgui.New().Title("", "Top 10 Largest Earthquakes "+date)
	if len(day) == 0 {
		b.Blank().Line("No earthquakes recorded today.")
		return b.Build()
	}
	b.Blank()
	for i, ev := range day {
		b.Code(fmt.Sprintf("#%-2d %-50s | MAG:%4s",
			i+1, tgui.TruncRunes(ev.Place, 50), quake.FormatMagnitude(ev.Magnitude)))
	}
	return b.Build()
}

// Today renders the daily summary: totals and magnitude statistics.
func Today(events []quake.Event, now time.Time) tgui.Message {
	day := filterDay(events, now)

	b := tgui.New()
	if len(day) == 0 {
		b.Title("", "Total Earthquakes Today: 0")
		b.Blank().Line("No earthquakes recorded today.")
		return b.Build()
	}

	var sum float64
	minM, maxM := day[0].Magnitude, day[0].Magnitude
	atLeast3 := 0
	for _, ev := range day {
		sum += ev.Magnitude
		if ev.Magnitude > maxM {
			maxM = ev.Magnitude
		}
		if ev.Magnitude < minM {
			minM = ev.Magnitude
		}
		if ev.Magnitude >= 3.0 {
			atLeast3++
		}
	}

	b.Title("", fmt.Sprintf("Total Earthquakes Today: %d", len(day)))
	b.Line(fmt.Sprintf(">= Magnitude 3: %d", atLeast3))
	b.Blank()
	b.KV("Average Magnitude", fmt.Sprintf("%.2f", sum/float64(len(day))))
	b.KV("Highest Magnitude", fmt.Sprintf("%.2f", maxM))
	b.KV("Lowest Magnitude", fmt.Sprintf("%.2f", minM))
	return b.Build()
}

func filterDay(events []quake.Event, day time.Time) []quake.Event {
	var out []quake.Event
	for _, ev := range events {
		if quake.SameDisplayDay(ev.TimeMs, day) {
			out = append(out, ev)
		}
	}
	return out
}
