package render

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"quakebot/internal/quake"
	kit "quakebot/internal/transport"
	logx "quakebot/pkg/logx"
	"quakebot/pkg/tgui"
)

type Config struct {
	// ImageCommand is the argv template for the external map renderer; empty
	// disables artifacts. Placeholders: {longitude} {latitude} {place}
	// {magnitude} {output}.
	ImageCommand []string
	ImageTimeout time.Duration
	ArtifactDir  string
}

type Renderer struct {
	mu  sync.Mutex
	log logx.Logger
	cfg Config
}

func New(cfg Config, log logx.Logger) *Renderer {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Renderer{log: log}
	r.applyLocked(cfg)
	return r
}

func (r *Renderer) Apply(cfg Config) {
	r.mu.Lock()
	r.applyLocked(cfg)
	r.mu.Unlock()
}

func (r *Renderer) applyLocked(cfg Config) {
	if cfg.ImageTimeout <= 0 {
		cfg.ImageTimeout = 20 * time.Second
	}
	r.cfg = cfg
}

// Alert renders the notification for one event. Text always succeeds; the map
// artifact is attached only when the external command produced one.
func (r *Renderer) Alert(ctx context.Context, ev quake.Event) (kit.Notification, error) {
	msg := alertMessage(ev)
	n := kit.Notification{Text: msg.Text, Options: msg.Opt}

	path, err := r.renderImage(ctx, ev)
	if err != nil {
		r.log.Warn("map render failed, alert degrades to text only",
			logx.Err(err), logx.String("event_id", ev.ID))
		return n, nil
	}
	n.ImagePath = path
	return n, nil
}

func alertMessage(ev quake.Event) tgui.Message {
	mag := quake.FormatMagnitude(ev.Magnitude)

	b := tgui.New()
	b.RawLine(tgui.JoinH(" ", tgui.Esc("🚨"), tgui.B(mag+" Earthquake"), tgui.Esc("🚨")).String())
	b.Line(fmt.Sprintf("A magnitude %s earthquake has just occurred %s.", mag, ev.Place))
	b.Blank()
	b.KV("Magnitude", mag)
	if ev.Significance > 0 {
		b.KV("Significance[1-1000]", strconv.Itoa(ev.Significance))
	}
	if ev.Tsunami {
		b.KV("There is potential for a Tsunami", "🌊")
	}
	if ev.Alert.Known() {
		level := strings.ToUpper(string(ev.Alert))
		b.RawLine("• " + tgui.Esc(ev.Alert.Icon()).String() + " " +
			tgui.B(level+" PAGER Alert").String() + ": " + tgui.Esc(ev.Alert.Description()).String())
	}
	b.KV("Depth", ev.Depth)
	b.KV("Time", ev.LocalTime)
	if ev.URL != "" {
		b.RawLine(tgui.Link("USGS event page", ev.URL).String())
	}
	return b.Build()
}
