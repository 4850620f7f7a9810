package ops

import (
	"net/http"
	"time"

	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"

	"quakebot/internal/delivery"
	"quakebot/internal/dispatch"
	"quakebot/internal/eventbus"
	"quakebot/internal/poll"
	"quakebot/internal/storage"
)

// ReportSource hands out the most recent cycle report, if any cycle ran.
type ReportSource interface {
	LastReport() (dispatch.Report, bool)
}

// PollSource describes the poller's current schedule and counters.
type PollSource interface {
	Snapshot() poll.Snapshot
}

// DeliverySource lists recently delivered notifications.
type DeliverySource interface {
	Snapshot() []delivery.HistoryItem
}

// Sources are the read-only views /status assembles its answer from. Every
// field is optional; an absent collaborator just drops its section.
type Sources struct {
	StartedAt time.Time

	Dispatch ReportSource
	Poll     PollSource
	Delivery DeliverySource
	Store    storage.Store

	// Bus feeds the recent-events ring shown under "recent_events".
	Bus eventbus.Bus

	// Metrics backs GET /metrics; nil falls back to the default gatherer.
	Metrics prometheus.Gatherer
}

const ringCap = 32

type busEntry struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data,omitempty"`
}

func (s *Service) ringAdd(e eventbus.Event) {
	s.ringMu.Lock()
	defer s.ringMu.Unlock()
	s.ring = append(s.ring, busEntry{Type: e.Type, Time: e.Time, Data: e.Data})
	if len(s.ring) > ringCap {
		s.ring = s.ring[len(s.ring)-ringCap:]
	}
}

func (s *Service) ringSnapshot() []busEntry {
	s.ringMu.Lock()
	defer s.ringMu.Unlock()
	out := make([]busEntry, len(s.ring))
	copy(out, s.ring)
	return out
}

type storageCounts struct {
	Events      int `json:"events"`
	Subscribers int `json:"subscribers"`
}

type statusResponse struct {
	Service   string    `json:"service"`
	StartedAt time.Time `json:"started_at"`
	Uptime    string    `json:"uptime"`

	Poll       *poll.Snapshot         `json:"poll,omitempty"`
	LastCycle  *dispatch.Report       `json:"last_cycle,omitempty"`
	Storage    *storageCounts         `json:"storage,omitempty"`
	Deliveries []delivery.HistoryItem `json:"recent_deliveries,omitempty"`
	Events     []busEntry             `json:"recent_events,omitempty"`
}

func (*statusResponse) Render(http.ResponseWriter, *http.Request) error { return nil }

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp := &statusResponse{
		Service:   "quakebot",
		StartedAt: s.src.StartedAt,
		Uptime:    time.Since(s.src.StartedAt).Round(time.Second).String(),
	}

	if s.src.Poll != nil {
		snap := s.src.Poll.Snapshot()
		resp.Poll = &snap
	}
	if s.src.Dispatch != nil {
		if rep, ok := s.src.Dispatch.LastReport(); ok {
			resp.LastCycle = &rep
		}
	}
	if s.src.Store != nil {
		events, err := s.src.Store.Events().Count(ctx)
		if err != nil {
			render.Render(w, r, ErrServer(err))
			return
		}
		subs, err := s.src.Store.Subscribers().Count(ctx)
		if err != nil {
			render.Render(w, r, ErrServer(err))
			return
		}
		resp.Storage = &storageCounts{Events: events, Subscribers: subs}
	}
	if s.src.Delivery != nil {
		resp.Deliveries = s.src.Delivery.Snapshot()
	}
	if s.src.Bus != nil {
		resp.Events = s.ringSnapshot()
	}

	if err := render.Render(w, r, resp); err != nil {
		render.Render(w, r, ErrRender(err))
	}
}

// ErrResponse formats an error as a small JSON document.
type ErrResponse struct {
	Err            error `json:"-"`
	HTTPStatusCode int   `json:"-"`

	StatusText string `json:"status"`
	ErrorText  string `json:"error,omitempty"`
}

func (e *ErrResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func ErrServer(err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusInternalServerError,
		StatusText:     "server error",
		ErrorText:      err.Error(),
	}
}

func ErrRender(err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusUnprocessableEntity,
		StatusText:     "error rendering response",
		ErrorText:      err.Error(),
	}
}
