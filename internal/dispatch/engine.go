package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"quakebot/internal/eventbus"
	"quakebot/internal/feed"
	"quakebot/internal/metrics"
	"quakebot/internal/quake"
	"quakebot/internal/storage"
	kit "quakebot/internal/transport"
	logx "quakebot/pkg/logx"
)

// Feeder yields one feed window per call.
type Feeder interface {
	Fetch(ctx context.Context) (feed.Document, error)
}

// Renderer turns an event into a deliverable notification. The target is left
// unset; dispatch fills it per subscriber.
type Renderer interface {
	Alert(ctx context.Context, ev quake.Event) (kit.Notification, error)
}

// Sender performs one delivery, retries included.
type Sender interface {
	Send(ctx context.Context, n kit.Notification) error
}

type Deps struct {
	Log     logx.Logger
	Feed    Feeder
	Store   storage.Store
	Render  Renderer
	Deliver Sender
	Bus     eventbus.Bus     // optional
	Metrics *metrics.Metrics // optional
}

// Engine owns the cycle. One RunCycle runs at a time (the scheduler enforces
// single-flight) and pairs are walked in deterministic subscriber x event
// order within a cycle.
type Engine struct {
	log     logx.Logger
	feed    Feeder
	store   storage.Store
	render  Renderer
	deliver Sender
	bus     eventbus.Bus
	metrics *metrics.Metrics

	mu   sync.Mutex
	last *Report
}

func New(d Deps) (*Engine, error) {
	switch {
	case d.Feed == nil:
		return nil, errors.New("dispatch: feeder is required")
	case d.Store == nil:
		return nil, errors.New("dispatch: store is required")
	case d.Render == nil:
		return nil, errors.New("dispatch: renderer is required")
	case d.Deliver == nil:
		return nil, errors.New("dispatch: sender is required")
	}
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	return &Engine{
		log:     d.Log,
		feed:    d.Feed,
		store:   d.Store,
		render:  d.Render,
		deliver: d.Deliver,
		bus:     d.Bus,
		metrics: d.Metrics,
	}, nil
}

// RunCycle executes one full poll cycle. A fetch or storage failure aborts the
// cycle with an error; per-pair render and delivery failures are counted in
// the report and leave the pair eligible for the next tick.
func (e *Engine) RunCycle(ctx context.Context) (Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	rep := Report{RunID: uuid.NewString(), StartedAt: time.Now()}
	log := e.log.With(logx.String("run_id", rep.RunID))

	doc, err := e.feed.Fetch(ctx)
	if err != nil {
		log.Error("feed fetch failed, cycle aborted", logx.Err(err))
		e.publish(eventbus.TypeFeedError, CycleError{RunID: rep.RunID, Error: err.Error()})
		return e.finishFailed(rep, err)
	}
	rep.Fetched = len(doc.Features)
	e.metrics.SetWindow(rep.Fetched)

	window := make([]quake.Event, 0, len(doc.Features))
	for _, f := range doc.Features {
		ev, err := quake.Normalize(f)
		if err != nil {
			rep.Malformed++
			log.Debug("skipping malformed feed record", logx.Err(err))
			continue
		}
		window = append(window, ev)
	}
	e.metrics.AddMalformed(rep.Malformed)

	// Record every sighting before any delivery so a crash mid-fan-out cannot
	// lose the event log.
	events := e.store.Events()
	for _, ev := range window {
		fresh, err := events.Put(ctx, ev)
		if err != nil {
			log.Error("event record failed, cycle aborted", logx.Err(err), logx.String("event_id", ev.ID))
			return e.finishFailed(rep, fmt.Errorf("record event %s: %w", ev.ID, err))
		}
		if fresh {
			rep.NewEvents++
			log.Info("new event recorded",
				logx.String("event_id", ev.ID),
				logx.Float64("magnitude", ev.Magnitude),
				logx.String("place", ev.Place))
		}
	}
	e.metrics.AddRecorded(rep.NewEvents)

	subsRepo := e.store.Subscribers()
	subs, err := subsRepo.All(ctx)
	if err != nil {
		return e.finishFailed(rep, fmt.Errorf("list subscribers: %w", err))
	}
	rep.Subscribers = len(subs)
	e.metrics.SetSubscribers(len(subs))

	for _, sub := range subs {
		unboundLogged := false
		for _, ev := range window {
			if err := ctx.Err(); err != nil {
				return e.finishFailed(rep, err)
			}

			done, err := subsRepo.IsNotified(ctx, sub.ID, ev.ID)
			if err != nil {
				return e.finishFailed(rep, fmt.Errorf("notified lookup: %w", err))
			}
			switch {
			case done:
				rep.AlreadyNotified++
				e.metrics.PairSkipped(metrics.ReasonAlreadyNotified)
			case !sub.Bound():
				rep.NoTarget++
				e.metrics.PairSkipped(metrics.ReasonNoTarget)
				if !unboundLogged {
					unboundLogged = true
					log.Debug("subscriber has no delivery target, skipping this cycle",
						logx.String("subscriber", sub.ID))
				}
			case !sub.MinSeverity.Passes(ev):
				rep.GateFiltered++
				e.metrics.PairSkipped(metrics.ReasonBelowThreshold)
				log.Debug("below subscriber threshold",
					logx.String("subscriber", sub.ID),
					logx.String("event_id", ev.ID),
					logx.Int("min_severity", int(sub.MinSeverity)),
					logx.Float64("magnitude", ev.Magnitude))
			default:
				e.dispatchPair(ctx, log, &rep, subsRepo, sub, ev)
			}
		}
	}

	if err := e.store.Flush(ctx); err != nil {
		log.Warn("store flush failed", logx.Err(err))
	}

	rep.Duration = time.Since(rep.StartedAt)
	e.metrics.CycleCompleted(rep.Duration)
	e.publish(eventbus.TypeCycleCompleted, rep)
	e.remember(rep)
	log.Info("cycle completed",
		logx.Int("fetched", rep.Fetched),
		logx.Int("new_events", rep.NewEvents),
		logx.Int("sent", rep.Sent),
		logx.Int("failed", rep.Failed),
		logx.Duration("took", rep.Duration))
	return rep, nil
}

func (e *Engine) dispatchPair(ctx context.Context, log logx.Logger, rep *Report, subs storage.SubscriberStore, sub storage.Subscriber, ev quake.Event) {
	note := DeliveryNote{RunID: rep.RunID, SubscriberID: sub.ID, EventID: ev.ID, ChatID: sub.ChatID}

	n, err := e.render.Alert(ctx, ev)
	if err != nil {
		rep.Failed++
		e.metrics.DeliveryFailed()
		note.Error = err.Error()
		e.publish(eventbus.TypeDeliveryFailed, note)
		log.Error("alert render failed", logx.Err(err), logx.String("event_id", ev.ID))
		return
	}
	n.Target = kit.ChatTarget{ChatID: sub.ChatID, ThreadID: sub.ThreadID}

	if err := e.deliver.Send(ctx, n); err != nil {
		rep.Failed++
		e.metrics.DeliveryFailed()
		note.Error = err.Error()
		e.publish(eventbus.TypeDeliveryFailed, note)
		log.Warn("delivery failed, will retry while the event stays in the window",
			logx.Err(err), logx.String("subscriber", sub.ID), logx.String("event_id", ev.ID))
		return
	}

	rep.Sent++
	e.metrics.DeliverySent()
	e.publish(eventbus.TypeDeliverySent, note)

	// The send already happened; a failed mark means at worst one duplicate
	// next cycle, which beats a silently dropped alert.
	if err := subs.MarkNotified(ctx, sub.ID, ev.ID); err != nil {
		log.Warn("mark notified failed",
			logx.Err(err), logx.String("subscriber", sub.ID), logx.String("event_id", ev.ID))
	}
}

func (e *Engine) finishFailed(rep Report, err error) (Report, error) {
	rep.Duration = time.Since(rep.StartedAt)
	e.metrics.CycleFailed(rep.Duration)
	e.remember(rep)
	return rep, err
}

// LastReport returns the most recent cycle report, completed or aborted.
func (e *Engine) LastReport() (Report, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last == nil {
		return Report{}, false
	}
	return *e.last, true
}

func (e *Engine) remember(rep Report) {
	e.mu.Lock()
	cp := rep
	e.last = &cp
	e.mu.Unlock()
}

func (e *Engine) publish(typ string, data any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{Type: typ, Data: data})
}
