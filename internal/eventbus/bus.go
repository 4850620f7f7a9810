package eventbus

import (
	"sync"
	"time"
)

// Well-known event types published across the app. Payloads are defined by
// the publishing package.
const (
	TypeCycleCompleted = "cycle.completed"
	TypeCycleSkipped   = "cycle.skipped"
	TypeFeedError      = "feed.error"
	TypeDeliverySent   = "delivery.sent"
	TypeDeliveryFailed = "delivery.failed"
	TypeConfigApplied  = "config.applied"
)

// Event is a lightweight, in-memory signal used to decouple components.
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Slow subscribers may drop events (bounded backpressure).
//
// Data should be small and ideally JSON-serializable.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns a simple in-memory fanout bus. It owns no background
// goroutines; Publish fans out inline.
func New() Bus {
	return &memBus{}
}

type memBus struct {
	mu   sync.RWMutex
	subs []*subscription
}

type subscription struct {
	ch chan Event
}

// Publish sends under the read lock while unsubscribe closes under the write
// lock, so a send can never race a close.
func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		select {
		case s.ch <- e:
		default: // subscriber is behind, drop
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	sub := &subscription{ch: make(chan Event, buffer)}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			for i, s := range b.subs {
				if s == sub {
					b.subs = append(b.subs[:i], b.subs[i+1:]...)
					break
				}
			}
			close(sub.ch)
			b.mu.Unlock()
		})
	}
	return sub.ch, unsub
}
