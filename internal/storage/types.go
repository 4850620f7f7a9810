package storage

import (
	"context"
	"errors"
	"time"

	"quakebot/internal/quake"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// Driver values:
//   - "file" (default): dependency-free file backend (JSON snapshots + journal)
//   - "sqlite": embedded SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Subscriber is one notification-receiving chat group. The zero ChatID means
// the delivery target has not been resolved yet (seeded via config but the
// chat never ran /start); dispatch skips such subscribers without error.
type Subscriber struct {
	ID          string          `json:"id"`
	MinSeverity quake.Threshold `json:"min_severity"`
	ChatID      int64           `json:"chat_id,omitempty"`
	ThreadID    int             `json:"thread_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Bound reports whether the subscriber has a resolvable delivery target.
func (s Subscriber) Bound() bool { return s.ChatID != 0 }

// Store owns the two durable documents. Both are flushed together at the end
// of a poll cycle; Close flushes once more and releases file handles.
type Store interface {
	Events() EventStore
	Subscribers() SubscriberStore
	Flush(ctx context.Context) error
	Close() error
}

// EventStore is the append-only log of every event ever seen.
type EventStore interface {
	Has(ctx context.Context, id string) (bool, error)
	Get(ctx context.Context, id string) (quake.Event, bool, error)
	// Put records the event on first sighting and reports whether it was new.
	// Putting an already-present id is a no-op, never an overwrite.
	Put(ctx context.Context, ev quake.Event) (bool, error)
	All(ctx context.Context) ([]quake.Event, error)
	Count(ctx context.Context) (int, error)
}

// SubscriberStore is the registry of subscriber preferences and per-event
// delivery state.
type SubscriberStore interface {
	// GetOrCreate returns the existing record or creates one with defaults
	// (MinSeverity = quake.DefaultThreshold, unbound target). Idempotent under
	// concurrent calls for the same id.
	GetOrCreate(ctx context.Context, id string) (Subscriber, error)
	// SetThreshold validates level into 0..4 (otherwise
	// *quake.InvalidThresholdError) and applies it, creating the subscriber
	// with defaults first when absent.
	SetThreshold(ctx context.Context, id string, level int) error
	// BindTarget resolves the delivery target for the subscriber.
	BindTarget(ctx context.Context, id string, chatID int64, threadID int) error
	// MarkNotified records the terminal DELIVERED state for the pair.
	// Idempotent: marking an already-notified pair is a no-op.
	MarkNotified(ctx context.Context, id, eventID string) error
	IsNotified(ctx context.Context, id, eventID string) (bool, error)
	All(ctx context.Context) ([]Subscriber, error)
	Count(ctx context.Context) (int, error)
}
