package delivery

import (
	"time"

	kit "quakebot/internal/transport"
)

type Config struct {
	// RatePerSec caps outgoing sends across all subscribers. The token bucket
	// burst equals the rate so short fan-out spikes don't stall.
	RatePerSec int

	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration

	// SendTimeout bounds a single adapter call.
	SendTimeout time.Duration
}

// HistoryItem is one delivered notification, kept in a small ring for the
// operator status endpoint.
type HistoryItem struct {
	At       time.Time      `json:"at"`
	Target   kit.ChatTarget `json:"target"`
	Text     string         `json:"text"`
	TextOnly bool           `json:"text_only,omitempty"` // photo degraded to text
}
