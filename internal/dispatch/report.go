package dispatch

import "time"

// Report summarizes one cycle for logs, the event bus and the status surface.
// Counters are per-pair except Fetched/Malformed/NewEvents, which are
// per-record.
type Report struct {
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	Fetched         int `json:"fetched"`
	Malformed       int `json:"malformed,omitempty"`
	NewEvents       int `json:"new_events"`
	Subscribers     int `json:"subscribers"`
	AlreadyNotified int `json:"already_notified"`
	NoTarget        int `json:"no_target,omitempty"`
	GateFiltered    int `json:"gate_filtered"`
	Sent            int `json:"sent"`
	Failed          int `json:"failed,omitempty"`
}

// DeliveryNote is the bus payload for per-pair delivery outcomes.
type DeliveryNote struct {
	RunID        string `json:"run_id"`
	SubscriberID string `json:"subscriber_id"`
	EventID      string `json:"event_id"`
	ChatID       int64  `json:"chat_id"`
	Error        string `json:"error,omitempty"`
}

// CycleError is the bus payload for aborted cycles.
type CycleError struct {
	RunID string `json:"run_id"`
	Error string `json:"error"`
}
