package poll

import "time"

const (
	// DefaultSchedule matches the feed's own update cadence.
	DefaultSchedule = "@every 60s"

	// DefaultCycleTimeout leaves headroom under the schedule so a hung cycle
	// ends before the next tick wants to start.
	DefaultCycleTimeout = 45 * time.Second
)

type Config struct {
	// Schedule is a cron expression (seconds field optional) or a descriptor
	// like "@every 60s".
	Schedule string

	// CycleTimeout bounds one full cycle including deliveries.
	CycleTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Schedule == "" {
		c.Schedule = DefaultSchedule
	}
	if c.CycleTimeout <= 0 {
		c.CycleTimeout = DefaultCycleTimeout
	}
	return c
}

// Snapshot is the scheduler state exposed on the status surface.
type Snapshot struct {
	Schedule     string        `json:"schedule"`
	CycleTimeout time.Duration `json:"cycle_timeout"`
	Running      bool          `json:"running"`
	Runs         uint64        `json:"runs"`
	SkippedTicks uint64        `json:"skipped_ticks"`
	NextRun      time.Time     `json:"next_run"`
}

// SkippedTick is the bus payload when a tick finds the previous cycle still
// running.
type SkippedTick struct {
	At      time.Time `json:"at"`
	Skipped uint64    `json:"skipped_total"`
}
