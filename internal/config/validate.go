package config

import (
	"fmt"
	"strings"

	"quakebot/internal/quake"
)

// Validate checks everything that must hold before a config is committed:
// required fields, duration syntax, threshold levels. Component defaults are
// applied at wire time, not here, so an omitted value is never an error.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return fmt.Errorf("storage.path is required")
	}
	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "file", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}

	durations := []struct{ path, raw string }{
		{"telegram.poll_timeout", c.Telegram.PollTimeout},
		{"feed.timeout", c.Feed.Timeout},
		{"poll.cycle_timeout", c.Poll.CycleTimeout},
		{"storage.busy_timeout", c.Storage.BusyTimeout},
		{"delivery.retry_base", c.Delivery.RetryBase},
		{"delivery.retry_max_delay", c.Delivery.RetryMaxDelay},
		{"delivery.send_timeout", c.Delivery.SendTimeout},
		{"render.image_timeout", c.Render.ImageTimeout},
		{"ops.read_timeout", c.Ops.ReadTimeout},
		{"ops.write_timeout", c.Ops.WriteTimeout},
		{"ops.idle_timeout", c.Ops.IdleTimeout},
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			return err
		}
	}

	if c.Delivery.RatePerSec < 0 {
		return fmt.Errorf("delivery.rate_per_sec must be >= 0")
	}
	if c.Delivery.RetryMax < 0 {
		return fmt.Errorf("delivery.retry_max must be >= 0")
	}

	for i, s := range c.Subscribers {
		if strings.TrimSpace(s.ID) == "" {
			return fmt.Errorf("subscribers[%d].id is required", i)
		}
		if s.MinSeverity != nil {
			if _, err := quake.ParseThreshold(*s.MinSeverity); err != nil {
				return fmt.Errorf("subscribers[%d].min_severity: %w", i, err)
			}
		}
	}
	return nil
}
