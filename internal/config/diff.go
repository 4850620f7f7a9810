package config

import (
	"reflect"
	"sort"
	"strings"

	logx "quakebot/pkg/logx"
)

// SummarizeChange returns the changed top-level sections plus safe structured
// attrs for logging. Secrets (the Telegram token) are reported as set/unset
// flips only, never by value.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 24)

	if oldCfg.Telegram.PollTimeout != newCfg.Telegram.PollTimeout ||
		!reflect.DeepEqual(oldCfg.Telegram.OwnerUserIDs, newCfg.Telegram.OwnerUserIDs) ||
		(strings.TrimSpace(oldCfg.Telegram.Token) != "") != (strings.TrimSpace(newCfg.Telegram.Token) != "") {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", newCfg.Telegram.PollTimeout),
			logx.Int("telegram.owner_count", len(newCfg.Telegram.OwnerUserIDs)),
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
		)
	}

	if oldCfg.Feed != newCfg.Feed {
		changed = append(changed, "feed")
		attrs = append(attrs,
			logx.String("feed.url", newCfg.Feed.URL),
			logx.String("feed.timeout", newCfg.Feed.Timeout),
		)
	}

	if oldCfg.Poll != newCfg.Poll {
		changed = append(changed, "poll")
		attrs = append(attrs,
			logx.String("poll.schedule", newCfg.Poll.Schedule),
			logx.String("poll.cycle_timeout", newCfg.Poll.CycleTimeout),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
			logx.String("storage.busy_timeout", newCfg.Storage.BusyTimeout),
		)
	}

	if oldCfg.Delivery != newCfg.Delivery {
		changed = append(changed, "delivery")
		attrs = append(attrs,
			logx.Int("delivery.rate_per_sec", newCfg.Delivery.RatePerSec),
			logx.Int("delivery.retry_max", newCfg.Delivery.RetryMax),
			logx.String("delivery.retry_base", newCfg.Delivery.RetryBase),
			logx.String("delivery.retry_max_delay", newCfg.Delivery.RetryMaxDelay),
			logx.String("delivery.send_timeout", newCfg.Delivery.SendTimeout),
		)
	}

	if !reflect.DeepEqual(oldCfg.Render, newCfg.Render) {
		changed = append(changed, "render")
		attrs = append(attrs,
			logx.Bool("render.image_enabled", len(newCfg.Render.ImageCommand) > 0),
			logx.String("render.image_timeout", newCfg.Render.ImageTimeout),
			logx.Bool("render.artifact_dir_set", strings.TrimSpace(newCfg.Render.ArtifactDir) != ""),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Ops != newCfg.Ops {
		changed = append(changed, "ops")
		attrs = append(attrs,
			logx.Bool("ops.enabled", newCfg.Ops.Enabled),
			logx.String("ops.addr", strings.TrimSpace(newCfg.Ops.Addr)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Subscribers, newCfg.Subscribers) {
		changed = append(changed, "subscribers")
		attrs = append(attrs, logx.Int("subscribers.seeded", len(newCfg.Subscribers)))
	}

	sort.Strings(changed)
	return changed, attrs
}
