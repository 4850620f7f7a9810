package app

import (
	"fmt"
	"strings"
	"time"

	"quakebot/internal/delivery"
	"quakebot/internal/feed"
	"quakebot/internal/ops"
	"quakebot/internal/poll"
	"quakebot/internal/render"
	"quakebot/internal/storage"
	telegram "quakebot/internal/transport/telegram/adapter"
	logx "quakebot/pkg/logx"
)

// The mappers below turn the on-disk config (JSON/YAML, string durations) into
// each component's runtime Config. Zero values pass through; the components
// apply their own defaults at construction.

func mapAdapterConfig(cfg *Config) (telegram.Config, error) {
	pollTimeout, err := parseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, nil
}

func mapLogxConfig(cfg *Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *Config) (storage.Config, error) {
	sc := cfg.Storage
	path := strings.TrimSpace(sc.Path)
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))

	switch driver {
	case "", "file":
		return storage.Config{Driver: "file", Path: path}, nil
	case "sqlite", "sqlite3":
		busy, err := parseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapFeedConfig(cfg *Config) (feed.Config, error) {
	timeout, err := parseDurationField("feed.timeout", cfg.Feed.Timeout)
	if err != nil {
		return feed.Config{}, err
	}
	return feed.Config{
		URL:     cfg.Feed.URL,
		Timeout: timeout,
	}, nil
}

func mapPollConfig(cfg *Config) (poll.Config, error) {
	cycleTimeout, err := parseDurationField("poll.cycle_timeout", cfg.Poll.CycleTimeout)
	if err != nil {
		return poll.Config{}, err
	}
	if err := poll.ValidateSchedule(cfg.Poll.Schedule); err != nil {
		return poll.Config{}, fmt.Errorf("poll.schedule: %w", err)
	}
	return poll.Config{
		Schedule:     cfg.Poll.Schedule,
		CycleTimeout: cycleTimeout,
	}, nil
}

func mapDeliveryConfig(cfg *Config) (delivery.Config, error) {
	retryBase, err := parseDurationField("delivery.retry_base", cfg.Delivery.RetryBase)
	if err != nil {
		return delivery.Config{}, err
	}
	retryMaxDelay, err := parseDurationField("delivery.retry_max_delay", cfg.Delivery.RetryMaxDelay)
	if err != nil {
		return delivery.Config{}, err
	}
	sendTimeout, err := parseDurationField("delivery.send_timeout", cfg.Delivery.SendTimeout)
	if err != nil {
		return delivery.Config{}, err
	}
	return delivery.Config{
		RatePerSec:    cfg.Delivery.RatePerSec,
		RetryMax:      cfg.Delivery.RetryMax,
		RetryBase:     retryBase,
		RetryMaxDelay: retryMaxDelay,
		SendTimeout:   sendTimeout,
	}, nil
}

func mapRenderConfig(cfg *Config) (render.Config, error) {
	imageTimeout, err := parseDurationField("render.image_timeout", cfg.Render.ImageTimeout)
	if err != nil {
		return render.Config{}, err
	}
	return render.Config{
		ImageCommand: cfg.Render.ImageCommand,
		ImageTimeout: imageTimeout,
		ArtifactDir:  cfg.Render.ArtifactDir,
	}, nil
}

func mapOpsConfig(cfg *Config) (ops.Config, error) {
	readTimeout, err := parseDurationOrDefault("ops.read_timeout", cfg.Ops.ReadTimeout, 5*time.Second)
	if err != nil {
		return ops.Config{}, err
	}
	writeTimeout, err := parseDurationOrDefault("ops.write_timeout", cfg.Ops.WriteTimeout, 10*time.Second)
	if err != nil {
		return ops.Config{}, err
	}
	idleTimeout, err := parseDurationOrDefault("ops.idle_timeout", cfg.Ops.IdleTimeout, time.Minute)
	if err != nil {
		return ops.Config{}, err
	}
	return ops.Config{
		Enabled:       cfg.Ops.Enabled,
		Addr:          cfg.Ops.Addr,
		Token:         cfg.Ops.Token,
		AllowInsecure: cfg.Ops.AllowInsecure,
		ReadTimeout:   readTimeout,
		WriteTimeout:  writeTimeout,
		IdleTimeout:   idleTimeout,
	}, nil
}
