package config

import (
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// envOverrides are the operational knobs that may come from the environment
// instead of the file (systemd drop-ins, container env). Applied after file
// load and before validation, so an env value wins over the file.
//
// Recognized variables:
//
//	QUAKEBOT_TELEGRAM_TOKEN
//	QUAKEBOT_FEED_URL
//	QUAKEBOT_STORAGE_DRIVER
//	QUAKEBOT_STORAGE_PATH
//	QUAKEBOT_OPS_ADDR
//	QUAKEBOT_LOG_LEVEL
type envOverrides struct {
	TelegramToken string `envconfig:"telegram_token"`
	FeedURL       string `envconfig:"feed_url"`
	StorageDriver string `envconfig:"storage_driver"`
	StoragePath   string `envconfig:"storage_path"`
	OpsAddr       string `envconfig:"ops_addr"`
	LogLevel      string `envconfig:"log_level"`
}

func applyEnvOverrides(cfg *Config) error {
	var ov envOverrides
	if err := envconfig.Process("quakebot", &ov); err != nil {
		return err
	}
	if v := strings.TrimSpace(ov.TelegramToken); v != "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(ov.FeedURL); v != "" {
		cfg.Feed.URL = v
	}
	if v := strings.TrimSpace(ov.StorageDriver); v != "" {
		cfg.Storage.Driver = v
	}
	if v := strings.TrimSpace(ov.StoragePath); v != "" {
		cfg.Storage.Path = v
	}
	if v := strings.TrimSpace(ov.OpsAddr); v != "" {
		cfg.Ops.Addr = v
	}
	if v := strings.TrimSpace(ov.LogLevel); v != "" {
		cfg.Logging.Level = v
	}
	return nil
}
