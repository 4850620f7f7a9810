package storage

import (
	"errors"
	"strings"

	logx "quakebot/pkg/logx"
)

// Open initializes the configured store. Unlike transient failures later on,
// any error here is fatal to startup: running without durable state would
// silently re-notify everything.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
