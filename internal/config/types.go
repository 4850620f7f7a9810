package config

// Config is the on-disk configuration. All durations are Go duration strings
// (e.g. "500ms", "45s", "1m"); zero/omitted values fall back to component
// defaults at wire time.
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Feed     FeedConfig     `json:"feed,omitempty"`
	Poll     PollConfig     `json:"poll,omitempty"`
	Storage  StorageConfig  `json:"storage"`
	Delivery DeliveryConfig `json:"delivery,omitempty"`
	Render   RenderConfig   `json:"render,omitempty"`
	Logging  LoggingConfig  `json:"logging,omitempty"`
	Ops      OpsConfig      `json:"ops,omitempty"`

	// Subscribers seeds the registry at startup. Seeded entries stay unbound
	// (no deliveries) until the chat runs /start, unless chat_id is given.
	Subscribers []SubscriberSeed `json:"subscribers,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// OwnerUserIDs may use owner-only commands like /status.
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`
	// PollTimeout is the long-poll timeout for receiving updates.
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type FeedConfig struct {
	URL     string `json:"url,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

type PollConfig struct {
	// Schedule is a cron expression (seconds optional) or "@every 60s".
	Schedule     string `json:"schedule,omitempty"`
	CycleTimeout string `json:"cycle_timeout,omitempty"`
}

// StorageConfig selects and locates the persistence driver.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./data/quakebot.db" }
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"` // "file" (default) or "sqlite"
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

type DeliveryConfig struct {
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
	SendTimeout   string `json:"send_timeout,omitempty"`
}

// RenderConfig controls the optional map-image artifact. ImageCommand is an
// argv template; the placeholders {longitude} {latitude} {place} {magnitude}
// {output} are substituted per event. Empty disables artifacts (text-only
// notifications).
type RenderConfig struct {
	ImageCommand []string `json:"image_command,omitempty"`
	ImageTimeout string   `json:"image_timeout,omitempty"`
	ArtifactDir  string   `json:"artifact_dir,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level,omitempty"`
	Console bool        `json:"console,omitempty"`
	File    LoggingFile `json:"file,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

// OpsConfig controls the operator HTTP server (healthz/status/metrics).
// Prefer binding to localhost (default). A non-loopback addr requires Token
// or AllowInsecure, since /status includes chat ids.
type OpsConfig struct {
	Enabled       bool   `json:"enabled,omitempty"`
	Addr          string `json:"addr,omitempty"` // default "127.0.0.1:8900"
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	ReadTimeout   string `json:"read_timeout,omitempty"`
	WriteTimeout  string `json:"write_timeout,omitempty"`
	IdleTimeout   string `json:"idle_timeout,omitempty"`
}

// SubscriberSeed pre-registers a subscriber. MinSeverity is a pointer so an
// explicit 0 ("all events") is distinguishable from omitted (default level 2).
type SubscriberSeed struct {
	ID          string `json:"id"`
	MinSeverity *int   `json:"min_severity,omitempty"`
	ChatID      int64  `json:"chat_id,omitempty"`
	ThreadID    int    `json:"thread_id,omitempty"`
}
