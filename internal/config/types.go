package config

import "encoding/json"

// Config is the bridge configuration file (JSON, or YAML by extension).
//
// All durations are Go duration strings ("500ms", "10s", "1m").
type Config struct {
	Instance InstanceConfig `json:"instance"`
	Objects  ObjectsConfig  `json:"objects"`
	Provider ProviderConfig `json:"provider"`
	Dedup    DedupConfig    `json:"dedup,omitempty"`
	Logging  LoggingConfig  `json:"logging"`

	// Optional inbound transports. Nil means disabled.
	HTTP     *HTTPConfig     `json:"http,omitempty"`
	MQTT     *MQTTConfig     `json:"mqtt,omitempty"`
	Telegram *TelegramConfig `json:"telegram,omitempty"`

	Schedule *ScheduleConfig `json:"schedule,omitempty"`
	Metrics  MetricsConfig   `json:"metrics,omitempty"`
}

// InstanceConfig identifies the bridge instance in the object store.
//
// Defaults:
//   - namespace: "pushover.0"
//   - migrate: ["token"]
type InstanceConfig struct {
	Namespace string   `json:"namespace"`
	Migrate   []string `json:"migrate,omitempty"`
	// RenameOnly moves plaintext attributes to enc_<attr> without encrypting.
	// Use it when the stored values are already encrypted.
	RenameOnly bool `json:"rename_only,omitempty"`
}

// ObjectsConfig selects the object store backend.
//
// Example:
//
//	"objects": { "driver": "sqlite", "path": "./objects.db" }
type ObjectsConfig struct {
	Driver      string `json:"driver"` // memory|file|sqlite|mongo
	Path        string `json:"path,omitempty"`
	URI         string `json:"uri,omitempty"` // mongo; may carry credentials (do not log)
	Database    string `json:"database,omitempty"`
	Collection  string `json:"collection,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
}

type ProviderConfig struct {
	Client    string `json:"client,omitempty"` // http (default) | shoutrrr
	APIURL    string `json:"api_url,omitempty"`
	Timeout   string `json:"timeout,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

type DedupConfig struct {
	Window string `json:"window,omitempty"` // default "1s"
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// HTTPConfig controls the HTTP API.
//
// Security note: when jwt_secret is empty the API accepts unauthenticated
// requests, so bind it to loopback.
type HTTPConfig struct {
	Enabled      bool     `json:"enabled"`
	Addr         string   `json:"addr,omitempty"` // default "127.0.0.1:8088"
	JWTSecret    string   `json:"jwt_secret,omitempty"`
	JWTIssuer    string   `json:"jwt_issuer,omitempty"`
	CORSOrigins  []string `json:"cors_origins,omitempty"`
	Pprof        bool     `json:"pprof,omitempty"`
	ReadTimeout  string   `json:"read_timeout,omitempty"`
	WriteTimeout string   `json:"write_timeout,omitempty"`
}

// MQTTConfig controls the MQTT transport. Commands arrive on
// <prefix>/<namespace>/sendTo.
type MQTTConfig struct {
	Enabled        bool   `json:"enabled"`
	Broker         string `json:"broker"`
	ClientID       string `json:"client_id,omitempty"`
	Username       string `json:"username,omitempty"`
	Password       string `json:"password,omitempty"`
	Prefix         string `json:"prefix,omitempty"` // default "iobroker"
	QoS            int    `json:"qos,omitempty"`
	ConnectTimeout string `json:"connect_timeout,omitempty"`
}

type TelegramConfig struct {
	Enabled      bool    `json:"enabled"`
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	LogChatID    int64   `json:"log_chat_id,omitempty"`
	PollTimeout  string  `json:"poll_timeout,omitempty"`
}

// ScheduleConfig holds cron jobs that inject send commands.
type ScheduleConfig struct {
	Timezone string        `json:"timezone,omitempty"`
	Jobs     []ScheduleJob `json:"jobs"`
}

type ScheduleJob struct {
	Name string `json:"name"`
	// Spec is a 5-field cron expression or a descriptor such as "@every 1h".
	Spec    string          `json:"spec"`
	Message json.RawMessage `json:"message"`
}

type MetricsConfig struct {
	Enabled   bool   `json:"enabled"`
	Namespace string `json:"namespace,omitempty"` // default "pushbridge"
}

// MigrateAttrs returns the attributes to migrate, defaulting to token.
func (c *Config) MigrateAttrs() []string {
	if len(c.Instance.Migrate) == 0 {
		return []string{"token"}
	}
	return c.Instance.Migrate
}
