package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "PUSHBRIDGE_"

// LoadDotEnv loads .env style files into the process environment. Missing
// files are ignored; variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// ApplyEnv overrides selected fields from PUSHBRIDGE_* variables. Secrets are
// usually injected this way instead of living in the config file.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(EnvPrefix + key)); v != "" {
			*dst = v
		}
	}

	set(&cfg.Instance.Namespace, "NAMESPACE")
	set(&cfg.Objects.Driver, "OBJECTS_DRIVER")
	set(&cfg.Objects.Path, "OBJECTS_PATH")
	set(&cfg.Objects.URI, "OBJECTS_URI")
	set(&cfg.Logging.Level, "LOG_LEVEL")
	if cfg.HTTP != nil {
		set(&cfg.HTTP.Addr, "HTTP_ADDR")
		set(&cfg.HTTP.JWTSecret, "HTTP_JWT_SECRET")
	}
	if cfg.MQTT != nil {
		set(&cfg.MQTT.Broker, "MQTT_BROKER")
		set(&cfg.MQTT.Password, "MQTT_PASSWORD")
	}
	if cfg.Telegram != nil {
		set(&cfg.Telegram.Token, "TELEGRAM_TOKEN")
	}
}
