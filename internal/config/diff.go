package config

import (
	"reflect"
	"slices"
	"strings"

	logx "pushbridge/pkg/logx"
)

// SummarizeConfigChange returns the sorted names of changed sections and
// log fields describing the new values. Secrets (tokens, passwords, mongo
// URIs, JWT keys) are reported only as set/unset.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		attrs   []logx.Field
	)

	if !reflect.DeepEqual(oldCfg.Instance, newCfg.Instance) {
		changed = append(changed, "instance")
		attrs = append(attrs,
			logx.String("instance.namespace", newCfg.Instance.Namespace),
			logx.String("instance.migrate", strings.Join(newCfg.MigrateAttrs(), ",")),
		)
	}
	if !reflect.DeepEqual(oldCfg.Objects, newCfg.Objects) {
		changed = append(changed, "objects")
		attrs = append(attrs,
			logx.String("objects.driver", newCfg.Objects.Driver),
			logx.Bool("objects.path_set", newCfg.Objects.Path != ""),
			logx.Masked("objects.uri", newCfg.Objects.URI),
		)
	}
	if oldCfg.Provider != newCfg.Provider {
		changed = append(changed, "provider")
		attrs = append(attrs,
			logx.String("provider.client", newCfg.Provider.Client),
			logx.String("provider.timeout", newCfg.Provider.Timeout),
		)
	}
	if oldCfg.Dedup != newCfg.Dedup {
		changed = append(changed, "dedup")
		attrs = append(attrs, logx.String("dedup.window", newCfg.Dedup.Window))
	}
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram", newCfg.Logging.Telegram.Enabled),
		)
	}
	if !reflect.DeepEqual(oldCfg.HTTP, newCfg.HTTP) {
		changed = append(changed, "http")
		if h := newCfg.HTTP; h != nil {
			attrs = append(attrs,
				logx.Bool("http.enabled", h.Enabled),
				logx.String("http.addr", h.Addr),
				logx.Masked("http.jwt_secret", h.JWTSecret),
				logx.Bool("http.pprof", h.Pprof),
			)
		}
	}
	if !reflect.DeepEqual(oldCfg.MQTT, newCfg.MQTT) {
		changed = append(changed, "mqtt")
		if mq := newCfg.MQTT; mq != nil {
			attrs = append(attrs,
				logx.Bool("mqtt.enabled", mq.Enabled),
				logx.String("mqtt.broker", mq.Broker),
				logx.String("mqtt.prefix", mq.Prefix),
				logx.Masked("mqtt.password", mq.Password),
			)
		}
	}
	if !reflect.DeepEqual(oldCfg.Telegram, newCfg.Telegram) {
		changed = append(changed, "telegram")
		if t := newCfg.Telegram; t != nil {
			attrs = append(attrs,
				logx.Bool("telegram.enabled", t.Enabled),
				logx.Masked("telegram.token", t.Token),
				logx.Int("telegram.owner_count", len(t.OwnerUserIDs)),
			)
		}
	}
	if !reflect.DeepEqual(oldCfg.Schedule, newCfg.Schedule) {
		changed = append(changed, "schedule")
		if s := newCfg.Schedule; s != nil {
			attrs = append(attrs, logx.Int("schedule.jobs", len(s.Jobs)), logx.String("schedule.timezone", s.Timezone))
		}
	}
	if oldCfg.Metrics != newCfg.Metrics {
		changed = append(changed, "metrics")
		attrs = append(attrs, logx.Bool("metrics.enabled", newCfg.Metrics.Enabled))
	}

	slices.Sort(changed)
	return changed, attrs
}
