package app

import (
	"strings"
	"time"

	"pushbridge/internal/config"
	"pushbridge/internal/objects"
	"pushbridge/internal/provider"
	"pushbridge/internal/provider/pushover"
	"pushbridge/internal/provider/shoutrrr"
	"pushbridge/internal/schedule"
	"pushbridge/internal/transport/httpapi"
	"pushbridge/internal/transport/mqtt"
	"pushbridge/internal/transport/telegram"
	logx "pushbridge/pkg/logx"
)

// The config is validated before it reaches these mappers, so duration
// parse errors cannot happen here and MustDuration is safe.

func mapObjectsConfig(cfg *config.Config) objects.Config {
	oc := cfg.Objects
	driver := strings.ToLower(strings.TrimSpace(oc.Driver))
	if driver == "" {
		driver = "memory"
	}
	return objects.Config{
		Driver:      driver,
		Path:        strings.TrimSpace(oc.Path),
		URI:         strings.TrimSpace(oc.URI),
		Database:    oc.Database,
		Collection:  oc.Collection,
		BusyTimeout: config.MustDuration(oc.BusyTimeout, time.Second),
	}
}

func mapLogConfig(cfg *config.Config) logx.Config {
	lc := cfg.Logging
	chat := logx.ChatConfig{
		MinLevel:   lc.Telegram.MinLevel,
		RatePerSec: lc.Telegram.RatePerSec,
	}
	// Chat forwarding needs somewhere to send to.
	if t := cfg.Telegram; t != nil && t.Enabled && t.LogChatID != 0 {
		chat.Enabled = lc.Telegram.Enabled
	}
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
		Chat: chat,
	}
}

func providerFactory(pc config.ProviderConfig) provider.Factory {
	timeout := config.MustDuration(pc.Timeout, 10*time.Second)
	if pc.Client == "shoutrrr" {
		return shoutrrr.Factory(shoutrrr.Config{Timeout: timeout})
	}
	return pushover.Factory(pushover.Config{
		APIURL:    pc.APIURL,
		Timeout:   timeout,
		UserAgent: pc.UserAgent,
	})
}

func dedupWindow(cfg *config.Config) time.Duration {
	return config.MustDuration(cfg.Dedup.Window, time.Second)
}

func mapHTTPConfig(h *config.HTTPConfig) httpapi.Config {
	return httpapi.Config{
		Addr:         h.Addr,
		JWTSecret:    h.JWTSecret,
		JWTIssuer:    h.JWTIssuer,
		CORSOrigins:  h.CORSOrigins,
		Pprof:        h.Pprof,
		ReadTimeout:  config.MustDuration(h.ReadTimeout, 0),
		WriteTimeout: config.MustDuration(h.WriteTimeout, 0),
	}
}

func mapMQTTConfig(m *config.MQTTConfig, namespace string) mqtt.Config {
	return mqtt.Config{
		Broker:         m.Broker,
		ClientID:       m.ClientID,
		Username:       m.Username,
		Password:       m.Password,
		Prefix:         m.Prefix,
		Namespace:      namespace,
		QoS:            byte(m.QoS),
		ConnectTimeout: config.MustDuration(m.ConnectTimeout, 0),
	}
}

func mapTelegramConfig(t *config.TelegramConfig) telegram.Config {
	return telegram.Config{
		Token:        t.Token,
		OwnerUserIDs: t.OwnerUserIDs,
		LogChatID:    t.LogChatID,
		PollTimeout:  config.MustDuration(t.PollTimeout, 10*time.Second),
	}
}

func mapScheduleConfig(cfg *config.Config) schedule.Config {
	if cfg.Schedule == nil {
		return schedule.Config{}
	}
	sc := schedule.Config{Timezone: cfg.Schedule.Timezone}
	for _, j := range cfg.Schedule.Jobs {
		sc.Jobs = append(sc.Jobs, schedule.Job{Name: j.Name, Spec: j.Spec, Message: j.Message})
	}
	return sc
}
