package config

import (
	"errors"
	"fmt"
	"strings"
)

const DefaultNamespace = "pushover.0"

// Normalize fills defaults in place.
func (c *Config) Normalize() {
	if strings.TrimSpace(c.Instance.Namespace) == "" {
		c.Instance.Namespace = DefaultNamespace
	}
	if c.Provider.Client == "" {
		c.Provider.Client = "http"
	}
	if c.HTTP != nil && c.HTTP.Addr == "" {
		c.HTTP.Addr = "127.0.0.1:8088"
	}
	if c.MQTT != nil && c.MQTT.Prefix == "" {
		c.MQTT.Prefix = "iobroker"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "pushbridge"
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	dur := func(path, raw string) {
		_, err := ParseDurationField(path, raw)
		add(err)
	}

	switch strings.ToLower(c.Objects.Driver) {
	case "", "memory":
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(c.Objects.Path) == "" {
			add(fmt.Errorf("objects.path is required for driver %q", c.Objects.Driver))
		}
	case "mongo", "mongodb":
		if strings.TrimSpace(c.Objects.URI) == "" {
			add(errors.New("objects.uri is required for driver mongo"))
		}
	default:
		add(fmt.Errorf("objects.driver: unknown %q", c.Objects.Driver))
	}
	dur("objects.busy_timeout", c.Objects.BusyTimeout)

	switch c.Provider.Client {
	case "", "http", "shoutrrr":
	default:
		add(fmt.Errorf("provider.client: unknown %q", c.Provider.Client))
	}
	dur("provider.timeout", c.Provider.Timeout)
	dur("dedup.window", c.Dedup.Window)

	if h := c.HTTP; h != nil && h.Enabled {
		dur("http.read_timeout", h.ReadTimeout)
		dur("http.write_timeout", h.WriteTimeout)
	}
	if m := c.MQTT; m != nil && m.Enabled {
		if strings.TrimSpace(m.Broker) == "" {
			add(errors.New("mqtt.broker is required"))
		}
		if m.QoS < 0 || m.QoS > 2 {
			add(fmt.Errorf("mqtt.qos must be 0..2, got %d", m.QoS))
		}
		dur("mqtt.connect_timeout", m.ConnectTimeout)
	}
	if t := c.Telegram; t != nil && t.Enabled {
		if strings.TrimSpace(t.Token) == "" {
			add(errors.New("telegram.token is required"))
		}
		dur("telegram.poll_timeout", t.PollTimeout)
	}
	if s := c.Schedule; s != nil {
		seen := map[string]bool{}
		for i, j := range s.Jobs {
			if j.Name == "" {
				add(fmt.Errorf("schedule.jobs[%d].name is required", i))
			} else if seen[j.Name] {
				add(fmt.Errorf("schedule.jobs[%d]: duplicate name %q", i, j.Name))
			}
			seen[j.Name] = true
			if strings.TrimSpace(j.Spec) == "" {
				add(fmt.Errorf("schedule.jobs[%d].spec is required", i))
			}
			if len(j.Message) == 0 {
				add(fmt.Errorf("schedule.jobs[%d].message is required", i))
			}
		}
	}
	return errors.Join(errs...)
}
