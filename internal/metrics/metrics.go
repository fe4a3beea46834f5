// Package metrics exposes bridge activity as Prometheus metrics. It is fed
// from the event bus so the send path stays free of metric calls.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pushbridge/internal/eventbus"
)

type Metrics struct {
	registry *prometheus.Registry

	Sends         *prometheus.CounterVec
	SendDuration  prometheus.Histogram
	Suppressed    prometheus.Counter
	LastSuccess   prometheus.Gauge
	Migrations    prometheus.Counter
	ConfigReloads prometheus.Counter
}

// New registers the bridge metrics plus Go and process collectors on a
// private registry.
func New(namespace string) (*Metrics, error) {
	if namespace == "" {
		namespace = "pushbridge"
	}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sends_total",
			Help:      "Dispatched notifications by result and whether the token was overridden.",
		}, []string{"result", "override"}),
		SendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "send_duration_seconds",
			Help:      "Time spent in the provider call.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		Suppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suppressed_total",
			Help:      "Requests dropped as duplicates.",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful send.",
		}),
		Migrations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credential_migrations_total",
			Help:      "Completed plaintext to encrypted credential migrations.",
		}),
		ConfigReloads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_reloads_total",
			Help:      "Applied configuration reloads.",
		}),
	}
	for _, c := range []prometheus.Collector{
		m.Sends, m.SendDuration, m.Suppressed, m.LastSuccess, m.Migrations, m.ConfigReloads,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Observe applies one event.
func (m *Metrics) Observe(e eventbus.Event) {
	switch e.Type {
	case eventbus.TypeSent, eventbus.TypeFailed:
		res, ok := e.Data.(eventbus.SendResult)
		if !ok {
			return
		}
		result := "success"
		if e.Type == eventbus.TypeFailed {
			result = "error"
		} else {
			m.LastSuccess.Set(float64(e.Time.Unix()))
		}
		m.Sends.WithLabelValues(result, strconv.FormatBool(res.Override)).Inc()
		m.SendDuration.Observe(res.Duration.Seconds())
	case eventbus.TypeSuppressed:
		m.Suppressed.Inc()
	case eventbus.TypeMigrated:
		m.Migrations.Inc()
	case eventbus.TypeReloaded:
		m.ConfigReloads.Inc()
	}
}

// Run subscribes to bus and consumes its events until ctx ends. Events
// published before the subscription are missed; callers that start it in a
// goroutine should subscribe first and use Consume.
func (m *Metrics) Run(ctx context.Context, bus eventbus.Bus) error {
	ch, unsub := bus.Subscribe(256)
	defer unsub()
	return m.Consume(ctx, ch)
}

// Consume applies events from ch until ctx ends or ch is closed.
func (m *Metrics) Consume(ctx context.Context, ch <-chan eventbus.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			m.Observe(e)
		}
	}
}
