package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"pushbridge/internal/bridge"
	"pushbridge/internal/config"
	"pushbridge/internal/credentials"
	"pushbridge/internal/eventbus"
	"pushbridge/internal/metrics"
	"pushbridge/internal/notify"
	"pushbridge/internal/objects"
	"pushbridge/internal/provider"
	"pushbridge/internal/runtime/supervisor"
	"pushbridge/internal/schedule"
	"pushbridge/internal/transport"
	"pushbridge/internal/transport/httpapi"
	"pushbridge/internal/transport/mqtt"
	"pushbridge/internal/transport/telegram"
	logx "pushbridge/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store objects.Store
	met   *metrics.Metrics

	namespace  string
	resolver   *credentials.Resolver
	dispatcher *notify.Dispatcher
	dedup      *notify.Deduplicator
	handler    *bridge.Handler

	sched      *schedule.Service
	transports []transport.Transport
}

type options struct {
	store      objects.Store
	factory    provider.Factory
	getenv     func(string) string
	transports bool
}

type Option func(*options)

// WithStore uses st instead of opening the configured object store.
func WithStore(st objects.Store) Option { return func(o *options) { o.store = st } }

// WithProviderFactory overrides the configured provider client.
func WithProviderFactory(f provider.Factory) Option { return func(o *options) { o.factory = f } }

// WithEnv replaces os.Getenv for PUSHBRIDGE_* overrides.
func WithEnv(getenv func(string) string) Option { return func(o *options) { o.getenv = getenv } }

// WithoutTransports builds only the send path (CLI one-shots).
func WithoutTransports() Option { return func(o *options) { o.transports = false } }

func NewApp(ctx context.Context, cfgPath string, opts ...Option) (*App, error) {
	o := options{getenv: os.Getenv, transports: true}
	for _, opt := range opts {
		opt(&o)
	}

	cfgm := config.NewConfigManager(cfgPath)
	cfgm.SetEnv(o.getenv)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	// The chat sink is attached once the telegram transport exists.
	logSvc, log := logx.New(mapLogConfig(cfg), nil)
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	a := &App{
		cfgm:      cfgm,
		log:       log.With(logx.String("comp", "app")),
		logs:      logSvc,
		bus:       eventbus.New(),
		namespace: cfg.Instance.Namespace,
	}

	a.store = o.store
	if a.store == nil {
		oc := mapObjectsConfig(cfg)
		st, err := objects.Open(ctx, oc, log.With(logx.String("comp", "objects")))
		if err != nil {
			logSvc.Close()
			return nil, fmt.Errorf("open object store: %w", err)
		}
		a.store = st
		a.log.Info("object store opened", logx.String("driver", oc.Driver))
	}

	if cfg.Metrics.Enabled {
		met, err := metrics.New(cfg.Metrics.Namespace)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.met = met
	}

	factory := o.factory
	if factory == nil {
		factory = providerFactory(cfg.Provider)
	}
	a.resolver = credentials.NewResolver(a.store, nil)
	a.dispatcher = notify.NewDispatcher(notify.DispatcherConfig{
		Factory:     factory,
		Credentials: a.resolver,
		Logger:      log.With(logx.String("comp", "dispatcher")),
	})
	a.dedup = notify.NewDeduplicator(dedupWindow(cfg))
	a.handler = bridge.NewHandler(bridge.Options{
		Dispatcher: a.dispatcher,
		Dedup:      a.dedup,
		Bus:        a.bus,
		Logger:     log.With(logx.String("comp", "handler")),
	})

	if !o.transports {
		return a, nil
	}
	if err := a.buildTransports(cfg, log); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) buildTransports(cfg *config.Config, log logx.Logger) error {
	if h := cfg.HTTP; h != nil && h.Enabled {
		opts := httpapi.Options{
			Handler: a.handler,
			Health:  a.health,
			Logger:  log.With(logx.String("comp", "http")),
		}
		if a.met != nil {
			opts.Metrics = a.met.Handler()
		}
		a.transports = append(a.transports, httpapi.New(mapHTTPConfig(h), opts))
	}
	if m := cfg.MQTT; m != nil && m.Enabled {
		a.transports = append(a.transports,
			mqtt.New(mapMQTTConfig(m, a.namespace), a.handler, log.With(logx.String("comp", "mqtt"))))
	}
	if t := cfg.Telegram; t != nil && t.Enabled {
		tg, err := telegram.New(mapTelegramConfig(t), a.handler, a.status, log.With(logx.String("comp", "telegram")))
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		a.logs.SetSink(tg)
		a.transports = append(a.transports, tg)
	}
	if cfg.Schedule != nil && len(cfg.Schedule.Jobs) > 0 {
		a.sched = schedule.New(a.handler, log.With(logx.String("comp", "schedule")))
		if err := a.sched.Apply(mapScheduleConfig(cfg)); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) Handler() *bridge.Handler { return a.handler }
func (a *App) Dispatcher() *notify.Dispatcher { return a.dispatcher }
func (a *App) Store() objects.Store { return a.store }
func (a *App) Bus() eventbus.Bus { return a.bus }
func (a *App) Config() *config.Config { return a.cfgm.Get() }
func (a *App) Logger() logx.Logger { return a.log }
func (a *App) Transports() []transport.Transport { return a.transports }

// Done is closed when the supervisor context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start launches the transports, runs the startup migration and then opens
// the ready gate. Commands that arrive before that wait in the handler.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if a.sched != nil {
			return a.sched.Validate(mapScheduleConfig(cfg))
		}
		return nil
	})

	for _, t := range a.transports {
		a.sup.GoRestart(t.Name(), t.Run, supervisor.WithBackoff(time.Second, 30*time.Second))
	}
	if a.sched != nil {
		a.sup.Go("schedule", a.sched.Run)
	}
	// Subscribe before the goroutines start so the migration event
	// published by Prepare below is not lost.
	if a.met != nil {
		metricEvents, unsub := a.bus.Subscribe(256)
		a.sup.Go("metrics", func(c context.Context) error {
			defer unsub()
			return a.met.Consume(c, metricEvents)
		})
	}
	events, unsubLog := a.bus.Subscribe(128)
	a.sup.Go("events.log", func(c context.Context) error {
		defer unsubLog()
		return a.logEvents(c, events)
	})
	a.sup.Go("config.reload", a.reloadLoop)
	a.sup.GoRestart("config.watch", a.cfgm.Watch, supervisor.WithBackoff(time.Second, time.Minute))

	if err := a.Prepare(a.sup.Context()); err != nil {
		a.sup.Cancel()
		return err
	}

	a.startWatchdog()
	notifyReady(a.log)
	a.log.Info("app started", logx.String("transports", strings.Join(a.transportNames(), ",")))
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))
	notifyStopping(a.log)

	var errs []error
	if a.sup != nil {
		if err := a.sup.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, err)
		}
	}
	a.log.Info("stopped")
	errs = append(errs, a.Close())
	return errors.Join(errs...)
}

// Close releases the object store and logging. Stop calls it.
func (a *App) Close() error {
	var err error
	if a.store != nil {
		err = a.store.Close()
		a.store = nil
	}
	if a.logs != nil {
		a.logs.Close()
	}
	return err
}

func (a *App) transportNames() []string {
	names := make([]string, 0, len(a.transports))
	for _, t := range a.transports {
		names = append(names, t.Name())
	}
	if a.sched != nil {
		names = append(names, a.sched.Name())
	}
	return names
}

func (a *App) health() (bool, any) {
	ready := a.handler.Ready()
	body := map[string]any{
		"ready":        ready,
		"configured":   a.dispatcher.Configured(),
		"stats":        a.handler.Stats(),
		"dedup_window": a.dedup.Window().String(),
		"transports":   a.transportNames(),
	}
	if a.sup != nil {
		body["supervisor"] = a.sup.Snapshot()
	}
	if a.sched != nil {
		body["schedules"] = a.sched.Entries()
	}
	return ready, body
}

func (a *App) status() telegram.Status {
	sent, lastErr := a.dispatcher.LastSend()
	return telegram.Status{
		Ready:       a.handler.Ready(),
		Configured:  a.dispatcher.Configured(),
		Stats:       a.handler.Stats(),
		LastSent:    sent,
		LastErr:     lastErr,
		DedupWindow: a.dedup.Window(),
		Transports:  a.transportNames(),
	}
}

func (a *App) logEvents(ctx context.Context, events <-chan eventbus.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
		}
	}
}

// restartSections are config sections that are only read at startup.
var restartSections = []string{"instance", "objects", "provider", "http", "mqtt", "telegram", "metrics"}

func (a *App) reloadLoop(ctx context.Context) error {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return nil
		case newCfg, ok := <-sub:
			if !ok {
				return nil
			}
			// Coalesce bursts: keep only the latest config.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	for _, s := range sections {
		if slices.Contains(restartSections, s) {
			a.log.Warn("config section changed; restart required for it to take effect", logx.String("section", s))
		}
	}

	a.logs.Apply(mapLogConfig(newCfg))
	a.dedup.SetWindow(dedupWindow(newCfg))
	if a.sched != nil {
		if err := a.sched.Apply(mapScheduleConfig(newCfg)); err != nil {
			a.log.Warn("invalid schedule config; keeping previous", logx.Err(err))
		}
	}

	a.bus.Publish(eventbus.Event{Type: eventbus.TypeReloaded, Time: time.Now(), Data: sections})
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
