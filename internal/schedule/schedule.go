// Package schedule injects send commands on cron schedules, for recurring
// reminders and heartbeat notifications.
package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"pushbridge/internal/bridge"
	"pushbridge/internal/transport"
	logx "pushbridge/pkg/logx"
)

// Job sends Message every time Spec fires.
type Job struct {
	Name    string
	Spec    string
	Message json.RawMessage
}

type Config struct {
	Timezone string
	Jobs     []Job
}

// Entry is a registered job with its next run time.
type Entry struct {
	Name string
	Spec string
	Next time.Time
}

type Service struct {
	handler transport.Handler
	log     logx.Logger
	parser  cron.Parser
	timeout time.Duration

	mu      sync.Mutex
	cfg     Config
	c       *cron.Cron
	entries map[string]cron.EntryID
	jobCtx  context.Context
}

func New(h transport.Handler, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		handler: h,
		log:     log,
		// SecondOptional accepts both 5- and 6-field specs.
		parser:  cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		timeout: time.Minute,
		entries: map[string]cron.EntryID{},
		jobCtx:  context.Background(),
	}
}

func (s *Service) Name() string { return "schedule" }

// Validate checks specs and the timezone without touching the running cron.
func (s *Service) Validate(cfg Config) error {
	if _, err := loadLocation(cfg.Timezone); err != nil {
		return err
	}
	for _, j := range cfg.Jobs {
		if _, err := s.parser.Parse(j.Spec); err != nil {
			return fmt.Errorf("schedule %q: %w", j.Name, err)
		}
	}
	return nil
}

// Apply replaces the job set. A running cron is rebuilt.
func (s *Service) Apply(cfg Config) error {
	if err := s.Validate(cfg); err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg = cfg
	old := s.c
	s.mu.Unlock()
	if old == nil {
		return nil
	}

	// Running jobs take s.mu, so wait for them without holding it.
	<-old.Stop().Done()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == old {
		s.startLocked()
	}
	return nil
}

// Run starts the cron and blocks until ctx ends. Jobs still running at
// shutdown get their context canceled.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	s.jobCtx = ctx
	s.startLocked()
	s.mu.Unlock()

	<-ctx.Done()

	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
	s.log.Info("scheduler stopped")
	return nil
}

func (s *Service) startLocked() {
	loc, _ := loadLocation(s.cfg.Timezone)
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	s.entries = map[string]cron.EntryID{}
	for _, j := range s.cfg.Jobs {
		id, err := s.c.AddJob(j.Spec, cron.FuncJob(func() { s.fire(j) }))
		if err != nil {
			s.log.Warn("schedule rejected", logx.String("job", j.Name), logx.Err(err))
			continue
		}
		s.entries[j.Name] = id
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.String("tz", loc.String()), logx.Int("jobs", len(s.entries)))
}

// Trigger runs the named job now.
func (s *Service) Trigger(name string) (bridge.Outcome, *bridge.Reply, error) {
	s.mu.Lock()
	idx := slices.IndexFunc(s.cfg.Jobs, func(j Job) bool { return j.Name == name })
	var job Job
	if idx >= 0 {
		job = s.cfg.Jobs[idx]
	}
	s.mu.Unlock()
	if idx < 0 {
		return bridge.Ignored, nil, fmt.Errorf("unknown schedule %q", name)
	}
	return s.run(job)
}

func (s *Service) fire(j Job) {
	out, reply, err := s.run(j)
	switch {
	case err != nil:
		s.log.Warn("scheduled send not handled", logx.String("job", j.Name), logx.Err(err))
	case out == bridge.Delivered && reply != nil && reply.Error != nil:
		s.log.Warn("scheduled send failed", logx.String("job", j.Name), logx.String("err", *reply.Error))
	default:
		s.log.Debug("scheduled send", logx.String("job", j.Name), logx.String("outcome", out.String()))
	}
}

func (s *Service) run(j Job) (bridge.Outcome, *bridge.Reply, error) {
	s.mu.Lock()
	parent := s.jobCtx
	s.mu.Unlock()
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()
	return s.handler.Handle(ctx, bridge.Command{
		Command: bridge.CommandSend,
		Message: j.Message,
		From:    transport.Source("schedule", j.Name),
	})
}

// Entries lists registered jobs sorted by name.
func (s *Service) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Entry
	for _, j := range s.cfg.Jobs {
		e := Entry{Name: j.Name, Spec: j.Spec}
		if id, ok := s.entries[j.Name]; ok && s.c != nil {
			e.Next = s.c.Entry(id).Next
		}
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b Entry) int { return strings.Compare(a.Name, b.Name) })
	return out
}

func loadLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("schedule timezone %q: %w", tz, err)
	}
	return loc, nil
}
