package bridge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"pushbridge/internal/eventbus"
	"pushbridge/internal/notify"
	"pushbridge/internal/provider"
	logx "pushbridge/pkg/logx"
)

// Dispatcher is the part of notify.Dispatcher the handler needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, r notify.Request) (*provider.Response, error)
}

type Options struct {
	Dispatcher Dispatcher
	Dedup      *notify.Deduplicator
	Bus        eventbus.Bus
	Logger     logx.Logger
}

// Stats are cumulative command counters.
type Stats struct {
	Delivered  uint64
	Failed     uint64
	Suppressed uint64
	Ignored    uint64
}

type Handler struct {
	dispatcher Dispatcher
	dedup      *notify.Deduplicator
	bus        eventbus.Bus
	log        logx.Logger

	ready     chan struct{}
	readyOnce sync.Once

	delivered  atomic.Uint64
	failed     atomic.Uint64
	suppressed atomic.Uint64
	ignored    atomic.Uint64
}

func NewHandler(opts Options) *Handler {
	if opts.Dedup == nil {
		opts.Dedup = notify.NewDeduplicator(notify.DefaultDedupWindow)
	}
	if opts.Bus == nil {
		opts.Bus = eventbus.Nop()
	}
	if opts.Logger.IsZero() {
		opts.Logger = logx.Nop()
	}
	return &Handler{
		dispatcher: opts.Dispatcher,
		dedup:      opts.Dedup,
		bus:        opts.Bus,
		log:        opts.Logger,
		ready:      make(chan struct{}),
	}
}

// MarkReady opens the gate. Commands received earlier are waiting in Handle.
func (h *Handler) MarkReady() {
	h.readyOnce.Do(func() { close(h.ready) })
}

func (h *Handler) Ready() bool {
	select {
	case <-h.ready:
		return true
	default:
		return false
	}
}

func (h *Handler) Stats() Stats {
	return Stats{
		Delivered:  h.delivered.Load(),
		Failed:     h.failed.Load(),
		Suppressed: h.suppressed.Load(),
		Ignored:    h.ignored.Load(),
	}
}

// Handle processes one command. The error is non-nil only when ctx ends
// before the handler became ready; dispatch failures are carried in the
// reply.
func (h *Handler) Handle(ctx context.Context, cmd Command) (Outcome, *Reply, error) {
	if cmd.Command != CommandSend {
		h.ignored.Add(1)
		return Ignored, nil, nil
	}
	req, err := notify.ParseRequest(cmd.Message)
	if err != nil || req.Blank() {
		h.ignored.Add(1)
		return Ignored, nil, nil
	}

	select {
	case <-h.ready:
	case <-ctx.Done():
		return Ignored, nil, ctx.Err()
	}

	id := uuid.NewString()
	log := h.log.With(logx.String("req", id), logx.String("from", cmd.From))

	if !h.dedup.Admit(req) {
		h.suppressed.Add(1)
		log.Debug("duplicate suppressed")
		h.bus.Publish(eventbus.Event{
			Type: eventbus.TypeSuppressed,
			Data: eventbus.Suppressed{RequestID: id, Source: cmd.From},
		})
		return Suppressed, nil, nil
	}

	_, override := req.Token()
	start := time.Now()
	resp, err := h.dispatcher.Dispatch(ctx, req)
	res := eventbus.SendResult{
		RequestID: id,
		Source:    cmd.From,
		Override:  override,
		Duration:  time.Since(start),
	}
	if err != nil {
		h.failed.Add(1)
		res.Err = err.Error()
		if errors.Is(err, notify.ErrNotConfigured) {
			log.Warn("send rejected, instance not configured")
		}
		h.bus.Publish(eventbus.Event{Type: eventbus.TypeFailed, Data: res})
		return Delivered, errorReply(err), nil
	}

	h.delivered.Add(1)
	res.Request = resp.Request
	log.Info("notification sent", logx.String("request", resp.Request), logx.Duration("took", res.Duration))
	h.bus.Publish(eventbus.Event{Type: eventbus.TypeSent, Data: res})
	return Delivered, &Reply{Response: resp}, nil
}
