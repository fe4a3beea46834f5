package schedule

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pushbridge/internal/bridge"
	"pushbridge/internal/transport"
	logx "pushbridge/pkg/logx"
)

type recorder struct {
	mu   sync.Mutex
	cmds []bridge.Command
}

func (r *recorder) handler() transport.Handler {
	return transport.HandlerFunc(func(_ context.Context, cmd bridge.Command) (bridge.Outcome, *bridge.Reply, error) {
		r.mu.Lock()
		r.cmds = append(r.cmds, cmd)
		r.mu.Unlock()
		return bridge.Delivered, &bridge.Reply{}, nil
	})
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cmds)
}

func TestValidate(t *testing.T) {
	s := New(nil, logx.Nop())
	assert.NoError(t, s.Validate(Config{Jobs: []Job{{Name: "a", Spec: "*/5 * * * *"}, {Name: "b", Spec: "@every 1h"}}}))
	assert.Error(t, s.Validate(Config{Jobs: []Job{{Name: "bad", Spec: "every day"}}}))
	assert.Error(t, s.Validate(Config{Timezone: "Mars/Olympus"}))
}

func TestTriggerSendsCommand(t *testing.T) {
	rec := &recorder{}
	s := New(rec.handler(), logx.Nop())
	require.NoError(t, s.Apply(Config{Jobs: []Job{{Name: "daily", Spec: "0 8 * * *", Message: json.RawMessage(`{"message":"good morning"}`)}}}))

	out, _, err := s.Trigger("daily")
	require.NoError(t, err)
	assert.Equal(t, bridge.Delivered, out)
	require.Equal(t, 1, rec.count())
	assert.Equal(t, "schedule:daily", rec.cmds[0].From)
	assert.Equal(t, bridge.CommandSend, rec.cmds[0].Command)

	_, _, err = s.Trigger("missing")
	assert.Error(t, err)
}

func TestRunFiresJobs(t *testing.T) {
	rec := &recorder{}
	s := New(rec.handler(), logx.Nop())
	require.NoError(t, s.Apply(Config{Jobs: []Job{{Name: "tick", Spec: "@every 1s", Message: json.RawMessage(`"tick"`)}}}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(3 * time.Second)
	for rec.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	entries := s.Entries()
	cancel()
	require.NoError(t, <-done)

	assert.NotZero(t, rec.count())
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Next.IsZero())
}
