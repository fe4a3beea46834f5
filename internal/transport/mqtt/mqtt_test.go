package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pushbridge/internal/bridge"
	"pushbridge/internal/transport"
	logx "pushbridge/pkg/logx"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type published struct {
	topic   string
	payload []byte
}

type fakePub struct {
	mu   sync.Mutex
	msgs []published
}

func (f *fakePub) Publish(topic string, _ byte, _ bool, payload any) paho.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, published{topic: topic, payload: payload.([]byte)})
	return doneToken{}
}

func newTransport(out bridge.Outcome, reply *bridge.Reply, seen *[]bridge.Command) *Transport {
	h := transport.HandlerFunc(func(_ context.Context, cmd bridge.Command) (bridge.Outcome, *bridge.Reply, error) {
		*seen = append(*seen, cmd)
		return out, reply, nil
	})
	return New(Config{Namespace: "pushover.0"}, h, logx.Nop())
}

func TestTopics(t *testing.T) {
	cfg := New(Config{Namespace: "pushover.0"}, nil, logx.Nop()).cfg
	assert.Equal(t, "iobroker/pushover.0/sendTo", cfg.CommandTopic())
	assert.Equal(t, "iobroker/pushover.0/response", cfg.ResponseTopic())
	assert.Equal(t, "pushbridge-pushover.0", cfg.ClientID)
}

func TestReplyToCallbackTopic(t *testing.T) {
	var seen []bridge.Command
	tr := newTransport(bridge.Delivered, &bridge.Reply{Response: map[string]int{"status": 1}}, &seen)
	pub := &fakePub{}

	tr.process(context.Background(), pub, []byte(`{"command":"send","message":"hi","from":"js.0","callback":"replies/js"}`))

	require.Len(t, seen, 1)
	assert.Equal(t, "mqtt:js.0", seen[0].From)
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "replies/js", pub.msgs[0].topic)
	assert.JSONEq(t, `{"error":null,"response":{"status":1}}`, string(pub.msgs[0].payload))
}

func TestOpaqueCallbackEchoed(t *testing.T) {
	var seen []bridge.Command
	msg := "boom"
	tr := newTransport(bridge.Delivered, &bridge.Reply{Error: &msg}, &seen)
	pub := &fakePub{}

	tr.process(context.Background(), pub, []byte(`{"command":"send","message":"hi","callback":{"id":42}}`))

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "iobroker/pushover.0/response", pub.msgs[0].topic)
	var got map[string]any
	require.NoError(t, json.Unmarshal(pub.msgs[0].payload, &got))
	assert.Equal(t, "boom", got["error"])
	assert.Equal(t, map[string]any{"id": float64(42)}, got["callback"])
}

func TestNoReplyWithoutCallbackOrDelivery(t *testing.T) {
	var seen []bridge.Command
	pub := &fakePub{}

	newTransport(bridge.Delivered, &bridge.Reply{}, &seen).process(context.Background(), pub, []byte(`{"command":"send","message":"hi"}`))
	newTransport(bridge.Suppressed, nil, &seen).process(context.Background(), pub, []byte(`{"command":"send","message":"hi","callback":"t"}`))
	newTransport(bridge.Delivered, &bridge.Reply{}, &seen).process(context.Background(), pub, []byte(`not json`))

	assert.Len(t, seen, 2)
	assert.Empty(t, pub.msgs)
}

func TestDispatchRefusedWhileDraining(t *testing.T) {
	handled := make(chan string, 4)
	release := make(chan struct{})
	h := transport.HandlerFunc(func(_ context.Context, cmd bridge.Command) (bridge.Outcome, *bridge.Reply, error) {
		<-release
		handled <- cmd.From
		return bridge.Delivered, nil, nil
	})
	tr := New(Config{Namespace: "pushover.0"}, h, logx.Nop())
	pub := &fakePub{}
	ctx := context.Background()

	assert.False(t, tr.dispatch(ctx, pub, []byte(`{"command":"send","message":"early"}`)), "not accepting before Run")

	tr.mu.Lock()
	tr.accepting = true
	tr.mu.Unlock()
	require.True(t, tr.dispatch(ctx, pub, []byte(`{"command":"send","message":"hi","from":"a"}`)))

	drained := make(chan struct{})
	go func() {
		tr.drain()
		close(drained)
	}()
	// drain flips the flag before waiting, so later payloads are refused
	// while the first one is still in flight.
	assert.Eventually(t, func() bool {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		return !tr.accepting
	}, time.Second, 5*time.Millisecond)
	assert.False(t, tr.dispatch(ctx, pub, []byte(`{"command":"send","message":"late","from":"b"}`)))

	select {
	case <-drained:
		t.Fatal("drain returned before the in-flight payload finished")
	default:
	}
	close(release)
	<-drained

	require.Len(t, handled, 1)
	assert.Equal(t, "mqtt:a", <-handled)
}
