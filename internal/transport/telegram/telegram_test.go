package telegram

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pushbridge/internal/bridge"
	"pushbridge/internal/provider"
	"pushbridge/internal/transport"
	logx "pushbridge/pkg/logx"
)

func TestCommandFromText(t *testing.T) {
	cmd, ok := CommandFromText("  door opened ", 42)
	require.True(t, ok)
	assert.Equal(t, bridge.CommandSend, cmd.Command)
	assert.JSONEq(t, `"door opened"`, string(cmd.Message))
	assert.Equal(t, "telegram:42", cmd.From)
	assert.True(t, cmd.WantsReply())

	cmd, ok = CommandFromText(`{"message":"m","priority":1}`, 42)
	require.True(t, ok)
	assert.JSONEq(t, `{"message":"m","priority":1}`, string(cmd.Message))

	cmd, ok = CommandFromText(`{not json`, 42)
	require.True(t, ok)
	assert.JSONEq(t, `"{not json"`, string(cmd.Message))

	_, ok = CommandFromText("   ", 42)
	assert.False(t, ok)
}

func TestFormatOutcome(t *testing.T) {
	msg := "pushover send failed: invalid token"
	assert.Equal(t, "failed: "+msg, FormatOutcome(bridge.Delivered, &bridge.Reply{Error: &msg}))
	assert.Equal(t, "sent (request r1)", FormatOutcome(bridge.Delivered, &bridge.Reply{Response: &provider.Response{Request: "r1"}}))
	assert.Equal(t, "sent (request r1, receipt rc)", FormatOutcome(bridge.Delivered, &bridge.Reply{Response: &provider.Response{Request: "r1", Receipt: "rc"}}))
	assert.True(t, strings.HasPrefix(FormatOutcome(bridge.Suppressed, nil), "suppressed"))
}

func TestFormatStatus(t *testing.T) {
	s := FormatStatus(Status{
		Ready:       true,
		Stats:       bridge.Stats{Delivered: 3, Failed: 1},
		LastErr:     "boom",
		DedupWindow: time.Second,
		Transports:  []string{"http", "mqtt"},
	})
	for _, want := range []string{"ready: true", "delivered: 3, failed: 1", "last sent: never", "last error: boom", "dedup window: 1s", "transports: http, mqtt"} {
		assert.Contains(t, s, want)
	}
}

func TestSendRoutesThroughHandler(t *testing.T) {
	var got bridge.Command
	h := transport.HandlerFunc(func(_ context.Context, cmd bridge.Command) (bridge.Outcome, *bridge.Reply, error) {
		got = cmd
		return bridge.Delivered, &bridge.Reply{Response: &provider.Response{Status: 1, Request: "abc"}}, nil
	})
	tr, err := New(Config{Token: "123:abc", OwnerUserIDs: []int64{7}, Offline: true}, h, nil, logx.Nop())
	require.NoError(t, err)

	assert.True(t, tr.isOwner(7))
	assert.False(t, tr.isOwner(8))
	assert.Equal(t, "sent (request abc)", tr.send(context.Background(), 7, "hello"))

	var body string
	require.NoError(t, json.Unmarshal(got.Message, &body))
	assert.Equal(t, "hello", body)
	assert.Contains(t, tr.send(context.Background(), 7, ""), "usage")
}

func TestNewRequiresToken(t *testing.T) {
	_, err := New(Config{}, nil, nil, logx.Nop())
	assert.Error(t, err)
}

func TestSplitText(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitText("short", 10))

	long := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	parts := splitText(long, 10)
	assert.Equal(t, []string{"aaaaaa", "bbbbbb"}, parts)

	parts = splitText(strings.Repeat("x", 25), 10)
	assert.Len(t, parts, 3)
}
