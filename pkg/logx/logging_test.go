package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"
)

type captureSink struct {
	mu    sync.Mutex
	lines []string
}

func (c *captureSink) SendLog(_ context.Context, text string) error {
	c.mu.Lock()
	c.lines = append(c.lines, text)
	c.mu.Unlock()
	return nil
}

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines)
}

func TestWriterLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "test"))
	log.Info("hello", Int("n", 3), Masked("token", "abcdef"))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("decode: %v (%s)", err, buf.String())
	}
	if m["comp"] != "test" || m["message"] != "hello" {
		t.Fatalf("unexpected line: %v", m)
	}
	if m["token"] != "<set len=6>" {
		t.Fatalf("token must be masked, got %v", m["token"])
	}
	if strings.Contains(buf.String(), "abcdef") {
		t.Fatalf("secret leaked into log line: %s", buf.String())
	}
}

func TestNopAndZeroLoggerAreSafe(t *testing.T) {
	var zero Logger
	if !zero.IsZero() {
		t.Fatalf("zero value must report IsZero")
	}
	zero.Info("ignored")
	Nop().Error("ignored", Err(nil))
}

func TestChatSinkRespectsMinLevel(t *testing.T) {
	sink := &captureSink{}
	svc, log := New(Config{
		Level: "debug",
		Chat:  ChatConfig{Enabled: true, MinLevel: "warn", RatePerSec: 100},
	}, sink)
	defer svc.Close()

	log.Info("not forwarded")
	log.Warn("forwarded", String("k", "v"))

	deadline := time.Now().Add(2 * time.Second)
	for sink.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if sink.count() != 1 {
		t.Fatalf("expected exactly one forwarded line, got %d", sink.count())
	}
	sink.mu.Lock()
	line := sink.lines[0]
	sink.mu.Unlock()
	if !strings.HasPrefix(line, "[WARN] forwarded") || !strings.Contains(line, "- k=v") {
		t.Fatalf("unexpected chat line: %q", line)
	}
}

func TestParseLevelDefault(t *testing.T) {
	if got := parseLevel("nonsense", LevelWarn); got != LevelWarn {
		t.Fatalf("expected default level, got %v", got)
	}
	if got := parseLevel(" warning ", LevelInfo); got != LevelWarn {
		t.Fatalf("expected warn, got %v", got)
	}
}
