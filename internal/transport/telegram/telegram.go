// Package telegram lets bot owners send notifications (/send) and inspect
// the bridge (/status) from Telegram. It doubles as the chat sink for
// warning and error log lines.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"pushbridge/internal/bridge"
	"pushbridge/internal/provider"
	"pushbridge/internal/transport"
	logx "pushbridge/pkg/logx"
)

type Config struct {
	Token        string
	OwnerUserIDs []int64
	LogChatID    int64
	PollTimeout  time.Duration

	// Offline skips the getMe call; tests only.
	Offline bool
}

// Status is rendered by /status.
type Status struct {
	Ready       bool
	Configured  bool
	Stats       bridge.Stats
	LastSent    time.Time
	LastErr     string
	DedupWindow time.Duration
	Transports  []string
}

type StatusFunc func() Status

type Transport struct {
	cfg     Config
	handler transport.Handler
	status  StatusFunc
	log     logx.Logger
	bot     *tele.Bot
}

func New(cfg Config, h transport.Handler, status StatusFunc, log logx.Logger) (*Transport, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Poller:  &tele.LongPoller{Timeout: cfg.PollTimeout},
		Offline: cfg.Offline,
		OnError: func(err error, _ tele.Context) {
			log.Warn("telegram handler error", logx.Err(err))
		},
	})
	if err != nil {
		return nil, err
	}
	t := &Transport{cfg: cfg, handler: h, status: status, log: log, bot: b}
	b.Handle("/send", t.onSend)
	b.Handle("/status", t.onStatus)
	return t, nil
}

func (t *Transport) Name() string { return "telegram" }

// Run polls until ctx ends.
func (t *Transport) Run(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		t.bot.Start()
	}()
	t.log.Info("telegram polling started", logx.Int("owners", len(t.cfg.OwnerUserIDs)))
	select {
	case <-ctx.Done():
		t.bot.Stop()
		<-done
		return nil
	case <-done:
		return errors.New("telegram poller exited")
	}
}

func (t *Transport) isOwner(id int64) bool {
	return slices.Contains(t.cfg.OwnerUserIDs, id)
}

func (t *Transport) onSend(c tele.Context) error {
	sender := c.Sender()
	if sender == nil || !t.isOwner(sender.ID) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	return c.Send(t.send(ctx, sender.ID, c.Message().Payload))
}

func (t *Transport) onStatus(c tele.Context) error {
	sender := c.Sender()
	if sender == nil || !t.isOwner(sender.ID) || t.status == nil {
		return nil
	}
	return c.Send(FormatStatus(t.status()))
}

// send runs a /send payload through the handler and returns the chat reply.
func (t *Transport) send(ctx context.Context, userID int64, payload string) string {
	cmd, ok := CommandFromText(payload, userID)
	if !ok {
		return "usage: /send <text> or /send {\"message\":\"...\",\"title\":\"...\"}"
	}
	out, reply, err := t.handler.Handle(ctx, cmd)
	if err != nil {
		return "bridge not ready: " + err.Error()
	}
	return FormatOutcome(out, reply)
}

// CommandFromText builds a send command from a /send payload. A payload
// starting with "{" is taken as a JSON request object.
func CommandFromText(payload string, userID int64) (bridge.Command, bool) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return bridge.Command{}, false
	}
	var msg json.RawMessage
	if strings.HasPrefix(payload, "{") && json.Valid([]byte(payload)) {
		msg = json.RawMessage(payload)
	} else {
		b, _ := json.Marshal(payload)
		msg = b
	}
	return bridge.Command{
		Command:  bridge.CommandSend,
		Message:  msg,
		From:     transport.Source("telegram", strconv.FormatInt(userID, 10)),
		Callback: json.RawMessage(strconv.FormatInt(userID, 10)),
	}, true
}

func FormatOutcome(out bridge.Outcome, reply *bridge.Reply) string {
	switch out {
	case bridge.Ignored:
		return "ignored: nothing to send"
	case bridge.Suppressed:
		return "suppressed: identical message sent less than a second ago"
	}
	if reply == nil {
		return "sent"
	}
	if reply.Error != nil {
		return "failed: " + *reply.Error
	}
	if resp, ok := reply.Response.(*provider.Response); ok && resp != nil {
		if resp.Receipt != "" {
			return fmt.Sprintf("sent (request %s, receipt %s)", resp.Request, resp.Receipt)
		}
		if resp.Request != "" {
			return fmt.Sprintf("sent (request %s)", resp.Request)
		}
	}
	return "sent"
}

func FormatStatus(s Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ready: %t\nprovider configured: %t\n", s.Ready, s.Configured)
	fmt.Fprintf(&b, "delivered: %d, failed: %d, suppressed: %d, ignored: %d\n",
		s.Stats.Delivered, s.Stats.Failed, s.Stats.Suppressed, s.Stats.Ignored)
	if s.LastSent.IsZero() {
		b.WriteString("last sent: never\n")
	} else {
		fmt.Fprintf(&b, "last sent: %s\n", s.LastSent.Format(time.RFC3339))
	}
	if s.LastErr != "" {
		fmt.Fprintf(&b, "last error: %s\n", s.LastErr)
	}
	fmt.Fprintf(&b, "dedup window: %s", s.DedupWindow)
	if len(s.Transports) > 0 {
		fmt.Fprintf(&b, "\ntransports: %s", strings.Join(s.Transports, ", "))
	}
	return b.String()
}

// SendLog posts a log line to the log chat. It implements logx.ChatSink.
func (t *Transport) SendLog(ctx context.Context, text string) error {
	if t.cfg.LogChatID == 0 {
		return nil
	}
	chat := &tele.Chat{ID: t.cfg.LogChatID}
	for _, chunk := range splitText(text, textLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := t.bot.Send(chat, chunk, &tele.SendOptions{DisableWebPagePreview: true}); err != nil {
			return err
		}
	}
	return nil
}

const textLimit = 4000

// splitText cuts s into chunks of at most limit runes, preferring newlines.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	var out []string
	for len(rs) > 0 {
		end := min(limit, len(rs))
		if end < len(rs) {
			for i := end - 1; i > limit/3; i-- {
				if rs[i] == '\n' {
					end = i + 1
					break
				}
			}
		}
		if chunk := strings.TrimRight(string(rs[:end]), "\n"); chunk != "" {
			out = append(out, chunk)
		}
		rs = rs[end:]
	}
	return out
}
