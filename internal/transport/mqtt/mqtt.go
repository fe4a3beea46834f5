// Package mqtt receives send commands from an MQTT broker.
//
// Commands are JSON objects published to <prefix>/<namespace>/sendTo.
// When the callback is a JSON string it names the reply topic; any other
// callback value is echoed back on <prefix>/<namespace>/response.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"pushbridge/internal/bridge"
	"pushbridge/internal/transport"
	logx "pushbridge/pkg/logx"
)

type Config struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	Prefix         string
	Namespace      string
	QoS            byte
	ConnectTimeout time.Duration
}

func (c Config) CommandTopic() string  { return c.Prefix + "/" + c.Namespace + "/sendTo" }
func (c Config) ResponseTopic() string { return c.Prefix + "/" + c.Namespace + "/response" }

// Publisher is the subset of paho.Client used for replies.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload any) paho.Token
}

type Transport struct {
	cfg     Config
	handler transport.Handler
	log     logx.Logger

	mu        sync.Mutex
	client    paho.Client
	accepting bool // false while draining
	wg        sync.WaitGroup
}

func New(cfg Config, h transport.Handler, log logx.Logger) *Transport {
	if cfg.Prefix == "" {
		cfg.Prefix = "iobroker"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "pushbridge-" + cfg.Namespace
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Transport{cfg: cfg, handler: h, log: log}
}

func (t *Transport) Name() string { return "mqtt" }

// Connected reports the broker connection state.
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client != nil && t.client.IsConnected()
}

// Run connects, subscribes (again after every reconnect) and blocks until
// ctx ends.
func (t *Transport) Run(ctx context.Context) error {
	topic := t.cfg.CommandTopic()

	opts := paho.NewClientOptions()
	opts.AddBroker(t.cfg.Broker)
	opts.SetClientID(t.cfg.ClientID)
	opts.SetUsername(t.cfg.Username)
	opts.SetPassword(t.cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetOrderMatters(false)
	opts.SetOnConnectHandler(func(c paho.Client) {
		tok := c.Subscribe(topic, t.cfg.QoS, func(c paho.Client, m paho.Message) {
			t.dispatch(ctx, c, m.Payload())
		})
		if !tok.WaitTimeout(10*time.Second) || tok.Error() != nil {
			t.log.Error("mqtt subscribe failed", logx.String("topic", topic), logx.Err(tok.Error()))
			return
		}
		t.log.Info("mqtt subscribed", logx.String("broker", t.cfg.Broker), logx.String("topic", topic))
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		t.log.Warn("mqtt connection lost", logx.String("broker", t.cfg.Broker), logx.Err(err))
	})

	t.mu.Lock()
	t.accepting = true
	t.mu.Unlock()

	client := paho.NewClient(opts)
	tok := client.Connect()
	if !tok.WaitTimeout(t.cfg.ConnectTimeout) {
		client.Disconnect(0)
		t.drain()
		return errors.New("mqtt connect timeout")
	}
	if err := tok.Error(); err != nil {
		t.drain()
		return fmt.Errorf("mqtt connect: %w", err)
	}
	t.mu.Lock()
	t.client = client
	t.mu.Unlock()

	<-ctx.Done()
	client.Unsubscribe(topic).WaitTimeout(time.Second)
	t.drain()
	client.Disconnect(250)
	t.mu.Lock()
	t.client = nil
	t.mu.Unlock()
	return nil
}

// dispatch runs process in its own goroutine unless the transport is
// draining. It reports whether the payload was taken.
func (t *Transport) dispatch(ctx context.Context, pub Publisher, payload []byte) bool {
	t.mu.Lock()
	if !t.accepting {
		t.mu.Unlock()
		return false
	}
	t.wg.Add(1)
	t.mu.Unlock()
	go func() {
		defer t.wg.Done()
		t.process(ctx, pub, payload)
	}()
	return true
}

// drain stops accepting payloads and waits for the in-flight ones.
func (t *Transport) drain() {
	t.mu.Lock()
	t.accepting = false
	t.mu.Unlock()
	t.wg.Wait()
}

// process handles one payload and publishes the reply when one is due.
func (t *Transport) process(ctx context.Context, pub Publisher, payload []byte) {
	var cmd bridge.Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		// Not a command; ignored like any other malformed input.
		return
	}
	cmd.From = transport.Source("mqtt", cmd.From)

	out, reply, err := t.handler.Handle(ctx, cmd)
	if err != nil || out != bridge.Delivered || reply == nil || !cmd.WantsReply() {
		return
	}
	topic, body, err := t.replyFor(cmd.Callback, reply)
	if err != nil {
		t.log.Warn("mqtt reply encode failed", logx.Err(err))
		return
	}
	tok := pub.Publish(topic, t.cfg.QoS, false, body)
	if !tok.WaitTimeout(10*time.Second) || tok.Error() != nil {
		t.log.Warn("mqtt reply publish failed", logx.String("topic", topic), logx.Err(tok.Error()))
	}
}

type responseEnvelope struct {
	Callback json.RawMessage `json:"callback"`
	*bridge.Reply
}

func (t *Transport) replyFor(callback json.RawMessage, reply *bridge.Reply) (string, []byte, error) {
	var topic string
	if json.Unmarshal(callback, &topic) == nil && topic != "" {
		b, err := json.Marshal(reply)
		return topic, b, err
	}
	b, err := json.Marshal(responseEnvelope{Callback: callback, Reply: reply})
	return t.cfg.ResponseTopic(), b, err
}
