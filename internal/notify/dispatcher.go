package notify

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"pushbridge/internal/credentials"
	"pushbridge/internal/provider"
	logx "pushbridge/pkg/logx"
)

// ErrNotConfigured is returned while the instance lacks a user or token.
var ErrNotConfigured = credentials.ErrNotConfigured

// DefaultTokenAttr is the encrypted credential attribute of the instance.
const DefaultTokenAttr = "enc_token"

// CredentialSource resolves encrypted instance attributes.
type CredentialSource interface {
	Resolve(ctx context.Context, attr string) (string, error)
}

type DispatcherConfig struct {
	Factory     provider.Factory
	Credentials CredentialSource
	TokenAttr   string
	Logger      logx.Logger
}

// Dispatcher owns the provider client. The client is created on the first
// dispatch that finds both a user and a token, and lives until Reset.
type Dispatcher struct {
	factory   provider.Factory
	creds     CredentialSource
	tokenAttr string
	log       logx.Logger

	mu       sync.Mutex
	defaults Defaults // Token is filled in when the client is created
	client   provider.Client

	// sendMu serializes SetToken+Send on the shared client.
	sendMu sync.Mutex

	statsMu  sync.Mutex
	lastSent time.Time
	lastErr  string
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.TokenAttr == "" {
		cfg.TokenAttr = DefaultTokenAttr
	}
	if cfg.Logger.IsZero() {
		cfg.Logger = logx.Nop()
	}
	return &Dispatcher{
		factory:   cfg.Factory,
		creds:     cfg.Credentials,
		tokenAttr: cfg.TokenAttr,
		log:       cfg.Logger,
	}
}

// SetNative loads defaults from the instance's native config and drops the
// current client so the next dispatch rebuilds it.
func (d *Dispatcher) SetNative(native map[string]any) {
	defs := DefaultsFromNative(maps.Clone(native), "")
	d.mu.Lock()
	d.defaults = defs
	d.client = nil
	d.mu.Unlock()
}

// Defaults returns the current defaults. Token is empty until a client exists.
func (d *Dispatcher) Defaults() Defaults {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.defaults
}

// Configured reports whether a client exists.
func (d *Dispatcher) Configured() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.client != nil
}

// ensureClient returns the client and a snapshot of the defaults it was
// built with.
func (d *Dispatcher) ensureClient(ctx context.Context) (provider.Client, Defaults, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client != nil {
		return d.client, d.defaults, nil
	}
	if strings.TrimSpace(d.defaults.User) == "" {
		return nil, Defaults{}, fmt.Errorf("user: %w", ErrNotConfigured)
	}
	if d.creds == nil {
		return nil, Defaults{}, fmt.Errorf("%s: %w", d.tokenAttr, ErrNotConfigured)
	}
	token, err := d.creds.Resolve(ctx, d.tokenAttr)
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			return nil, Defaults{}, err
		}
		return nil, Defaults{}, fmt.Errorf("%w: %w", ErrNotConfigured, err)
	}
	if token == "" {
		return nil, Defaults{}, fmt.Errorf("%s is empty: %w", d.tokenAttr, ErrNotConfigured)
	}

	log := d.log
	client, err := d.factory(provider.Options{
		User:  d.defaults.User,
		Token: token,
		OnError: func(err error) {
			log.Warn("provider transport error", logx.Err(err))
		},
	})
	if err != nil {
		return nil, Defaults{}, fmt.Errorf("create provider client: %w", err)
	}
	d.client = client
	d.defaults.Token = token
	d.log.Info("provider client ready", logx.Masked("user", d.defaults.User))
	return client, d.defaults, nil
}

// Dispatch normalizes r against the instance defaults and sends it.
func (d *Dispatcher) Dispatch(ctx context.Context, r Request) (*provider.Response, error) {
	client, defs, err := d.ensureClient(ctx)
	if err != nil {
		d.log.Warn("dispatch skipped, instance not configured", logx.Err(err))
		return nil, err
	}

	msg := Normalize(r, defs)
	_, override := r.Token()

	d.sendMu.Lock()
	client.SetToken(msg.Token)
	resp, err := client.Send(ctx, msg)
	d.sendMu.Unlock()

	d.statsMu.Lock()
	if err != nil {
		d.lastErr = err.Error()
	} else {
		d.lastSent = time.Now()
		d.lastErr = ""
	}
	d.statsMu.Unlock()

	if err != nil {
		d.log.Error("send failed",
			logx.Err(err),
			logx.Bool("override", override),
			logx.String("priority", FormatPriority(msg.Priority)),
		)
		return nil, err
	}
	d.log.Debug("sent",
		logx.String("request", resp.Request),
		logx.Bool("override", override),
		logx.String("priority", FormatPriority(msg.Priority)),
	)
	return resp, nil
}

// LastSend reports the time of the last successful send and the last error.
func (d *Dispatcher) LastSend() (time.Time, string) {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return d.lastSent, d.lastErr
}
