// Package shoutrrr is a provider.Client that reaches Pushover through a
// shoutrrr pushover:// service URL. It supports the subset of fields the
// shoutrrr pushover service exposes (title, priority, device). A message
// that sets any other field fails with ErrUnsupported instead of being sent
// without it. Emergency priority needs retry/expire and is rejected too.
package shoutrrr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"pushbridge/internal/provider"
)

var ErrUnsupported = errors.New("not supported by shoutrrr pushover service")

// Config tunes the shoutrrr router.
type Config struct {
	Timeout time.Duration
}

type Client struct {
	cfg     Config
	user    string
	onError func(error)

	// Only the construction token's sender is kept; per-call overrides get
	// a fresh one each time.
	defaultToken string

	mu      sync.Mutex
	token   string
	senders map[string]*router.ServiceRouter
}

func New(opts provider.Options, cfg Config) (*Client, error) {
	if strings.TrimSpace(opts.User) == "" {
		return nil, fmt.Errorf("%w: user is empty", provider.ErrInvalidMessage)
	}
	return &Client{
		cfg:          cfg,
		user:         opts.User,
		defaultToken: opts.Token,
		token:        opts.Token,
		onError:      opts.OnError,
		senders:      map[string]*router.ServiceRouter{},
	}, nil
}

// Factory adapts New to provider.Factory.
func Factory(cfg Config) provider.Factory {
	return func(opts provider.Options) (provider.Client, error) {
		return New(opts, cfg)
	}
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// ServiceURL builds the pushover:// URL for a token/user pair.
func ServiceURL(token, user string) string {
	u := url.URL{
		Scheme: "pushover",
		User:   url.UserPassword("shoutrrr", token),
		Host:   user,
		Path:   "/",
	}
	return u.String()
}

func (c *Client) senderFor(token string) (*router.ServiceRouter, error) {
	cache := token == c.defaultToken
	if cache {
		c.mu.Lock()
		s, ok := c.senders[token]
		c.mu.Unlock()
		if ok {
			return s, nil
		}
	}
	s, err := shoutrrr.CreateSender(ServiceURL(token, c.user))
	if err != nil {
		// Never echo the URL: it carries the token.
		return nil, fmt.Errorf("create pushover sender: %w", errors.New(redact(err.Error(), token)))
	}
	if c.cfg.Timeout > 0 {
		s.Timeout = c.cfg.Timeout
	}
	s.SetLogger(log.New(io.Discard, "", 0))
	if cache {
		c.mu.Lock()
		c.senders[token] = s
		c.mu.Unlock()
	}
	return s, nil
}

// Send delivers msg with the token last given to SetToken; msg.Token is
// ignored. The router applies its own timeout, so a canceled ctx returns
// early while the request finishes in the background.
func (c *Client) Send(ctx context.Context, msg provider.Message) (*provider.Response, error) {
	c.mu.Lock()
	msg.Token = c.token
	c.mu.Unlock()
	if msg.User == "" {
		msg.User = c.user
	}
	if msg.Priority == provider.PriorityEmergency {
		return nil, fmt.Errorf("emergency priority: %w", ErrUnsupported)
	}
	if fields := UnsupportedFields(msg); len(fields) > 0 {
		return nil, fmt.Errorf("%s: %w", strings.Join(fields, ","), ErrUnsupported)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sender, err := c.senderFor(msg.Token)
	if err != nil {
		return nil, &provider.SendError{Err: err}
	}

	done := make(chan []error, 1)
	go func() { done <- sender.Send(msg.Message, Params(msg)) }()
	var errs []error
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case errs = <-done:
	}

	for _, e := range errs {
		if e != nil {
			e = errors.New(redact(e.Error(), msg.Token))
			if c.onError != nil {
				c.onError(e)
			}
			return nil, &provider.SendError{Err: e}
		}
	}
	return &provider.Response{Status: 1}, nil
}

// UnsupportedFields lists the set message fields Params cannot carry.
// Retry and expire only matter for emergency priority and are not counted.
func UnsupportedFields(msg provider.Message) []string {
	var out []string
	if msg.Sound != "" {
		out = append(out, "sound")
	}
	if msg.URL != "" {
		out = append(out, "url")
	}
	if msg.URLTitle != "" {
		out = append(out, "url_title")
	}
	if msg.Timestamp != 0 {
		out = append(out, "timestamp")
	}
	extra := make([]string, 0, len(msg.Extra))
	for k := range msg.Extra {
		extra = append(extra, k)
	}
	slices.Sort(extra)
	return append(out, extra...)
}

// Params maps the fields the shoutrrr pushover service understands.
func Params(msg provider.Message) *stypes.Params {
	params := stypes.Params{}
	if msg.Title != "" {
		params.SetTitle(msg.Title)
	}
	if msg.Priority != 0 {
		params["priority"] = strconv.Itoa(msg.Priority)
	}
	if msg.Device != "" {
		params["devices"] = msg.Device
	}
	return &params
}

func redact(s, token string) string {
	if token == "" {
		return s
	}
	return strings.ReplaceAll(s, token, "***")
}
