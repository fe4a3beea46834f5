// Package pushover is a provider.Client for the Pushover HTTP API.
package pushover

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"pushbridge/internal/provider"
)

const (
	DefaultAPIURL  = "https://api.pushover.net/1/messages.json"
	DefaultTimeout = 10 * time.Second

	defaultUserAgent = "pushbridge"
	maxResponseBytes = 64 << 10
)

// Config tunes the HTTP side of the client.
type Config struct {
	APIURL    string
	Timeout   time.Duration
	UserAgent string
	// HTTPClient overrides the default client (tests, proxies).
	HTTPClient *http.Client
}

// Client talks to the Pushover messages endpoint.
type Client struct {
	apiURL    string
	userAgent string
	http      *http.Client
	user      string
	onError   func(error)

	mu    sync.RWMutex
	token string
}

// New returns a Client. It never fails today; the error keeps it usable as a provider.Factory.
func New(opts provider.Options, cfg Config) (*Client, error) {
	apiURL := strings.TrimSpace(cfg.APIURL)
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if _, err := url.Parse(apiURL); err != nil {
		return nil, fmt.Errorf("pushover api url: %w", err)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = defaultUserAgent
	}
	return &Client{
		apiURL:    apiURL,
		userAgent: ua,
		http:      hc,
		user:      opts.User,
		token:     opts.Token,
		onError:   opts.OnError,
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

func (c *Client) currentToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Send submits msg with the token last given to SetToken; msg.Token is
// ignored. A user on the message wins over the client's own.
func (c *Client) Send(ctx context.Context, msg provider.Message) (*provider.Response, error) {
	msg.Token = c.currentToken()
	if msg.User == "" {
		msg.User = c.user
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, strings.NewReader(FormValues(msg).Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		c.reportError(err)
		return nil, &provider.SendError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.reportError(err)
		return nil, &provider.SendError{HTTPStatus: resp.StatusCode, Err: err}
	}

	var out provider.Response
	if err := json.Unmarshal(body, &out); err != nil {
		err = fmt.Errorf("decode response: %w", err)
		if resp.StatusCode/100 == 2 {
			c.reportError(err)
		}
		return nil, &provider.SendError{HTTPStatus: resp.StatusCode, Err: err}
	}
	if resp.StatusCode/100 != 2 || out.Status != 1 {
		return nil, &provider.SendError{
			HTTPStatus: resp.StatusCode,
			Request:    out.Request,
			Errors:     out.Errors,
			Err:        errors.New("rejected"),
		}
	}
	return &out, nil
}

func (c *Client) reportError(err error) {
	if c.onError != nil && err != nil {
		c.onError(err)
	}
}

// FormValues encodes msg as the Pushover form body.
func FormValues(msg provider.Message) url.Values {
	v := url.Values{}
	for k, val := range msg.Extra {
		v.Set(k, val)
	}
	v.Set("token", msg.Token)
	v.Set("user", msg.User)
	v.Set("message", msg.Message)
	setIf(v, "title", msg.Title)
	setIf(v, "sound", msg.Sound)
	setIf(v, "url", msg.URL)
	setIf(v, "url_title", msg.URLTitle)
	setIf(v, "device", msg.Device)
	if msg.Priority != 0 {
		v.Set("priority", strconv.Itoa(msg.Priority))
	}
	if msg.Timestamp != 0 {
		v.Set("timestamp", strconv.FormatInt(msg.Timestamp, 10))
	}
	if msg.Retry != 0 {
		v.Set("retry", strconv.Itoa(msg.Retry))
	}
	if msg.Expire != 0 {
		v.Set("expire", strconv.Itoa(msg.Expire))
	}
	return v
}

func setIf(v url.Values, k, val string) {
	if val != "" {
		v.Set(k, val)
	}
}
