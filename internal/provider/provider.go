// Package provider defines the outbound Pushover message shape and the
// client contract the dispatcher talks to. Concrete clients live in the
// pushover (HTTP API) and shoutrrr subpackages.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// PriorityEmergency is Pushover's highest priority; it requires retry and expire.
const PriorityEmergency = 2

var ErrInvalidMessage = errors.New("invalid message")

// Message is a normalized Pushover message. Zero values are omitted on the wire.
type Message struct {
	Token     string `json:"-"`
	User      string `json:"-"`
	Message   string `json:"message"`
	Title     string `json:"title,omitempty"`
	Sound     string `json:"sound,omitempty"`
	Priority  int    `json:"priority,omitempty"`
	URL       string `json:"url,omitempty"`
	URLTitle  string `json:"url_title,omitempty"`
	Device    string `json:"device,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
	Retry     int    `json:"retry,omitempty"`
	Expire    int    `json:"expire,omitempty"`

	// Extra carries passthrough API fields (html, monospace, ttl, ...).
	Extra map[string]string `json:"extra,omitempty"`
}

// Response is Pushover's reply to a message submission.
type Response struct {
	Status  int      `json:"status"`
	Request string   `json:"request"`
	Receipt string   `json:"receipt,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

// Options are fixed at client construction.
type Options struct {
	User  string
	Token string
	// OnError is called for transport-level failures (network, decode).
	OnError func(error)
}

// Client sends messages to Pushover. The token is mutable so one client can
// serve per-call credential overrides; callers serialize SetToken+Send.
type Client interface {
	SetToken(token string)
	Send(ctx context.Context, msg Message) (*Response, error)
}

// Factory creates a Client once user and token are known.
type Factory func(opts Options) (Client, error)

// SendError is a rejected or failed submission.
type SendError struct {
	HTTPStatus int
	Request    string
	Errors     []string
	Err        error
}

func (e *SendError) Error() string {
	var b strings.Builder
	b.WriteString("pushover send failed")
	if e.HTTPStatus != 0 {
		fmt.Fprintf(&b, " (http %d)", e.HTTPStatus)
	}
	if len(e.Errors) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Errors, "; "))
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *SendError) Unwrap() error { return e.Err }

// Validate rejects messages no client can send.
func (m Message) Validate() error {
	if strings.TrimSpace(m.Token) == "" {
		return fmt.Errorf("%w: token is empty", ErrInvalidMessage)
	}
	if strings.TrimSpace(m.User) == "" {
		return fmt.Errorf("%w: user is empty", ErrInvalidMessage)
	}
	if m.Priority == PriorityEmergency && (m.Retry <= 0 || m.Expire <= 0) {
		return fmt.Errorf("%w: emergency priority requires retry and expire", ErrInvalidMessage)
	}
	return nil
}
