// Package bridge is the inbound boundary: it accepts send commands from any
// transport, filters malformed ones, waits for startup to settle, drops
// rapid duplicates and replies with the dispatch result.
package bridge

import (
	"bytes"
	"encoding/json"
)

// CommandSend is the only command the bridge acts on.
const CommandSend = "send"

// Command is an inbound message addressed to the instance.
type Command struct {
	Command  string          `json:"command"`
	Message  json.RawMessage `json:"message,omitempty"`
	From     string          `json:"from,omitempty"`
	Callback json.RawMessage `json:"callback,omitempty"`
}

// WantsReply reports whether the caller supplied a reply token.
func (c Command) WantsReply() bool {
	cb := bytes.TrimSpace(c.Callback)
	return len(cb) > 0 && !bytes.Equal(cb, []byte("null"))
}

// Reply is sent back to the caller. Error is null on success.
type Reply struct {
	Error    *string `json:"error"`
	Response any     `json:"response,omitempty"`
}

func errorReply(err error) *Reply {
	s := err.Error()
	return &Reply{Error: &s}
}

// Outcome is what Handle did with a command.
type Outcome int

const (
	// Ignored: not a send command or no message. No reply.
	Ignored Outcome = iota
	// Suppressed: duplicate inside the dedup window. No reply.
	Suppressed
	// Delivered: dispatched; the reply carries the result or the error.
	Delivered
)

func (o Outcome) String() string {
	switch o {
	case Ignored:
		return "ignored"
	case Suppressed:
		return "suppressed"
	case Delivered:
		return "delivered"
	}
	return "unknown"
}
