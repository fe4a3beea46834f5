// Package transport holds what the inbound transports (http, mqtt, telegram)
// share: the handler they feed and the Transport lifecycle the app runs.
package transport

import (
	"context"

	"pushbridge/internal/bridge"
)

// Handler processes one inbound command. *bridge.Handler implements it.
type Handler interface {
	Handle(ctx context.Context, cmd bridge.Command) (bridge.Outcome, *bridge.Reply, error)
}

// Transport is a long-running inbound listener. Run blocks until ctx ends
// or the listener fails; the supervisor restarts it on error.
type Transport interface {
	Name() string
	Run(ctx context.Context) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, cmd bridge.Command) (bridge.Outcome, *bridge.Reply, error)

func (f HandlerFunc) Handle(ctx context.Context, cmd bridge.Command) (bridge.Outcome, *bridge.Reply, error) {
	return f(ctx, cmd)
}

// Source builds the From value for commands from a transport.
func Source(transport, id string) string {
	if id == "" {
		return transport
	}
	return transport + ":" + id
}
