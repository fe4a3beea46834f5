package credentials

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"pushbridge/internal/objects"
)

// Resolver decrypts enc_ attributes of the instance's native config.
type Resolver struct {
	store objects.Store

	mu     sync.RWMutex
	native map[string]any
}

func NewResolver(store objects.Store, native map[string]any) *Resolver {
	return &Resolver{store: store, native: maps.Clone(native)}
}

// SetNative replaces the native config view (after migration or reload).
func (r *Resolver) SetNative(native map[string]any) {
	r.mu.Lock()
	r.native = maps.Clone(native)
	r.mu.Unlock()
}

// Resolve returns the decrypted value of attr (for example "enc_token").
func (r *Resolver) Resolve(ctx context.Context, attr string) (string, error) {
	r.mu.RLock()
	v, ok := r.native[attr]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%s: %w", attr, ErrNotConfigured)
	}
	secret, err := SystemSecret(ctx, r.store)
	if err != nil {
		return "", err
	}
	return Decrypt(secret, stringValue(v)), nil
}

// Resolved is delivered by ResolveAsync.
type Resolved struct {
	Value string
	Err   error
}

// ResolveAsync runs Resolve in the background and delivers exactly one
// result on the returned channel.
func (r *Resolver) ResolveAsync(ctx context.Context, attr string) <-chan Resolved {
	ch := make(chan Resolved, 1)
	go func() {
		v, err := r.Resolve(ctx, attr)
		ch <- Resolved{Value: v, Err: err}
	}()
	return ch
}
