package objects

import (
	"context"
	"strings"
	"sync"
)

// Memory is an in-process Store. Objects are cloned on the way in and out,
// so callers never share maps with the store.
type Memory struct {
	mu     sync.RWMutex
	objs   map[string]*Object
	closed bool

	// Counters for tests asserting how much I/O an operation did.
	Gets int
	Sets int
}

func NewMemory(objs ...*Object) *Memory {
	m := &Memory{objs: map[string]*Object{}}
	for _, o := range objs {
		if o != nil {
			m.objs[o.ID] = o.Clone()
		}
	}
	return m
}

func (m *Memory) GetObject(ctx context.Context, id string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	m.Gets++
	o, ok := m.objs[strings.TrimSpace(id)]
	if !ok {
		return nil, ErrNotFound
	}
	return o.Clone(), nil
}

func (m *Memory) SetObject(ctx context.Context, obj *Object) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.Sets++
	m.objs[obj.ID] = obj.Clone()
	return nil
}

// IOCount returns Gets+Sets.
func (m *Memory) IOCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Gets + m.Sets
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
