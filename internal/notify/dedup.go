package notify

import (
	"sync"
	"time"
)

// DefaultDedupWindow is how long an identical resend is suppressed.
const DefaultDedupWindow = time.Second

// Deduplicator remembers only the most recent admitted request.
type Deduplicator struct {
	mu     sync.Mutex
	window time.Duration
	now    func() time.Time

	lastKey string
	lastAt  time.Time
	has     bool
}

type DedupOption func(*Deduplicator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) DedupOption {
	return func(d *Deduplicator) { d.now = now }
}

func NewDeduplicator(window time.Duration, opts ...DedupOption) *Deduplicator {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	d := &Deduplicator{window: window, now: time.Now}
	for _, o := range opts {
		o(d)
	}
	return d
}

// SetWindow changes the window for subsequent checks.
func (d *Deduplicator) SetWindow(window time.Duration) {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	d.mu.Lock()
	d.window = window
	d.mu.Unlock()
}

func (d *Deduplicator) Window() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.window
}

// ShouldSuppress reports whether r repeats the last admitted request within
// the window.
func (d *Deduplicator) ShouldSuppress(r Request) bool {
	key := r.Key()
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.suppressLocked(key, d.now())
}

// Record makes r the most recent request.
func (d *Deduplicator) Record(r Request) {
	key := r.Key()
	d.mu.Lock()
	d.recordLocked(key, d.now())
	d.mu.Unlock()
}

// Admit checks and records in one step. It returns false for a duplicate.
func (d *Deduplicator) Admit(r Request) bool {
	key := r.Key()
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if d.suppressLocked(key, now) {
		return false
	}
	d.recordLocked(key, now)
	return true
}

func (d *Deduplicator) suppressLocked(key string, now time.Time) bool {
	return d.has && d.lastKey == key && now.Sub(d.lastAt) < d.window
}

func (d *Deduplicator) recordLocked(key string, now time.Time) {
	d.lastKey = key
	d.lastAt = now
	d.has = true
}
