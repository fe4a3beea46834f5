package notify

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestDedupWindow(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	d := NewDeduplicator(0, WithClock(clk.Now))
	r := TextRequest("hello")

	if !d.Admit(r) {
		t.Fatalf("first request must pass")
	}
	clk.Advance(500 * time.Millisecond)
	if d.Admit(r) {
		t.Fatalf("identical request after 500ms must be suppressed")
	}
	clk.Advance(1000 * time.Millisecond)
	if !d.Admit(r) {
		t.Fatalf("identical request after 1500ms must pass")
	}
}

func TestDedupSuppressedDoesNotExtendWindow(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	d := NewDeduplicator(time.Second, WithClock(clk.Now))
	r := TextRequest("x")

	d.Admit(r)
	clk.Advance(900 * time.Millisecond)
	if d.Admit(r) {
		t.Fatalf("expected suppression")
	}
	clk.Advance(200 * time.Millisecond)
	if !d.Admit(r) {
		t.Fatalf("window is measured from the last admitted request")
	}
}

func TestDedupSingleSlot(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	d := NewDeduplicator(time.Second, WithClock(clk.Now))

	d.Admit(TextRequest("a"))
	d.Admit(TextRequest("b"))
	if !d.Admit(TextRequest("a")) {
		t.Fatalf("only the most recent request is remembered")
	}
}

func TestDedupExactBoundaryPasses(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	d := NewDeduplicator(time.Second, WithClock(clk.Now))
	r := TextRequest("x")

	if d.ShouldSuppress(r) {
		t.Fatalf("nothing recorded yet")
	}
	d.Record(r)
	clk.Advance(time.Second)
	if d.ShouldSuppress(r) {
		t.Fatalf("elapsed == window is not a duplicate")
	}
}

func TestDedupSetWindow(t *testing.T) {
	d := NewDeduplicator(time.Second)
	d.SetWindow(5 * time.Second)
	if d.Window() != 5*time.Second {
		t.Fatalf("window not applied")
	}
	d.SetWindow(0)
	if d.Window() != DefaultDedupWindow {
		t.Fatalf("zero window falls back to default")
	}
}

func TestDedupAdmitConcurrent(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	d := NewDeduplicator(time.Second, WithClock(clk.Now))
	r := TextRequest("same")

	var admitted atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if d.Admit(r) {
				admitted.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := admitted.Load(); got != 1 {
		t.Fatalf("admitted %d of 32 identical concurrent requests, want 1", got)
	}
}
