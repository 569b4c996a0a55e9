package progress

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestCoordinator_unregisterFlushesOnce(t *testing.T) {
	c := New(time.Hour, nil)
	var flushes int32
	c.Register("agtv1:movies", 10, func() { atomic.AddInt32(&flushes, 1) })
	c.Unregister("agtv1:movies")
	if n := atomic.LoadInt32(&flushes); n != 1 {
		t.Errorf("unregister should flush exactly once, got %d", n)
	}
	// A second unregister of the same key is a no-op.
	c.Unregister("agtv1:movies")
	if n := atomic.LoadInt32(&flushes); n != 1 {
		t.Errorf("repeat unregister flushed again: %d", n)
	}
}

func TestCoordinator_tickInvokesFlushWhileBusy(t *testing.T) {
	c := New(20*time.Millisecond, nil)
	var flushes int32
	c.Register("xt9:tvshows", 5, func() { atomic.AddInt32(&flushes, 1) })

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&flushes) < 2 {
		select {
		case <-deadline:
			t.Fatal("ticker never invoked flush")
		case <-time.After(5 * time.Millisecond):
		}
	}
	c.Unregister("xt9:tvshows")
}

func TestCoordinator_tickerStopsWhenAllZero(t *testing.T) {
	c := New(10*time.Millisecond, nil)
	c.Register("k", 1, nil)
	c.Update("k", 0)

	// Let a tick observe the zero and stop.
	time.Sleep(50 * time.Millisecond)
	c.mu.Lock()
	ticking := c.ticking
	c.mu.Unlock()
	if ticking {
		t.Error("ticker should stop once all keys report zero")
	}
}

func TestCoordinator_updateUnknownKeyIgnored(t *testing.T) {
	c := New(time.Hour, nil)
	c.Update("ghost", 7) // must not panic or register anything
	c.mu.Lock()
	n := len(c.entries)
	c.mu.Unlock()
	if n != 0 {
		t.Errorf("unknown key created an entry: %d", n)
	}
}

type captureNotifier struct {
	events int32
}

func (n *captureNotifier) Broadcast(event string, data interface{}) {
	atomic.AddInt32(&n.events, 1)
}

func TestCoordinator_broadcastsProgress(t *testing.T) {
	cn := &captureNotifier{}
	c := New(15*time.Millisecond, cn)
	c.Register("k", 3, nil)
	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&cn.events) == 0 {
		select {
		case <-deadline:
			t.Fatal("no progress event broadcast")
		case <-time.After(5 * time.Millisecond):
		}
	}
	c.Unregister("k")
}
