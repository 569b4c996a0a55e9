// Package progress tracks remaining-work counters across long-running jobs
// and drives the periodic flush of their accumulators from a single ticker.
package progress

import (
	"log"
	"sync"
	"time"
)

// FlushFunc is invoked on every tick and once on Unregister. Implementations
// must be idempotent and bounded in duration.
type FlushFunc func()

// EventNotifier receives progress events for the control plane (websocket).
type EventNotifier interface {
	Broadcast(event string, data interface{})
}

type entry struct {
	remaining int
	flush     FlushFunc
}

// Coordinator holds per-key counters and a single lazy ticker. The ticker
// starts on the first register with remaining > 0 and stops once every key
// reports zero.
type Coordinator struct {
	interval time.Duration
	notifier EventNotifier

	mu      sync.Mutex
	entries map[string]*entry
	ticking bool
	stop    chan struct{}
}

// New creates a coordinator ticking at the given interval (30s in production).
func New(interval time.Duration, notifier EventNotifier) *Coordinator {
	return &Coordinator{
		interval: interval,
		notifier: notifier,
		entries:  make(map[string]*entry),
	}
}

// Register adds a key with n units of remaining work and its flush callback.
func (c *Coordinator) Register(key string, n int, flush FlushFunc) {
	c.mu.Lock()
	c.entries[key] = &entry{remaining: n, flush: flush}
	start := n > 0 && !c.ticking
	if start {
		c.ticking = true
		c.stop = make(chan struct{})
	}
	stop := c.stop
	c.mu.Unlock()
	if start {
		go c.run(stop)
	}
}

// Update sets the remaining count for key. Unknown keys are ignored.
func (c *Coordinator) Update(key string, n int) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		e.remaining = n
	}
	c.mu.Unlock()
}

// Unregister removes the key and invokes its flush one final time.
func (c *Coordinator) Unregister(key string) {
	c.mu.Lock()
	e, ok := c.entries[key]
	delete(c.entries, key)
	c.mu.Unlock()
	if ok && e.flush != nil {
		e.flush()
	}
}

func (c *Coordinator) run(stop chan struct{}) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if !c.tick() {
				return
			}
		case <-stop:
			return
		}
	}
}

// tick logs remaining counts, invokes every flush, and reports whether the
// ticker should keep running.
func (c *Coordinator) tick() bool {
	c.mu.Lock()
	type snap struct {
		key       string
		remaining int
		flush     FlushFunc
	}
	snaps := make([]snap, 0, len(c.entries))
	busy := false
	for k, e := range c.entries {
		snaps = append(snaps, snap{k, e.remaining, e.flush})
		if e.remaining > 0 {
			busy = true
		}
	}
	if !busy {
		c.ticking = false
	}
	c.mu.Unlock()

	for _, s := range snaps {
		log.Printf("[progress] %s: %d remaining", s.key, s.remaining)
		if c.notifier != nil {
			c.notifier.Broadcast("progress", map[string]interface{}{
				"key": s.key, "remaining": s.remaining,
			})
		}
		if s.flush != nil {
			s.flush()
		}
	}
	return busy
}
