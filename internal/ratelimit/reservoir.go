// Package ratelimit implements the reservoir admission model used for all
// upstream HTTP traffic: C permits are added every T, capped at C, with at
// most C permits in flight at once.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Reservoir is a discrete-refill rate limiter. Unlike a continuously
// refilling token bucket, the whole capacity is restored at once on every
// refill tick, and a separate bound caps in-flight permits.
type Reservoir struct {
	mu        sync.Mutex
	capacity  int
	interval  time.Duration
	available int
	inFlight  int
	waiters   []chan struct{}
	stop      chan struct{}
	stopped   bool
}

// New creates a reservoir admitting up to capacity permits per interval.
func New(capacity int, interval time.Duration) *Reservoir {
	if capacity < 1 {
		capacity = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	r := &Reservoir{
		capacity:  capacity,
		interval:  interval,
		available: capacity,
		stop:      make(chan struct{}),
	}
	go r.refillLoop()
	return r
}

func (r *Reservoir) refillLoop() {
	r.mu.Lock()
	interval := r.interval
	r.mu.Unlock()

	timer := time.NewTimer(interval)
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			r.refill()
			r.mu.Lock()
			interval = r.interval
			r.mu.Unlock()
			timer.Reset(interval)
		case <-r.stop:
			return
		}
	}
}

func (r *Reservoir) refill() {
	r.mu.Lock()
	r.available = r.capacity
	waiters := r.waiters
	r.waiters = nil
	r.mu.Unlock()
	for _, w := range waiters {
		close(w)
	}
}

// Acquire blocks until a permit is available and the in-flight bound admits
// another caller. A cancelled waiter does not consume a permit.
func (r *Reservoir) Acquire(ctx context.Context) error {
	for {
		r.mu.Lock()
		if r.available > 0 && r.inFlight < r.capacity {
			r.available--
			r.inFlight++
			r.mu.Unlock()
			return nil
		}
		wake := make(chan struct{})
		r.waiters = append(r.waiters, wake)
		r.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Release returns an in-flight permit. It does not add back reservoir
// availability; only the refill tick does that.
func (r *Reservoir) Release() {
	r.mu.Lock()
	if r.inFlight > 0 {
		r.inFlight--
	}
	waiters := r.waiters
	if r.available > 0 {
		r.waiters = nil
	} else {
		waiters = nil
	}
	r.mu.Unlock()
	for _, w := range waiters {
		close(w)
	}
}

// Update atomically rewrites capacity and refill interval. In-flight permits
// are grandfathered: they keep running and release normally.
func (r *Reservoir) Update(capacity int, interval time.Duration) {
	if capacity < 1 {
		capacity = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	r.mu.Lock()
	r.capacity = capacity
	r.interval = interval
	if r.available > capacity {
		r.available = capacity
	}
	waiters := r.waiters
	r.waiters = nil
	r.mu.Unlock()
	// Re-wake waiters so they re-evaluate against the new bounds.
	for _, w := range waiters {
		close(w)
	}
}

// Stop shuts down the refill goroutine. Pending waiters are woken and will
// observe whatever availability remains.
func (r *Reservoir) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()
	close(r.stop)
}
