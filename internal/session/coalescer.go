package session

import (
	"sync"
	"time"
)

// Coalescer is a last-write-wins single-slot scheduler. Each Trigger replaces
// the pending value and re-arms the timer; when the delay elapses without a
// new trigger, fire runs once with the latest value.
type Coalescer[T any] struct {
	delay time.Duration
	fire  func(T)

	mu      sync.Mutex
	timer   *time.Timer
	pending T
	gen     uint64
	stopped bool
}

// NewCoalescer returns a coalescer that calls fire after delay of quiet.
func NewCoalescer[T any](delay time.Duration, fire func(T)) *Coalescer[T] {
	return &Coalescer[T]{delay: delay, fire: fire}
}

// Trigger stores v as the pending value and restarts the delay.
func (c *Coalescer[T]) Trigger(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}

	c.pending = v
	c.gen++

	if c.timer != nil {
		c.timer.Stop()
	}

	gen := c.gen
	c.timer = time.AfterFunc(c.delay, func() { c.run(gen) })
}

func (c *Coalescer[T]) run(gen uint64) {
	c.mu.Lock()
	// A timer that lost the race with Stop or a newer Trigger does nothing.
	if c.stopped || gen != c.gen || c.timer == nil {
		c.mu.Unlock()
		return
	}

	v := c.pending
	c.timer = nil

	var zero T
	c.pending = zero
	c.mu.Unlock()

	c.fire(v)
}

// Pending reports whether a value is waiting for the timer.
func (c *Coalescer[T]) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.timer != nil
}

// Cancel drops the pending value and disables further triggers.
func (c *Coalescer[T]) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopped = true

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
