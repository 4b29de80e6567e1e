package tty

import (
	"context"
	"sync"
)

// Emitter is a listener registry transports embed to implement Subscribe,
// RemoveAllListeners and event delivery.
type Emitter struct {
	mu        sync.RWMutex
	listeners []Listener
}

// Subscribe registers l.
func (e *Emitter) Subscribe(l Listener) {
	if l == nil {
		return
	}

	e.mu.Lock()
	e.listeners = append(e.listeners, l)
	e.mu.Unlock()
}

// RemoveAllListeners drops every registered listener.
func (e *Emitter) RemoveAllListeners() {
	e.mu.Lock()
	e.listeners = nil
	e.mu.Unlock()
}

// Emit delivers ev to a snapshot of the current listeners.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	listeners := make([]Listener, len(e.listeners))
	copy(listeners, e.listeners)
	e.mu.RUnlock()

	for _, l := range listeners {
		l(ev)
	}
}

// ListenerCount returns the number of registered listeners.
func (e *Emitter) ListenerCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return len(e.listeners)
}

// Flow is the pause gate behind PauseFlow/ResumeFlow. Readers call Wait
// before producing the next Data event.
type Flow struct {
	mu      sync.Mutex
	resumed chan struct{} // nil while flowing
}

// Pause closes the gate. Pausing an already paused flow is a no-op.
func (f *Flow) Pause() {
	f.mu.Lock()
	if f.resumed == nil {
		f.resumed = make(chan struct{})
	}
	f.mu.Unlock()
}

// Resume opens the gate and releases every waiter.
func (f *Flow) Resume() {
	f.mu.Lock()
	if f.resumed != nil {
		close(f.resumed)
		f.resumed = nil
	}
	f.mu.Unlock()
}

// Paused reports whether the gate is closed.
func (f *Flow) Paused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.resumed != nil
}

// Wait blocks while the gate is closed. It returns ctx.Err() if ctx ends
// first.
func (f *Flow) Wait(ctx context.Context) error {
	f.mu.Lock()
	ch := f.resumed
	f.mu.Unlock()

	if ch == nil {
		return nil
	}

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
