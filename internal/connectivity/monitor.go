// Package connectivity tracks device network reachability and fans state
// transitions out to subscribers.
//
// The monitor itself holds no platform code: a source (the platform signal,
// or the HTTP probe in this package) pushes raw online/offline observations
// into Set, and the monitor de-duplicates against the last known state so
// listeners only see transitions, never repeated polls.
//
// Fail-open policy: a monitor with no source, or whose source cannot
// determine reachability, reports online. A false "offline" would silently
// trap every screen into stale-cache mode, which is strictly worse than an
// occasional failed network attempt that falls back to cache anyway.
package connectivity

import (
	"log/slog"
	"sync"
)

// Listener receives the new state on every observed transition.
type Listener func(online bool)

// Unsubscribe removes a listener registered with Subscribe.
type Unsubscribe func()

// Monitor is the connectivity state holder and event fan-out.
type Monitor struct {
	mu        sync.Mutex
	online    bool
	listeners []registration
	nextID    int
	logger    *slog.Logger
}

type registration struct {
	id int
	fn Listener
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the logger for transition events.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) {
		m.logger = l
	}
}

// New creates a monitor. The initial state is online (fail-open): until a
// source reports otherwise, the device is assumed reachable.
func New(opts ...Option) *Monitor {
	m := &Monitor{
		online: true,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IsOnline returns the current state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers a listener invoked on every transition, in
// registration order. The returned func removes the listener; calling it
// more than once is safe.
func (m *Monitor) Subscribe(fn Listener) Unsubscribe {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.listeners = append(m.listeners, registration{id: id, fn: fn})

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, reg := range m.listeners {
			if reg.id == id {
				m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
				return
			}
		}
	}
}

// Set records an observation from a source. Observations matching the last
// known state are dropped; on a transition, listeners run in registration
// order on the caller's goroutine, so delivery order is deterministic.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online

	// Snapshot under the lock; invoke outside it so listeners can call
	// back into the monitor (e.g. unsubscribe themselves).
	snapshot := make([]registration, len(m.listeners))
	copy(snapshot, m.listeners)
	m.mu.Unlock()

	m.logger.Info("connectivity transition", "online", online)
	for _, reg := range snapshot {
		reg.fn(online)
	}
}
