// Package inactivity ends idle sessions: after warnAfter without activity a
// warning countdown starts, and when it runs out the session expires.
package inactivity

import (
	"sync"
	"time"
)

// State is the monitor state.
type State string

const (
	StateIdle    State = "idle"
	StateActive  State = "active"
	StateWarning State = "warning"
	StateExpired State = "expired"
)

// Monitor is a clock-driven state machine. It never starts timers; something
// must call Tick (see Runner). Hooks run on the caller's goroutine after the
// state change, outside the monitor's lock.
type Monitor struct {
	warnAfter time.Duration
	countdown time.Duration
	nowF      func() time.Time

	onWarning []func(remaining time.Duration)
	onTick    []func(remaining time.Duration)
	onExpired []func()

	mu           sync.Mutex
	state        State
	lastActivity time.Time
	lastSecond   int64
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock replaces time.Now.
func WithClock(nowF func() time.Time) Option {
	return func(m *Monitor) { m.nowF = nowF }
}

// OnWarning adds a hook called once when the warning countdown begins.
func OnWarning(fn func(remaining time.Duration)) Option {
	return func(m *Monitor) { m.onWarning = append(m.onWarning, fn) }
}

// OnTick adds a hook called during the warning whenever the whole seconds left
// change.
func OnTick(fn func(remaining time.Duration)) Option {
	return func(m *Monitor) { m.onTick = append(m.onTick, fn) }
}

// OnExpired adds a hook called once per expiry. Hooks run in the order added.
func OnExpired(fn func()) Option {
	return func(m *Monitor) { m.onExpired = append(m.onExpired, fn) }
}

// NewMonitor returns an idle Monitor.
func NewMonitor(warnAfter, countdown time.Duration, opts ...Option) *Monitor {
	m := &Monitor{
		warnAfter: warnAfter,
		countdown: countdown,
		nowF:      time.Now,
		state:     StateIdle,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Start begins tracking from now in the Active state.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateActive
	m.lastActivity = m.nowF()
	m.lastSecond = -1
}

// Stop returns to Idle; no hooks fire until the next Start.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateIdle
	m.lastSecond = -1
}

// Touch records user activity. In Active or Warning it resets the idle timer
// and returns to Active; otherwise it does nothing. It reports whether the
// activity was counted.
func (m *Monitor) Touch() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateActive && m.state != StateWarning {
		return false
	}
	m.state = StateActive
	m.lastActivity = m.nowF()
	m.lastSecond = -1
	return true
}

// KeepAlive is the explicit "stay signed in" answer to the warning.
func (m *Monitor) KeepAlive() bool {
	return m.Touch()
}

// Tick advances the machine to the current time and returns the new state.
func (m *Monitor) Tick() State {
	m.mu.Lock()
	if m.state != StateActive && m.state != StateWarning {
		st := m.state
		m.mu.Unlock()
		return st
	}

	var (
		warned, ticked, expired bool
		remaining               time.Duration
	)
	elapsed := m.nowF().Sub(m.lastActivity)
	switch {
	case elapsed >= m.warnAfter+m.countdown:
		m.state = StateExpired
		expired = true
	case elapsed >= m.warnAfter:
		remaining = m.warnAfter + m.countdown - elapsed
		if m.state == StateActive {
			m.state = StateWarning
			warned = true
		}
		if secs := ceilSeconds(remaining); secs != m.lastSecond {
			m.lastSecond = secs
			ticked = true
		}
	}
	st := m.state
	m.mu.Unlock()

	if warned {
		for _, fn := range m.onWarning {
			fn(remaining)
		}
	}
	if ticked {
		for _, fn := range m.onTick {
			fn(remaining)
		}
	}
	if expired {
		for _, fn := range m.onExpired {
			fn()
		}
	}
	return st
}

// State returns the current state without advancing it.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Remaining is the time until expiry while Active or Warning, else 0.
func (m *Monitor) Remaining() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateActive && m.state != StateWarning {
		return 0
	}
	left := m.warnAfter + m.countdown - m.nowF().Sub(m.lastActivity)
	if left < 0 {
		return 0
	}
	return left
}

func ceilSeconds(d time.Duration) int64 {
	return int64((d + time.Second - 1) / time.Second)
}
