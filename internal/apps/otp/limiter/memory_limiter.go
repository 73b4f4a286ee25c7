package limiter

import (
	"context"
	"sync"
	"time"

	"bell-backend/pkg/clock"
)

const gcThreshold = 1024

type keyState struct {
	lastSend     time.Time
	windowStart  time.Time
	count        int
	blockedUntil time.Time
}

// memoryLimiter keeps per-key counters in process memory
type memoryLimiter struct {
	opts  Options
	clock clock.Clocker

	mu    sync.Mutex
	state map[string]*keyState
}

// NewMemoryLimiter creates a single-instance Limiter
func NewMemoryLimiter(opts Options, clk clock.Clocker) Limiter {
	return &memoryLimiter{
		opts:  opts,
		clock: clk,
		state: make(map[string]*keyState),
	}
}

func (l *memoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.state[key]
	if !ok {
		st = &keyState{}
		l.state[key] = st
	}

	if now.Before(st.blockedUntil) {
		return Decision{RetryAfter: st.blockedUntil.Sub(now)}, nil
	}
	if l.opts.Cooldown > 0 && !st.lastSend.IsZero() {
		if next := st.lastSend.Add(l.opts.Cooldown); now.Before(next) {
			return Decision{RetryAfter: next.Sub(now)}, nil
		}
	}

	if l.opts.capped() {
		if st.windowStart.IsZero() || !now.Before(st.windowStart.Add(l.opts.Window)) {
			st.windowStart = now
			st.count = 0
		}
		st.count++
		if st.count > l.opts.MaxPerWindow {
			block := l.opts.BlockDuration()
			st.blockedUntil = now.Add(block)
			st.windowStart = time.Time{}
			st.count = 0
			return Decision{RetryAfter: block}, nil
		}
	}

	st.lastSend = now
	if len(l.state) >= gcThreshold {
		l.gc(now)
	}
	return Decision{Allowed: true}, nil
}

// gc drops keys that no longer constrain anything. Caller holds mu.
func (l *memoryLimiter) gc(now time.Time) {
	horizon := l.opts.Cooldown
	if l.opts.Window > horizon {
		horizon = l.opts.Window
	}
	for key, st := range l.state {
		if now.Before(st.blockedUntil) {
			continue
		}
		if now.Sub(st.lastSend) > horizon && (st.windowStart.IsZero() || now.Sub(st.windowStart) > horizon) {
			delete(l.state, key)
		}
	}
}
