// Package limiter throttles how often a code can be sent to one destination.
package limiter

import (
	"context"
	"time"
)

// BlockMultiplier scales the window into the block applied once a destination
// goes over its per-window allowance.
const BlockMultiplier = 3

// Decision is the result of a single Allow call
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Options configures the send policy shared by every limiter implementation
type Options struct {
	// Cooldown is the minimum gap between two sends to the same key
	Cooldown time.Duration
	// Window is the period MaxPerWindow is counted over
	Window time.Duration
	// MaxPerWindow caps sends per Window. Zero disables the cap.
	MaxPerWindow int
}

// BlockDuration is how long a key stays blocked after going over the cap
func (o Options) BlockDuration() time.Duration {
	return BlockMultiplier * o.Window
}

func (o Options) capped() bool {
	return o.MaxPerWindow > 0 && o.Window > 0
}

// Limiter decides whether another send to key may go out now. Allowed calls
// are counted against the key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

type unlimited struct{}

// NewUnlimited returns a Limiter that allows everything
func NewUnlimited() Limiter {
	return unlimited{}
}

func (unlimited) Allow(context.Context, string) (Decision, error) {
	return Decision{Allowed: true}, nil
}
