package state

import (
	"math"
	"math/rand"
	"time"
)

// Policy holds the knobs of the state machine
type Policy struct {
	// FailureThreshold consecutive failures that move degraded to error
	FailureThreshold int
	// BackoffBase smallest retry delay
	BackoffBase time.Duration
	// BackoffMax retry delay cap
	BackoffMax time.Duration
	// Rand returns a float in [0,1), math/rand when nil
	Rand func() float64
}

// DefaultPolicy returns the default thresholds and backoff bounds
func DefaultPolicy() Policy {
	return Policy{
		FailureThreshold: 3,
		BackoffBase:      time.Second,
		BackoffMax:       time.Minute,
	}
}

func (p Policy) normalize() Policy {
	if p.FailureThreshold < 1 {
		p.FailureThreshold = 1
	}

	if p.BackoffBase <= 0 {
		p.BackoffBase = time.Second
	}

	if p.BackoffMax < p.BackoffBase {
		p.BackoffMax = p.BackoffBase
	}

	if p.Rand == nil {
		p.Rand = rand.Float64
	}

	return p
}

// Ceiling returns min(max, base * 2^(failures-1)). Persistent failures go
// straight to the cap.
func (p Policy) Ceiling(failures int, persistent bool) time.Duration {
	p = p.normalize()

	if persistent {
		return p.BackoffMax
	}

	if failures < 1 {
		failures = 1
	}

	exp := math.Pow(2, float64(failures-1))
	ceiling := float64(p.BackoffBase) * exp

	if ceiling > float64(p.BackoffMax) || math.IsInf(ceiling, 0) {
		return p.BackoffMax
	}

	return time.Duration(ceiling)
}

// Delay draws the next retry delay uniformly from [floor, ceiling] where
// floor is the larger of the base delay and the previous delay. Successive
// delays for a failing device therefore never shrink.
func (p Policy) Delay(failures int, persistent bool, previous time.Duration) time.Duration {
	p = p.normalize()

	ceiling := p.Ceiling(failures, persistent)

	floor := p.BackoffBase

	if previous > floor {
		floor = previous
	}

	if floor >= ceiling {
		return floor
	}

	return floor + time.Duration(p.Rand()*float64(ceiling-floor))
}
