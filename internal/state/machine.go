// Package state tracks per device connection liveness
package state

import (
	"sync"
	"time"

	"github.com/robgonnella/hashwatch/internal/logger"
	"github.com/robgonnella/hashwatch/internal/miner"
)

// Next is the transition function. It is defined for every (state, outcome)
// pair; failures is the consecutive failure count including this outcome.
func Next(current State, outcome Outcome, failures, threshold int) State {
	switch outcome {
	case Success:
		return Online
	case BeginConnect:
		switch current {
		case Disconnected, Error:
			return Connecting
		default:
			return current
		}
	case Failure:
		switch current {
		case Online:
			if failures >= threshold {
				return Error
			}
			return Degraded
		case Degraded:
			if failures >= threshold {
				return Error
			}
			return Degraded
		default:
			// disconnected, connecting, error
			return Error
		}
	default:
		return current
	}
}

// Machine owns one device's ConnectionState. Only the device's own task
// drives it; reads may come from anywhere.
type Machine struct {
	mu     sync.RWMutex
	log    logger.Logger
	policy Policy
	state  ConnectionState
}

// NewMachine returns a machine in the disconnected state
func NewMachine(deviceID string, policy Policy) *Machine {
	return &Machine{
		log:    logger.New().Component("state"),
		policy: policy.normalize(),
		state: ConnectionState{
			DeviceID: deviceID,
			State:    Disconnected,
			Since:    time.Now(),
		},
	}
}

// Current returns a copy of the connection state
func (m *Machine) Current() ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Begin records a connection attempt. ok is false when the state did not
// change.
func (m *Machine) Begin(now time.Time) (Transition, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.state.State
	to := Next(from, BeginConnect, m.state.Failures, m.policy.FailureThreshold)

	if from == to {
		return Transition{}, false
	}

	m.enter(to, now)
	m.state.NextRetry = time.Time{}

	return m.record(from, "connecting", now), true
}

// Succeed records a successful connect or fetch. Failure bookkeeping resets.
func (m *Machine) Succeed(now time.Time) (Transition, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.state.State
	to := Next(from, Success, 0, m.policy.FailureThreshold)

	m.state.Failures = 0
	m.state.NextRetry = time.Time{}
	m.state.Backoff = 0
	m.state.LastSuccess = now

	if from == to {
		return Transition{}, false
	}

	m.enter(to, now)

	return m.record(from, "success", now), true
}

// Fail records a failed connect or fetch and, when the device lands in
// error, schedules the next retry
func (m *Machine) Fail(err error, now time.Time) Transition {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.state.State

	m.state.Failures++
	m.state.LastErrorReason = miner.ErrorClass(err)

	if err != nil {
		m.state.LastError = err.Error()
	}

	to := Next(from, Failure, m.state.Failures, m.policy.FailureThreshold)

	if to == Error {
		m.state.Backoff = m.policy.Delay(m.state.Failures, miner.IsPersistent(err), m.state.Backoff)
		m.state.NextRetry = now.Add(m.state.Backoff)
	}

	if from != to {
		m.enter(to, now)
	}

	return m.record(from, m.state.LastErrorReason, now)
}

// Reset returns the machine to disconnected, used when the device's
// configuration changes
func (m *Machine) Reset(now time.Time) (Transition, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.state.State

	m.state.Failures = 0
	m.state.Backoff = 0
	m.state.NextRetry = time.Time{}

	if from == Disconnected {
		return Transition{}, false
	}

	m.enter(Disconnected, now)

	return m.record(from, "reconfigured", now), true
}

// RetryDue reports whether a device in error may be retried at now
func (m *Machine) RetryDue(now time.Time) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.state.State != Error || !now.Before(m.state.NextRetry)
}

func (m *Machine) enter(to State, now time.Time) {
	m.state.State = to
	m.state.Since = now
}

func (m *Machine) record(from State, cause string, now time.Time) Transition {
	t := Transition{
		DeviceID:  m.state.DeviceID,
		From:      from,
		To:        m.state.State,
		Cause:     cause,
		Failures:  m.state.Failures,
		NextRetry: m.state.NextRetry,
		At:        now,
	}

	evt := m.log.Info()

	if t.To == Error {
		evt = m.log.Warn()
	}

	evt = evt.
		Str("id", t.DeviceID).
		Str("from", string(t.From)).
		Str("to", string(t.To)).
		Str("cause", t.Cause).
		Int("failures", t.Failures)

	if !t.NextRetry.IsZero() {
		evt = evt.Time("retryAt", t.NextRetry)
	}

	evt.Msg("connection state transition")

	return t
}
