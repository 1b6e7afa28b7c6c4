package state

import "time"

// State is a device's connection state
type State string

// Connection states
const (
	Disconnected State = "disconnected"
	Connecting   State = "connecting"
	Online       State = "online"
	Degraded     State = "degraded"
	Error        State = "error"
)

// States lists every state
var States = []State{Disconnected, Connecting, Online, Degraded, Error}

// Valid reports whether s is one of the defined states
func (s State) Valid() bool {
	for _, known := range States {
		if s == known {
			return true
		}
	}

	return false
}

// Outcome is the input that drives the machine
type Outcome string

// Outcomes
const (
	// BeginConnect the scheduler is about to (re)open the device session
	BeginConnect Outcome = "begin-connect"
	// Success a connect or fetch succeeded
	Success Outcome = "success"
	// Failure a connect or fetch failed
	Failure Outcome = "failure"
)

// ConnectionState is the per device liveness record
type ConnectionState struct {
	DeviceID        string        `json:"deviceId"`
	State           State         `json:"state"`
	Failures        int           `json:"failures"`
	NextRetry       time.Time     `json:"nextRetry,omitempty"`
	LastError       string        `json:"lastError,omitempty"`
	LastErrorReason string        `json:"lastErrorReason,omitempty"`
	LastSuccess     time.Time     `json:"lastSuccess,omitempty"`
	Since           time.Time     `json:"since"`
	Backoff         time.Duration `json:"backoff,omitempty"`
}

// Transition records one processed outcome. From and To may be equal when a
// failure keeps the device in the same state.
type Transition struct {
	DeviceID  string    `json:"deviceId"`
	From      State     `json:"from"`
	To        State     `json:"to"`
	Cause     string    `json:"cause"`
	Failures  int       `json:"failures"`
	NextRetry time.Time `json:"nextRetry,omitempty"`
	At        time.Time `json:"at"`
}
