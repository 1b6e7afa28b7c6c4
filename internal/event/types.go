package event

import "time"

// EventType identifies the kind of event delivered to listeners
type EventType string

const (
	// AllEvents registers a listener for every event type
	AllEvents EventType = "*"
	// TelemetryEventType a new telemetry snapshot was produced
	TelemetryEventType EventType = "telemetry"
	// StateChangeEventType a device's connection state changed
	StateChangeEventType EventType = "state_change"
	// ErrorEventType a non fatal error worth surfacing
	ErrorEventType EventType = "error"
	// FatalErrorEventType an error that stops monitoring
	FatalErrorEventType EventType = "fatal-error"
)

// Event data structure representing any event we may want to react to. The
// json form is the live-update message schema.
type Event struct {
	Type      EventType `json:"type"`
	DeviceID  string    `json:"deviceId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}
