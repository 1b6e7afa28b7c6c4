package event

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/robgonnella/hashwatch/internal/logger"
)

type listener struct {
	id        int
	eventType EventType
	ch        chan Event
	dropped   atomic.Uint64
}

// EventManager delivers events to listeners without ever blocking the
// sender. A listener whose channel is full misses the event.
type EventManager struct {
	mu        sync.RWMutex
	log       logger.Logger
	nextID    int
	listeners map[int]*listener
}

// NewEventManager returns a new instance of EventManager
func NewEventManager() *EventManager {
	return &EventManager{
		log:       logger.New().Component("event"),
		listeners: map[int]*listener{},
	}
}

// RegisterListener registers a channel for events of eventType (or
// AllEvents). The caller owns the channel and should give it a buffer.
func (m *EventManager) RegisterListener(eventType EventType, ch chan Event) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++

	m.listeners[m.nextID] = &listener{
		id:        m.nextID,
		eventType: eventType,
		ch:        ch,
	}

	return m.nextID
}

// RemoveListener unregisters a listener. After it returns the listener's
// channel receives nothing more.
func (m *EventManager) RemoveListener(id int) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.listeners, id)

	return id
}

// Send delivers evt to every matching listener
func (m *EventManager) Send(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, l := range m.listeners {
		if l.eventType != AllEvents && l.eventType != evt.Type {
			continue
		}

		select {
		case l.ch <- evt:
		default:
			n := l.dropped.Add(1)
			m.log.Debug().
				Int("listener", l.id).
				Str("type", string(evt.Type)).
				Str("id", evt.DeviceID).
				Uint64("dropped", n).
				Msg("listener full, dropping event")
		}
	}
}

// Dropped returns how many events a listener has missed
func (m *EventManager) Dropped(id int) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	l, ok := m.listeners[id]

	if !ok {
		return 0
	}

	return l.dropped.Load()
}

// ListenerCount returns the number of registered listeners
func (m *EventManager) ListenerCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.listeners)
}

// ReportFatalError sends a fatal error event
func (m *EventManager) ReportFatalError(err error) {
	m.Send(Event{
		Type:    FatalErrorEventType,
		Payload: err.Error(),
	})
}

// ReportError sends an error event
func (m *EventManager) ReportError(err error) {
	m.Send(Event{
		Type:    ErrorEventType,
		Payload: err.Error(),
	})
}

// Ensure EventManager implements Manager
var _ Manager = (*EventManager)(nil)
