// Package telemetry hands snapshots and state changes to storage and to
// live-update subscribers
package telemetry

import (
	"fmt"
	"sync"

	"github.com/robgonnella/hashwatch/internal/event"
	"github.com/robgonnella/hashwatch/internal/logger"
	"github.com/robgonnella/hashwatch/internal/miner"
	"github.com/robgonnella/hashwatch/internal/state"
)

type write struct {
	snapshot   *miner.Snapshot
	transition *state.Transition
}

// Publisher writes to storage through a single bounded FIFO queue and
// broadcasts through the event manager. Neither path blocks the caller.
type Publisher struct {
	log     logger.Logger
	store   Store
	events  event.Manager
	mu      sync.RWMutex
	queue   chan write
	closed  bool
	done    chan struct{}
	dropped uint64
}

// NewPublisher returns a publisher and starts its storage writer. A nil
// store disables persistence.
func NewPublisher(store Store, events event.Manager, queueSize int) *Publisher {
	if queueSize < 1 {
		queueSize = 1
	}

	p := &Publisher{
		log:    logger.New().Component("telemetry"),
		store:  store,
		events: events,
		queue:  make(chan write, queueSize),
		done:   make(chan struct{}),
	}

	go p.writer()

	return p
}

// PublishSnapshot persists and broadcasts a snapshot
func (p *Publisher) PublishSnapshot(snap miner.Snapshot) {
	stored := snap.Copy()
	p.enqueue(write{snapshot: &stored})

	p.events.Send(event.Event{
		Type:      event.TelemetryEventType,
		DeviceID:  snap.DeviceID,
		Timestamp: snap.Timestamp,
		Payload:   snap.Copy(),
	})
}

// PublishTransition persists and broadcasts a connection state change
func (p *Publisher) PublishTransition(t state.Transition) {
	p.enqueue(write{transition: &t})

	p.events.Send(event.Event{
		Type:      event.StateChangeEventType,
		DeviceID:  t.DeviceID,
		Timestamp: t.At,
		Payload:   t,
	})
}

// Subscribe registers a live-update listener with a buffer of size
// bufferSize. Events that do not fit are dropped for this listener only.
func (p *Publisher) Subscribe(bufferSize int) (int, <-chan event.Event) {
	if bufferSize < 1 {
		bufferSize = 1
	}

	ch := make(chan event.Event, bufferSize)
	id := p.events.RegisterListener(event.AllEvents, ch)

	return id, ch
}

// Unsubscribe removes a live-update listener
func (p *Publisher) Unsubscribe(id int) {
	p.events.RemoveListener(id)
}

// Dropped returns how many storage writes were dropped on a full queue
func (p *Publisher) Dropped() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dropped
}

// Close stops accepting writes and waits for the queue to drain
func (p *Publisher) Close() {
	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()
		<-p.done
		return
	}

	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
}

func (p *Publisher) enqueue(w write) {
	if p.store == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	select {
	case p.queue <- w:
	default:
		p.dropped++
		p.log.Warn().
			Str("id", w.deviceID()).
			Uint64("dropped", p.dropped).
			Msg("storage queue full, dropping write")
	}
}

func (p *Publisher) writer() {
	defer close(p.done)

	for w := range p.queue {
		switch {
		case w.snapshot != nil:
			if err := p.store.WriteSnapshot(*w.snapshot); err != nil {
				p.log.Warn().Err(err).Str("id", w.snapshot.DeviceID).Msg("failed to store snapshot")
				p.events.ReportError(fmt.Errorf("store snapshot for %s: %w", w.snapshot.DeviceID, err))
			}
		case w.transition != nil:
			t := w.transition

			if err := p.store.WriteConnectionEvent(t.DeviceID, t.From, t.To, t.Cause, t.At); err != nil {
				p.log.Warn().Err(err).Str("id", t.DeviceID).Msg("failed to store connection event")
				p.events.ReportError(fmt.Errorf("store connection event for %s: %w", t.DeviceID, err))
			}
		}
	}
}

func (w write) deviceID() string {
	if w.snapshot != nil {
		return w.snapshot.DeviceID
	}

	if w.transition != nil {
		return w.transition.DeviceID
	}

	return ""
}
