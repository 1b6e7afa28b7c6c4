package telemetry_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/robgonnella/hashwatch/internal/event"
	"github.com/robgonnella/hashwatch/internal/miner"
	mock_event "github.com/robgonnella/hashwatch/internal/mock/event"
	mock_telemetry "github.com/robgonnella/hashwatch/internal/mock/telemetry"
	"github.com/robgonnella/hashwatch/internal/state"
	"github.com/robgonnella/hashwatch/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshot(id string, hr float64) miner.Snapshot {
	return miner.Snapshot{
		DeviceID:  id,
		Kind:      miner.KindAxeOS,
		Timestamp: time.Now(),
		Hashrate:  miner.Float(hr),
	}
}

func TestPublisher(t *testing.T) {
	t.Run("stores and broadcasts a snapshot", func(st *testing.T) {
		ctrl := gomock.NewController(st)
		defer ctrl.Finish()

		store := mock_telemetry.NewMockStore(ctrl)
		events := mock_event.NewMockManager(ctrl)

		snap := snapshot("a", 1e12)

		store.EXPECT().WriteSnapshot(snap).Return(nil)
		events.EXPECT().Send(gomock.Any()).Do(func(evt event.Event) {
			assert.Equal(st, event.TelemetryEventType, evt.Type)
			assert.Equal(st, "a", evt.DeviceID)
			assert.Equal(st, snap, evt.Payload)
		})

		p := telemetry.NewPublisher(store, events, 8)

		p.PublishSnapshot(snap)
		p.Close()
	})

	t.Run("stores and broadcasts a transition", func(st *testing.T) {
		ctrl := gomock.NewController(st)
		defer ctrl.Finish()

		store := mock_telemetry.NewMockStore(ctrl)
		events := mock_event.NewMockManager(ctrl)

		at := time.Now()
		tr := state.Transition{DeviceID: "a", From: state.Online, To: state.Degraded, Cause: "fetch/timeout", At: at}

		store.EXPECT().WriteConnectionEvent("a", state.Online, state.Degraded, "fetch/timeout", at).Return(nil)
		events.EXPECT().Send(gomock.Any()).Do(func(evt event.Event) {
			assert.Equal(st, event.StateChangeEventType, evt.Type)
			assert.Equal(st, tr, evt.Payload)
		})

		p := telemetry.NewPublisher(store, events, 8)

		p.PublishTransition(tr)
		p.Close()
	})

	t.Run("storage failure does not stop broadcast", func(st *testing.T) {
		ctrl := gomock.NewController(st)
		defer ctrl.Finish()

		store := mock_telemetry.NewMockStore(ctrl)
		events := event.NewEventManager()

		store.EXPECT().WriteSnapshot(gomock.Any()).Return(errors.New("database is locked")).Times(2)

		p := telemetry.NewPublisher(store, events, 8)

		_, ch := p.Subscribe(8)

		p.PublishSnapshot(snapshot("a", 1))
		p.PublishSnapshot(snapshot("a", 2))
		p.Close()

		counts := map[event.EventType]int{}

		require.Len(st, ch, 4)

		for i := 0; i < 4; i++ {
			evt := <-ch
			counts[evt.Type]++

			if evt.Type == event.ErrorEventType {
				assert.Contains(st, evt.Payload, "store snapshot for a: database is locked")
			}
		}

		assert.Equal(st, 2, counts[event.TelemetryEventType])
		assert.Equal(st, 2, counts[event.ErrorEventType])
	})

	t.Run("reports failed connection event writes", func(st *testing.T) {
		ctrl := gomock.NewController(st)
		defer ctrl.Finish()

		store := mock_telemetry.NewMockStore(ctrl)
		events := mock_event.NewMockManager(ctrl)

		tr := state.Transition{DeviceID: "a", From: state.Connecting, To: state.Online, Cause: "connected", At: time.Now()}

		store.EXPECT().WriteConnectionEvent("a", state.Connecting, state.Online, "connected", tr.At).
			Return(errors.New("disk full"))
		events.EXPECT().Send(gomock.Any())
		events.EXPECT().ReportError(gomock.Any()).Do(func(err error) {
			assert.EqualError(st, err, "store connection event for a: disk full")
		})

		p := telemetry.NewPublisher(store, events, 8)

		p.PublishTransition(tr)
		p.Close()
	})

	t.Run("slow storage never blocks the caller", func(st *testing.T) {
		ctrl := gomock.NewController(st)
		defer ctrl.Finish()

		store := mock_telemetry.NewMockStore(ctrl)
		events := event.NewEventManager()

		release := make(chan struct{})

		store.EXPECT().WriteSnapshot(gomock.Any()).DoAndReturn(func(miner.Snapshot) error {
			<-release
			return nil
		}).AnyTimes()

		p := telemetry.NewPublisher(store, events, 2)

		done := make(chan struct{})

		go func() {
			for i := 0; i < 20; i++ {
				p.PublishSnapshot(snapshot("a", float64(i)))
			}
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			st.Fatal("publish blocked on storage")
		}

		assert.Greater(st, p.Dropped(), uint64(0))

		close(release)
		p.Close()
	})

	t.Run("preserves per device order for subscribers", func(st *testing.T) {
		events := event.NewEventManager()
		p := telemetry.NewPublisher(nil, events, 1)
		defer p.Close()

		id, ch := p.Subscribe(100)
		defer p.Unsubscribe(id)

		var wg sync.WaitGroup

		for _, dev := range []string{"a", "b"} {
			wg.Add(1)
			go func(dev string) {
				defer wg.Done()
				for i := 0; i < 40; i++ {
					p.PublishSnapshot(snapshot(dev, float64(i)))
				}
			}(dev)
		}

		wg.Wait()

		last := map[string]float64{"a": -1, "b": -1}

		require.Len(st, ch, 80)

		for i := 0; i < 80; i++ {
			evt := <-ch
			snap := evt.Payload.(miner.Snapshot)
			assert.Greater(st, *snap.Hashrate, last[snap.DeviceID])
			last[snap.DeviceID] = *snap.Hashrate
		}
	})

	t.Run("unsubscribed listener receives nothing", func(st *testing.T) {
		events := event.NewEventManager()
		p := telemetry.NewPublisher(nil, events, 1)
		defer p.Close()

		id, ch := p.Subscribe(4)
		p.Unsubscribe(id)

		p.PublishSnapshot(snapshot("a", 1))

		assert.Len(st, ch, 0)
	})
}
