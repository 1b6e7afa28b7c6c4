package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/robgonnella/hashwatch/internal/adapter"
	"github.com/robgonnella/hashwatch/internal/miner"
	mock_adapter "github.com/robgonnella/hashwatch/internal/mock/adapter"
	"github.com/robgonnella/hashwatch/internal/registry"
	"github.com/robgonnella/hashwatch/internal/scheduler"
	"github.com/robgonnella/hashwatch/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	conf miner.Config
}

func (h *fakeHandle) Device() miner.Config { return h.conf }

// fakeAdapter lets each test script connect and fetch behavior per device
type fakeAdapter struct {
	mu       sync.Mutex
	connect  func(ctx context.Context, conf miner.Config) error
	fetch    func(ctx context.Context, conf miner.Config, n int) (miner.Snapshot, error)
	connects map[string][]time.Time
	fetches  map[string]int
	addrs    map[string]string
	closes   map[string]int
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		connects: map[string][]time.Time{},
		fetches:  map[string]int{},
		addrs:    map[string]string{},
		closes:   map[string]int{},
	}
}

func (f *fakeAdapter) Kind() miner.Kind { return miner.KindAxeOS }

func (f *fakeAdapter) Connect(ctx context.Context, conf miner.Config) (adapter.Handle, error) {
	f.mu.Lock()
	f.connects[conf.ID] = append(f.connects[conf.ID], time.Now())
	f.addrs[conf.ID] = conf.Address
	fn := f.connect
	f.mu.Unlock()

	if fn != nil {
		if err := fn(ctx, conf); err != nil {
			return nil, err
		}
	}

	return &fakeHandle{conf: conf}, nil
}

func (f *fakeAdapter) FetchStatus(ctx context.Context, h adapter.Handle) (miner.Snapshot, error) {
	conf := h.Device()

	f.mu.Lock()
	f.fetches[conf.ID]++
	n := f.fetches[conf.ID]
	fn := f.fetch
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, conf, n)
	}

	return miner.Snapshot{Hashrate: miner.Float(float64(n))}, nil
}

func (f *fakeAdapter) ApplySettings(context.Context, adapter.Handle, miner.Settings) (miner.Ack, error) {
	return miner.Ack{}, nil
}

func (f *fakeAdapter) Close(h adapter.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes[h.Device().ID]++
	return nil
}

func (f *fakeAdapter) Probe(context.Context, string) (*adapter.Identity, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAdapter) connectTimes(id string) []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time{}, f.connects[id]...)
}

func (f *fakeAdapter) closed(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes[id]
}

func (f *fakeAdapter) address(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addrs[id]
}

type recorder struct {
	mu          sync.Mutex
	snapshots   []miner.Snapshot
	transitions []state.Transition
}

func (r *recorder) PublishSnapshot(snap miner.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, snap)
}

func (r *recorder) PublishTransition(t state.Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, t)
}

func (r *recorder) snapshotsFor(id string) []miner.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []miner.Snapshot{}

	for _, s := range r.snapshots {
		if s.DeviceID == id {
			out = append(out, s)
		}
	}

	return out
}

func (r *recorder) statesFor(id string) []state.State {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []state.State{}

	for _, t := range r.transitions {
		if t.DeviceID == id {
			out = append(out, t.To)
		}
	}

	return out
}

type harness struct {
	reg    *registry.Registry
	states *state.Store
	sched  *scheduler.Scheduler
	pub    *recorder
	cancel context.CancelFunc
	done   chan struct{}
}

// racySource removes a device from the registry right after handing out a
// snapshot that still contains it
type racySource struct {
	reg  *registry.Registry
	id   string
	done atomic.Bool
}

func (r *racySource) Snapshot() registry.Snapshot {
	snap := r.reg.Snapshot()

	for _, conf := range snap.Configs {
		if conf.ID == r.id && r.done.CompareAndSwap(false, true) {
			_ = r.reg.Remove(r.id)
		}
	}

	return snap
}

func newHarness(t *testing.T, a adapter.Adapter, policy state.Policy, conf scheduler.Config) *harness {
	reg := registry.New(nil)
	return newHarnessWithSource(t, reg, reg, a, policy, conf)
}

func newHarnessWithSource(
	t *testing.T,
	reg *registry.Registry,
	source scheduler.Source,
	a adapter.Adapter,
	policy state.Policy,
	conf scheduler.Config,
) *harness {
	states := state.NewStore(policy)
	pub := &recorder{}

	sched := scheduler.New(conf, source, adapter.NewCatalog(a), states, pub)

	reg.OnChange(states.HandleChange)
	reg.OnChange(sched.HandleChange)

	ctx, cancel := context.WithCancel(context.Background())

	h := &harness{
		reg:    reg,
		states: states,
		sched:  sched,
		pub:    pub,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		sched.Run(ctx)
		close(h.done)
	}()

	t.Cleanup(func() {
		cancel()
		<-h.done
	})

	return h
}

func fastConfig() scheduler.Config {
	return scheduler.Config{
		Interval:          10 * time.Millisecond,
		Timeout:           40 * time.Millisecond,
		MaxConcurrent:     4,
		ReconcileInterval: 10 * time.Millisecond,
	}
}

func fastPolicy() state.Policy {
	return state.Policy{
		FailureThreshold: 3,
		BackoffBase:      100 * time.Millisecond,
		BackoffMax:       400 * time.Millisecond,
		Rand:             func() float64 { return 0 },
	}
}

func device(id string) miner.Config {
	return miner.Config{ID: id, Name: id, Kind: miner.KindAxeOS, Address: "10.0.0.1"}
}

func TestScheduler(t *testing.T) {
	t.Run("polls registered devices and publishes in order", func(st *testing.T) {
		fa := newFakeAdapter()
		h := newHarness(st, fa, fastPolicy(), fastConfig())

		_, err := h.reg.Add(device("a"))
		require.NoError(st, err)

		require.Eventually(st, func() bool {
			return len(h.pub.snapshotsFor("a")) >= 5
		}, 2*time.Second, 5*time.Millisecond)

		snaps := h.pub.snapshotsFor("a")

		for i := 1; i < len(snaps); i++ {
			assert.Greater(st, *snaps[i].Hashrate, *snaps[i-1].Hashrate)
			assert.Equal(st, miner.KindAxeOS, snaps[i].Kind)
		}

		assert.Equal(st, []state.State{state.Connecting, state.Online}, h.pub.statesFor("a"))

		cs, ok := h.states.Get("a")
		require.True(st, ok)
		assert.Equal(st, state.Online, cs.State)
	})

	t.Run("three fetch timeouts walk online to error", func(st *testing.T) {
		fa := newFakeAdapter()
		fa.fetch = func(ctx context.Context, conf miner.Config, n int) (miner.Snapshot, error) {
			if n == 1 {
				return miner.Snapshot{Hashrate: miner.Float(1)}, nil
			}
			<-ctx.Done()
			return miner.Snapshot{}, ctx.Err()
		}

		h := newHarness(st, fa, fastPolicy(), fastConfig())

		_, err := h.reg.Add(device("a"))
		require.NoError(st, err)

		require.Eventually(st, func() bool {
			return len(h.pub.statesFor("a")) >= 5
		}, 2*time.Second, 5*time.Millisecond)

		assert.Equal(
			st,
			[]state.State{state.Connecting, state.Online, state.Degraded, state.Degraded, state.Error},
			h.pub.statesFor("a")[:5],
		)

		cs, _ := h.states.Get("a")
		assert.Equal(st, "fetch/timeout", cs.LastErrorReason)
		assert.Len(st, h.pub.snapshotsFor("a"), 1)
	})

	t.Run("malformed payload degrades once", func(st *testing.T) {
		fa := newFakeAdapter()
		fa.fetch = func(ctx context.Context, conf miner.Config, n int) (miner.Snapshot, error) {
			if n == 2 {
				return miner.Snapshot{}, miner.NewFetchError(miner.FetchMalformed, "hashRate", nil)
			}
			return miner.Snapshot{Hashrate: miner.Float(float64(n))}, nil
		}

		h := newHarness(st, fa, fastPolicy(), fastConfig())

		_, err := h.reg.Add(device("a"))
		require.NoError(st, err)

		require.Eventually(st, func() bool {
			return len(h.pub.statesFor("a")) >= 4
		}, 2*time.Second, 5*time.Millisecond)

		assert.Equal(
			st,
			[]state.State{state.Connecting, state.Online, state.Degraded, state.Online},
			h.pub.statesFor("a")[:4],
		)
	})

	t.Run("device in error waits out its backoff", func(st *testing.T) {
		fa := newFakeAdapter()
		fa.connect = func(ctx context.Context, conf miner.Config) error {
			return &miner.ConnectError{Reason: miner.ConnectRefused, Err: errors.New("connection refused")}
		}

		policy := fastPolicy()
		policy.Rand = func() float64 { return 1 }

		h := newHarness(st, fa, policy, fastConfig())

		_, err := h.reg.Add(device("a"))
		require.NoError(st, err)

		require.Eventually(st, func() bool {
			return len(fa.connectTimes("a")) >= 3
		}, 3*time.Second, 5*time.Millisecond)

		times := fa.connectTimes("a")

		// jitter pinned to the ceiling: 100ms then 200ms
		assert.GreaterOrEqual(st, times[1].Sub(times[0]), 100*time.Millisecond)
		assert.GreaterOrEqual(st, times[2].Sub(times[1]), 200*time.Millisecond)

		cs, _ := h.states.Get("a")
		assert.Equal(st, state.Error, cs.State)
		assert.Equal(st, "connect/refused", cs.LastErrorReason)
	})

	t.Run("removal stops publishing", func(st *testing.T) {
		fa := newFakeAdapter()
		h := newHarness(st, fa, fastPolicy(), fastConfig())

		_, err := h.reg.Add(device("a"))
		require.NoError(st, err)

		require.Eventually(st, func() bool {
			return len(h.pub.snapshotsFor("a")) >= 2
		}, 2*time.Second, 5*time.Millisecond)

		require.NoError(st, h.reg.Remove("a"))

		count := len(h.pub.snapshotsFor("a"))
		transitions := len(h.pub.statesFor("a"))

		time.Sleep(100 * time.Millisecond)

		assert.Equal(st, count, len(h.pub.snapshotsFor("a")))
		assert.Equal(st, transitions, len(h.pub.statesFor("a")))

		_, ok := h.states.Get("a")
		assert.False(st, ok)
		assert.Equal(st, 0, h.sched.Active())
	})

	t.Run("in flight poll for a removed device is discarded", func(st *testing.T) {
		fa := newFakeAdapter()
		started := make(chan struct{}, 1)
		release := make(chan struct{})

		fa.fetch = func(ctx context.Context, conf miner.Config, n int) (miner.Snapshot, error) {
			select {
			case started <- struct{}{}:
			default:
			}
			<-release
			return miner.Snapshot{Hashrate: miner.Float(1)}, nil
		}

		conf := fastConfig()
		conf.Timeout = time.Second

		h := newHarness(st, fa, fastPolicy(), conf)

		_, err := h.reg.Add(device("a"))
		require.NoError(st, err)

		<-started

		require.NoError(st, h.reg.Remove("a"))
		close(release)

		time.Sleep(50 * time.Millisecond)

		assert.Empty(st, h.pub.snapshotsFor("a"))
	})

	t.Run("slow device does not starve others", func(st *testing.T) {
		fa := newFakeAdapter()
		fa.fetch = func(ctx context.Context, conf miner.Config, n int) (miner.Snapshot, error) {
			if conf.ID == "slow" {
				<-ctx.Done()
				return miner.Snapshot{}, ctx.Err()
			}
			return miner.Snapshot{Hashrate: miner.Float(float64(n))}, nil
		}

		h := newHarness(st, fa, fastPolicy(), fastConfig())

		_, err := h.reg.Add(device("slow"))
		require.NoError(st, err)
		_, err = h.reg.Add(device("fast"))
		require.NoError(st, err)

		require.Eventually(st, func() bool {
			return len(h.pub.snapshotsFor("fast")) >= 5
		}, 2*time.Second, 5*time.Millisecond)

		assert.Len(st, h.pub.snapshotsFor("slow"), 0)
	})

	t.Run("reconfigured device reconnects with new settings", func(st *testing.T) {
		fa := newFakeAdapter()
		h := newHarness(st, fa, fastPolicy(), fastConfig())

		_, err := h.reg.Add(device("a"))
		require.NoError(st, err)

		require.Eventually(st, func() bool {
			return len(h.pub.snapshotsFor("a")) >= 1
		}, 2*time.Second, 5*time.Millisecond)

		updated := device("a")
		updated.Address = "10.0.0.2"

		_, err = h.reg.Update(updated)
		require.NoError(st, err)

		require.Eventually(st, func() bool {
			return fa.address("a") == "10.0.0.2"
		}, 2*time.Second, 5*time.Millisecond)

		assert.Contains(st, h.pub.statesFor("a"), state.Disconnected)
	})

	t.Run("renaming a device in error keeps its backoff", func(st *testing.T) {
		fa := newFakeAdapter()
		fa.connect = func(ctx context.Context, conf miner.Config) error {
			return &miner.ConnectError{Reason: miner.ConnectRefused, Err: errors.New("connection refused")}
		}

		policy := fastPolicy()
		policy.FailureThreshold = 1
		policy.BackoffBase = time.Minute
		policy.BackoffMax = time.Minute

		h := newHarness(st, fa, policy, fastConfig())

		_, err := h.reg.Add(device("a"))
		require.NoError(st, err)

		require.Eventually(st, func() bool {
			cs, ok := h.states.Get("a")
			return ok && cs.State == state.Error
		}, 2*time.Second, 5*time.Millisecond)

		before, _ := h.states.Get("a")

		renamed := device("a")
		renamed.Name = "garage bitaxe"

		_, err = h.reg.Update(renamed)
		require.NoError(st, err)

		time.Sleep(100 * time.Millisecond)

		after, _ := h.states.Get("a")

		assert.Len(st, fa.connectTimes("a"), 1)
		assert.Equal(st, state.Error, after.State)
		assert.Equal(st, before.Failures, after.Failures)
		assert.True(st, before.NextRetry.Equal(after.NextRetry))
		assert.NotContains(st, h.pub.statesFor("a"), state.Disconnected)
		assert.Equal(st, 1, h.sched.Active())
	})

	t.Run("pool change keeps the open session", func(st *testing.T) {
		fa := newFakeAdapter()
		h := newHarness(st, fa, fastPolicy(), fastConfig())

		_, err := h.reg.Add(device("a"))
		require.NoError(st, err)

		require.Eventually(st, func() bool {
			return len(h.pub.snapshotsFor("a")) >= 1
		}, 2*time.Second, 5*time.Millisecond)

		updated := device("a")
		updated.Pool = miner.PoolConfig{URL: "stratum+tcp://pool.example.com", Port: 3333, User: "worker"}

		_, err = h.reg.Update(updated)
		require.NoError(st, err)

		count := len(h.pub.snapshotsFor("a"))

		require.Eventually(st, func() bool {
			return len(h.pub.snapshotsFor("a")) >= count+3
		}, 2*time.Second, 5*time.Millisecond)

		assert.Len(st, fa.connectTimes("a"), 1)
		assert.Equal(st, []state.State{state.Connecting, state.Online}, h.pub.statesFor("a"))
	})

	t.Run("device removed during reconcile is never resurrected", func(st *testing.T) {
		fa := newFakeAdapter()
		reg := registry.New(nil)
		source := &racySource{reg: reg, id: "a"}

		h := newHarnessWithSource(st, reg, source, fa, fastPolicy(), fastConfig())

		_, err := reg.Add(device("a"))
		require.NoError(st, err)

		require.Eventually(st, func() bool {
			return source.done.Load()
		}, 2*time.Second, 5*time.Millisecond)

		time.Sleep(100 * time.Millisecond)

		_, ok := h.states.Get("a")
		assert.False(st, ok)
		assert.Equal(st, 0, h.states.Len())
		assert.Equal(st, 0, h.sched.Active())
		assert.Empty(st, fa.connectTimes("a"))
		assert.Empty(st, h.pub.statesFor("a"))
	})

	t.Run("timed out calls keep their pool slot until they return", func(st *testing.T) {
		var inFlight, peak atomic.Int32

		enter := func() {
			n := inFlight.Add(1)

			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					return
				}
			}
		}

		fa := newFakeAdapter()
		fa.connect = func(ctx context.Context, conf miner.Config) error {
			enter()
			defer inFlight.Add(-1)

			if conf.ID == "stuck" {
				// ignores ctx, finishes well past the timeout
				time.Sleep(150 * time.Millisecond)
			}

			return nil
		}
		fa.fetch = func(ctx context.Context, conf miner.Config, n int) (miner.Snapshot, error) {
			enter()
			defer inFlight.Add(-1)
			return miner.Snapshot{Hashrate: miner.Float(float64(n))}, nil
		}

		conf := fastConfig()
		conf.MaxConcurrent = 1

		h := newHarness(st, fa, fastPolicy(), conf)

		_, err := h.reg.Add(device("stuck"))
		require.NoError(st, err)
		_, err = h.reg.Add(device("healthy"))
		require.NoError(st, err)

		require.Eventually(st, func() bool {
			return fa.closed("stuck") >= 1 && len(h.pub.snapshotsFor("healthy")) >= 3
		}, 3*time.Second, 5*time.Millisecond)

		assert.LessOrEqual(st, peak.Load(), int32(1))
		assert.Empty(st, h.pub.snapshotsFor("stuck"))

		cs, _ := h.states.Get("stuck")
		assert.Equal(st, "fetch/timeout", cs.LastErrorReason)
	})
}

func TestSchedulerWithMockAdapter(t *testing.T) {
	t.Run("closes the session when the device errors out", func(st *testing.T) {
		ctrl := gomock.NewController(st)
		defer ctrl.Finish()

		a := mock_adapter.NewMockAdapter(ctrl)
		handle := mock_adapter.NewMockHandle(ctrl)

		closed := make(chan struct{})

		a.EXPECT().Kind().Return(miner.KindAxeOS).AnyTimes()
		a.EXPECT().Connect(gomock.Any(), gomock.Any()).Return(handle, nil)
		a.EXPECT().FetchStatus(gomock.Any(), handle).
			Return(miner.Snapshot{}, &miner.ConnectError{Reason: miner.ConnectRefused, Err: errors.New("reset")}).
			Times(1)
		a.EXPECT().Close(handle).DoAndReturn(func(adapter.Handle) error {
			close(closed)
			return nil
		})

		policy := fastPolicy()
		policy.FailureThreshold = 1
		policy.BackoffBase = time.Minute
		policy.BackoffMax = time.Minute

		h := newHarness(st, a, policy, fastConfig())

		_, err := h.reg.Add(device("a"))
		require.NoError(st, err)

		select {
		case <-closed:
		case <-time.After(2 * time.Second):
			st.Fatal("session was not closed")
		}

		cs, _ := h.states.Get("a")
		assert.Equal(st, state.Error, cs.State)
	})
}
