package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robgonnella/hashwatch/internal/adapter"
	"github.com/robgonnella/hashwatch/internal/logger"
	"github.com/robgonnella/hashwatch/internal/miner"
	"github.com/robgonnella/hashwatch/internal/state"
)

// task polls a single device. Its mutex serializes state updates and
// publishing against stop, so nothing is published once stop returns.
type task struct {
	sched   *Scheduler
	log     logger.Logger
	conf    miner.Config
	machine *state.Machine
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex
	stopped bool
}

func (t *task) stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()

	t.cancel()
}

// setConfig swaps in a revision that keeps the current session
func (t *task) setConfig(conf miner.Config) {
	t.mu.Lock()
	t.conf = conf
	t.mu.Unlock()
}

func (t *task) config() miner.Config {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conf
}

func (t *task) run(ctx context.Context) {
	conf := t.config()

	a, err := t.sched.adapters.Get(conf.Kind)

	if err != nil {
		t.log.Error().Err(err).Str("id", conf.ID).Msg("no adapter for device")
		return
	}

	var h adapter.Handle

	defer func() {
		if h != nil {
			a.Close(h)
		}
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		// devices in error wait out their backoff instead of polling
		if !t.machine.RetryDue(time.Now()) {
			if !sleep(ctx, time.Until(t.machine.Current().NextRetry)) {
				return
			}
			continue
		}

		if h == nil {
			h = t.connect(ctx, a)

			if h == nil {
				continue
			}
		}

		if !t.poll(ctx, a, h) {
			a.Close(h)
			h = nil
		}

		if ctx.Err() != nil {
			return
		}

		if t.machine.Current().State == state.Error {
			continue
		}

		if !sleep(ctx, t.sched.interval(t.config())) {
			return
		}
	}
}

// connect returns nil when the device could not be reached
func (t *task) connect(ctx context.Context, a adapter.Adapter) adapter.Handle {
	t.record(func(now time.Time) (state.Transition, bool) {
		return t.machine.Begin(now)
	})

	conf := t.config()

	var (
		mu        sync.Mutex
		h         adapter.Handle
		abandoned bool
	)

	err := t.sched.call(ctx, conf.Endpoint(), func(callCtx context.Context) error {
		handle, err := a.Connect(callCtx, conf)

		mu.Lock()
		defer mu.Unlock()

		// nobody is waiting for a session that outlived the timeout
		if abandoned {
			if err == nil && handle != nil {
				a.Close(handle)
			}
			return err
		}

		h = handle

		return err
	})

	mu.Lock()
	abandoned = true
	handle := h
	mu.Unlock()

	if ctx.Err() != nil || err != nil {
		if handle != nil {
			a.Close(handle)
		}
	}

	if ctx.Err() != nil {
		return nil
	}

	if err != nil {
		t.record(func(now time.Time) (state.Transition, bool) {
			return t.machine.Fail(err, now), true
		})
		return nil
	}

	return handle
}

// poll fetches one snapshot. It returns false when the session should be
// dropped and reopened.
func (t *task) poll(ctx context.Context, a adapter.Adapter, h adapter.Handle) bool {
	conf := t.config()

	var snap miner.Snapshot

	err := t.sched.call(ctx, conf.Endpoint(), func(callCtx context.Context) error {
		var err error
		snap, err = a.FetchStatus(callCtx, h)
		return err
	})

	if ctx.Err() != nil {
		return true
	}

	if err != nil {
		t.log.Debug().Err(err).Str("id", conf.ID).Msg("poll failed")

		t.record(func(now time.Time) (state.Transition, bool) {
			return t.machine.Fail(err, now), true
		})

		return t.machine.Current().State != state.Error
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return true
	}

	if tr, changed := t.machine.Succeed(time.Now()); changed {
		t.sched.publisher.PublishTransition(tr)
	}

	snap.DeviceID = t.conf.ID
	snap.Kind = t.conf.Kind

	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now()
	}

	t.sched.publisher.PublishSnapshot(snap)

	return true
}

// record applies a state change and publishes it unless the task has been
// stopped
func (t *task) record(apply func(now time.Time) (state.Transition, bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}

	if tr, ok := apply(time.Now()); ok {
		t.sched.publisher.PublishTransition(tr)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
