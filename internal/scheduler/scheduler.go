// Package scheduler polls every registered miner on its own cadence
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robgonnella/hashwatch/internal/adapter"
	"github.com/robgonnella/hashwatch/internal/logger"
	"github.com/robgonnella/hashwatch/internal/miner"
	"github.com/robgonnella/hashwatch/internal/registry"
	"github.com/robgonnella/hashwatch/internal/state"
	"golang.org/x/sync/semaphore"
)

// Config scheduler settings
type Config struct {
	// Interval default time between polls of one device
	Interval time.Duration
	// Timeout hard bound on every connect and fetch
	Timeout time.Duration
	// MaxConcurrent adapter calls in flight across all devices
	MaxConcurrent int
	// ReconcileInterval how often the registry snapshot is re-read
	ReconcileInterval time.Duration
}

// DefaultConfig returns the default scheduler settings
func DefaultConfig() Config {
	return Config{
		Interval:          10 * time.Second,
		Timeout:           5 * time.Second,
		MaxConcurrent:     32,
		ReconcileInterval: time.Second,
	}
}

// Scheduler runs one task per registered device. Tasks share a bounded pool
// of adapter call slots so a burst of slow devices cannot exhaust sockets.
type Scheduler struct {
	log       logger.Logger
	conf      Config
	source    Source
	adapters  Adapters
	states    *state.Store
	publisher Publisher
	sem       *semaphore.Weighted
	kick      chan struct{}
	mu        sync.Mutex
	tasks     map[string]*task
	wg        sync.WaitGroup
}

// New returns a new Scheduler
func New(
	conf Config,
	source Source,
	adapters Adapters,
	states *state.Store,
	publisher Publisher,
) *Scheduler {
	def := DefaultConfig()

	if conf.Interval <= 0 {
		conf.Interval = def.Interval
	}

	if conf.Timeout <= 0 {
		conf.Timeout = def.Timeout
	}

	if conf.MaxConcurrent <= 0 {
		conf.MaxConcurrent = def.MaxConcurrent
	}

	if conf.ReconcileInterval <= 0 {
		conf.ReconcileInterval = def.ReconcileInterval
	}

	return &Scheduler{
		log:       logger.New().Component("scheduler"),
		conf:      conf,
		source:    source,
		adapters:  adapters,
		states:    states,
		publisher: publisher,
		sem:       semaphore.NewWeighted(int64(conf.MaxConcurrent)),
		kick:      make(chan struct{}, 1),
		tasks:     map[string]*task{},
	}
}

// Run reconciles against the registry until ctx is cancelled, then stops
// every task and waits for them to exit
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.conf.ReconcileInterval)
	defer ticker.Stop()

	s.log.Info().
		Dur("interval", s.conf.Interval).
		Dur("timeout", s.conf.Timeout).
		Int("maxConcurrent", s.conf.MaxConcurrent).
		Msg("starting scheduler")

	s.reconcile(ctx)

	for {
		select {
		case <-ctx.Done():
			s.stopAll()
			s.wg.Wait()
			s.log.Info().Msg("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.reconcile(ctx)
		case <-s.kick:
			s.reconcile(ctx)
		}
	}
}

// HandleChange reacts to registry writes. Removal stops the device's task
// before the registry write returns; other changes trigger an early
// reconcile.
func (s *Scheduler) HandleChange(c registry.Change) {
	if c.Kind == registry.ChangeRemoved {
		s.mu.Lock()

		if t, ok := s.tasks[c.Config.ID]; ok {
			t.stop()
			delete(s.tasks, c.Config.ID)
		}

		s.mu.Unlock()
	}

	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Active returns the number of running device tasks
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *Scheduler) reconcile(ctx context.Context) {
	snap := s.source.Snapshot()

	want := make(map[string]miner.Config, len(snap.Configs))

	for _, conf := range snap.Configs {
		want[conf.ID] = conf
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, t := range s.tasks {
		conf, ok := want[id]

		if !ok {
			s.log.Debug().Str("id", id).Msg("device no longer registered, stopping poll task")
			t.stop()
			delete(s.tasks, id)
			continue
		}

		if conf.Revision == t.conf.Revision {
			continue
		}

		if !sessionChanged(t.conf, conf) {
			// name, pool, tuning or interval: keep the session and the
			// device's failure history
			t.setConfig(conf)
			continue
		}

		s.log.Info().Str("id", id).Uint64("revision", conf.Revision).Msg("device reconfigured, restarting poll task")
		t.stop()
		delete(s.tasks, id)

		if m, ok := s.states.Machine(id); ok {
			if tr, changed := m.Reset(time.Now()); changed {
				s.publisher.PublishTransition(tr)
			}
		}

		s.start(ctx, conf, t.done)
	}

	for id, conf := range want {
		if _, ok := s.tasks[id]; ok {
			continue
		}

		s.start(ctx, conf, nil)
	}
}

// start must be called with s.mu held
func (s *Scheduler) start(ctx context.Context, conf miner.Config, prev <-chan struct{}) {
	machine, ok := s.states.Machine(conf.ID)

	// the state store drops a device inside the registry write that removes
	// it, so a stale snapshot can still name it here
	if !ok {
		s.log.Debug().Str("id", conf.ID).Msg("device deregistered, not starting poll task")
		return
	}

	taskCtx, cancel := context.WithCancel(ctx)

	t := &task{
		sched:   s,
		conf:    conf,
		machine: machine,
		cancel:  cancel,
		done:    make(chan struct{}),
		log:     s.log.Component("poller"),
	}

	s.tasks[conf.ID] = t
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		defer close(t.done)

		// one active task per device
		if prev != nil {
			select {
			case <-prev:
			case <-taskCtx.Done():
				return
			}
		}

		t.run(taskCtx)
	}()
}

func (s *Scheduler) stopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, t := range s.tasks {
		t.stop()
		delete(s.tasks, id)
	}
}

func (s *Scheduler) interval(conf miner.Config) time.Duration {
	if conf.PollInterval > 0 {
		return conf.PollInterval
	}

	return s.conf.Interval
}

// sessionChanged reports whether b needs a new adapter session
func sessionChanged(a, b miner.Config) bool {
	return a.Kind != b.Kind ||
		a.Address != b.Address ||
		a.Port != b.Port ||
		a.Username != b.Username ||
		a.Password != b.Password
}

// call runs fn with the poll timeout while holding a pool slot. A call that
// outlives the timeout is abandoned and reported as a fetch timeout; its
// slot stays taken until fn actually returns.
func (s *Scheduler) call(ctx context.Context, address string, fn func(context.Context) error) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.conf.Timeout)
	defer cancel()

	result := make(chan error, 1)

	go func() {
		defer s.sem.Release(1)
		result <- fn(callCtx)
	}()

	select {
	case err := <-result:
		if err == nil {
			return nil
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if errors.Is(err, context.DeadlineExceeded) && callCtx.Err() != nil {
			return miner.NewFetchError(miner.FetchTimeout, "", err)
		}

		return adapter.ClassifyFetch(address, err)
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}

		return miner.NewFetchError(miner.FetchTimeout, "", callCtx.Err())
	}
}
