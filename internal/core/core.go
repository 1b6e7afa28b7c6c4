// Package core wires the registry, scheduler, discovery and publisher
// together and owns their lifecycle
package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robgonnella/hashwatch/internal/adapter"
	"github.com/robgonnella/hashwatch/internal/config"
	"github.com/robgonnella/hashwatch/internal/discovery"
	"github.com/robgonnella/hashwatch/internal/event"
	"github.com/robgonnella/hashwatch/internal/exception"
	"github.com/robgonnella/hashwatch/internal/logger"
	"github.com/robgonnella/hashwatch/internal/miner"
	"github.com/robgonnella/hashwatch/internal/registry"
	"github.com/robgonnella/hashwatch/internal/relay"
	"github.com/robgonnella/hashwatch/internal/scheduler"
	"github.com/robgonnella/hashwatch/internal/state"
	"github.com/robgonnella/hashwatch/internal/storage"
	"github.com/robgonnella/hashwatch/internal/telemetry"
	"github.com/robgonnella/hashwatch/internal/util"
)

// Core represents our core data structure
type Core struct {
	log       logger.Logger
	conf      config.Config
	registry  *registry.Registry
	states    *state.Store
	catalog   *adapter.Catalog
	events    *event.EventManager
	publisher *telemetry.Publisher
	scheduler *scheduler.Scheduler
	discovery *discovery.Engine
	store     Storage
	relay     *relay.Relay
	mux       sync.Mutex
	cancel    context.CancelFunc
}

// New returns new core module for given configuration. The registry should
// not be loaded yet: Load runs after the state store and scheduler are
// hooked in. A nil store disables telemetry persistence.
func New(
	conf config.Config,
	reg *registry.Registry,
	store Storage,
	catalog *adapter.Catalog,
	sweeper discovery.Sweeper,
) *Core {
	policy := state.Policy{
		FailureThreshold: conf.Polling.FailureThreshold,
		BackoffBase:      conf.Polling.BackoffBase,
		BackoffMax:       conf.Polling.BackoffMax,
	}

	states := state.NewStore(policy)
	events := event.NewEventManager()

	var writer telemetry.Store

	if store != nil {
		writer = store
	}

	publisher := telemetry.NewPublisher(writer, events, conf.Storage.QueueSize)

	sched := scheduler.New(
		scheduler.Config{
			Interval:          conf.Polling.Interval,
			Timeout:           conf.Polling.Timeout,
			MaxConcurrent:     conf.Polling.MaxConcurrent,
			ReconcileInterval: conf.Polling.ReconcileInterval,
		},
		reg,
		catalog,
		states,
		publisher,
	)

	probers := util.SliceMap(catalog.Ordered(), func(a adapter.Adapter) discovery.Prober {
		return a
	})

	engine := discovery.NewEngine(probers, sweeper, discovery.Request{
		Targets:      conf.Discovery.Targets,
		Concurrency:  conf.Discovery.Concurrency,
		ProbeTimeout: conf.Discovery.ProbeTimeout,
		ScanTimeout:  conf.Discovery.ScanTimeout,
	})

	// state first so a new device has its ConnectionState before the
	// scheduler can look for it
	reg.OnChange(states.HandleChange)
	reg.OnChange(sched.HandleChange)

	return &Core{
		log:       logger.New().Component("core"),
		conf:      conf,
		registry:  reg,
		states:    states,
		catalog:   catalog,
		events:    events,
		publisher: publisher,
		scheduler: sched,
		discovery: engine,
		store:     store,
	}
}

// Load reads persisted miners into the registry
func (c *Core) Load() error {
	if err := c.registry.Load(); err != nil {
		if errors.Is(err, exception.ErrRegistryCorrupt) {
			c.events.ReportFatalError(err)
		}

		return err
	}

	return nil
}

// AddMiner registers a miner
func (c *Core) AddMiner(conf miner.Config) (miner.Config, error) {
	return c.registry.Add(conf)
}

// UpdateMiner replaces a miner's configuration
func (c *Core) UpdateMiner(conf miner.Config) (miner.Config, error) {
	return c.registry.Update(conf)
}

// RemoveMiner deregisters a miner. Once it returns no further telemetry is
// published for it.
func (c *Core) RemoveMiner(id string) error {
	return c.registry.Remove(id)
}

// GetMiner returns one miner's configuration
func (c *Core) GetMiner(id string) (miner.Config, error) {
	return c.registry.Get(id)
}

// ListMiners returns every registered miner sorted by name
func (c *Core) ListMiners() []miner.Config {
	return c.registry.List()
}

// State returns a copy of a miner's connection state
func (c *Core) State(id string) (state.ConnectionState, error) {
	s, ok := c.states.Get(id)

	if !ok {
		return state.ConnectionState{}, exception.ErrRecordNotFound
	}

	return s, nil
}

// States returns copies of every connection state
func (c *Core) States() []state.ConnectionState {
	return c.states.All()
}

// ApplySettings pushes settings to a miner over a short lived session and
// records the applied pool and tuning values in the registry
func (c *Core) ApplySettings(ctx context.Context, id string, settings miner.Settings) (miner.Ack, error) {
	conf, err := c.registry.Get(id)

	if err != nil {
		return miner.Ack{}, err
	}

	if err := miner.ValidateTuning(conf.Kind, settings.Tuning); err != nil {
		return miner.Ack{}, err
	}

	updated, changed := withSettings(conf, settings)

	// nothing reaches the device unless the registry would accept it
	if err := miner.Validate(updated); err != nil {
		return miner.Ack{}, err
	}

	a, err := c.catalog.Get(conf.Kind)

	if err != nil {
		return miner.Ack{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.conf.Polling.Timeout)
	defer cancel()

	h, err := a.Connect(callCtx, conf)

	if err != nil {
		return miner.Ack{}, err
	}

	defer a.Close(h)

	ack, err := a.ApplySettings(callCtx, h, settings)

	if err != nil {
		return miner.Ack{}, err
	}

	ack.DeviceID = id

	if ack.At.IsZero() {
		ack.At = time.Now()
	}

	if changed {
		if _, err := c.registry.Update(updated); err != nil {
			return ack, fmt.Errorf("settings applied but not recorded: %w", err)
		}
	}

	c.log.Info().
		Str("id", id).
		Strs("applied", ack.Applied).
		Msg("settings applied")

	return ack, nil
}

// withSettings returns conf with the pool and tuning values from settings
func withSettings(conf miner.Config, settings miner.Settings) (miner.Config, bool) {
	updated := conf.Copy()
	changed := false

	if settings.Pool != nil {
		updated.Pool = *settings.Pool
		changed = true
	}

	if !settings.Tuning.IsZero() {
		t := settings.Tuning.Copy()

		if t.FanSpeed != nil {
			updated.Tuning.FanSpeed = t.FanSpeed
		}

		if t.Frequency != nil {
			updated.Tuning.Frequency = t.Frequency
		}

		if t.PowerLimit != nil {
			updated.Tuning.PowerLimit = t.PowerLimit
		}

		changed = true
	}

	return updated, changed
}

// Subscribe registers a live-update listener
func (c *Core) Subscribe(bufferSize int) (int, <-chan event.Event) {
	if bufferSize < 1 {
		bufferSize = c.conf.Broadcast.BufferSize
	}

	return c.publisher.Subscribe(bufferSize)
}

// Unsubscribe removes a live-update listener
func (c *Core) Unsubscribe(id int) {
	c.publisher.Unsubscribe(id)
}

// Scan starts a discovery scan. Results are proposals; nothing is
// registered automatically.
func (c *Core) Scan(ctx context.Context, req discovery.Request) (string, <-chan discovery.Result, error) {
	return c.discovery.Start(ctx, req)
}

// StopScan cancels a running scan
func (c *Core) StopScan(id string) error {
	return c.discovery.Stop(id)
}

// RecentSnapshots returns a miner's latest stored snapshots, newest first
func (c *Core) RecentSnapshots(id string, limit int) ([]miner.Snapshot, error) {
	if !c.registry.Contains(id) {
		return nil, exception.ErrRecordNotFound
	}

	if c.store == nil {
		return []miner.Snapshot{}, nil
	}

	return c.store.RecentSnapshots(id, limit)
}

// ConnectionEvents returns a miner's latest stored state changes
func (c *Core) ConnectionEvents(id string, limit int) ([]storage.ConnectionEvent, error) {
	if !c.registry.Contains(id) {
		return nil, exception.ErrRecordNotFound
	}

	if c.store == nil {
		return []storage.ConnectionEvent{}, nil
	}

	return c.store.ConnectionEvents(id, limit)
}
