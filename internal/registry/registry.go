// Package registry holds the authoritative set of configured miners
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/robgonnella/hashwatch/internal/exception"
	"github.com/robgonnella/hashwatch/internal/logger"
	"github.com/robgonnella/hashwatch/internal/miner"
)

type hook struct {
	id int
	fn func(Change)
}

// Registry serializes every write and hands out deep copies so readers
// never observe a partially updated entry
type Registry struct {
	mu       sync.RWMutex
	log      logger.Logger
	repo     Repo
	entries  map[string]miner.Config
	revision uint64
	hooks    []hook
	nextHook int
}

// New returns a new registry. A nil repo keeps everything in memory.
func New(repo Repo) *Registry {
	return &Registry{
		log:     logger.New().Component("registry"),
		repo:    repo,
		entries: map[string]miner.Config{},
	}
}

// Load reads persisted configurations. A duplicate id in the store means the
// uniqueness guarantee was violated and returns ErrRegistryCorrupt.
func (r *Registry) Load() error {
	if r.repo == nil {
		return nil
	}

	confs, err := r.repo.GetAllMiners()

	if err != nil {
		return fmt.Errorf("failed to load miners: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	seen := map[string]bool{}

	for _, conf := range confs {
		if seen[conf.ID] {
			return fmt.Errorf("%w: duplicate id %q", exception.ErrRegistryCorrupt, conf.ID)
		}

		seen[conf.ID] = true

		if err := miner.Validate(conf); err != nil {
			r.log.Warn().Err(err).Str("id", conf.ID).Msg("skipping invalid persisted miner")
			continue
		}

		if _, ok := r.entries[conf.ID]; ok {
			return fmt.Errorf("%w: duplicate id %q", exception.ErrRegistryCorrupt, conf.ID)
		}

		if conf.Revision == 0 {
			conf.Revision = 1
		}

		r.entries[conf.ID] = conf.Copy()
		r.revision++
		r.notify(Change{Kind: ChangeAdded, Config: conf.Copy()})
	}

	r.log.Info().Int("count", len(r.entries)).Msg("loaded miners")

	return nil
}

// Add registers a new miner. An empty id is replaced with a generated one.
func (r *Registry) Add(conf miner.Config) (miner.Config, error) {
	if conf.ID == "" {
		conf.ID = uuid.NewString()
	}

	if err := miner.Validate(conf); err != nil {
		return miner.Config{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[conf.ID]; exists {
		return miner.Config{}, &miner.ValidationError{
			Code:    exception.ErrDuplicateID,
			Field:   "id",
			Message: fmt.Sprintf("miner %q already registered", conf.ID),
		}
	}

	conf = conf.Copy()
	conf.Revision = 1

	if err := r.persist(conf); err != nil {
		return miner.Config{}, err
	}

	r.entries[conf.ID] = conf
	r.revision++

	r.log.Info().Str("id", conf.ID).Str("kind", string(conf.Kind)).Str("address", conf.Endpoint()).Msg("miner added")

	r.notify(Change{Kind: ChangeAdded, Config: conf.Copy()})

	return conf.Copy(), nil
}

// Update replaces an existing miner's configuration
func (r *Registry) Update(conf miner.Config) (miner.Config, error) {
	if err := miner.Validate(conf); err != nil {
		return miner.Config{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prev, exists := r.entries[conf.ID]

	if !exists {
		return miner.Config{}, exception.ErrRecordNotFound
	}

	conf = conf.Copy()
	conf.Revision = prev.Revision + 1

	if err := r.persist(conf); err != nil {
		return miner.Config{}, err
	}

	r.entries[conf.ID] = conf
	r.revision++

	r.log.Info().Str("id", conf.ID).Uint64("revision", conf.Revision).Msg("miner updated")

	r.notify(Change{Kind: ChangeUpdated, Config: conf.Copy()})

	return conf.Copy(), nil
}

// Remove deregisters a miner. Hooks have run by the time Remove returns.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, exists := r.entries[id]

	if !exists {
		return exception.ErrRecordNotFound
	}

	if r.repo != nil {
		if err := r.repo.RemoveMiner(id); err != nil && !errors.Is(err, exception.ErrRecordNotFound) {
			return fmt.Errorf("failed to remove miner: %w", err)
		}
	}

	delete(r.entries, id)
	r.revision++

	r.log.Info().Str("id", id).Msg("miner removed")

	r.notify(Change{Kind: ChangeRemoved, Config: prev.Copy()})

	return nil
}

// Get returns a copy of one miner's configuration
func (r *Registry) Get(id string) (miner.Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conf, ok := r.entries[id]

	if !ok {
		return miner.Config{}, exception.ErrRecordNotFound
	}

	return conf.Copy(), nil
}

// List returns copies of every miner sorted by name
func (r *Registry) List() []miner.Config {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.copies()

	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Name == list[j].Name {
			return list[i].ID < list[j].ID
		}
		return list[i].Name < list[j].Name
	})

	return list
}

// Snapshot returns a consistent view for one scheduling pass
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.copies()

	sort.Slice(list, func(i, j int) bool {
		return list[i].ID < list[j].ID
	})

	return Snapshot{
		Revision: r.revision,
		Configs:  list,
	}
}

// Contains reports whether id is currently registered
func (r *Registry) Contains(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.entries[id]

	return ok
}

// OnChange registers a hook called synchronously, inside the write critical
// section, after every mutation. Hooks must not call back into the registry.
func (r *Registry) OnChange(fn func(Change)) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextHook++
	r.hooks = append(r.hooks, hook{id: r.nextHook, fn: fn})

	return r.nextHook
}

// RemoveHook unregisters a hook
func (r *Registry) RemoveHook(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	hooks := []hook{}

	for _, h := range r.hooks {
		if h.id != id {
			hooks = append(hooks, h)
		}
	}

	r.hooks = hooks
}

func (r *Registry) persist(conf miner.Config) error {
	if r.repo == nil {
		return nil
	}

	if err := r.repo.SaveMiner(conf); err != nil {
		return fmt.Errorf("failed to persist miner: %w", err)
	}

	return nil
}

func (r *Registry) notify(change Change) {
	for _, h := range r.hooks {
		h.fn(change)
	}
}

func (r *Registry) copies() []miner.Config {
	list := make([]miner.Config, 0, len(r.entries))

	for _, conf := range r.entries {
		list = append(list, conf.Copy())
	}

	return list
}
