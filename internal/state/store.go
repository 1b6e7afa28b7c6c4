package state

import (
	"sort"
	"sync"

	"github.com/robgonnella/hashwatch/internal/registry"
)

// Store holds exactly one Machine per registered device
type Store struct {
	mu       sync.RWMutex
	policy   Policy
	machines map[string]*Machine
}

// NewStore returns an empty store
func NewStore(policy Policy) *Store {
	return &Store{
		policy:   policy,
		machines: map[string]*Machine{},
	}
}

// HandleChange keeps the store in lock step with the registry. Register it
// with registry.OnChange so machines come and go inside the registry write.
func (s *Store) HandleChange(c registry.Change) {
	switch c.Kind {
	case registry.ChangeAdded:
		s.Add(c.Config.ID)
	case registry.ChangeRemoved:
		s.Remove(c.Config.ID)
	}
}

// Add creates a machine for id if none exists
func (s *Store) Add(id string) *Machine {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.machines[id]; ok {
		return m
	}

	m := NewMachine(id, s.policy)
	s.machines[id] = m

	return m
}

// Remove drops id's machine
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.machines, id)
}

// Machine returns id's machine
func (s *Store) Machine(id string) (*Machine, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.machines[id]

	return m, ok
}

// Get returns a copy of id's connection state
func (s *Store) Get(id string) (ConnectionState, bool) {
	m, ok := s.Machine(id)

	if !ok {
		return ConnectionState{}, false
	}

	return m.Current(), true
}

// All returns a copy of every connection state sorted by device id
func (s *Store) All() []ConnectionState {
	s.mu.RLock()
	list := make([]ConnectionState, 0, len(s.machines))

	for _, m := range s.machines {
		list = append(list, m.Current())
	}
	s.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		return list[i].DeviceID < list[j].DeviceID
	})

	return list
}

// Len returns the number of tracked devices
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.machines)
}
