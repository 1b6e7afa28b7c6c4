package registry

import "github.com/robgonnella/hashwatch/internal/miner"

//go:generate mockgen -destination=../mock/registry/mock_registry.go -package=mock_registry . Repo

// Repo interface for persisting miner configurations
type Repo interface {
	GetAllMiners() ([]miner.Config, error)
	GetMinerByID(id string) (miner.Config, error)
	SaveMiner(conf miner.Config) error
	RemoveMiner(id string) error
}

// ChangeKind describes a registry mutation
type ChangeKind string

const (
	// ChangeAdded a miner was registered
	ChangeAdded ChangeKind = "added"
	// ChangeUpdated a miner's configuration was replaced
	ChangeUpdated ChangeKind = "updated"
	// ChangeRemoved a miner was deregistered
	ChangeRemoved ChangeKind = "removed"
)

// Change is delivered to registry hooks. Config is the new value, or the
// removed value for ChangeRemoved.
type Change struct {
	Kind   ChangeKind
	Config miner.Config
}

// Snapshot is a consistent, deep copied view of the registry
type Snapshot struct {
	Revision uint64
	Configs  []miner.Config
}
