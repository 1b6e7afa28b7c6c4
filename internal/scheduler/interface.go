package scheduler

import (
	"github.com/robgonnella/hashwatch/internal/adapter"
	"github.com/robgonnella/hashwatch/internal/miner"
	"github.com/robgonnella/hashwatch/internal/registry"
	"github.com/robgonnella/hashwatch/internal/state"
)

// Source provides the scheduling view of configured miners
type Source interface {
	Snapshot() registry.Snapshot
}

// Adapters resolves the adapter for a device kind
type Adapters interface {
	Get(kind miner.Kind) (adapter.Adapter, error)
}

// Publisher receives poll results and state transitions
type Publisher interface {
	PublishSnapshot(snap miner.Snapshot)
	PublishTransition(t state.Transition)
}
