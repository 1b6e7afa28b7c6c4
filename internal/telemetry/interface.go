package telemetry

import (
	"time"

	"github.com/robgonnella/hashwatch/internal/miner"
	"github.com/robgonnella/hashwatch/internal/state"
)

//go:generate mockgen -destination=../mock/telemetry/mock_telemetry.go -package=mock_telemetry . Store

// Store is the storage collaborator's write interface
type Store interface {
	WriteSnapshot(snap miner.Snapshot) error
	WriteConnectionEvent(deviceID string, oldState, newState state.State, cause string, at time.Time) error
}
