package core

import (
	"time"

	"github.com/robgonnella/hashwatch/internal/miner"
	"github.com/robgonnella/hashwatch/internal/storage"
	"github.com/robgonnella/hashwatch/internal/telemetry"
)

// Storage telemetry persistence plus the queries used for status reporting
type Storage interface {
	telemetry.Store
	RecentSnapshots(deviceID string, limit int) ([]miner.Snapshot, error)
	ConnectionEvents(deviceID string, limit int) ([]storage.ConnectionEvent, error)
	Prune(cutoff time.Time) (int64, error)
}
