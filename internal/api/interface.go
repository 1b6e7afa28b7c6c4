package api

import (
	"context"

	"github.com/robgonnella/hashwatch/internal/discovery"
	"github.com/robgonnella/hashwatch/internal/event"
	"github.com/robgonnella/hashwatch/internal/miner"
	"github.com/robgonnella/hashwatch/internal/state"
	"github.com/robgonnella/hashwatch/internal/storage"
)

// Service the operations exposed over http, implemented by *core.Core
type Service interface {
	AddMiner(conf miner.Config) (miner.Config, error)
	UpdateMiner(conf miner.Config) (miner.Config, error)
	RemoveMiner(id string) error
	GetMiner(id string) (miner.Config, error)
	ListMiners() []miner.Config
	State(id string) (state.ConnectionState, error)
	ApplySettings(ctx context.Context, id string, settings miner.Settings) (miner.Ack, error)
	RecentSnapshots(id string, limit int) ([]miner.Snapshot, error)
	ConnectionEvents(id string, limit int) ([]storage.ConnectionEvent, error)
	Subscribe(bufferSize int) (int, <-chan event.Event)
	Unsubscribe(id int)
	Scan(ctx context.Context, req discovery.Request) (string, <-chan discovery.Result, error)
	StopScan(id string) error
}
