package discovery

import (
	"context"

	"github.com/robgonnella/hashwatch/internal/adapter"
	"github.com/robgonnella/hashwatch/internal/miner"
)

//go:generate mockgen -destination=../mock/discovery/mock_discovery.go -package=mock_discovery . Prober,Sweeper

// Prober fingerprints a host for one device family. Every adapter.Adapter
// is a Prober.
type Prober interface {
	Kind() miner.Kind
	Probe(ctx context.Context, host string) (*adapter.Identity, error)
}

// Sweeper quickly narrows a target list down to hosts that are up
type Sweeper interface {
	Sweep(ctx context.Context, hosts []string) ([]string, error)
}

// Scanner starts and stops discovery scans
type Scanner interface {
	Start(ctx context.Context, req Request) (string, <-chan Result, error)
	Stop(scanID string) error
}
