package adapter

import (
	"context"

	"github.com/robgonnella/hashwatch/internal/miner"
)

//go:generate mockgen -destination=../mock/adapter/mock_adapter.go -package=mock_adapter . Adapter,Handle

// Handle is an open session with a single device
type Handle interface {
	Device() miner.Config
}

// Identity fields a fingerprint probe could read from a device
type Identity struct {
	Model    string            `json:"model,omitempty"`
	Firmware string            `json:"firmware,omitempty"`
	Version  string            `json:"version,omitempty"`
	Hostname string            `json:"hostname,omitempty"`
	MAC      string            `json:"mac,omitempty"`
	Port     int               `json:"port,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// Adapter speaks exactly one device family's wire protocol. Every error
// returned is one of miner.ConnectError, miner.FetchError or
// miner.SettingsError.
type Adapter interface {
	// Kind returns the device family this adapter speaks
	Kind() miner.Kind

	// Connect opens a session with the configured device
	Connect(ctx context.Context, conf miner.Config) (Handle, error)

	// FetchStatus reads one telemetry snapshot
	FetchStatus(ctx context.Context, h Handle) (miner.Snapshot, error)

	// ApplySettings pushes pool / tuning changes to the device
	ApplySettings(ctx context.Context, h Handle, settings miner.Settings) (miner.Ack, error)

	// Close releases the session
	Close(h Handle) error

	// Probe performs a lightweight fingerprint of host on the kind's
	// default port, returning an error when the host does not speak it
	Probe(ctx context.Context, host string) (*Identity, error)
}
