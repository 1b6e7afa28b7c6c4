package discovery

import (
	"time"

	"github.com/robgonnella/hashwatch/internal/adapter"
	"github.com/robgonnella/hashwatch/internal/miner"
)

// Status summarizes what a probe found at an address
type Status string

const (
	// StatusFound an adapter fingerprinted the host
	StatusFound Status = "found"
	// StatusUnknown the host answered but no adapter recognized it
	StatusUnknown Status = "unknown"
	// StatusUnresponsive nothing answered on any adapter port
	StatusUnresponsive Status = "unresponsive"
)

// Request describes one scan
type Request struct {
	Targets      []string      `json:"targets"`
	Concurrency  int           `json:"concurrency,omitempty"`
	ProbeTimeout time.Duration `json:"probeTimeout,omitempty"`
	ScanTimeout  time.Duration `json:"scanTimeout,omitempty"`
}

// DefaultRequest returns scan defaults with no targets
func DefaultRequest() Request {
	return Request{
		Concurrency:  20,
		ProbeTimeout: 500 * time.Millisecond,
		ScanTimeout:  30 * time.Second,
	}
}

// Result is a candidate device found during a scan. It is a proposal only;
// nothing is registered automatically.
type Result struct {
	ScanID   string            `json:"scanId"`
	Address  string            `json:"address"`
	Status   Status            `json:"status"`
	Kind     miner.Kind        `json:"kind"`
	Port     int               `json:"port,omitempty"`
	Latency  time.Duration     `json:"latency"`
	Identity *adapter.Identity `json:"identity,omitempty"`
	Reason   miner.ScanReason  `json:"reason,omitempty"`
	Err      *miner.ScanError  `json:"-"`
}

// Config returns a registry entry proposal for a found device
func (r Result) Config() miner.Config {
	conf := miner.Config{
		Kind:    r.Kind,
		Address: r.Address,
		Port:    r.Port,
	}

	if r.Identity != nil && r.Identity.Hostname != "" {
		conf.Name = r.Identity.Hostname
	} else {
		conf.Name = r.Address
	}

	return conf
}
