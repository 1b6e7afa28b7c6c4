// Package miner holds the data model shared by every part of hashwatch:
// configured miners, the adapter kinds they speak, telemetry snapshots and
// the typed error taxonomy adapters report through.
package miner

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Kind is the closed set of device families hashwatch can talk to
type Kind string

// Known adapter kinds
const (
	// KindAxeOS is an HTTP JSON API device (Bitaxe / NerdQaxe firmware)
	KindAxeOS Kind = "axeos"
	// KindCGMiner is a socket API device speaking the CGMiner protocol
	KindCGMiner Kind = "cgminer"
	// KindWebUI is a device that only exposes an HTML status page
	KindWebUI Kind = "webui"
	// KindUnknown is reported by discovery when no adapter recognized a host
	KindUnknown Kind = "unknown"
)

// Kinds lists every supported kind in discovery fingerprint priority order
var Kinds = []Kind{KindAxeOS, KindCGMiner, KindWebUI}

// Valid reports whether k is one of the supported kinds
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}

	return false
}

// DefaultPort returns the port a device of this kind listens on by default
func (k Kind) DefaultPort() int {
	switch k {
	case KindCGMiner:
		return 4028
	default:
		return 80
	}
}

// Range is an inclusive integer range
type Range struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Contains reports whether v is inside the range
func (r Range) Contains(v int) bool {
	return v >= r.Min && v <= r.Max
}

// Limits describes which tuning parameters a kind accepts. A nil range means
// the parameter is not supported.
type Limits struct {
	FanSpeed   *Range
	Frequency  *Range
	PowerLimit *Range
}

// Limits returns the valid tuning ranges for the kind
func (k Kind) Limits() Limits {
	switch k {
	case KindAxeOS:
		return Limits{
			FanSpeed:  &Range{Min: 0, Max: 100},
			Frequency: &Range{Min: 100, Max: 1000},
		}
	default:
		return Limits{}
	}
}

// PoolConfig is the upstream pool a miner submits work to
type PoolConfig struct {
	URL      string `json:"url" yaml:"url"`
	Port     int    `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
}

// IsZero reports whether no pool setting is present
func (p PoolConfig) IsZero() bool {
	return p == PoolConfig{}
}

// Tuning optional hardware parameters. Nil means "leave as is".
type Tuning struct {
	FanSpeed   *int `json:"fanSpeed,omitempty" yaml:"fanSpeed,omitempty"`
	Frequency  *int `json:"frequency,omitempty" yaml:"frequency,omitempty"`
	PowerLimit *int `json:"powerLimit,omitempty" yaml:"powerLimit,omitempty"`
}

// IsZero reports whether no tuning parameter is set
func (t Tuning) IsZero() bool {
	return t.FanSpeed == nil && t.Frequency == nil && t.PowerLimit == nil
}

// Copy returns a deep copy
func (t Tuning) Copy() Tuning {
	return Tuning{
		FanSpeed:   copyInt(t.FanSpeed),
		Frequency:  copyInt(t.Frequency),
		PowerLimit: copyInt(t.PowerLimit),
	}
}

// Config is the durable description of one monitored miner
type Config struct {
	ID           string        `json:"id" yaml:"id"`
	Name         string        `json:"name" yaml:"name"`
	Kind         Kind          `json:"kind" yaml:"kind"`
	Address      string        `json:"address" yaml:"address"`
	Port         int           `json:"port" yaml:"port"`
	Username     string        `json:"username,omitempty" yaml:"username,omitempty"`
	Password     string        `json:"password,omitempty" yaml:"password,omitempty"`
	Pool         PoolConfig    `json:"pool" yaml:"pool"`
	Tuning       Tuning        `json:"tuning" yaml:"tuning"`
	PollInterval time.Duration `json:"pollInterval,omitempty" yaml:"pollInterval,omitempty"`
	// Revision is bumped by the registry on every write
	Revision uint64 `json:"revision" yaml:"-"`
}

// Copy returns a deep copy of the config
func (c Config) Copy() Config {
	cp := c
	cp.Tuning = c.Tuning.Copy()
	return cp
}

// Endpoint returns host:port for the miner
func (c Config) Endpoint() string {
	port := c.Port

	if port == 0 {
		port = c.Kind.DefaultPort()
	}

	return net.JoinHostPort(c.Address, strconv.Itoa(port))
}

// Settings is a configuration change pushed to a device
type Settings struct {
	Pool    *PoolConfig `json:"pool,omitempty"`
	Tuning  Tuning      `json:"tuning"`
	Restart bool        `json:"restart,omitempty"`
}

// Ack acknowledges applied settings
type Ack struct {
	DeviceID string    `json:"deviceId"`
	Applied  []string  `json:"applied"`
	At       time.Time `json:"at"`
}

// Snapshot is one normalized, immutable reading from a device. Pointer
// fields are nil when the device did not report them so "zero" and
// "unavailable" stay distinguishable.
type Snapshot struct {
	DeviceID      string             `json:"deviceId"`
	Kind          Kind               `json:"kind"`
	Timestamp     time.Time          `json:"timestamp"`
	Hashrate      *float64           `json:"hashrate,omitempty"`
	Temperatures  map[string]float64 `json:"temperatures,omitempty"`
	FanPercent    *float64           `json:"fanPercent,omitempty"`
	FanRPM        *float64           `json:"fanRpm,omitempty"`
	Accepted      *uint64            `json:"accepted,omitempty"`
	Rejected      *uint64            `json:"rejected,omitempty"`
	UptimeSeconds *int64             `json:"uptimeSeconds,omitempty"`
	Extra         map[string]any     `json:"extra,omitempty"`
}

// Copy returns a deep copy of the snapshot
func (s Snapshot) Copy() Snapshot {
	cp := s
	cp.Hashrate = copyFloat(s.Hashrate)
	cp.FanPercent = copyFloat(s.FanPercent)
	cp.FanRPM = copyFloat(s.FanRPM)
	cp.Accepted = copyUint(s.Accepted)
	cp.Rejected = copyUint(s.Rejected)

	if s.UptimeSeconds != nil {
		v := *s.UptimeSeconds
		cp.UptimeSeconds = &v
	}

	if s.Temperatures != nil {
		cp.Temperatures = make(map[string]float64, len(s.Temperatures))
		for k, v := range s.Temperatures {
			cp.Temperatures[k] = v
		}
	}

	if s.Extra != nil {
		cp.Extra = make(map[string]any, len(s.Extra))
		for k, v := range s.Extra {
			cp.Extra[k] = v
		}
	}

	return cp
}

// String short human readable summary
func (s Snapshot) String() string {
	hr := "n/a"

	if s.Hashrate != nil {
		hr = FormatHashrate(*s.Hashrate)
	}

	return fmt.Sprintf("%s %s hashrate=%s", s.DeviceID, s.Timestamp.Format(time.RFC3339), hr)
}

// FormatHashrate renders hashes/second with a scaled unit
func FormatHashrate(hs float64) string {
	units := []string{"H/s", "KH/s", "MH/s", "GH/s", "TH/s", "PH/s"}
	i := 0

	for hs >= 1000 && i < len(units)-1 {
		hs /= 1000
		i++
	}

	return fmt.Sprintf("%.2f %s", hs, units[i])
}

// Float returns a pointer to v
func Float(v float64) *float64 { return &v }

// Uint returns a pointer to v
func Uint(v uint64) *uint64 { return &v }

// Int64 returns a pointer to v
func Int64(v int64) *int64 { return &v }

// Int returns a pointer to v
func Int(v int) *int { return &v }

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyUint(v *uint64) *uint64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
