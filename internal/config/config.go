package config

import (
	"time"

	"github.com/imdario/mergo"
	"github.com/robgonnella/hashwatch/internal/adapter/webui"
)

// Polling scheduler and connection state settings
type Polling struct {
	Interval          time.Duration `yaml:"interval"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxConcurrent     int           `yaml:"maxConcurrent"`
	FailureThreshold  int           `yaml:"failureThreshold"`
	BackoffBase       time.Duration `yaml:"backoffBase"`
	BackoffMax        time.Duration `yaml:"backoffMax"`
	ReconcileInterval time.Duration `yaml:"reconcileInterval"`
}

// Discovery represents our network discovery configuration
type Discovery struct {
	Targets      []string      `yaml:"targets"`
	Concurrency  int           `yaml:"concurrency"`
	ProbeTimeout time.Duration `yaml:"probeTimeout"`
	ScanTimeout  time.Duration `yaml:"scanTimeout"`
	// Sweeper "none" or "nmap"
	Sweeper string `yaml:"sweeper"`
}

// Storage telemetry persistence settings
type Storage struct {
	QueueSize int           `yaml:"queueSize"`
	Retention time.Duration `yaml:"retention"`
}

// Broadcast live-update settings
type Broadcast struct {
	BufferSize int `yaml:"bufferSize"`
}

// API http surface settings
type API struct {
	Listen   string `yaml:"listen"`
	Disabled bool   `yaml:"disabled"`
}

// Redis optional live-update relay. Empty Addr disables the relay.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// WebUI scraped adapter settings
type WebUI struct {
	Selectors webui.Selectors `yaml:"selectors"`
}

// Config represents the data structure of our user provided yaml configuration
type Config struct {
	Polling   Polling   `yaml:"polling"`
	Discovery Discovery `yaml:"discovery"`
	Storage   Storage   `yaml:"storage"`
	Broadcast Broadcast `yaml:"broadcast"`
	API       API       `yaml:"api"`
	Redis     Redis     `yaml:"redis"`
	WebUI     WebUI     `yaml:"webui"`
}

// SweeperNmap enables the nmap ping sweep ahead of discovery probes
const SweeperNmap = "nmap"

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Polling: Polling{
			Interval:          10 * time.Second,
			Timeout:           5 * time.Second,
			MaxConcurrent:     32,
			FailureThreshold:  3,
			BackoffBase:       time.Second,
			BackoffMax:        time.Minute,
			ReconcileInterval: time.Second,
		},
		Discovery: Discovery{
			Targets:      []string{},
			Concurrency:  20,
			ProbeTimeout: 500 * time.Millisecond,
			ScanTimeout:  30 * time.Second,
			Sweeper:      "none",
		},
		Storage: Storage{
			QueueSize: 256,
			Retention: 7 * 24 * time.Hour,
		},
		Broadcast: Broadcast{
			BufferSize: 64,
		},
		API: API{
			Listen: "127.0.0.1:8420",
		},
		Redis: Redis{
			Channel: "hashwatch:events",
		},
		WebUI: WebUI{
			Selectors: webui.DefaultSelectors(),
		},
	}
}

// WithDefaults fills every unset field of conf from Default
func WithDefaults(conf *Config) (*Config, error) {
	merged := *conf

	if err := mergo.Merge(&merged, Default()); err != nil {
		return nil, err
	}

	return &merged, nil
}
