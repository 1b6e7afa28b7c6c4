package config

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/robgonnella/hashwatch/internal/exception"
	"gopkg.in/yaml.v3"
)

// YAMLRepo is our repo implementation for a flat yaml file
type YAMLRepo struct {
	configPath string
	mux        sync.Mutex
}

// NewYAMLRepo returns a new repo for the yaml file at configPath
func NewYAMLRepo(configPath string) *YAMLRepo {
	return &YAMLRepo{
		configPath: configPath,
	}
}

// Load reads the config file. A missing file is ErrRecordNotFound.
func (r *YAMLRepo) Load() (*Config, error) {
	r.mux.Lock()
	defer r.mux.Unlock()

	raw, err := os.ReadFile(r.configPath)

	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, exception.ErrRecordNotFound
		}

		return nil, err
	}

	var conf Config

	if err := yaml.Unmarshal(raw, &conf); err != nil {
		return nil, err
	}

	return &conf, nil
}

// Save writes conf to the config file
func (r *YAMLRepo) Save(conf *Config) error {
	r.mux.Lock()
	defer r.mux.Unlock()

	if err := os.MkdirAll(filepath.Dir(r.configPath), 0755); err != nil {
		return err
	}

	file, err := os.Create(r.configPath)

	if err != nil {
		return err
	}

	defer file.Close()

	encoder := yaml.NewEncoder(file)
	encoder.SetIndent(2)

	if err := encoder.Encode(conf); err != nil {
		return err
	}

	return encoder.Close()
}
