package config

import (
	"errors"

	"github.com/robgonnella/hashwatch/internal/exception"
	"github.com/robgonnella/hashwatch/internal/logger"
	"github.com/spf13/viper"
)

// ConfigService loads and persists the application configuration
type ConfigService struct {
	log  logger.Logger
	repo Repo
}

// NewConfigService returns a new instance of ConfigService
func NewConfigService(repo Repo) *ConfigService {
	return &ConfigService{
		log:  logger.New().Component("config"),
		repo: repo,
	}
}

// Get returns the stored configuration with defaults filled in and
// environment overrides applied. A missing file is created from defaults.
func (s *ConfigService) Get() (*Config, error) {
	conf, err := s.repo.Load()

	if errors.Is(err, exception.ErrRecordNotFound) {
		s.log.Info().Msg("no config file found, writing defaults")

		conf = Default()

		if err := s.repo.Save(conf); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	conf, err = WithDefaults(conf)

	if err != nil {
		return nil, err
	}

	applyOverrides(conf)

	return conf, nil
}

// Update persists conf
func (s *ConfigService) Update(conf *Config) error {
	return s.repo.Save(conf)
}

// applyOverrides reads HASHWATCH_* settings bound through viper
func applyOverrides(conf *Config) {
	if v := viper.GetString("api-listen"); v != "" {
		conf.API.Listen = v
	}

	if v := viper.GetString("redis-addr"); v != "" {
		conf.Redis.Addr = v
	}

	if v := viper.GetString("redis-password"); v != "" {
		conf.Redis.Password = v
	}
}
