package config

//go:generate mockgen -destination=../mock/config/mock_config.go -package=mock_config . Repo

// Repo interface representing access to the stored configuration
type Repo interface {
	Load() (*Config, error)
	Save(conf *Config) error
}
