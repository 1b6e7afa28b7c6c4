package registry

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/robgonnella/hashwatch/internal/exception"
	"github.com/robgonnella/hashwatch/internal/miner"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MinerRecord is the persisted form of miner.Config
type MinerRecord struct {
	ID           string `gorm:"primaryKey"`
	Name         string
	Kind         string `gorm:"index"`
	Address      string
	Port         int
	Username     string
	Password     string
	PoolURL      string
	PoolPort     int
	PoolUser     string
	PoolPassword string
	Tuning       datatypes.JSON
	PollInterval int64
	Revision     uint64
	UpdatedAt    time.Time
}

// TableName implements gorm's tabler interface
func (MinerRecord) TableName() string {
	return "miners"
}

// AutoMigrate creates or updates the miners table
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&MinerRecord{})
}

// SqliteRepo is our repo implementation for sqlite
type SqliteRepo struct {
	db *gorm.DB
}

// NewSqliteRepo returns a new instance of SqliteRepo
func NewSqliteRepo(db *gorm.DB) *SqliteRepo {
	return &SqliteRepo{db: db}
}

// GetAllMiners returns every persisted miner
func (r *SqliteRepo) GetAllMiners() ([]miner.Config, error) {
	records := []MinerRecord{}

	if result := r.db.Order("id").Find(&records); result.Error != nil {
		return nil, result.Error
	}

	confs := []miner.Config{}

	for _, rec := range records {
		conf, err := toConfig(rec)

		if err != nil {
			return nil, err
		}

		confs = append(confs, conf)
	}

	return confs, nil
}

// GetMinerByID returns a single persisted miner
func (r *SqliteRepo) GetMinerByID(id string) (miner.Config, error) {
	rec := MinerRecord{}

	if result := r.db.First(&rec, "id = ?", id); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return miner.Config{}, exception.ErrRecordNotFound
		}

		return miner.Config{}, result.Error
	}

	return toConfig(rec)
}

// SaveMiner creates or replaces a miner
func (r *SqliteRepo) SaveMiner(conf miner.Config) error {
	if conf.ID == "" {
		return errors.New("miner id cannot be empty")
	}

	rec, err := toRecord(conf)

	if err != nil {
		return err
	}

	return r.db.Save(&rec).Error
}

// RemoveMiner deletes a miner
func (r *SqliteRepo) RemoveMiner(id string) error {
	if id == "" {
		return errors.New("miner id cannot be empty")
	}

	result := r.db.Delete(&MinerRecord{ID: id})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return exception.ErrRecordNotFound
	}

	return nil
}

func toRecord(conf miner.Config) (MinerRecord, error) {
	tuning, err := json.Marshal(conf.Tuning)

	if err != nil {
		return MinerRecord{}, err
	}

	return MinerRecord{
		ID:           conf.ID,
		Name:         conf.Name,
		Kind:         string(conf.Kind),
		Address:      conf.Address,
		Port:         conf.Port,
		Username:     conf.Username,
		Password:     conf.Password,
		PoolURL:      conf.Pool.URL,
		PoolPort:     conf.Pool.Port,
		PoolUser:     conf.Pool.User,
		PoolPassword: conf.Pool.Password,
		Tuning:       datatypes.JSON(tuning),
		PollInterval: int64(conf.PollInterval),
		Revision:     conf.Revision,
	}, nil
}

func toConfig(rec MinerRecord) (miner.Config, error) {
	tuning := miner.Tuning{}

	if len(rec.Tuning) > 0 {
		if err := json.Unmarshal(rec.Tuning, &tuning); err != nil {
			return miner.Config{}, err
		}
	}

	return miner.Config{
		ID:       rec.ID,
		Name:     rec.Name,
		Kind:     miner.Kind(rec.Kind),
		Address:  rec.Address,
		Port:     rec.Port,
		Username: rec.Username,
		Password: rec.Password,
		Pool: miner.PoolConfig{
			URL:      rec.PoolURL,
			Port:     rec.PoolPort,
			User:     rec.PoolUser,
			Password: rec.PoolPassword,
		},
		Tuning:       tuning,
		PollInterval: time.Duration(rec.PollInterval),
		Revision:     rec.Revision,
	}, nil
}
