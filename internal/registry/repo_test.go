package registry_test

import (
	"testing"
	"time"

	"github.com/robgonnella/hashwatch/internal/exception"
	"github.com/robgonnella/hashwatch/internal/miner"
	"github.com/robgonnella/hashwatch/internal/registry"
	"github.com/robgonnella/hashwatch/internal/test_util"
	"github.com/stretchr/testify/assert"
)

func TestMinerSqliteRepo(t *testing.T) {
	db := test_util.TempDB(t, registry.AutoMigrate)

	repo := registry.NewSqliteRepo(db)

	conf := miner.Config{
		ID:       "bitaxe-1",
		Name:     "garage bitaxe",
		Kind:     miner.KindAxeOS,
		Address:  "192.168.1.50",
		Port:     80,
		Username: "admin",
		Password: "secret",
		Pool: miner.PoolConfig{
			URL:      "solo.ckpool.org",
			Port:     3333,
			User:     "bc1qaddress.bitaxe",
			Password: "x",
		},
		Tuning: miner.Tuning{
			FanSpeed:  miner.Int(80),
			Frequency: miner.Int(525),
		},
		PollInterval: 15 * time.Second,
		Revision:     1,
	}

	t.Run("GetMinerByID returns record not found error", func(st *testing.T) {
		_, err := repo.GetMinerByID("noop")

		assert.Error(st, err)
		assert.Equal(st, exception.ErrRecordNotFound, err)
	})

	t.Run("saves miner", func(st *testing.T) {
		err := repo.SaveMiner(conf)

		assert.NoError(st, err)
	})

	t.Run("gets miner by id with identical fields", func(st *testing.T) {
		found, err := repo.GetMinerByID(conf.ID)

		assert.NoError(st, err)
		assert.Equal(st, conf, found)
	})

	t.Run("gets all miners", func(st *testing.T) {
		found, err := repo.GetAllMiners()

		assert.NoError(st, err)
		assert.Equal(st, 1, len(found))
		assert.Equal(st, conf, found[0])
	})

	t.Run("updates miner", func(st *testing.T) {
		updated := conf.Copy()
		updated.Name = "office bitaxe"
		updated.Tuning.PowerLimit = nil
		updated.Tuning.FanSpeed = nil
		updated.Revision = 2

		err := repo.SaveMiner(updated)
		assert.NoError(st, err)

		found, err := repo.GetMinerByID(conf.ID)

		assert.NoError(st, err)
		assert.Equal(st, "office bitaxe", found.Name)
		assert.Nil(st, found.Tuning.FanSpeed)
		assert.Equal(st, uint64(2), found.Revision)
	})

	t.Run("refuses empty id", func(st *testing.T) {
		assert.Error(st, repo.SaveMiner(miner.Config{}))
		assert.Error(st, repo.RemoveMiner(""))
	})

	t.Run("removes miner", func(st *testing.T) {
		err := repo.RemoveMiner(conf.ID)

		assert.NoError(st, err)

		_, err = repo.GetMinerByID(conf.ID)

		assert.Error(st, err)
		assert.Equal(st, exception.ErrRecordNotFound, err)

		assert.Equal(st, exception.ErrRecordNotFound, repo.RemoveMiner(conf.ID))
	})
}
