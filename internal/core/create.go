package core

import (
	"github.com/robgonnella/hashwatch/internal/adapter"
	"github.com/robgonnella/hashwatch/internal/adapter/axeos"
	"github.com/robgonnella/hashwatch/internal/adapter/cgminer"
	"github.com/robgonnella/hashwatch/internal/adapter/webui"
	"github.com/robgonnella/hashwatch/internal/config"
	"github.com/robgonnella/hashwatch/internal/discovery"
	"github.com/robgonnella/hashwatch/internal/registry"
	"github.com/robgonnella/hashwatch/internal/relay"
	"github.com/robgonnella/hashwatch/internal/storage"
)

// CreateNewAppCore creates and returns a new instance of *core.Core backed
// by the sqlite database and loaded with every persisted miner
func CreateNewAppCore(conf config.Config) (*Core, error) {
	db, err := storage.NewSqliteDatabase(registry.AutoMigrate, storage.AutoMigrate)

	if err != nil {
		return nil, err
	}

	reg := registry.New(registry.NewSqliteRepo(db))
	store := storage.NewSqliteStore(db)

	catalog := adapter.NewCatalog(
		axeos.New(axeos.WithTimeout(conf.Polling.Timeout)),
		cgminer.New(cgminer.WithTimeout(conf.Polling.Timeout)),
		webui.New(
			webui.WithTimeout(conf.Polling.Timeout),
			webui.WithSelectors(conf.WebUI.Selectors),
		),
	)

	var sweeper discovery.Sweeper

	if conf.Discovery.Sweeper == config.SweeperNmap {
		sweeper = discovery.NewNmapSweeper()
	}

	appCore := New(conf, reg, store, catalog, sweeper)

	if conf.Redis.Addr != "" {
		client, err := relay.NewClient(conf.Redis.Addr, conf.Redis.Password, conf.Redis.DB)

		if err != nil {
			return nil, err
		}

		appCore.relay = relay.New(
			client,
			conf.Redis.Channel,
			appCore.events,
			conf.Broadcast.BufferSize,
		)
	}

	if err := appCore.Load(); err != nil {
		return nil, err
	}

	return appCore, nil
}
