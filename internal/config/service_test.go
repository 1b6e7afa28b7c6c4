package config_test

import (
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/robgonnella/hashwatch/internal/config"
	"github.com/robgonnella/hashwatch/internal/exception"
	mock_config "github.com/robgonnella/hashwatch/internal/mock/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigService(t *testing.T) {
	ctrl := gomock.NewController(t)

	defer ctrl.Finish()

	t.Run("gets config with defaults", func(st *testing.T) {
		mockRepo := mock_config.NewMockRepo(ctrl)
		service := config.NewConfigService(mockRepo)

		stored := &config.Config{
			Polling: config.Polling{Interval: 20 * time.Second},
		}

		mockRepo.EXPECT().Load().Return(stored, nil)

		conf, err := service.Get()

		require.NoError(st, err)
		assert.Equal(st, 20*time.Second, conf.Polling.Interval)
		assert.Equal(st, 5*time.Second, conf.Polling.Timeout)
	})

	t.Run("writes defaults when no config exists", func(st *testing.T) {
		mockRepo := mock_config.NewMockRepo(ctrl)
		service := config.NewConfigService(mockRepo)

		mockRepo.EXPECT().Load().Return(nil, exception.ErrRecordNotFound)
		mockRepo.EXPECT().Save(config.Default()).Return(nil)

		conf, err := service.Get()

		require.NoError(st, err)
		assert.Equal(st, config.Default(), conf)
	})

	t.Run("returns load errors", func(st *testing.T) {
		mockRepo := mock_config.NewMockRepo(ctrl)
		service := config.NewConfigService(mockRepo)

		mockRepo.EXPECT().Load().Return(nil, errors.New("permission denied"))

		_, err := service.Get()

		assert.Error(st, err)
	})

	t.Run("applies environment overrides", func(st *testing.T) {
		mockRepo := mock_config.NewMockRepo(ctrl)
		service := config.NewConfigService(mockRepo)

		viper.Set("api-listen", "0.0.0.0:8000")
		viper.Set("redis-addr", "redis:6379")

		defer func() {
			viper.Set("api-listen", "")
			viper.Set("redis-addr", "")
		}()

		mockRepo.EXPECT().Load().Return(config.Default(), nil)

		conf, err := service.Get()

		require.NoError(st, err)
		assert.Equal(st, "0.0.0.0:8000", conf.API.Listen)
		assert.Equal(st, "redis:6379", conf.Redis.Addr)
	})

	t.Run("updates config", func(st *testing.T) {
		mockRepo := mock_config.NewMockRepo(ctrl)
		service := config.NewConfigService(mockRepo)

		conf := config.Default()
		conf.Discovery.Targets = []string{"10.0.0.0/24"}

		mockRepo.EXPECT().Save(conf).Return(nil)

		assert.NoError(st, service.Update(conf))
	})
}
