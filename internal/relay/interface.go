package relay

import (
	"context"

	"github.com/go-redis/redis/v8"
)

//go:generate mockgen -destination=../mock/relay/mock_relay.go -package=mock_relay . Client

// Client is the slice of the redis client the relay needs
type Client interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}
