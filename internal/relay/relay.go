// Package relay republishes live-update events on a redis channel
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/robgonnella/hashwatch/internal/event"
	"github.com/robgonnella/hashwatch/internal/logger"
)

// DefaultChannel redis channel used when none is configured
const DefaultChannel = "hashwatch:events"

// NewClient returns a redis client for addr, which is either host:port or
// a redis:// url
func NewClient(addr, password string, db int) (redis.UniversalClient, error) {
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		opts, err := redis.ParseURL(addr)

		if err != nil {
			return nil, fmt.Errorf("cant parse redis url: %w", err)
		}

		if password != "" {
			opts.Password = password
		}

		return redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:     []string{opts.Addr},
			DB:        opts.DB,
			Username:  opts.Username,
			Password:  opts.Password,
			TLSConfig: opts.TLSConfig,
		}), nil
	}

	if addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{addr},
		Password: password,
		DB:       db,
	}), nil
}

// Relay listens for every live-update event and PUBLISHes it as JSON.
// Events arriving faster than redis accepts them are dropped by the event
// manager, never queued against the scheduler.
type Relay struct {
	log     logger.Logger
	client  Client
	channel string
	events  event.Manager
	buffer  int
	timeout time.Duration
}

// New returns a new Relay
func New(client Client, channel string, events event.Manager, buffer int) *Relay {
	if channel == "" {
		channel = DefaultChannel
	}

	if buffer < 1 {
		buffer = 1
	}

	return &Relay{
		log:     logger.New().Component("relay"),
		client:  client,
		channel: channel,
		events:  events,
		buffer:  buffer,
		timeout: 2 * time.Second,
	}
}

// Run relays events until ctx is cancelled
func (r *Relay) Run(ctx context.Context) error {
	ch := make(chan event.Event, r.buffer)
	id := r.events.RegisterListener(event.AllEvents, ch)

	defer r.events.RemoveListener(id)

	r.log.Info().Str("channel", r.channel).Msg("relaying live updates to redis")

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt := <-ch:
			r.publish(ctx, evt)
		}
	}
}

func (r *Relay) publish(ctx context.Context, evt event.Event) {
	data, err := json.Marshal(evt)

	if err != nil {
		r.log.Warn().Err(err).Str("type", string(evt.Type)).Msg("failed to encode event")
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.client.Publish(pubCtx, r.channel, data).Err(); err != nil {
		r.log.Warn().
			Err(err).
			Str("type", string(evt.Type)).
			Str("id", evt.DeviceID).
			Msg("failed to publish event")
	}
}
