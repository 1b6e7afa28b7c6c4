package core

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"
)

// Monitor polls every registered miner until ctx is cancelled or Stop is
// called. Per-device failures never end monitoring.
func (c *Core) Monitor(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	c.mux.Lock()
	c.cancel = cancel
	c.mux.Unlock()

	defer cancel()

	c.log.Info().Int("miners", len(c.registry.List())).Msg("starting monitor")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ignoreCanceled(c.scheduler.Run(gctx))
	})

	if c.relay != nil {
		g.Go(func() error {
			return c.relay.Run(gctx)
		})
	}

	if c.store != nil && c.conf.Storage.Retention > 0 {
		g.Go(func() error {
			return c.prune(gctx)
		})
	}

	err := g.Wait()

	if err != nil {
		c.log.Error().Err(err).Msg("monitor failed")
		c.events.ReportFatalError(err)
	}

	c.publisher.Close()

	c.log.Info().Msg("monitor stopped")

	return err
}

// Stop ends Monitor
func (c *Core) Stop() {
	c.mux.Lock()
	defer c.mux.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
}

func (c *Core) prune(ctx context.Context) error {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		cutoff := time.Now().Add(-c.conf.Storage.Retention)

		removed, err := c.store.Prune(cutoff)

		if err != nil {
			c.log.Warn().Err(err).Msg("failed to prune telemetry")
		} else if removed > 0 {
			c.log.Info().Int64("removed", removed).Time("cutoff", cutoff).Msg("pruned telemetry")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}
