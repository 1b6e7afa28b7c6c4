package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robgonnella/hashwatch/internal/api"
	"github.com/robgonnella/hashwatch/internal/logger"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// creates and returns the "monitor" command
func monitor(props *CommandProps) *cobra.Command {
	var listen string
	var noAPI bool

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Poll every registered miner and serve the http api",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.New().Component("monitor")

			conf, appCore, err := loadCore(props)

			if err != nil {
				return err
			}

			if listen != "" {
				conf.API.Listen = listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			g, gctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				return appCore.Monitor(gctx)
			})

			if !noAPI && !conf.API.Disabled {
				server := api.New(appCore, conf.Broadcast.BufferSize)

				g.Go(func() error {
					return server.Start(conf.API.Listen)
				})

				g.Go(func() error {
					<-gctx.Done()

					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()

					return server.Shutdown(shutdownCtx)
				})
			}

			err = g.Wait()

			log.Info().Msg("shutdown complete")

			return err
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "http api listen address (overrides config)")
	cmd.Flags().BoolVar(&noAPI, "no-api", false, "poll only, without the http api")

	return cmd
}
