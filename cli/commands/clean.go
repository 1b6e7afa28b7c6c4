package commands

import (
	"errors"
	"os"

	"github.com/robgonnella/hashwatch/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// creates and returns the "clean" command
func clean() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Removes the database file, deleting registered miners and telemetry",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.New()

			dbFile := viper.GetString("database-file")

			if dbFile != "" {
				if err := os.Remove(dbFile); err != nil && !errors.Is(err, os.ErrNotExist) {
					return err
				}
				log.Info().Msg("removed database file")
			}

			return nil
		},
	}

	return cmd
}
