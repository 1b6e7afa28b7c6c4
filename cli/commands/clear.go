package commands

import (
	"os"

	"github.com/robgonnella/hashwatch/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

/**
 * Command to remove config and log files
 */
func clear() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clears config and log files",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.New()

			configFile := viper.GetString("config-file")

			if configFile != "" {
				if err := os.RemoveAll(configFile); err != nil {
					return err
				}
				log.Info().Msg("removed config file")
			}

			logFile := viper.GetString("log-file")

			if logFile != "" {
				if err := os.RemoveAll(logFile); err != nil {
					return err
				}
				log.Info().Msg("removed log file")
			}

			return nil
		},
	}

	return cmd
}
