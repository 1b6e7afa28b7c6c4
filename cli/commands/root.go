package commands

import (
	app_info "github.com/robgonnella/hashwatch/internal/app-info"
	"github.com/robgonnella/hashwatch/internal/config"
	"github.com/robgonnella/hashwatch/internal/core"
	"github.com/robgonnella/hashwatch/internal/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// CommandProps injected props that can be made available to all commands
type CommandProps struct {
	Config *config.ConfigService
}

// loadCore reads configuration and builds a loaded core. Commands that do
// not touch miners never open the database.
func loadCore(props *CommandProps) (*config.Config, *core.Core, error) {
	conf, err := props.Config.Get()

	if err != nil {
		return nil, nil, err
	}

	appCore, err := core.CreateNewAppCore(*conf)

	if err != nil {
		return nil, nil, err
	}

	return conf, appCore, nil
}

// Root builds and returns our root command
func Root(props *CommandProps) *cobra.Command {
	var verbose bool
	var silent bool
	var logToFile bool

	cmd := &cobra.Command{
		Use:   app_info.NAME,
		Short: "Monitor and manage bitcoin miners on your network",
		// This runs before all commands and all sub-commands
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// set logging verbosity for all loggers
			zerolog.SetGlobalLevel(zerolog.InfoLevel)

			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}

			if silent {
				zerolog.SetGlobalLevel(zerolog.Disabled)
			}

			if logToFile {
				return logger.GlobalSetLogFile(viper.GetString("log-file"))
			}

			return nil
		},
	}

	// Persistent flags available to all commands
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show debug logs")
	cmd.PersistentFlags().BoolVar(&silent, "silent", false, "disables all logging")
	cmd.PersistentFlags().BoolVar(&logToFile, "log-to-file", false, "write logs to the log file instead of stderr")

	cmd.AddCommand(monitor(props))
	cmd.AddCommand(scan(props))
	cmd.AddCommand(minerCmd(props))
	cmd.AddCommand(stateCmd(props))
	cmd.AddCommand(configCmd(props))
	cmd.AddCommand(info())
	cmd.AddCommand(clean())
	cmd.AddCommand(clear())
	cmd.AddCommand(version())

	return cmd
}
