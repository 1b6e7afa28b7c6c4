package commands

import (
	"fmt"
	"os/exec"

	app_info "github.com/robgonnella/hashwatch/internal/app-info"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func info() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Print detailed app info",
		Run: func(cmd *cobra.Command, args []string) {
			nmapInfo, err := exec.Command("nmap", "--version").Output()

			if err != nil {
				nmapInfo = []byte("nmap not found: ping sweeps unavailable\n")
			}

			fmt.Fprintf(
				cmd.OutOrStdout(),
				"%s: %s\n\nconfig:   %s\ndatabase: %s\nlog:      %s\n\n%s",
				app_info.NAME,
				app_info.VERSION,
				viper.GetString("config-file"),
				viper.GetString("database-file"),
				viper.GetString("log-file"),
				nmapInfo,
			)
		},
	}

	return cmd
}
