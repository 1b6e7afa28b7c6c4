package commands

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// creates and returns the "config" command
func configCmd(props *CommandProps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := props.Config.Get()

			if err != nil {
				return err
			}

			cmd.Printf("# %s\n", viper.GetString("config-file"))

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)

			if err := enc.Encode(conf); err != nil {
				return err
			}

			return enc.Close()
		},
	}

	return cmd
}
