package commands

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/robgonnella/hashwatch/internal/miner"
	"github.com/spf13/cobra"
)

// creates and returns the "miner" command and its sub-commands
func minerCmd(props *CommandProps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "miner",
		Short: "Manage registered miners",
	}

	cmd.AddCommand(minerAdd(props))
	cmd.AddCommand(minerList(props))
	cmd.AddCommand(minerUpdate(props))
	cmd.AddCommand(minerRemove(props))
	cmd.AddCommand(minerSettings(props))
	cmd.AddCommand(minerHistory(props))

	return cmd
}

type minerFlags struct {
	id           string
	name         string
	kind         string
	port         int
	username     string
	password     string
	pollInterval time.Duration
}

func (f *minerFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.id, "id", "", "miner id (generated when empty)")
	cmd.Flags().StringVar(&f.name, "name", "", "display name")
	cmd.Flags().StringVarP(&f.kind, "kind", "k", string(miner.KindAxeOS), "adapter kind: axeos, cgminer or webui")
	cmd.Flags().IntVarP(&f.port, "port", "p", 0, "port (0 uses the kind's default)")
	cmd.Flags().StringVar(&f.username, "username", "", "web ui username")
	cmd.Flags().StringVar(&f.password, "password", "", "web ui password")
	cmd.Flags().DurationVar(&f.pollInterval, "poll-interval", 0, "poll interval (0 uses config)")
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func minerAdd(props *CommandProps) *cobra.Command {
	flags := &minerFlags{}

	cmd := &cobra.Command{
		Use:   "add <address>",
		Short: "Register a miner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, appCore, err := loadCore(props)

			if err != nil {
				return err
			}

			added, err := appCore.AddMiner(miner.Config{
				ID:           flags.id,
				Name:         flags.name,
				Kind:         miner.Kind(flags.kind),
				Address:      args[0],
				Port:         flags.port,
				Username:     flags.username,
				Password:     flags.password,
				PollInterval: flags.pollInterval,
			})

			if err != nil {
				return err
			}

			return printJSON(cmd, added)
		},
	}

	flags.register(cmd)

	return cmd
}

func minerList(props *CommandProps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered miners",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, appCore, err := loadCore(props)

			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tKIND\tENDPOINT")

			for _, m := range appCore.ListMiners() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.ID, m.Name, m.Kind, m.Endpoint())
			}

			return w.Flush()
		},
	}

	return cmd
}

func minerUpdate(props *CommandProps) *cobra.Command {
	flags := &minerFlags{}
	var address string

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change a registered miner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, appCore, err := loadCore(props)

			if err != nil {
				return err
			}

			conf, err := appCore.GetMiner(args[0])

			if err != nil {
				return err
			}

			changed := cmd.Flags().Changed

			if changed("name") {
				conf.Name = flags.name
			}

			if changed("kind") {
				conf.Kind = miner.Kind(flags.kind)
			}

			if changed("address") {
				conf.Address = address
			}

			if changed("port") {
				conf.Port = flags.port
			}

			if changed("username") {
				conf.Username = flags.username
			}

			if changed("password") {
				conf.Password = flags.password
			}

			if changed("poll-interval") {
				conf.PollInterval = flags.pollInterval
			}

			updated, err := appCore.UpdateMiner(conf)

			if err != nil {
				return err
			}

			return printJSON(cmd, updated)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&address, "address", "", "ip address or hostname")

	return cmd
}

func minerRemove(props *CommandProps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <id>",
		Short: "Deregister a miner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, appCore, err := loadCore(props)

			if err != nil {
				return err
			}

			return appCore.RemoveMiner(args[0])
		},
	}

	return cmd
}

func minerSettings(props *CommandProps) *cobra.Command {
	var pool miner.PoolConfig
	var fanSpeed, frequency, powerLimit int
	var restart bool

	cmd := &cobra.Command{
		Use:   "settings <id>",
		Short: "Push pool or tuning settings to a miner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, appCore, err := loadCore(props)

			if err != nil {
				return err
			}

			changed := cmd.Flags().Changed
			settings := miner.Settings{Restart: restart}

			if changed("pool-url") {
				settings.Pool = &pool
			}

			if changed("fan-speed") {
				settings.Tuning.FanSpeed = miner.Int(fanSpeed)
			}

			if changed("frequency") {
				settings.Tuning.Frequency = miner.Int(frequency)
			}

			if changed("power-limit") {
				settings.Tuning.PowerLimit = miner.Int(powerLimit)
			}

			ack, err := appCore.ApplySettings(cmd.Context(), args[0], settings)

			if err != nil {
				return err
			}

			return printJSON(cmd, ack)
		},
	}

	cmd.Flags().StringVar(&pool.URL, "pool-url", "", "stratum pool url")
	cmd.Flags().IntVar(&pool.Port, "pool-port", 0, "stratum pool port")
	cmd.Flags().StringVar(&pool.User, "pool-user", "", "pool worker name")
	cmd.Flags().StringVar(&pool.Password, "pool-password", "", "pool worker password")
	cmd.Flags().IntVar(&fanSpeed, "fan-speed", 0, "fan speed percent")
	cmd.Flags().IntVar(&frequency, "frequency", 0, "asic frequency in MHz")
	cmd.Flags().IntVar(&powerLimit, "power-limit", 0, "power limit in watts")
	cmd.Flags().BoolVar(&restart, "restart", false, "restart the miner after applying")

	return cmd
}

func minerHistory(props *CommandProps) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "Show recent telemetry and connection changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, appCore, err := loadCore(props)

			if err != nil {
				return err
			}

			snaps, err := appCore.RecentSnapshots(args[0], limit)

			if err != nil {
				return err
			}

			events, err := appCore.ConnectionEvents(args[0], limit)

			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)

			fmt.Fprintln(w, "TIME\tSNAPSHOT")

			for _, s := range snaps {
				fmt.Fprintf(w, "%s\t%s\n", s.Timestamp.Format(time.RFC3339), s)
			}

			fmt.Fprintln(w, "\nTIME\tFROM\tTO\tCAUSE")

			for _, e := range events {
				fmt.Fprintf(
					w,
					"%s\t%s\t%s\t%s\n",
					e.Timestamp.Format(time.RFC3339),
					e.OldState,
					e.NewState,
					e.Cause,
				)
			}

			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "entries to show")

	return cmd
}
