package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/robgonnella/hashwatch/internal/state"
	"github.com/spf13/cobra"
)

// creates and returns the "state" command
func stateCmd(props *CommandProps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Show each miner's last recorded connection state",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, appCore, err := loadCore(props)

			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSTATE\tSINCE\tLAST SNAPSHOT")

			for _, m := range appCore.ListMiners() {
				current := string(state.Disconnected)
				since := "-"
				last := "-"

				events, err := appCore.ConnectionEvents(m.ID, 1)

				if err == nil && len(events) > 0 {
					current = string(events[0].NewState)
					since = events[0].Timestamp.Format(time.RFC3339)
				}

				snaps, err := appCore.RecentSnapshots(m.ID, 1)

				if err == nil && len(snaps) > 0 {
					last = snaps[0].String()
				}

				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", m.ID, m.Name, current, since, last)
			}

			return w.Flush()
		},
	}

	return cmd
}
