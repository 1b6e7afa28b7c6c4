package commands

import (
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/robgonnella/hashwatch/internal/discovery"
	"github.com/robgonnella/hashwatch/internal/logger"
	"github.com/robgonnella/hashwatch/internal/util"
	"github.com/spf13/cobra"
)

// creates and returns the "scan" command
func scan(props *CommandProps) *cobra.Command {
	var concurrency int
	var probeTimeout time.Duration
	var scanTimeout time.Duration
	var register bool

	cmd := &cobra.Command{
		Use:   "scan [targets...]",
		Short: "Find miners on the network",
		Long: "Probes each target with every adapter. Targets are addresses, " +
			"cidr blocks (192.168.1.0/24) or ranges (192.168.1.10-40). With no " +
			"targets the configured targets or this machine's network are used.",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.New().Component("scan")

			conf, appCore, err := loadCore(props)

			if err != nil {
				return err
			}

			targets := args

			if len(targets) == 0 && len(conf.Discovery.Targets) == 0 {
				cidr, err := util.DefaultCIDR()

				if err != nil {
					return fmt.Errorf("failed to find default network cidr: %w", err)
				}

				targets = []string{cidr}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			_, results, err := appCore.Scan(ctx, discovery.Request{
				Targets:      targets,
				Concurrency:  concurrency,
				ProbeTimeout: probeTimeout,
				ScanTimeout:  scanTimeout,
			})

			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ADDRESS\tKIND\tPORT\tMODEL\tHOSTNAME\tLATENCY")

			found := []discovery.Result{}

			for r := range results {
				if r.Status != discovery.StatusFound {
					log.Debug().
						Str("address", r.Address).
						Str("status", string(r.Status)).
						Str("reason", string(r.Reason)).
						Msg("no miner")
					continue
				}

				found = append(found, r)

				model, hostname := "", ""

				if r.Identity != nil {
					model, hostname = r.Identity.Model, r.Identity.Hostname
				}

				fmt.Fprintf(
					w,
					"%s\t%s\t%d\t%s\t%s\t%s\n",
					r.Address,
					r.Kind,
					r.Port,
					model,
					hostname,
					r.Latency.Round(time.Millisecond),
				)
			}

			if err := w.Flush(); err != nil {
				return err
			}

			if !register {
				return nil
			}

			for _, r := range found {
				added, err := appCore.AddMiner(r.Config())

				if err != nil {
					log.Warn().Err(err).Str("address", r.Address).Msg("failed to register miner")
					continue
				}

				log.Info().Str("id", added.ID).Str("address", added.Address).Msg("registered miner")
			}

			return nil
		},
	}

	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 0, "probes in flight (0 uses config)")
	cmd.Flags().DurationVar(&probeTimeout, "probe-timeout", 0, "per probe timeout (0 uses config)")
	cmd.Flags().DurationVar(&scanTimeout, "scan-timeout", 0, "overall scan timeout (0 uses config)")
	cmd.Flags().BoolVar(&register, "add", false, "register every miner found")

	return cmd
}
