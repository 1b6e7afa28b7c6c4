package discovery

import (
	"context"
	"strconv"

	"github.com/Ullaakut/nmap/v3"
	"github.com/robgonnella/hashwatch/internal/logger"
)

// NmapSweeper runs an nmap ping sweep ahead of adapter probing
type NmapSweeper struct {
	log logger.Logger
}

// NewNmapSweeper returns a new instance of NmapSweeper
func NewNmapSweeper() *NmapSweeper {
	return &NmapSweeper{
		log: logger.New().Component("nmap"),
	}
}

// Sweep returns the subset of hosts nmap reports as up
func (s *NmapSweeper) Sweep(ctx context.Context, hosts []string) ([]string, error) {
	scanner, err := nmap.NewScanner(
		ctx,
		nmap.WithTargets(hosts...),
		nmap.WithPingScan(),
		nmap.WithTimingTemplate(nmap.TimingAggressive),
	)

	if err != nil {
		return nil, err
	}

	s.log.Debug().Int("hosts", len(hosts)).Msg("running ping sweep")

	result, warnings, err := scanner.Run()

	if warnings != nil && len(*warnings) > 0 {
		fields := map[string]interface{}{}

		for i, warning := range *warnings {
			fields[strconv.Itoa(i)] = warning
		}

		s.log.Warn().
			Fields(fields).
			Msg("encountered ping sweep warnings")
	}

	if err != nil {
		return nil, err
	}

	up := []string{}

	for _, host := range result.Hosts {
		if host.Status.String() != "up" || len(host.Addresses) == 0 {
			continue
		}

		up = append(up, host.Addresses[0].String())
	}

	return up, nil
}
