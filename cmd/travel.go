package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/zonedispatch/config"
	"github.com/kilianp07/zonedispatch/core/model"
	"github.com/kilianp07/zonedispatch/core/zonegraph"
)

var travelCmd = &cobra.Command{
	Use:   "travel FROM TO",
	Short: "Print the shortest travel time between two zones",
	Args:  cobra.ExactArgs(2),
	RunE:  runTravel,
}

func init() {
	rootCmd.AddCommand(travelCmd)
}

func runTravel(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	g, err := cfg.Topology.Graph()
	if err != nil {
		return err
	}
	from, to := model.ZoneID(args[0]), model.ZoneID(args[1])
	secs := g.ShortestTravelTime(from, to)
	return printJSON(cmd, map[string]any{
		"from":                from,
		"to":                  to,
		"travel_time_seconds": secs,
		"reachable":           secs != zonegraph.Unreachable,
	})
}
