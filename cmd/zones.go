package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/zonedispatch/config"
	"github.com/kilianp07/zonedispatch/core/dispatch/logging"
	"github.com/kilianp07/zonedispatch/core/model"
	"github.com/kilianp07/zonedispatch/pkg/export"
)

var zoneStatsFlags struct {
	since  time.Duration
	format string
}

var logFlags struct {
	since  time.Duration
	format string
	event  string
	worker string
	zone   string
	task   string
}

var zoneStatsCmd = &cobra.Command{
	Use:   "zone-stats",
	Short: "Summarise dispatch volume and response times per zone",
	RunE:  runZoneStats,
}

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Export dispatch log records",
	RunE:  runLog,
}

func init() {
	zoneStatsCmd.Flags().DurationVar(&zoneStatsFlags.since, "since", 24*time.Hour, "look back window")
	zoneStatsCmd.Flags().StringVar(&zoneStatsFlags.format, "format", export.FormatJSON, "output format (json, csv)")

	logCmd.Flags().DurationVar(&logFlags.since, "since", 24*time.Hour, "look back window")
	logCmd.Flags().StringVar(&logFlags.format, "format", export.FormatJSON, "output format (json, csv)")
	logCmd.Flags().StringVar(&logFlags.event, "event", "", "only this event type")
	logCmd.Flags().StringVar(&logFlags.worker, "worker", "", "only this worker")
	logCmd.Flags().StringVar(&logFlags.zone, "zone", "", "only this zone")
	logCmd.Flags().StringVar(&logFlags.task, "task", "", "only this task")
	rootCmd.AddCommand(zoneStatsCmd, logCmd)
}

// queryLog opens the configured dispatch log and runs q against it.
func queryLog(ctx context.Context, q logging.LogQuery) ([]logging.LogRecord, *config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	ls, err := logging.Open(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	if ls == nil {
		return nil, nil, fmt.Errorf("dispatch log disabled")
	}
	defer ls.Close() //nolint:errcheck
	recs, err := ls.Query(ctx, q)
	return recs, cfg, err
}

func runZoneStats(cmd *cobra.Command, args []string) error {
	recs, cfg, err := queryLog(cmd.Context(), logging.LogQuery{Start: time.Now().Add(-zoneStatsFlags.since)})
	if err != nil {
		return err
	}
	return export.WriteZoneMetrics(cmd.OutOrStdout(), zoneStatsFlags.format, logging.SummarizeZones(recs, cfg.Topology.Zones))
}

func runLog(cmd *cobra.Command, args []string) error {
	recs, _, err := queryLog(cmd.Context(), logging.LogQuery{
		Start:    time.Now().Add(-logFlags.since),
		Event:    logging.EventType(logFlags.event),
		TaskID:   logFlags.task,
		WorkerID: logFlags.worker,
		Zone:     model.ZoneID(logFlags.zone),
	})
	if err != nil {
		return err
	}
	return export.WriteRecords(cmd.OutOrStdout(), logFlags.format, recs)
}
