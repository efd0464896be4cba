package cmd

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/spf13/cobra"

	"github.com/kilianp07/zonedispatch/config"
	"github.com/kilianp07/zonedispatch/core/positioning"
)

var locateFlags struct {
	survey string
	scan   string
}

var locateCmd = &cobra.Command{
	Use:   "locate",
	Short: "Estimate a position from a JSON scan file",
	RunE:  runLocate,
}

var accuracyFlags struct {
	survey  string
	samples int
	seed    uint64
}

var accuracyCmd = &cobra.Command{
	Use:   "accuracy",
	Short: "Replay simulated scans at every surveyed point and report the position error",
	RunE:  runAccuracy,
}

func init() {
	locateCmd.Flags().StringVar(&locateFlags.survey, "survey", "", "survey file, defaults to positioning.survey")
	locateCmd.Flags().StringVar(&locateFlags.scan, "scan", "", "JSON array of {bssid, rssi} measurements")
	_ = locateCmd.MarkFlagRequired("scan")
	accuracyCmd.Flags().StringVar(&accuracyFlags.survey, "survey", "", "survey file, defaults to positioning.survey")
	accuracyCmd.Flags().IntVar(&accuracyFlags.samples, "samples", 20, "simulated scans per reference point")
	accuracyCmd.Flags().Uint64Var(&accuracyFlags.seed, "seed", 1, "random seed")
	rootCmd.AddCommand(locateCmd, accuracyCmd)
}

// loadEngine builds a positioning engine from the configured or given survey.
func loadEngine(path string) (*positioning.Engine, *positioning.Survey, positioning.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, positioning.Config{}, fmt.Errorf("load config: %w", err)
	}
	if path == "" {
		path = cfg.Positioning.Survey
	}
	if path == "" {
		return nil, nil, cfg.Positioning, fmt.Errorf("no survey file configured")
	}
	survey, err := positioning.LoadSurvey(path)
	if err != nil {
		return nil, nil, cfg.Positioning, err
	}
	radio := positioning.NewRadioMap()
	survey.Apply(radio, positioning.NewAPZoneMapper(cfg.Positioning))
	return positioning.NewEngine(radio, cfg.Positioning), survey, cfg.Positioning, nil
}

func runLocate(cmd *cobra.Command, args []string) error {
	engine, _, _, err := loadEngine(locateFlags.survey)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(locateFlags.scan)
	if err != nil {
		return err
	}
	var ms []positioning.Measurement
	if err := json.Unmarshal(data, &ms); err != nil {
		return fmt.Errorf("decode scan: %w", err)
	}
	return printJSON(cmd, engine.Hybrid(ms))
}

type accuracyOutput struct {
	positioning.AccuracyMetrics
	Samples  int     `json:"samples"`
	ZoneHits float64 `json:"zone_hit_rate"`
}

func runAccuracy(cmd *cobra.Command, args []string) error {
	engine, survey, pcfg, err := loadEngine(accuracyFlags.survey)
	if err != nil {
		return err
	}
	aps := make([]positioning.SimulatedAP, 0, len(survey.AccessPoints))
	for _, ap := range survey.AccessPoints {
		aps = append(aps, positioning.SimulatedAP{BSSID: ap.BSSID, Zone: ap.Zone, BaseRSSI: ap.RSSI})
	}
	rng := rand.New(rand.NewPCG(accuracyFlags.seed, accuracyFlags.seed))
	var samples []positioning.AccuracySample
	var hits int
	for _, p := range survey.ReferencePoints {
		for i := 0; i < accuracyFlags.samples; i++ {
			res := engine.Hybrid(positioning.Simulate(rng, p.Zone, aps, pcfg))
			if res.Position == nil {
				continue
			}
			if res.Position.Zone == p.Zone {
				hits++
			}
			samples = append(samples, positioning.AccuracySample{
				Estimated: positioning.Point{X: res.Position.X, Y: res.Position.Y},
				Actual:    positioning.Point{X: p.X, Y: p.Y},
			})
		}
	}
	out := accuracyOutput{AccuracyMetrics: positioning.Accuracy(samples), Samples: len(samples)}
	if len(samples) > 0 {
		out.ZoneHits = float64(hits) / float64(len(samples))
	}
	return printJSON(cmd, out)
}
