package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/zonedispatch/app"
	"github.com/kilianp07/zonedispatch/config"
	"github.com/kilianp07/zonedispatch/core/dispatch"
	"github.com/kilianp07/zonedispatch/core/model"
	"github.com/kilianp07/zonedispatch/core/scoring"
)

var routeFlags struct {
	taskType string
	zone     string
	priority string
	skill    string
}

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Create a task and print the routing decision",
	RunE:  runRoute,
}

func init() {
	f := routeCmd.Flags()
	f.StringVar(&routeFlags.taskType, "type", "cleaning", "task type")
	f.StringVar(&routeFlags.zone, "zone", "", "task zone")
	f.StringVar(&routeFlags.priority, "priority", "normal", "task priority")
	f.StringVar(&routeFlags.skill, "skill", "", "required skill")
	_ = routeCmd.MarkFlagRequired("zone")
	rootCmd.AddCommand(routeCmd)
}

type legacyRank struct {
	WorkerID string  `json:"worker_id"`
	Score    float64 `json:"total_score"`
	Band     string  `json:"band"`
	Penalty  float64 `json:"legacy_penalty"`
}

type routeOutput struct {
	Task   model.Task           `json:"task"`
	Route  dispatch.RouteResult `json:"routing"`
	Legacy []legacyRank         `json:"legacy_comparison"`
}

func runRoute(cmd *cobra.Command, args []string) error {
	tt, err := model.ParseTaskType(routeFlags.taskType)
	if err != nil {
		return err
	}
	prio, err := model.ParsePriority(routeFlags.priority)
	if err != nil {
		return err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer svc.Close() //nolint:errcheck

	ctx := cmd.Context()
	task, res, err := svc.Router.CreateTask(ctx, dispatch.TaskRequest{
		Type:          tt,
		Zone:          model.ZoneID(routeFlags.zone),
		Priority:      prio,
		RequiredSkill: routeFlags.skill,
		Source:        "cli",
	})
	if err != nil {
		return err
	}
	out := routeOutput{Task: task, Route: res}
	for _, c := range res.Candidates {
		w, err := svc.Store.GetWorker(ctx, c.WorkerID)
		if err != nil {
			return err
		}
		st, err := svc.Store.GetState(ctx, c.WorkerID)
		hasState := err == nil && st.HasZone()
		out.Legacy = append(out.Legacy, legacyRank{
			WorkerID: c.WorkerID,
			Score:    c.Total,
			Band:     scoring.Band(c.Total),
			Penalty:  scoring.LegacyPenalty(scoring.NewWorkerInput(w, st), c.TravelSeconds, hasState),
		})
	}
	return printJSON(cmd, out)
}
