package scenarios

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kilianp07/zonedispatch/core/dispatch"
	"github.com/kilianp07/zonedispatch/core/model"
	"github.com/kilianp07/zonedispatch/core/zonegraph"
	"github.com/kilianp07/zonedispatch/infra/logger"
	"github.com/kilianp07/zonedispatch/infra/mqtt"
	"github.com/kilianp07/zonedispatch/infra/store/memory"
	"github.com/kilianp07/zonedispatch/internal/eventbus"
)

var scenarioClock = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

// RunScenario seeds a memory store with the scenario roster, routes the
// tasks in order and checks every assignee.
func RunScenario(t *testing.T, sc *Scenario) {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	graph, err := zonegraph.New(sc.Edges())
	require.NoError(t, err)

	for _, def := range sc.Workers {
		w, state, err := def.ToModel()
		require.NoError(t, err)
		require.NoError(t, st.PutWorker(ctx, w))
		if state.DeviceOnline {
			state.LastHeartbeat = scenarioClock
		}
		_, err = st.UpdateState(ctx, w.ID, func(s *model.WorkerState) error {
			*s = state
			return nil
		})
		require.NoError(t, err)
	}

	pub := mqtt.NewMockPublisher()
	bus := eventbus.New()
	defer bus.Close()
	cfg := dispatch.Config{RolePolicy: dispatch.RolePolicy(sc.RolePolicy)}
	r, err := dispatch.NewRouter(st, graph, cfg, pub, nil, bus, logger.NopLogger{})
	require.NoError(t, err)
	r.Now = func() time.Time { return scenarioClock }

	for i, def := range sc.Tasks {
		req, err := def.request()
		require.NoError(t, err, "task %d", i)
		task, res, err := r.CreateTask(ctx, req)
		require.NoError(t, err, "task %d", i)
		if def.Expect == "" {
			require.False(t, res.Assigned, "task %d (%s in %s) should escalate", i, def.Type, def.Zone)
			require.Len(t, pub.Escalations, countEscalations(sc.Tasks[:i+1]))
			continue
		}
		require.True(t, res.Assigned, "task %d (%s in %s): %s", i, def.Type, def.Zone, res.Reason)
		require.Equal(t, def.Expect, res.Assignment.WorkerID, "task %d (%s in %s)", i, def.Type, def.Zone)
		if def.Ack != "" {
			action, err := dispatch.ParseAckAction(def.Ack)
			require.NoError(t, err)
			_, err = r.Acknowledge(ctx, task.ID, def.Expect, action)
			require.NoError(t, err)
		}
	}
}

func (d TaskDef) request() (dispatch.TaskRequest, error) {
	tt, err := model.ParseTaskType(d.Type)
	if err != nil {
		return dispatch.TaskRequest{}, err
	}
	prio, err := model.ParsePriority(d.Priority)
	if err != nil {
		return dispatch.TaskRequest{}, err
	}
	if d.Zone == "" {
		return dispatch.TaskRequest{}, fmt.Errorf("task %s without zone", d.Type)
	}
	return dispatch.TaskRequest{
		Type:          tt,
		Zone:          model.ZoneID(d.Zone),
		Priority:      prio,
		RequiredSkill: d.Skill,
		Source:        "scenario",
	}, nil
}

func countEscalations(tasks []TaskDef) int {
	n := 0
	for _, d := range tasks {
		if d.Expect == "" {
			n++
		}
	}
	return n
}
