// Package storetest holds the behaviour suite every store.Store
// implementation must pass.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/zonedispatch/core/model"
	"github.com/kilianp07/zonedispatch/core/store"
)

var t0 = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

// Run executes the suite against stores built by newStore.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("Roster", func(t *testing.T) { testRoster(t, newStore(t)) })
	t.Run("Tasks", func(t *testing.T) { testTasks(t, newStore(t)) })
	t.Run("UpdateState", func(t *testing.T) { testUpdateState(t, newStore(t)) })
	t.Run("CommitRelease", func(t *testing.T) { testCommitRelease(t, newStore(t)) })
	t.Run("ConcurrentCommit", func(t *testing.T) { testConcurrentCommit(t, newStore(t)) })
	t.Run("Pending", func(t *testing.T) { testPending(t, newStore(t)) })
}

func seed(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.PutWorker(ctx, model.Worker{ID: "w1", Name: "Ana", Role: model.RoleHousekeeping, PrimarySkills: []string{"linen"}, Reliability: 0.9, OnShift: true}))
	require.NoError(t, s.PutWorker(ctx, model.Worker{ID: "w2", Name: "Bo", Role: model.RoleMaintenance, Reliability: 0.7, OnShift: true}))
	require.NoError(t, s.PutWorker(ctx, model.Worker{ID: "w3", Name: "Cy", Role: model.RoleHousekeeping, Reliability: 0.8}))
	require.NoError(t, s.CreateTask(ctx, model.Task{ID: "t1", Type: model.TaskTowels, Zone: "f2", Priority: model.PriorityHigh, Status: model.TaskNew, CreatedAt: t0}))
}

func testRoster(t *testing.T, s store.Store) {
	ctx := context.Background()
	seed(t, s)

	w, err := s.GetWorker(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, []string{"linen"}, w.PrimarySkills)
	assert.Equal(t, model.RoleHousekeeping, w.Role)

	hk := model.RoleHousekeeping
	onShift, err := s.ListWorkers(ctx, store.WorkerFilter{Role: &hk, OnShiftOnly: true})
	require.NoError(t, err)
	require.Len(t, onShift, 1)
	assert.Equal(t, "w1", onShift[0].ID)

	all, err := s.ListWorkers(ctx, store.WorkerFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	w, err = s.UpdateWorker(ctx, "w2", func(w *model.Worker) error { w.Nudge(0.5); return nil })
	require.NoError(t, err)
	assert.Equal(t, 1.0, w.Reliability)

	_, err = s.GetWorker(ctx, "nobody")
	assert.True(t, errors.Is(err, store.ErrNotFound))

	st, err := s.GetState(ctx, "w3")
	require.NoError(t, err)
	assert.Equal(t, "w3", st.WorkerID)
	assert.False(t, st.HasZone())

	_, err = s.GetState(ctx, "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testTasks(t *testing.T, s store.Store) {
	ctx := context.Background()
	seed(t, s)

	got, err := s.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskTowels, got.Type)
	assert.Equal(t, model.PriorityHigh, got.Priority)
	assert.True(t, got.CreatedAt.Equal(t0))

	require.NoError(t, s.SetTaskStatus(ctx, "t1", model.TaskCancelled))
	got, _ = s.GetTask(ctx, "t1")
	assert.Equal(t, model.TaskCancelled, got.Status)

	err = s.CreateTask(ctx, model.Task{ID: "t1", Status: model.TaskNew})
	assert.True(t, errors.Is(err, store.ErrConflict))
	assert.True(t, errors.Is(s.SetTaskStatus(ctx, "nope", model.TaskNew), store.ErrNotFound))
}

func testUpdateState(t *testing.T, s store.Store) {
	ctx := context.Background()
	seed(t, s)

	st, err := s.UpdateState(ctx, "w1", func(st *model.WorkerState) error {
		st.CurrentZone = "lobby"
		st.ZoneSource = model.SourceWiFi
		st.ZoneUpdatedAt = t0
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, model.ZoneID("lobby"), st.CurrentZone)

	boom := errors.New("boom")
	_, err = s.UpdateState(ctx, "w1", func(st *model.WorkerState) error {
		st.CurrentZone = "spa"
		return boom
	})
	assert.ErrorIs(t, err, boom)
	st, _ = s.GetState(ctx, "w1")
	assert.Equal(t, model.ZoneID("lobby"), st.CurrentZone)
	assert.True(t, st.ZoneUpdatedAt.Equal(t0))

	_, err = s.UpdateState(ctx, "ghost", func(*model.WorkerState) error { return nil })
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testCommitRelease(t *testing.T, s store.Store) {
	ctx := context.Background()
	seed(t, s)

	a := model.Assignment{ID: "a1", TaskID: "t1", WorkerID: "w1", Score: 91.5, AssignedAt: t0}
	require.NoError(t, s.Commit(ctx, a))

	task, _ := s.GetTask(ctx, "t1")
	assert.Equal(t, model.TaskAssigned, task.Status)
	st, _ := s.GetState(ctx, "w1")
	assert.Equal(t, 1, st.ActiveTaskCount)

	live, err := s.LiveAssignment(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, model.AssignmentPendingAck, live.State)
	assert.Equal(t, 91.5, live.Score)

	err = s.Commit(ctx, model.Assignment{ID: "a2", TaskID: "t1", WorkerID: "w3", AssignedAt: t0})
	assert.ErrorIs(t, err, store.ErrConflict)
	st, _ = s.GetState(ctx, "w3")
	assert.Zero(t, st.ActiveTaskCount, "rejected commit must not touch load")

	require.NoError(t, s.Release(ctx, "a1"))
	task, _ = s.GetTask(ctx, "t1")
	assert.Equal(t, model.TaskNew, task.Status)
	st, _ = s.GetState(ctx, "w1")
	assert.Zero(t, st.ActiveTaskCount)
	_, err = s.LiveAssignment(ctx, "t1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.Release(ctx, "a1"), store.ErrNotFound)

	a.ID = "a3"
	a.Reroutes = 1
	require.NoError(t, s.Commit(ctx, a))
	a.State = model.AssignmentCompleted
	a.CompletedAt = t0.Add(time.Minute)
	require.NoError(t, s.UpdateAssignment(ctx, a))
	ws, err := s.LiveAssignments(ctx, "w1")
	require.NoError(t, err)
	assert.Empty(t, ws)
}

func testConcurrentCommit(t *testing.T, s store.Store) {
	ctx := context.Background()
	seed(t, s)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok, clash int
	)
	for i, w := range []string{"w1", "w3", "w1", "w3"} {
		wg.Add(1)
		go func(i int, w string) {
			defer wg.Done()
			err := s.Commit(ctx, model.Assignment{ID: "race" + string(rune('a'+i)), TaskID: "t1", WorkerID: w, AssignedAt: t0})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, store.ErrConflict):
				clash++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i, w)
	}
	wg.Wait()
	assert.Equal(t, 1, ok)
	assert.Equal(t, 3, clash)

	w1, _ := s.GetState(ctx, "w1")
	w3, _ := s.GetState(ctx, "w3")
	assert.Equal(t, 1, w1.ActiveTaskCount+w3.ActiveTaskCount)
}

func testPending(t *testing.T, s store.Store) {
	ctx := context.Background()
	seed(t, s)
	require.NoError(t, s.CreateTask(ctx, model.Task{ID: "t2", Type: model.TaskTrash, Zone: "f1", Status: model.TaskNew, CreatedAt: t0}))
	require.NoError(t, s.Commit(ctx, model.Assignment{ID: "old", TaskID: "t1", WorkerID: "w1", AssignedAt: t0}))
	require.NoError(t, s.Commit(ctx, model.Assignment{ID: "new", TaskID: "t2", WorkerID: "w1", AssignedAt: t0.Add(5 * time.Minute)}))

	pending, err := s.PendingSince(ctx, t0.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "old", pending[0].ID)

	live, err := s.LiveAssignments(ctx, "w1")
	require.NoError(t, err)
	require.Len(t, live, 2)
	assert.Equal(t, "old", live[0].ID)
}
