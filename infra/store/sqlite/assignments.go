package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/zonedispatch/core/model"
	"github.com/kilianp07/zonedispatch/core/store"
)

const assignmentColumns = `id, task_id, worker_id, state, score, reroutes, assigned_at, acknowledged_at, completed_at`

const liveStates = `('pending_ack', 'acked')`

func scanAssignment(sc scanner) (model.Assignment, error) {
	var (
		a                       model.Assignment
		state                   string
		assigned, acked, closed int64
	)
	if err := sc.Scan(&a.ID, &a.TaskID, &a.WorkerID, &state, &a.Score, &a.Reroutes, &assigned, &acked, &closed); err != nil {
		return model.Assignment{}, err
	}
	a.State = model.AssignmentState(state)
	a.AssignedAt = fromUnixNano(assigned)
	a.AcknowledgedAt = fromUnixNano(acked)
	a.CompletedAt = fromUnixNano(closed)
	return a, nil
}

func queryAssignments(ctx context.Context, q querier, where string, args ...any) ([]model.Assignment, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE `+where+` ORDER BY assigned_at`, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Commit performs the assignment transaction.
func (s *Store) Commit(ctx context.Context, a model.Assignment) error {
	return s.withTx(ctx, func(q querier) error {
		t, err := getTask(ctx, q, a.TaskID)
		if err != nil {
			return err
		}
		if _, err := getState(ctx, q, a.WorkerID); err != nil {
			return err
		}
		if t.Status != model.TaskNew {
			return fmt.Errorf("task %s is %s: %w", t.ID, t.Status, store.ErrConflict)
		}
		live, err := queryAssignments(ctx, q, `task_id = ? AND state IN `+liveStates, a.TaskID)
		if err != nil {
			return err
		}
		if len(live) > 0 {
			return fmt.Errorf("task %s already assigned: %w", t.ID, store.ErrConflict)
		}
		if _, err := q.ExecContext(ctx, `INSERT INTO assignments (`+assignmentColumns+`)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.TaskID, a.WorkerID, string(model.AssignmentPendingAck), a.Score, a.Reroutes,
			unixNano(a.AssignedAt), unixNano(a.AcknowledgedAt), unixNano(a.CompletedAt)); err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx, `UPDATE tasks SET status = ? WHERE id = ?`, string(model.TaskAssigned), a.TaskID); err != nil {
			return err
		}
		return addLoad(ctx, q, a.WorkerID, 1)
	})
}

// Release undoes a live assignment.
func (s *Store) Release(ctx context.Context, id string) error {
	return s.withTx(ctx, func(q querier) error {
		a, err := scanAssignment(q.QueryRowContext(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE id = ? AND state IN `+liveStates, id))
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("live assignment", id)
		}
		if err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx, `DELETE FROM assignments WHERE id = ?`, id); err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx, `UPDATE tasks SET status = ? WHERE id = ?`, string(model.TaskNew), a.TaskID); err != nil {
			return err
		}
		err = addLoad(ctx, q, a.WorkerID, -1)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	})
}

func (s *Store) UpdateAssignment(ctx context.Context, a model.Assignment) error {
	res, err := s.db.ExecContext(ctx, `UPDATE assignments SET
            task_id = ?, worker_id = ?, state = ?, score = ?, reroutes = ?,
            assigned_at = ?, acknowledged_at = ?, completed_at = ?
        WHERE id = ?`,
		a.TaskID, a.WorkerID, string(a.State), a.Score, a.Reroutes,
		unixNano(a.AssignedAt), unixNano(a.AcknowledgedAt), unixNano(a.CompletedAt), a.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("assignment", a.ID)
	}
	return nil
}

func (s *Store) LiveAssignment(ctx context.Context, taskID string) (model.Assignment, error) {
	live, err := queryAssignments(ctx, s.db, `task_id = ? AND state IN `+liveStates, taskID)
	if err != nil {
		return model.Assignment{}, err
	}
	if len(live) == 0 {
		return model.Assignment{}, notFound("live assignment for task", taskID)
	}
	return live[0], nil
}

func (s *Store) LiveAssignments(ctx context.Context, workerID string) ([]model.Assignment, error) {
	return queryAssignments(ctx, s.db, `worker_id = ? AND state IN `+liveStates, workerID)
}

func (s *Store) PendingSince(ctx context.Context, cutoff time.Time) ([]model.Assignment, error) {
	return queryAssignments(ctx, s.db, `state = ? AND assigned_at < ?`, string(model.AssignmentPendingAck), cutoff.UnixNano())
}
