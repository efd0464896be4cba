// Package sqlite implements store.Store on SQLite. Commit and Release run in
// a transaction and a partial unique index keeps at most one live
// assignment per task.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kilianp07/zonedispatch/core/model"
	"github.com/kilianp07/zonedispatch/core/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    zone TEXT NOT NULL,
    priority TEXT NOT NULL,
    status TEXT NOT NULL,
    required_skill TEXT,
    source TEXT,
    description TEXT,
    created_at INTEGER
);
CREATE TABLE IF NOT EXISTS workers (
    id TEXT PRIMARY KEY,
    name TEXT,
    role TEXT NOT NULL,
    primary_skills TEXT,
    secondary_skills TEXT,
    reliability REAL,
    on_shift INTEGER
);
CREATE TABLE IF NOT EXISTS worker_states (
    worker_id TEXT PRIMARY KEY,
    record TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS assignments (
    id TEXT PRIMARY KEY,
    task_id TEXT NOT NULL,
    worker_id TEXT NOT NULL,
    state TEXT NOT NULL,
    score REAL,
    reroutes INTEGER,
    assigned_at INTEGER,
    acknowledged_at INTEGER,
    completed_at INTEGER
);
CREATE UNIQUE INDEX IF NOT EXISTS assignments_live_task
    ON assignments(task_id) WHERE state IN ('pending_ack', 'acked');
CREATE INDEX IF NOT EXISTS assignments_worker ON assignments(worker_id);`

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store persists dispatch state in SQLite.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// New opens or creates the database at path and ensures schema.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection serialises transactions and keeps in-memory databases
	// alive.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) withTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(0, v).UTC()
}

// Tasks

func (s *Store) CreateTask(ctx context.Context, t model.Task) error {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE id = ?`, t.ID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists > 0 {
		return fmt.Errorf("task %s exists: %w", t.ID, store.ErrConflict)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO tasks
        (id, type, zone, priority, status, required_skill, source, description, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Type.String(), string(t.Zone), t.Priority.String(), string(t.Status),
		t.RequiredSkill, t.Source, t.Description, unixNano(t.CreatedAt))
	return err
}

func (s *Store) GetTask(ctx context.Context, id string) (model.Task, error) {
	return getTask(ctx, s.db, id)
}

func getTask(ctx context.Context, q querier, id string) (model.Task, error) {
	var (
		t                     model.Task
		typ, zone, prio, stat string
		skill, source, descr  sql.NullString
		created               int64
	)
	err := q.QueryRowContext(ctx, `SELECT id, type, zone, priority, status, required_skill, source, description, created_at
        FROM tasks WHERE id = ?`, id).Scan(&t.ID, &typ, &zone, &prio, &stat, &skill, &source, &descr, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Task{}, notFound("task", id)
	}
	if err != nil {
		return model.Task{}, err
	}
	if t.Type, err = model.ParseTaskType(typ); err != nil {
		return model.Task{}, err
	}
	if t.Priority, err = model.ParsePriority(prio); err != nil {
		return model.Task{}, err
	}
	t.Zone = model.ZoneID(zone)
	t.Status = model.TaskStatus(stat)
	t.RequiredSkill, t.Source, t.Description = skill.String, source.String, descr.String
	t.CreatedAt = fromUnixNano(created)
	return t, nil
}

func (s *Store) SetTaskStatus(ctx context.Context, id string, status model.TaskStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("task", id)
	}
	return nil
}

// Workers

func (s *Store) PutWorker(ctx context.Context, w model.Worker) error {
	return s.withTx(ctx, func(q querier) error {
		if err := putWorker(ctx, q, w); err != nil {
			return err
		}
		rec, err := json.Marshal(model.WorkerState{WorkerID: w.ID})
		if err != nil {
			return err
		}
		_, err = q.ExecContext(ctx, `INSERT INTO worker_states (worker_id, record) VALUES (?, ?)
            ON CONFLICT(worker_id) DO NOTHING`, w.ID, string(rec))
		return err
	})
}

func putWorker(ctx context.Context, q querier, w model.Worker) error {
	primary, err := json.Marshal(w.PrimarySkills)
	if err != nil {
		return err
	}
	secondary, err := json.Marshal(w.SecondarySkills)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `INSERT INTO workers (id, name, role, primary_skills, secondary_skills, reliability, on_shift)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            name = excluded.name,
            role = excluded.role,
            primary_skills = excluded.primary_skills,
            secondary_skills = excluded.secondary_skills,
            reliability = excluded.reliability,
            on_shift = excluded.on_shift`,
		w.ID, w.Name, w.Role.String(), string(primary), string(secondary), w.Reliability, w.OnShift)
	return err
}

const workerColumns = `id, name, role, primary_skills, secondary_skills, reliability, on_shift`

type scanner interface{ Scan(dest ...any) error }

func scanWorker(sc scanner) (model.Worker, error) {
	var (
		w                  model.Worker
		role               string
		primary, secondary sql.NullString
	)
	if err := sc.Scan(&w.ID, &w.Name, &role, &primary, &secondary, &w.Reliability, &w.OnShift); err != nil {
		return model.Worker{}, err
	}
	var err error
	if w.Role, err = model.ParseRole(role); err != nil {
		return model.Worker{}, err
	}
	if primary.Valid {
		if err := json.Unmarshal([]byte(primary.String), &w.PrimarySkills); err != nil {
			return model.Worker{}, fmt.Errorf("decode skills: %w", err)
		}
	}
	if secondary.Valid {
		if err := json.Unmarshal([]byte(secondary.String), &w.SecondarySkills); err != nil {
			return model.Worker{}, fmt.Errorf("decode skills: %w", err)
		}
	}
	return w, nil
}

func getWorker(ctx context.Context, q querier, id string) (model.Worker, error) {
	w, err := scanWorker(q.QueryRowContext(ctx, `SELECT `+workerColumns+` FROM workers WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Worker{}, notFound("worker", id)
	}
	return w, err
}

func (s *Store) GetWorker(ctx context.Context, id string) (model.Worker, error) {
	return getWorker(ctx, s.db, id)
}

func (s *Store) UpdateWorker(ctx context.Context, id string, fn func(*model.Worker) error) (model.Worker, error) {
	var out model.Worker
	err := s.withTx(ctx, func(q querier) error {
		w, err := getWorker(ctx, q, id)
		if err != nil {
			return err
		}
		if err := fn(&w); err != nil {
			return err
		}
		w.ID = id
		out = w
		return putWorker(ctx, q, w)
	})
	return out, err
}

func (s *Store) ListWorkers(ctx context.Context, f store.WorkerFilter) ([]model.Worker, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+workerColumns+` FROM workers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, err
		}
		if f.Match(w) {
			out = append(out, w)
		}
	}
	return out, rows.Err()
}

// Worker state

func getState(ctx context.Context, q querier, id string) (model.WorkerState, error) {
	var rec string
	err := q.QueryRowContext(ctx, `SELECT record FROM worker_states WHERE worker_id = ?`, id).Scan(&rec)
	if errors.Is(err, sql.ErrNoRows) {
		return model.WorkerState{}, notFound("worker state", id)
	}
	if err != nil {
		return model.WorkerState{}, err
	}
	var st model.WorkerState
	if err := json.Unmarshal([]byte(rec), &st); err != nil {
		return model.WorkerState{}, fmt.Errorf("decode worker state: %w", err)
	}
	return st, nil
}

func putState(ctx context.Context, q querier, st model.WorkerState) error {
	rec, err := json.Marshal(st)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `UPDATE worker_states SET record = ? WHERE worker_id = ?`, string(rec), st.WorkerID)
	return err
}

func (s *Store) GetState(ctx context.Context, id string) (model.WorkerState, error) {
	return getState(ctx, s.db, id)
}

func (s *Store) UpdateState(ctx context.Context, id string, fn func(*model.WorkerState) error) (model.WorkerState, error) {
	var out model.WorkerState
	err := s.withTx(ctx, func(q querier) error {
		st, err := getState(ctx, q, id)
		if err != nil {
			return err
		}
		if err := fn(&st); err != nil {
			return err
		}
		st.WorkerID = id
		out = st
		return putState(ctx, q, st)
	})
	return out, err
}

func addLoad(ctx context.Context, q querier, workerID string, delta int) error {
	st, err := getState(ctx, q, workerID)
	if err != nil {
		return err
	}
	st.AddLoad(delta)
	return putState(ctx, q, st)
}
