// Package store declares the persistence capabilities the router and the
// tracker depend on. Implementations live under infra/store.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/kilianp07/zonedispatch/core/model"
)

var (
	// ErrNotFound is returned when a task, worker, state or assignment does
	// not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned by Commit when the task is no longer routable.
	ErrConflict = errors.New("store: conflict")
)

// WorkerFilter selects roster entries. A nil Role matches every role.
type WorkerFilter struct {
	Role        *model.Role
	OnShiftOnly bool
}

// Match reports whether w passes the filter.
func (f WorkerFilter) Match(w model.Worker) bool {
	if f.Role != nil && w.Role != *f.Role {
		return false
	}
	return !f.OnShiftOnly || w.OnShift
}

// TaskStore persists tasks.
type TaskStore interface {
	CreateTask(ctx context.Context, t model.Task) error
	GetTask(ctx context.Context, id string) (model.Task, error)
	SetTaskStatus(ctx context.Context, id string, status model.TaskStatus) error
}

// WorkerStore persists the roster and the live worker state.
type WorkerStore interface {
	// PutWorker upserts a roster entry and creates an empty state for new
	// workers.
	PutWorker(ctx context.Context, w model.Worker) error
	GetWorker(ctx context.Context, id string) (model.Worker, error)
	// UpdateWorker applies fn to a roster entry atomically.
	UpdateWorker(ctx context.Context, id string, fn func(*model.Worker) error) (model.Worker, error)
	ListWorkers(ctx context.Context, f WorkerFilter) ([]model.Worker, error)
	// GetState returns ErrNotFound for a worker that was never put.
	GetState(ctx context.Context, workerID string) (model.WorkerState, error)
	// UpdateState applies fn to the current state atomically. The state is
	// left untouched when fn returns an error, which is passed through. fn
	// must not call back into the store.
	UpdateState(ctx context.Context, workerID string, fn func(*model.WorkerState) error) (model.WorkerState, error)
}

// AssignmentStore is the atomic assignment capability. Commit and Release
// must each behave as a single transaction; at most one live assignment may
// exist per task.
type AssignmentStore interface {
	// Commit inserts a pending_ack assignment, marks the task assigned and
	// increments the worker's active task count. It returns ErrConflict when
	// the task is not new or already has a live assignment.
	Commit(ctx context.Context, a model.Assignment) error
	// Release deletes a live assignment, resets its task to new and
	// decrements the worker's active task count.
	Release(ctx context.Context, assignmentID string) error
	UpdateAssignment(ctx context.Context, a model.Assignment) error
	// LiveAssignment returns the pending or acked assignment of a task.
	LiveAssignment(ctx context.Context, taskID string) (model.Assignment, error)
	// LiveAssignments lists the pending or acked assignments of a worker.
	LiveAssignments(ctx context.Context, workerID string) ([]model.Assignment, error)
	// PendingSince lists pending_ack assignments made before cutoff.
	PendingSince(ctx context.Context, cutoff time.Time) ([]model.Assignment, error)
}

// Store bundles every capability.
type Store interface {
	TaskStore
	WorkerStore
	AssignmentStore
	Close() error
}
