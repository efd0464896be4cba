// Package memory is an in-process implementation of store.Store. A single
// mutex serialises every write, which makes Commit and Release atomic.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/zonedispatch/core/model"
	"github.com/kilianp07/zonedispatch/core/store"
)

// Store keeps everything in maps.
type Store struct {
	mu          sync.RWMutex
	tasks       map[string]model.Task
	workers     map[string]model.Worker
	states      map[string]model.WorkerState
	assignments map[string]model.Assignment
}

// New returns an empty store.
func New() *Store {
	return &Store{
		tasks:       map[string]model.Task{},
		workers:     map[string]model.Worker{},
		states:      map[string]model.WorkerState{},
		assignments: map[string]model.Assignment{},
	}
}

var _ store.Store = (*Store)(nil)

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
}

func (s *Store) CreateTask(_ context.Context, t model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[t.ID]; ok {
		return fmt.Errorf("task %s exists: %w", t.ID, store.ErrConflict)
	}
	s.tasks[t.ID] = t
	return nil
}

func (s *Store) GetTask(_ context.Context, id string) (model.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return model.Task{}, notFound("task", id)
	}
	return t, nil
}

func (s *Store) SetTaskStatus(_ context.Context, id string, status model.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return notFound("task", id)
	}
	t.Status = status
	s.tasks[id] = t
	return nil
}

func (s *Store) PutWorker(_ context.Context, w model.Worker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers[w.ID] = w
	if _, ok := s.states[w.ID]; !ok {
		s.states[w.ID] = model.WorkerState{WorkerID: w.ID}
	}
	return nil
}

func (s *Store) GetWorker(_ context.Context, id string) (model.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workers[id]
	if !ok {
		return model.Worker{}, notFound("worker", id)
	}
	return w, nil
}

func (s *Store) UpdateWorker(_ context.Context, id string, fn func(*model.Worker) error) (model.Worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workers[id]
	if !ok {
		return model.Worker{}, notFound("worker", id)
	}
	if err := fn(&w); err != nil {
		return model.Worker{}, err
	}
	s.workers[id] = w
	return w, nil
}

// ListWorkers returns matching workers ordered by ID.
func (s *Store) ListWorkers(_ context.Context, f store.WorkerFilter) ([]model.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Worker
	for _, w := range s.workers {
		if f.Match(w) {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetState(_ context.Context, id string) (model.WorkerState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[id]
	if !ok {
		return model.WorkerState{}, notFound("worker state", id)
	}
	return st, nil
}

func (s *Store) UpdateState(_ context.Context, id string, fn func(*model.WorkerState) error) (model.WorkerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[id]
	if !ok {
		return model.WorkerState{}, notFound("worker state", id)
	}
	if err := fn(&st); err != nil {
		return model.WorkerState{}, err
	}
	s.states[id] = st
	return st, nil
}

func (s *Store) Commit(_ context.Context, a model.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[a.TaskID]
	if !ok {
		return notFound("task", a.TaskID)
	}
	st, ok := s.states[a.WorkerID]
	if !ok {
		return notFound("worker state", a.WorkerID)
	}
	if t.Status != model.TaskNew {
		return fmt.Errorf("task %s is %s: %w", t.ID, t.Status, store.ErrConflict)
	}
	for _, other := range s.assignments {
		if other.TaskID == a.TaskID && other.State.Live() {
			return fmt.Errorf("task %s already assigned: %w", t.ID, store.ErrConflict)
		}
	}
	a.State = model.AssignmentPendingAck
	s.assignments[a.ID] = a
	t.Status = model.TaskAssigned
	s.tasks[t.ID] = t
	st.AddLoad(1)
	s.states[a.WorkerID] = st
	return nil
}

func (s *Store) Release(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[id]
	if !ok || !a.State.Live() {
		return notFound("live assignment", id)
	}
	delete(s.assignments, id)
	if t, ok := s.tasks[a.TaskID]; ok {
		t.Status = model.TaskNew
		s.tasks[t.ID] = t
	}
	if st, ok := s.states[a.WorkerID]; ok {
		st.AddLoad(-1)
		s.states[a.WorkerID] = st
	}
	return nil
}

func (s *Store) UpdateAssignment(_ context.Context, a model.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assignments[a.ID]; !ok {
		return notFound("assignment", a.ID)
	}
	s.assignments[a.ID] = a
	return nil
}

func (s *Store) LiveAssignment(_ context.Context, taskID string) (model.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.assignments {
		if a.TaskID == taskID && a.State.Live() {
			return a, nil
		}
	}
	return model.Assignment{}, notFound("live assignment for task", taskID)
}

func (s *Store) LiveAssignments(_ context.Context, workerID string) ([]model.Assignment, error) {
	return s.filterAssignments(func(a model.Assignment) bool {
		return a.WorkerID == workerID && a.State.Live()
	}), nil
}

func (s *Store) PendingSince(_ context.Context, cutoff time.Time) ([]model.Assignment, error) {
	return s.filterAssignments(func(a model.Assignment) bool {
		return a.State == model.AssignmentPendingAck && a.AssignedAt.Before(cutoff)
	}), nil
}

// filterAssignments returns matches ordered by assignment time.
func (s *Store) filterAssignments(keep func(model.Assignment) bool) []model.Assignment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Assignment
	for _, a := range s.assignments {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssignedAt.Before(out[j].AssignedAt) })
	return out
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
