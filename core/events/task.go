package events

import (
	"time"

	"github.com/kilianp07/zonedispatch/core/model"
)

// TaskAction describes what happened to a task.
type TaskAction string

const (
	TaskCreated   TaskAction = "created"
	TaskAssigned  TaskAction = "assigned"
	TaskRerouted  TaskAction = "rerouted"
	TaskCompleted TaskAction = "completed"
)

// TaskEvent is published on task lifecycle transitions. WorkerID and Score
// are set for assignments.
type TaskEvent struct {
	Action   TaskAction
	Task     model.Task
	WorkerID string
	Score    float64
	At       time.Time
}

// EscalationEvent is published when a task cannot be assigned. Operators
// are expected to handle it.
type EscalationEvent struct {
	Task       model.Task
	Candidates int
	Reason     string
	At         time.Time
}
