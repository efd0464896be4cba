package model

import (
	"fmt"
	"time"
)

// TaskType is the kind of work requested.
type TaskType int

const (
	TaskTowels TaskType = iota
	TaskCleaning
	TaskTrash
	TaskMaintenance
	TaskRoomService
)

// TaskTypes lists every task type.
var TaskTypes = []TaskType{TaskTowels, TaskCleaning, TaskTrash, TaskMaintenance, TaskRoomService}

func (t TaskType) String() string {
	switch t {
	case TaskTowels:
		return "towels"
	case TaskCleaning:
		return "cleaning"
	case TaskTrash:
		return "trash"
	case TaskMaintenance:
		return "maintenance"
	case TaskRoomService:
		return "room_service"
	default:
		return "unknown"
	}
}

// ParseTaskType converts the wire representation into a TaskType.
func ParseTaskType(s string) (TaskType, error) {
	for _, t := range TaskTypes {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown task type %q", s)
}

func (t TaskType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *TaskType) UnmarshalText(b []byte) error {
	v, err := ParseTaskType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// PreferredRole returns the role whose members are the natural owners of
// the task type. Adding a TaskType without a case here fails the
// exhaustiveness test in task_test.go.
func PreferredRole(t TaskType) (Role, bool) {
	switch t {
	case TaskTowels, TaskCleaning, TaskTrash:
		return RoleHousekeeping, true
	case TaskMaintenance:
		return RoleMaintenance, true
	case TaskRoomService:
		return RoleRoomService, true
	}
	return 0, false
}

// Priority is the urgency of a task.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return "unknown"
	}
}

// ParsePriority converts the wire representation into a Priority. An empty
// string yields PriorityNormal.
func ParsePriority(s string) (Priority, error) {
	switch s {
	case "low":
		return PriorityLow, nil
	case "", "normal":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	case "urgent":
		return PriorityUrgent, nil
	}
	return 0, fmt.Errorf("unknown priority %q", s)
}

// Collapse maps the four levels onto the legacy normal/urgent pair.
func (p Priority) Collapse() Priority {
	if p >= PriorityHigh {
		return PriorityUrgent
	}
	return PriorityNormal
}

func (p Priority) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Priority) UnmarshalText(b []byte) error {
	v, err := ParsePriority(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskNew        TaskStatus = "new"
	TaskAssigned   TaskStatus = "assigned"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
	TaskRerouted   TaskStatus = "rerouted"
)

// Terminal reports whether no further transition is expected.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskCancelled
}

// Task is a unit of work located in a zone.
type Task struct {
	ID            string     `json:"id"`
	Type          TaskType   `json:"type"`
	Zone          ZoneID     `json:"zone_id"`
	Priority      Priority   `json:"priority"`
	Status        TaskStatus `json:"status"`
	RequiredSkill string     `json:"required_skill,omitempty"`
	Source        string     `json:"source,omitempty"`
	Description   string     `json:"description,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// AssignmentState is the lifecycle state of an assignment.
type AssignmentState string

const (
	AssignmentPendingAck AssignmentState = "pending_ack"
	AssignmentAcked      AssignmentState = "acked"
	AssignmentCompleted  AssignmentState = "completed"
	AssignmentFailed     AssignmentState = "failed"
)

// Live reports whether the assignment still counts toward the worker load.
func (s AssignmentState) Live() bool {
	return s == AssignmentPendingAck || s == AssignmentAcked
}

// Assignment binds a task to a worker.
type Assignment struct {
	ID             string          `json:"id"`
	TaskID         string          `json:"task_id"`
	WorkerID       string          `json:"worker_id"`
	State          AssignmentState `json:"state"`
	Score          float64         `json:"score"`
	Reroutes       int             `json:"reroutes"`
	AssignedAt     time.Time       `json:"assigned_at"`
	AcknowledgedAt time.Time       `json:"acknowledged_at,omitempty"`
	CompletedAt    time.Time       `json:"completed_at,omitempty"`
}
