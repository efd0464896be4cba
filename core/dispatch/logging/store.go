// Package logging persists the dispatch event log and derives per-zone
// operating metrics from it.
package logging

import (
	"context"
	"time"

	"github.com/kilianp07/zonedispatch/core/model"
)

// EventType classifies a log record.
type EventType string

const (
	EventTaskCreated       EventType = "task_created"
	EventTaskAssigned      EventType = "task_assigned"
	EventTaskAck           EventType = "task_ack"
	EventWorkerBusy        EventType = "worker_busy"
	EventTaskReroute       EventType = "task_reroute"
	EventTaskComplete      EventType = "task_complete"
	EventTaskEscalate      EventType = "task_escalate"
	EventWorkerZoneUpdate  EventType = "worker_zone_update"
	EventWorkerSync        EventType = "worker_sync"
	EventWorkerCreated     EventType = "worker_created"
	EventAssignmentExpired EventType = "assignment_expired"
)

// LogRecord captures one dispatch event.
type LogRecord struct {
	Timestamp time.Time      `json:"timestamp"`
	Event     EventType      `json:"event"`
	TaskID    string         `json:"task_id,omitempty"`
	WorkerID  string         `json:"worker_id,omitempty"`
	Zone      model.ZoneID   `json:"zone,omitempty"`
	Score     float64        `json:"score,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// LogQuery defines filters for retrieving records. Zero fields match
// everything.
type LogQuery struct {
	Start    time.Time
	End      time.Time
	Event    EventType
	TaskID   string
	WorkerID string
	Zone     model.ZoneID
}

// Match reports whether r satisfies every filter of q.
func (q LogQuery) Match(r LogRecord) bool {
	switch {
	case !q.Start.IsZero() && r.Timestamp.Before(q.Start):
		return false
	case !q.End.IsZero() && r.Timestamp.After(q.End):
		return false
	case q.Event != "" && r.Event != q.Event:
		return false
	case q.TaskID != "" && r.TaskID != q.TaskID:
		return false
	case q.WorkerID != "" && r.WorkerID != q.WorkerID:
		return false
	case q.Zone != "" && r.Zone != q.Zone:
		return false
	}
	return true
}

// LogStore persists LogRecords and supports querying.
type LogStore interface {
	Append(ctx context.Context, rec LogRecord) error
	Query(ctx context.Context, q LogQuery) ([]LogRecord, error)
	Close() error
}
