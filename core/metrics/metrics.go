package metrics

import (
	"time"

	"github.com/kilianp07/zonedispatch/core/model"
)

// AssignmentResult is the outcome of routing one task.
type AssignmentResult struct {
	TaskID        string
	TaskType      model.TaskType
	Priority      model.Priority
	Zone          model.ZoneID
	WorkerID      string
	Score         float64
	TravelSeconds int
	Candidates    int
	Assigned      bool
	Rerouted      bool
	Reason        string
	Time          time.Time
}

// MetricsSink records routing outcomes for observability purposes.
type MetricsSink interface {
	RecordAssignment(res AssignmentResult) error
}

// AckRecord captures a worker response to an assignment.
type AckRecord struct {
	TaskID   string
	WorkerID string
	Action   string
	Latency  time.Duration
	Time     time.Time
}

// AckRecorder records worker responses.
type AckRecorder interface {
	RecordAck(rec AckRecord) error
}

// CompletionRecord captures a completed task.
type CompletionRecord struct {
	TaskID   string
	WorkerID string
	TaskType model.TaskType
	Zone     model.ZoneID
	Duration time.Duration
	Time     time.Time
}

// CompletionRecorder records task completions.
type CompletionRecorder interface {
	RecordCompletion(rec CompletionRecord) error
}

// ZoneUpdateRecord is an applied worker zone fix.
type ZoneUpdateRecord struct {
	WorkerID   string
	Zone       model.ZoneID
	Source     model.ZoneSource
	Confidence float64
	Time       time.Time
}

// ZoneUpdateRecorder records worker zone changes.
type ZoneUpdateRecorder interface {
	RecordZoneUpdate(rec ZoneUpdateRecord) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordAssignment(AssignmentResult) error { return nil }
func (NopSink) RecordAck(AckRecord) error               { return nil }
func (NopSink) RecordCompletion(CompletionRecord) error { return nil }
func (NopSink) RecordZoneUpdate(ZoneUpdateRecord) error { return nil }
