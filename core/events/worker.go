package events

import (
	"time"

	"github.com/kilianp07/zonedispatch/core/model"
)

// AckEvent is published for each worker response to an assignment.
type AckEvent struct {
	TaskID   string
	WorkerID string
	Action   string
	Latency  time.Duration
	Err      error
}

// ZoneUpdateEvent is published when a zone fix is applied to a worker.
type ZoneUpdateEvent struct {
	WorkerID   string
	From       model.ZoneID
	To         model.ZoneID
	Confidence float64
	Source     model.ZoneSource
	At         time.Time
}

// DeviceEvent reports device connectivity changes.
type DeviceEvent struct {
	WorkerID string
	Online   bool
	At       time.Time
}
