// Package mqtt declares how the router reaches worker devices and how
// device messages reach the router and the tracker.
package mqtt

import (
	"context"
	"time"

	"github.com/kilianp07/zonedispatch/core/model"
	"github.com/kilianp07/zonedispatch/core/positioning"
)

// AssignmentNotice is sent to the device of the assigned worker.
type AssignmentNotice struct {
	AssignmentID  string         `json:"assignment_id"`
	TaskID        string         `json:"task_id"`
	WorkerID      string         `json:"worker_id"`
	Type          model.TaskType `json:"type"`
	Zone          model.ZoneID   `json:"zone_id"`
	Priority      model.Priority `json:"priority"`
	Description   string         `json:"description,omitempty"`
	Score         float64        `json:"score"`
	TravelSeconds int            `json:"travel_time_seconds"`
	Reroutes      int            `json:"reroutes"`
	AssignedAt    time.Time      `json:"assigned_at"`
}

// EscalationNotice tells supervisors that a task found no worker.
type EscalationNotice struct {
	TaskID     string         `json:"task_id"`
	Type       model.TaskType `json:"type"`
	Zone       model.ZoneID   `json:"zone_id"`
	Priority   model.Priority `json:"priority"`
	Candidates int            `json:"candidates"`
	Reason     string         `json:"reason"`
	At         time.Time      `json:"at"`
}

// Client publishes notices to devices.
type Client interface {
	// SendAssignment publishes the notice and returns the message identifier.
	SendAssignment(ctx context.Context, n AssignmentNotice) (messageID string, err error)
	SendEscalation(ctx context.Context, n EscalationNotice) error
}

// AckMessage is a worker response received from a device.
type AckMessage struct {
	TaskID   string `json:"task_id"`
	WorkerID string `json:"worker_id"`
	Action   string `json:"action"`
}

// ScanMessage is a WiFi scan received from a device. ConnectedAP is the
// BSSID the device is associated with, if any.
type ScanMessage struct {
	WorkerID     string                    `json:"worker_id"`
	Measurements []positioning.Measurement `json:"measurements"`
	ConnectedAP  string                    `json:"connected_ap,omitempty"`
	Timestamp    time.Time                 `json:"timestamp"`
}

// HeartbeatMessage is the periodic liveness ping of a device.
type HeartbeatMessage struct {
	WorkerID  string    `json:"worker_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Handler consumes device messages.
type Handler interface {
	HandleAck(ctx context.Context, m AckMessage) error
	HandleScan(ctx context.Context, m ScanMessage) error
	HandleHeartbeat(ctx context.Context, m HeartbeatMessage) error
}
