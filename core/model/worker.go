package model

import (
	"fmt"
	"time"
)

// Role is the job family of a worker.
type Role int

const (
	RoleHousekeeping Role = iota
	RoleMaintenance
	RoleRoomService
	RoleFoodAndBeverage
)

// String returns the wire representation of the role.
func (r Role) String() string {
	switch r {
	case RoleHousekeeping:
		return "housekeeping"
	case RoleMaintenance:
		return "maintenance"
	case RoleRoomService:
		return "room_service"
	case RoleFoodAndBeverage:
		return "f_and_b"
	default:
		return "unknown"
	}
}

// ParseRole converts the wire representation into a Role.
func ParseRole(s string) (Role, error) {
	switch s {
	case "housekeeping":
		return RoleHousekeeping, nil
	case "maintenance":
		return RoleMaintenance, nil
	case "room_service":
		return RoleRoomService, nil
	case "f_and_b":
		return RoleFoodAndBeverage, nil
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(b []byte) error {
	v, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// ZoneSource tells where the current zone of a worker comes from. A task
// sourced fix is ground truth and outranks WiFi estimates for a while.
type ZoneSource string

const (
	SourceUnknown  ZoneSource = ""
	SourceTask     ZoneSource = "task"
	SourceWiFi     ZoneSource = "wifi"
	SourceWiFiRSSI ZoneSource = "wifi_rssi"
	SourceWiFiWKNN ZoneSource = "wifi_wknn"
)

// Worker is a member of the staff roster.
type Worker struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Role            Role     `json:"role"`
	PrimarySkills   []string `json:"primary_skills,omitempty"`
	SecondarySkills []string `json:"secondary_skills,omitempty"`
	Reliability     float64  `json:"reliability"` // between 0 and 1
	OnShift         bool     `json:"on_shift"`
}

// Nudge raises the reliability by delta, capped at 1.
func (w *Worker) Nudge(delta float64) {
	w.Reliability += delta
	if w.Reliability > 1 {
		w.Reliability = 1
	}
	if w.Reliability < 0 {
		w.Reliability = 0
	}
}

// WorkerState is the live state of a worker device.
type WorkerState struct {
	WorkerID        string     `json:"worker_id"`
	CurrentZone     ZoneID     `json:"current_zone,omitempty"` // empty until the first fix
	ZoneConfidence  float64    `json:"zone_confidence"`
	ZoneSource      ZoneSource `json:"zone_source,omitempty"`
	ZoneUpdatedAt   time.Time  `json:"zone_updated_at"`
	PositionX       float64    `json:"position_x,omitempty"`
	PositionY       float64    `json:"position_y,omitempty"`
	ConnectedAP     string     `json:"connected_ap,omitempty"`
	DeviceOnline    bool       `json:"device_online"`
	LastHeartbeat   time.Time  `json:"last_heartbeat"`
	ActiveTaskCount int        `json:"active_task_count"`
}

// HasZone reports whether the worker location is known.
func (s WorkerState) HasZone() bool { return s.CurrentZone != "" }

// AddLoad changes the active task count, never going below zero.
func (s *WorkerState) AddLoad(delta int) {
	s.ActiveTaskCount += delta
	if s.ActiveTaskCount < 0 {
		s.ActiveTaskCount = 0
	}
}
