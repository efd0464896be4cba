// Package tracking keeps the live zone of each worker up to date from WiFi
// scans, connected access points, heartbeats and task completions.
package tracking

import (
	"time"

	"github.com/kilianp07/zonedispatch/core/model"
)

// DefaultTaskTruthWindow is how long a task sourced zone outranks WiFi.
const DefaultTaskTruthWindow = 60 * time.Second

// Rejection reasons returned by ApplyZoneFix.
const (
	RejectNoZone    = "no zone"
	RejectStale     = "older than current fix"
	RejectTaskTruth = "task truth holds"
)

// ZoneFix is a candidate zone for a worker, stamped with the time the
// underlying observation was made.
type ZoneFix struct {
	Zone        model.ZoneID
	Confidence  float64
	Source      model.ZoneSource
	At          time.Time
	HasPosition bool
	X, Y        float64
}

// ApplyZoneFix updates st with fix unless the fix predates the current one
// or a task fix is still within window. Ordering uses fix.At, not arrival
// order, so late deliveries cannot bypass the task truth window.
func ApplyZoneFix(st *model.WorkerState, fix ZoneFix, window time.Duration) (bool, string) {
	if fix.Zone == "" {
		return false, RejectNoZone
	}
	if !st.ZoneUpdatedAt.IsZero() && fix.At.Before(st.ZoneUpdatedAt) {
		return false, RejectStale
	}
	if st.ZoneSource == model.SourceTask && fix.Source != model.SourceTask &&
		fix.At.Sub(st.ZoneUpdatedAt) < window {
		return false, RejectTaskTruth
	}
	st.CurrentZone = fix.Zone
	st.ZoneConfidence = fix.Confidence
	st.ZoneSource = fix.Source
	st.ZoneUpdatedAt = fix.At
	if fix.HasPosition {
		st.PositionX, st.PositionY = fix.X, fix.Y
	}
	return true, ""
}

// RSSIConfidence maps the strength of the strongest access point to a
// zone confidence.
func RSSIConfidence(rssi int) float64 {
	switch {
	case rssi > -50:
		return 0.95
	case rssi > -65:
		return 0.85
	case rssi > -75:
		return 0.70
	default:
		return 0.50
	}
}

// VoteConfidence maps the share of agreeing access points to a zone
// confidence, capped at 0.95.
func VoteConfidence(share float64) float64 {
	return min(0.95, 0.5+share*0.45)
}
