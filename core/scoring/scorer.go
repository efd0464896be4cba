package scoring

import (
	"time"

	"github.com/kilianp07/zonedispatch/core/model"
)

// Ineligibility reasons.
const (
	ReasonDeviceOffline = "device offline"
	ReasonMissingSkill  = "missing required skill"
)

// WorkerInput is the per-candidate view the scorer needs.
type WorkerInput struct {
	WorkerID        string       `json:"worker_id"`
	Name            string       `json:"name"`
	Role            model.Role   `json:"role"`
	Reliability     float64      `json:"reliability"`
	PrimarySkills   []string     `json:"primary_skills"`
	SecondarySkills []string     `json:"secondary_skills"`
	CurrentZone     model.ZoneID `json:"current_zone,omitempty"`
	ActiveTaskCount int          `json:"active_task_count"`
	LastSeen        time.Time    `json:"last_seen"`
	DeviceOnline    bool         `json:"device_online"`
	ZoneConfidence  float64      `json:"zone_confidence"`
}

// TaskInput is the task view the scorer needs.
type TaskInput struct {
	TaskID        string         `json:"task_id"`
	Zone          model.ZoneID   `json:"zone"`
	Priority      model.Priority `json:"priority"`
	RequiredSkill string         `json:"required_skill,omitempty"`
	Type          model.TaskType `json:"type"`
}

// NewWorkerInput merges roster and live state.
func NewWorkerInput(w model.Worker, s model.WorkerState) WorkerInput {
	return WorkerInput{
		WorkerID:        w.ID,
		Name:            w.Name,
		Role:            w.Role,
		Reliability:     w.Reliability,
		PrimarySkills:   w.PrimarySkills,
		SecondarySkills: w.SecondarySkills,
		CurrentZone:     s.CurrentZone,
		ActiveTaskCount: s.ActiveTaskCount,
		LastSeen:        s.LastHeartbeat,
		DeviceOnline:    s.DeviceOnline,
		ZoneConfidence:  s.ZoneConfidence,
	}
}

// NewTaskInput extracts the scoring view of a task.
func NewTaskInput(t model.Task) TaskInput {
	return TaskInput{
		TaskID:        t.ID,
		Zone:          t.Zone,
		Priority:      t.Priority,
		RequiredSkill: t.RequiredSkill,
		Type:          t.Type,
	}
}

// Breakdown is the detailed score of one candidate.
type Breakdown struct {
	WorkerID   string  `json:"worker_id"`
	WorkerName string  `json:"worker_name"`
	Total      float64 `json:"total_score"`

	Proximity   float64 `json:"proximity_score"`
	Reliability float64 `json:"reliability_score"`
	Load        float64 `json:"load_score"`
	Device      float64 `json:"device_score"`
	Skill       float64 `json:"skill_score"`

	WeightedProximity   float64 `json:"weighted_proximity"`
	WeightedReliability float64 `json:"weighted_reliability"`
	WeightedLoad        float64 `json:"weighted_load"`
	WeightedDevice      float64 `json:"weighted_device"`
	WeightedSkill       float64 `json:"weighted_skill"`

	TravelSeconds  int          `json:"travel_time_seconds"`
	CurrentZone    model.ZoneID `json:"current_zone,omitempty"`
	ZoneConfidence float64      `json:"zone_confidence"`
	Eligible       bool         `json:"eligible"`
	Reason         string       `json:"ineligible_reason,omitempty"`
}

// Scorer computes breakdowns against a weight table.
type Scorer struct {
	Weights WeightTable
	// Now is the clock used for device freshness.
	Now func() time.Time
}

// NewScorer returns a scorer using weights, or DefaultWeights when nil.
func NewScorer(weights WeightTable) *Scorer {
	if weights == nil {
		weights = DefaultWeights
	}
	return &Scorer{Weights: weights, Now: time.Now}
}

func (s *Scorer) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// Score rates worker w for task t given the travel time between them.
// Ineligible candidates are still scored; their offline device contributes 0.
func (s *Scorer) Score(w WorkerInput, t TaskInput, travelSeconds int) Breakdown {
	weights := s.Weights.For(t.Priority)
	b := Breakdown{
		WorkerID:       w.WorkerID,
		WorkerName:     w.Name,
		TravelSeconds:  travelSeconds,
		CurrentZone:    w.CurrentZone,
		ZoneConfidence: w.ZoneConfidence,
		Eligible:       true,
	}
	if !w.DeviceOnline {
		b.Eligible = false
		b.Reason = ReasonDeviceOffline
	}

	b.Proximity = ProximityScore(w.CurrentZone, t.Zone, travelSeconds)
	b.Reliability = ReliabilityScore(w.Reliability)
	b.Load = LoadScore(w.ActiveTaskCount)
	b.Device = DeviceScore(w.LastSeen, w.DeviceOnline, s.now())
	b.Skill = SkillScore(t.RequiredSkill, t.Type, w.Role, w.PrimarySkills, w.SecondarySkills)
	if b.Skill == 0 && t.RequiredSkill != "" {
		b.Eligible = false
		b.Reason = ReasonMissingSkill
	}

	wp := b.Proximity * weights.Proximity
	wr := b.Reliability * weights.Reliability
	wl := b.Load * weights.Load
	wd := b.Device * weights.Device
	ws := b.Skill * weights.Skill
	b.Total = round2(wp + wr + wl + wd + ws)
	b.WeightedProximity = round2(wp)
	b.WeightedReliability = round2(wr)
	b.WeightedLoad = round2(wl)
	b.WeightedDevice = round2(wd)
	b.WeightedSkill = round2(ws)
	return b
}
