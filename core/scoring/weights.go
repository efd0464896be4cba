// Package scoring ranks workers for a task.
//
// Each candidate receives five component scores in [0,100] (proximity,
// reliability, load, device freshness and skill). Components are combined
// with a weight row chosen by task priority; higher totals are better.
package scoring

import "github.com/kilianp07/zonedispatch/core/model"

// Weights holds the per-component multipliers of one priority level.
type Weights struct {
	Proximity   float64 `json:"proximity"`
	Reliability float64 `json:"reliability"`
	Load        float64 `json:"load"`
	Device      float64 `json:"device"`
	Skill       float64 `json:"skill"`
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Proximity + w.Reliability + w.Load + w.Device + w.Skill
}

// WeightTable maps a priority to its weight row.
type WeightTable map[model.Priority]Weights

// DefaultWeights favours proximity as urgency increases and spreads load
// when nothing is pressing.
var DefaultWeights = WeightTable{
	model.PriorityLow:    {Proximity: 0.25, Reliability: 0.20, Load: 0.35, Device: 0.10, Skill: 0.10},
	model.PriorityNormal: {Proximity: 0.35, Reliability: 0.20, Load: 0.20, Device: 0.10, Skill: 0.15},
	model.PriorityHigh:   {Proximity: 0.45, Reliability: 0.15, Load: 0.10, Device: 0.10, Skill: 0.20},
	model.PriorityUrgent: {Proximity: 0.55, Reliability: 0.10, Load: 0.05, Device: 0.10, Skill: 0.20},
}

// For returns the row for p. A table missing p falls back to its normal
// row, then to the default normal row.
func (t WeightTable) For(p model.Priority) Weights {
	if w, ok := t[p]; ok {
		return w
	}
	if w, ok := t[model.PriorityNormal]; ok {
		return w
	}
	return DefaultWeights[model.PriorityNormal]
}
