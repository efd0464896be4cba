package dispatch

import (
	"fmt"
	"math"

	"github.com/kilianp07/zonedispatch/core/model"
	"github.com/kilianp07/zonedispatch/core/scoring"
)

// RolePolicy selects which role pool serves a task type.
type RolePolicy string

const (
	// PolicySkillTable routes each task type to its preferred role.
	PolicySkillTable RolePolicy = "skill_table"
	// PolicyLegacy sends maintenance to maintenance and everything else to
	// housekeeping.
	PolicyLegacy RolePolicy = "legacy"
)

// Config defines dispatch-related settings.
type Config struct {
	// AckTimeoutSeconds re-routes pending assignments left unanswered that
	// long. Zero disables the sweep.
	AckTimeoutSeconds int        `json:"ack_timeout_seconds"`
	RolePolicy        RolePolicy `json:"role_policy"`
	// LegacyPriority collapses the four priority levels to normal/urgent
	// before scoring.
	LegacyPriority           bool                       `json:"legacy_priority"`
	AckReliabilityBonus      float64                    `json:"ack_reliability_bonus"`
	CompleteReliabilityBonus float64                    `json:"complete_reliability_bonus"`
	Weights                  map[string]scoring.Weights `json:"weights"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.RolePolicy == "" {
		c.RolePolicy = PolicySkillTable
	}
	if c.AckReliabilityBonus == 0 {
		c.AckReliabilityBonus = 0.01
	}
	if c.CompleteReliabilityBonus == 0 {
		c.CompleteReliabilityBonus = 0.02
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.RolePolicy {
	case PolicySkillTable, PolicyLegacy:
	default:
		return fmt.Errorf("dispatch: unknown role_policy %q", c.RolePolicy)
	}
	if c.AckTimeoutSeconds < 0 {
		return fmt.Errorf("dispatch: ack_timeout_seconds must be >= 0")
	}
	if c.AckReliabilityBonus < 0 || c.CompleteReliabilityBonus < 0 {
		return fmt.Errorf("dispatch: reliability bonuses must be >= 0")
	}
	_, err := c.WeightTable()
	return err
}

// WeightTable builds the scoring table, overriding the defaults with the
// configured rows. Every row must sum to 1.
func (c Config) WeightTable() (scoring.WeightTable, error) {
	table := make(scoring.WeightTable, len(scoring.DefaultWeights))
	for p, w := range scoring.DefaultWeights {
		table[p] = w
	}
	for name, w := range c.Weights {
		p, err := model.ParsePriority(name)
		if err != nil {
			return nil, fmt.Errorf("dispatch: weights: %w", err)
		}
		if math.Abs(w.Sum()-1) > 1e-6 {
			return nil, fmt.Errorf("dispatch: weights for %s sum to %.3f, want 1", name, w.Sum())
		}
		table[p] = w
	}
	return table, nil
}

// poolRole returns the role whose on-shift members are candidates for t.
func (c Config) poolRole(t model.TaskType) model.Role {
	if c.RolePolicy == PolicyLegacy {
		if t == model.TaskMaintenance {
			return model.RoleMaintenance
		}
		return model.RoleHousekeeping
	}
	if r, ok := model.PreferredRole(t); ok {
		return r
	}
	return model.RoleHousekeeping
}
