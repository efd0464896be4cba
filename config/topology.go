package config

import (
	"fmt"

	"github.com/kilianp07/zonedispatch/core/model"
	"github.com/kilianp07/zonedispatch/core/zonegraph"
)

// TopologyConfig describes the building. Edges may be given inline on the
// zones, as a flat list, or both.
type TopologyConfig struct {
	Zones []model.Zone     `json:"zones"`
	Edges []model.ZoneEdge `json:"edges"`
}

// AllEdges merges the zone adjacency and the flat edge list.
func (c TopologyConfig) AllEdges() []model.ZoneEdge {
	return append(model.EdgesOf(c.Zones), c.Edges...)
}

// Graph builds the zone graph.
func (c TopologyConfig) Graph() (*zonegraph.Graph, error) {
	return zonegraph.New(c.AllEdges())
}

// Validate rejects unnamed and duplicate zones and invalid edges.
func (c TopologyConfig) Validate() error {
	seen := make(map[model.ZoneID]bool, len(c.Zones))
	for _, z := range c.Zones {
		if z.ID == "" {
			return fmt.Errorf("topology: zone without id")
		}
		if seen[z.ID] {
			return fmt.Errorf("topology: duplicate zone %s", z.ID)
		}
		seen[z.ID] = true
	}
	if _, err := c.Graph(); err != nil {
		return fmt.Errorf("topology: %w", err)
	}
	return nil
}

// RosterEntry seeds a worker and its initial state at startup.
type RosterEntry struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Role            string       `json:"role"`
	PrimarySkills   []string     `json:"primary_skills"`
	SecondarySkills []string     `json:"secondary_skills"`
	Reliability     float64      `json:"reliability"`
	OnShift         bool         `json:"on_shift"`
	Zone            model.ZoneID `json:"zone"`
	// DeviceOnline seeds the device as online with a heartbeat at startup,
	// for setups without device telemetry. The liveness sweep still
	// applies.
	DeviceOnline bool `json:"device_online"`
}

// Worker converts the entry. A zero reliability becomes 0.8.
func (e RosterEntry) Worker() (model.Worker, error) {
	role, err := model.ParseRole(e.Role)
	if err != nil {
		return model.Worker{}, fmt.Errorf("roster %s: %w", e.ID, err)
	}
	rel := e.Reliability
	if rel == 0 {
		rel = 0.8
	}
	return model.Worker{
		ID:              e.ID,
		Name:            e.Name,
		Role:            role,
		PrimarySkills:   e.PrimarySkills,
		SecondarySkills: e.SecondarySkills,
		Reliability:     rel,
		OnShift:         e.OnShift,
	}, nil
}

func validateRoster(entries []RosterEntry) error {
	ids := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.ID == "" || e.Name == "" {
			return fmt.Errorf("roster: id and name are required")
		}
		if ids[e.ID] {
			return fmt.Errorf("roster: duplicate worker %s", e.ID)
		}
		ids[e.ID] = true
		if e.Reliability < 0 || e.Reliability > 1 {
			return fmt.Errorf("roster %s: reliability must be within [0,1]", e.ID)
		}
		if _, err := e.Worker(); err != nil {
			return err
		}
	}
	return nil
}
