package main

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/kilianp07/zonedispatch/core/model"
	"github.com/kilianp07/zonedispatch/core/positioning"
)

// RosterConfig holds parameters for bulk worker generation.
type RosterConfig struct {
	Size  int
	Roles []model.Role
	Zones []model.ZoneID
	Seed  uint64
}

// ParseRoles reads a comma separated role list. Empty means housekeeping.
func ParseRoles(s string) ([]model.Role, error) {
	if strings.TrimSpace(s) == "" {
		return []model.Role{model.RoleHousekeeping}, nil
	}
	var roles []model.Role
	for _, p := range strings.Split(s, ",") {
		r, err := model.ParseRole(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, nil
}

// GenerateWorkers creates Size workers with IDs w001..wNNN. Roles rotate in
// order and start zones are drawn at random.
func GenerateWorkers(cfg RosterConfig) []*SimulatedWorker {
	if cfg.Size <= 0 || len(cfg.Zones) == 0 {
		return nil
	}
	roles := cfg.Roles
	if len(roles) == 0 {
		roles = []model.Role{model.RoleHousekeeping}
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed+1))
	ws := make([]*SimulatedWorker, cfg.Size)
	for i := range ws {
		ws[i] = &SimulatedWorker{
			ID:    fmt.Sprintf("w%03d", i+1),
			Role:  roles[i%len(roles)],
			Zone:  cfg.Zones[rng.IntN(len(cfg.Zones))],
			Zones: cfg.Zones,
			rng:   rand.New(rand.NewPCG(cfg.Seed, uint64(i))),
		}
	}
	return ws
}

// SurveyAPs turns the surveyed access points into simulated ones and lists
// the zones they cover.
func SurveyAPs(s *positioning.Survey) ([]positioning.SimulatedAP, []model.ZoneID) {
	aps := make([]positioning.SimulatedAP, 0, len(s.AccessPoints))
	seen := map[model.ZoneID]bool{}
	var zones []model.ZoneID
	for _, ap := range s.AccessPoints {
		aps = append(aps, positioning.SimulatedAP{BSSID: ap.BSSID, Zone: ap.Zone, BaseRSSI: ap.RSSI})
		if !seen[ap.Zone] {
			seen[ap.Zone] = true
			zones = append(zones, ap.Zone)
		}
	}
	return aps, zones
}
