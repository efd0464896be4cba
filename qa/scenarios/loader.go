// Package scenarios replays routing scenarios described in YAML against
// the router and checks who gets each task.
package scenarios

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/zonedispatch/core/model"
)

type ZoneDef struct {
	ID    string         `yaml:"id"`
	Edges map[string]int `yaml:"edges"`
}

type WorkerDef struct {
	ID              string   `yaml:"id"`
	Role            string   `yaml:"role"`
	Zone            string   `yaml:"zone"`
	Online          bool     `yaml:"online"`
	OffShift        bool     `yaml:"off_shift"`
	Load            int      `yaml:"load"`
	Reliability     float64  `yaml:"reliability"`
	PrimarySkills   []string `yaml:"primary_skills"`
	SecondarySkills []string `yaml:"secondary_skills"`
}

// ToModel returns the roster entry and live state of the worker.
func (w WorkerDef) ToModel() (model.Worker, model.WorkerState, error) {
	role, err := model.ParseRole(w.Role)
	if err != nil {
		return model.Worker{}, model.WorkerState{}, fmt.Errorf("worker %s: %w", w.ID, err)
	}
	rel := w.Reliability
	if rel == 0 {
		rel = 0.8
	}
	worker := model.Worker{
		ID:              w.ID,
		Name:            w.ID,
		Role:            role,
		Reliability:     rel,
		OnShift:         !w.OffShift,
		PrimarySkills:   w.PrimarySkills,
		SecondarySkills: w.SecondarySkills,
	}
	st := model.WorkerState{
		WorkerID:        w.ID,
		CurrentZone:     model.ZoneID(w.Zone),
		DeviceOnline:    w.Online,
		ActiveTaskCount: w.Load,
	}
	if w.Zone != "" {
		st.ZoneConfidence = 0.8
	}
	return worker, st, nil
}

type TaskDef struct {
	Type     string `yaml:"type"`
	Zone     string `yaml:"zone"`
	Priority string `yaml:"priority"`
	Skill    string `yaml:"skill"`
	// Ack is sent by the assignee right after routing, if set.
	Ack string `yaml:"ack"`
	// Expect is the worker who should get the task, empty for an
	// escalation.
	Expect string `yaml:"expect"`
}

type Scenario struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description,omitempty"`
	RolePolicy  string      `yaml:"role_policy,omitempty"`
	Zones       []ZoneDef   `yaml:"zones"`
	Workers     []WorkerDef `yaml:"workers"`
	Tasks       []TaskDef   `yaml:"tasks"`
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	if sc.Name == "" {
		return nil, fmt.Errorf("scenario %s has no name", path)
	}
	return &sc, nil
}

// Edges flattens the zone adjacency.
func (sc *Scenario) Edges() []model.ZoneEdge {
	var edges []model.ZoneEdge
	for _, z := range sc.Zones {
		for to, secs := range z.Edges {
			edges = append(edges, model.ZoneEdge{From: model.ZoneID(z.ID), To: model.ZoneID(to), Seconds: secs})
		}
	}
	return edges
}
