package positioning

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/zonedispatch/core/model"
)

// SurveyPoint is one surveyed location with its repeated scans.
type SurveyPoint struct {
	ID    string          `json:"id" yaml:"id"`
	Zone  model.ZoneID    `json:"zone" yaml:"zone"`
	X     float64         `json:"x" yaml:"x"`
	Y     float64         `json:"y" yaml:"y"`
	Scans [][]Measurement `json:"scans" yaml:"scans"`
}

// SurveyAP is a known access point association.
type SurveyAP struct {
	BSSID string       `json:"bssid" yaml:"bssid"`
	Zone  model.ZoneID `json:"zone" yaml:"zone"`
	RSSI  float64      `json:"rssi" yaml:"rssi"`
}

// Survey is the content of a site survey file.
type Survey struct {
	ReferencePoints []SurveyPoint `json:"reference_points" yaml:"reference_points"`
	AccessPoints    []SurveyAP    `json:"access_points" yaml:"access_points"`
}

// LoadSurvey reads a YAML or JSON survey file.
func LoadSurvey(path string) (*Survey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read survey: %w", err)
	}
	var s Survey
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &s)
	case ".json":
		err = json.Unmarshal(data, &s)
	default:
		return nil, fmt.Errorf("unsupported survey format: %s", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("decode survey %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks that every point is identified and zoned.
func (s *Survey) Validate() error {
	for i, p := range s.ReferencePoints {
		if p.ID == "" || p.Zone == "" {
			return fmt.Errorf("survey: reference point %d needs id and zone", i)
		}
	}
	for i, a := range s.AccessPoints {
		if a.BSSID == "" || a.Zone == "" {
			return fmt.Errorf("survey: access point %d needs bssid and zone", i)
		}
	}
	return nil
}

// Apply seeds the radio map and the mapper. Either may be nil. Survey
// scans also teach the mapper which zone hears each AP the loudest.
func (s *Survey) Apply(m *RadioMap, mapper *APZoneMapper) {
	for _, p := range s.ReferencePoints {
		for _, scan := range p.Scans {
			if m != nil {
				m.AddReferencePoint(p.ID, p.X, p.Y, p.Zone, scan)
			}
			if mapper != nil {
				for _, meas := range scan {
					mapper.Observe(meas.BSSID, p.Zone, float64(meas.RSSI))
				}
			}
		}
	}
	if mapper == nil {
		return
	}
	for _, a := range s.AccessPoints {
		mapper.Observe(a.BSSID, a.Zone, a.RSSI)
	}
}
