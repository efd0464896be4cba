package positioning

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/zonedispatch/core/model"
)

// Fingerprint summarises the RSSI samples of one access point at one
// reference point. Std is the population standard deviation.
type Fingerprint struct {
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Count int     `json:"count"`
}

// ReferencePoint is a surveyed location with its fingerprint.
type ReferencePoint struct {
	ID          string                 `json:"id"`
	X           float64                `json:"x"`
	Y           float64                `json:"y"`
	Zone        model.ZoneID           `json:"zone"`
	Fingerprint map[string]Fingerprint `json:"fingerprint"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

type point struct {
	ReferencePoint
	samples map[string][]float64
}

// RadioMap is a fingerprint database. It is safe for concurrent use.
type RadioMap struct {
	mu     sync.RWMutex
	points map[string]*point
	order  []string
	aps    map[string]struct{}
	apList []string
	now    func() time.Time
}

// NewRadioMap returns an empty radio map.
func NewRadioMap() *RadioMap {
	return &RadioMap{
		points: make(map[string]*point),
		aps:    make(map[string]struct{}),
		now:    time.Now,
	}
}

// AddReferencePoint records measurements taken at a location. Repeated
// calls for the same id accumulate samples; the location and zone are
// replaced by the latest call.
func (m *RadioMap) AddReferencePoint(id string, x, y float64, zone model.ZoneID, ms []Measurement) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.points[id]
	if !ok {
		p = &point{
			ReferencePoint: ReferencePoint{ID: id, Fingerprint: make(map[string]Fingerprint)},
			samples:        make(map[string][]float64),
		}
		m.points[id] = p
		m.order = append(m.order, id)
	}
	p.X, p.Y, p.Zone = x, y, zone
	p.UpdatedAt = m.now()
	for _, meas := range ms {
		if _, seen := m.aps[meas.BSSID]; !seen {
			m.aps[meas.BSSID] = struct{}{}
			m.apList = append(m.apList, meas.BSSID)
		}
		s := append(p.samples[meas.BSSID], float64(meas.RSSI))
		p.samples[meas.BSSID] = s
		mean, std := stat.PopMeanStdDev(s, nil)
		p.Fingerprint[meas.BSSID] = Fingerprint{Mean: mean, Std: std, Count: len(s)}
	}
}

// Points returns a snapshot of all reference points in insertion order.
func (m *RadioMap) Points() []ReferencePoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ReferencePoint, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.points[id].snapshot())
	}
	return out
}

// PointsForZone returns the reference points surveyed in zone.
func (m *RadioMap) PointsForZone(zone model.ZoneID) []ReferencePoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ReferencePoint
	for _, id := range m.order {
		if p := m.points[id]; p.Zone == zone {
			out = append(out, p.snapshot())
		}
	}
	return out
}

// KnownAPs returns every BSSID seen during surveys in first-seen order.
func (m *RadioMap) KnownAPs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.apList...)
}

// Len returns the number of reference points.
func (m *RadioMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

// Clear removes all data.
func (m *RadioMap) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = make(map[string]*point)
	m.order = nil
	m.aps = make(map[string]struct{})
	m.apList = nil
}

func (p *point) snapshot() ReferencePoint {
	rp := p.ReferencePoint
	rp.Fingerprint = make(map[string]Fingerprint, len(p.Fingerprint))
	for k, v := range p.Fingerprint {
		rp.Fingerprint[k] = v
	}
	return rp
}
