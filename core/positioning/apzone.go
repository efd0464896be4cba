package positioning

import (
	"sort"
	"sync"

	"github.com/kilianp07/zonedispatch/core/model"
)

type apZone struct {
	zone model.ZoneID
	rssi float64
}

// APZoneMapper associates access points with the zone where they were heard
// loudest. It backs zone estimation when no fingerprint survey exists and
// is safe for concurrent use.
type APZoneMapper struct {
	mu            sync.RWMutex
	aps           map[string]apZone
	minDetectable float64
	strongSignal  float64
}

// NewAPZoneMapper uses the thresholds of cfg.
func NewAPZoneMapper(cfg Config) *APZoneMapper {
	cfg.SetDefaults()
	return &APZoneMapper{
		aps:           make(map[string]apZone),
		minDetectable: cfg.MinDetectable,
		strongSignal:  cfg.StrongSignal,
	}
}

// Observe records that bssid was heard in zone. Only a stronger reading
// replaces an existing association.
func (m *APZoneMapper) Observe(bssid string, zone model.ZoneID, rssi float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.aps[bssid]; ok && rssi <= cur.rssi {
		return
	}
	m.aps[bssid] = apZone{zone: zone, rssi: rssi}
}

// ZoneForAP returns the zone associated with bssid.
func (m *APZoneMapper) ZoneForAP(bssid string) (model.ZoneID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.aps[bssid]
	return a.zone, ok
}

// Len returns the number of mapped access points.
func (m *APZoneMapper) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.aps)
}

// Estimate votes for zones by counting detectable access points of each
// zone. RSSIMatch is 1 when the zone's mean RSSI is a strong signal.
func (m *APZoneMapper) Estimate(ms []Measurement) []ZoneEstimate {
	type tally struct {
		count int
		sum   float64
	}
	var (
		order []model.ZoneID
		total int
	)
	tallies := make(map[model.ZoneID]*tally)
	for _, meas := range ms {
		v := float64(meas.RSSI)
		if v < m.minDetectable {
			continue
		}
		z, ok := m.ZoneForAP(meas.BSSID)
		if !ok {
			continue
		}
		t, ok := tallies[z]
		if !ok {
			t = &tally{}
			tallies[z] = t
			order = append(order, z)
		}
		t.count++
		t.sum += v
		total++
	}
	out := make([]ZoneEstimate, 0, len(order))
	for _, z := range order {
		t := tallies[z]
		est := ZoneEstimate{
			Zone:        z,
			Probability: float64(t.count) / float64(max(1, total)),
			Confidence:  float64(t.count) / float64(len(ms)),
			RSSIMatch:   0.5,
		}
		if t.sum/float64(t.count) > m.strongSignal {
			est.RSSIMatch = 1
		}
		out = append(out, est)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Probability > out[j].Probability })
	return out
}
