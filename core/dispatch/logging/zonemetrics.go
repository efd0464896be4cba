package logging

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/zonedispatch/core/model"
)

// ZoneMetrics summarises dispatch activity of one zone. Averages are nil
// when no sample exists.
type ZoneMetrics struct {
	Zone               model.ZoneID `json:"zone"`
	Name               string       `json:"name,omitempty"`
	Volume             int          `json:"volume"`
	AvgResponseSeconds *int         `json:"avg_response_s"`
	AvgCompleteSeconds *int         `json:"avg_completion_s"`
	Reroutes           int          `json:"reroute_count"`
}

// SummarizeZones folds time ordered records into per-zone metrics. Every
// zone in zones is reported even without activity; records for other zones
// are ignored. Response is assignment to ack, completion is assignment to
// completion, both in whole seconds.
func SummarizeZones(records []LogRecord, zones []model.Zone) []ZoneMetrics {
	byZone := make(map[model.ZoneID]*ZoneMetrics, len(zones))
	out := make([]ZoneMetrics, 0, len(zones))
	for _, z := range zones {
		byZone[z.ID] = &ZoneMetrics{Zone: z.ID, Name: z.Name}
	}
	recs := append([]LogRecord(nil), records...)
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Timestamp.Before(recs[j].Timestamp) })

	taskZone := map[string]model.ZoneID{}
	assignedAt := map[string]time.Time{}
	responses := map[model.ZoneID][]float64{}
	completions := map[model.ZoneID][]float64{}
	for _, r := range recs {
		if r.Zone != "" && r.TaskID != "" {
			taskZone[r.TaskID] = r.Zone
		}
		zone := r.Zone
		if zone == "" {
			zone = taskZone[r.TaskID]
		}
		switch r.Event {
		case EventTaskCreated:
			if m, ok := byZone[r.Zone]; ok {
				m.Volume++
			}
		case EventTaskAssigned:
			assignedAt[r.TaskID] = r.Timestamp
		case EventTaskAck:
			if at, ok := assignedAt[r.TaskID]; ok && zone != "" {
				responses[zone] = append(responses[zone], wholeSeconds(r.Timestamp.Sub(at)))
			}
		case EventTaskComplete:
			if at, ok := assignedAt[r.TaskID]; ok && zone != "" {
				completions[zone] = append(completions[zone], wholeSeconds(r.Timestamp.Sub(at)))
			}
		case EventTaskReroute, EventWorkerBusy:
			if m, ok := byZone[zone]; ok {
				m.Reroutes++
			}
		}
	}
	for _, z := range zones {
		m := byZone[z.ID]
		m.AvgResponseSeconds = average(responses[z.ID])
		m.AvgCompleteSeconds = average(completions[z.ID])
		out = append(out, *m)
	}
	return out
}

func wholeSeconds(d time.Duration) float64 {
	return math.Floor(d.Seconds() + 0.5)
}

func average(v []float64) *int {
	if len(v) == 0 {
		return nil
	}
	avg := int(math.Floor(stat.Mean(v, nil) + 0.5))
	return &avg
}
