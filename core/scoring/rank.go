package scoring

import (
	"sort"

	"github.com/kilianp07/zonedispatch/core/zonegraph"
)

// Rank scores every worker and orders eligible candidates first, then by
// descending total. Ties keep the input order. Workers missing from
// travelTimes are treated as unreachable.
func (s *Scorer) Rank(workers []WorkerInput, t TaskInput, travelTimes map[string]int) []Breakdown {
	out := make([]Breakdown, 0, len(workers))
	for _, w := range workers {
		travel, ok := travelTimes[w.WorkerID]
		if !ok {
			travel = zonegraph.Unreachable
		}
		out = append(out, s.Score(w, t, travel))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Eligible != out[j].Eligible {
			return out[i].Eligible
		}
		return out[i].Total > out[j].Total
	})
	return out
}

// Best returns the first eligible breakdown of a ranked list.
func Best(ranked []Breakdown) (Breakdown, bool) {
	if len(ranked) == 0 || !ranked[0].Eligible {
		return Breakdown{}, false
	}
	return ranked[0], true
}
