// Package zonegraph computes travel times between zones of the building.
//
// The topology is a directed graph whose edge weights are walking times in
// seconds. Weights may be asymmetric (stairs up vs. down) and the graph may be
// disconnected, in which case Unreachable is returned instead of an error.
package zonegraph

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/kilianp07/zonedispatch/core/model"
)

// Unreachable is returned when no path exists between two zones.
const Unreachable = 999

var (
	// ErrNegativeWeight rejects edges with a negative travel time.
	ErrNegativeWeight = errors.New("zonegraph: negative travel time")
	// ErrDuplicateEdge rejects a second weight for the same ordered pair.
	ErrDuplicateEdge = errors.New("zonegraph: duplicate edge")
	// ErrSelfEdge rejects edges from a zone to itself.
	ErrSelfEdge = errors.New("zonegraph: self edge")
)

// Graph is an immutable zone adjacency graph. Shortest path trees are
// computed lazily per origin and cached.
type Graph struct {
	g     *simple.WeightedDirectedGraph
	ids   map[model.ZoneID]int64
	zones []model.ZoneID

	mu    sync.Mutex
	trees map[int64]path.Shortest
}

// New builds a graph from directed edges.
func New(edges []model.ZoneEdge) (*Graph, error) {
	gr := &Graph{
		g:     simple.NewWeightedDirectedGraph(0, math.Inf(1)),
		ids:   make(map[model.ZoneID]int64),
		trees: make(map[int64]path.Shortest),
	}
	for _, e := range edges {
		if e.Seconds < 0 {
			return nil, fmt.Errorf("%w: %s->%s (%d)", ErrNegativeWeight, e.From, e.To, e.Seconds)
		}
		if e.From == e.To {
			return nil, fmt.Errorf("%w: %s", ErrSelfEdge, e.From)
		}
		from, to := gr.node(e.From), gr.node(e.To)
		if gr.g.HasEdgeFromTo(from, to) {
			return nil, fmt.Errorf("%w: %s->%s", ErrDuplicateEdge, e.From, e.To)
		}
		gr.g.SetWeightedEdge(gr.g.NewWeightedEdge(simple.Node(from), simple.Node(to), float64(e.Seconds)))
	}
	sort.Slice(gr.zones, func(i, j int) bool { return gr.zones[i] < gr.zones[j] })
	return gr, nil
}

// node returns the numeric ID for a zone, registering it if needed.
func (gr *Graph) node(z model.ZoneID) int64 {
	if id, ok := gr.ids[z]; ok {
		return id
	}
	id := int64(len(gr.ids))
	gr.ids[z] = id
	gr.zones = append(gr.zones, z)
	gr.g.AddNode(simple.Node(id))
	return id
}

// Zones returns the known zones in lexical order.
func (gr *Graph) Zones() []model.ZoneID {
	return append([]model.ZoneID(nil), gr.zones...)
}

// Has reports whether the zone appears in the topology.
func (gr *Graph) Has(z model.ZoneID) bool {
	_, ok := gr.ids[z]
	return ok
}

// ShortestTravelTime returns the shortest travel time in seconds from one
// zone to another. An empty origin means the location is unknown and yields
// 0; callers must not read that as "same zone". Missing paths yield
// Unreachable.
func (gr *Graph) ShortestTravelTime(from, to model.ZoneID) int {
	if from == "" || from == to {
		return 0
	}
	src, ok := gr.ids[from]
	if !ok {
		return Unreachable
	}
	dst, ok := gr.ids[to]
	if !ok {
		return Unreachable
	}
	w := gr.tree(src).WeightTo(dst)
	if math.IsInf(w, 1) || math.IsNaN(w) {
		return Unreachable
	}
	return int(math.Round(w))
}

// TravelTimes computes the travel time from every origin to the target zone.
// The result is keyed like origins.
func (gr *Graph) TravelTimes(origins map[string]model.ZoneID, to model.ZoneID) map[string]int {
	out := make(map[string]int, len(origins))
	for k, from := range origins {
		out[k] = gr.ShortestTravelTime(from, to)
	}
	return out
}

func (gr *Graph) tree(src int64) path.Shortest {
	gr.mu.Lock()
	defer gr.mu.Unlock()
	if t, ok := gr.trees[src]; ok {
		return t
	}
	t := path.DijkstraFrom(simple.Node(src), gr.g)
	gr.trees[src] = t
	return t
}
