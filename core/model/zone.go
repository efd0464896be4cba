package model

// ZoneID identifies a zone of the building (a floor wing, the lobby, a
// service corridor...).
type ZoneID string

// Zone is a node of the building topology. Edges holds the directed travel
// time in seconds to each neighbouring zone.
type Zone struct {
	ID       ZoneID         `json:"id"`
	Name     string         `json:"name"`
	Category string         `json:"category,omitempty"`
	Floor    *int           `json:"floor,omitempty"`
	Edges    map[ZoneID]int `json:"edges,omitempty"`
}

// ZoneEdge is a directed travel-time edge between two zones.
type ZoneEdge struct {
	From    ZoneID `json:"from_zone"`
	To      ZoneID `json:"to_zone"`
	Seconds int    `json:"travel_time_seconds"`
}

// EdgesOf flattens the adjacency of the given zones into a list of edges.
func EdgesOf(zones []Zone) []ZoneEdge {
	var edges []ZoneEdge
	for _, z := range zones {
		for to, s := range z.Edges {
			edges = append(edges, ZoneEdge{From: z.ID, To: to, Seconds: s})
		}
	}
	return edges
}
