// Package positioning estimates worker location from WiFi scans.
//
// A RadioMap holds surveyed fingerprints. The Engine turns a live scan into
// a position with WKNN, into zone probabilities with a per-zone Gaussian
// model, and reconciles both in Hybrid. APZoneMapper is the fallback used
// when no survey exists.
package positioning

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/kilianp07/zonedispatch/core/model"
)

const minWeightDistance = 0.001

// Engine runs the estimators against a radio map.
type Engine struct {
	radio *RadioMap
	cfg   Config
	// Now stamps estimates.
	Now func() time.Time
}

// NewEngine returns an engine over m. cfg is completed with defaults.
func NewEngine(m *RadioMap, cfg Config) *Engine {
	cfg.SetDefaults()
	return &Engine{radio: m, cfg: cfg, Now: time.Now}
}

// Map returns the underlying radio map.
func (e *Engine) Map() *RadioMap { return e.radio }

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

type neighbour struct {
	rp       ReferencePoint
	distance float64
}

// WKNN locates a scan by weighted k-nearest neighbours in signal space.
// k <= 0 uses the configured default. It returns nil when the map is empty.
func (e *Engine) WKNN(ms []Measurement, k int) *PositionEstimate {
	points := e.radio.Points()
	if len(points) == 0 {
		return nil
	}
	if k <= 0 {
		k = e.cfg.K
	}
	aps := e.radio.KnownAPs()
	meas := measured(ms)

	ns := make([]neighbour, len(points))
	for i, rp := range points {
		ns[i] = neighbour{rp: rp, distance: WeightedEuclideanDistance(meas, rp.Fingerprint, aps, e.cfg.Undetected)}
	}
	sort.SliceStable(ns, func(i, j int) bool { return ns[i].distance < ns[j].distance })
	if k < len(ns) {
		ns = ns[:k]
	}

	weights := make([]float64, len(ns))
	for i, n := range ns {
		weights[i] = e.weight(n.distance)
	}
	if total := floats.Sum(weights); total > 0 {
		floats.Scale(1/total, weights)
	} else {
		for i := range weights {
			weights[i] = 1 / float64(len(weights))
		}
	}

	est := &PositionEstimate{Method: MethodWKNN, Timestamp: e.Now()}
	var votes []zoneVote
	for i, n := range ns {
		est.X += weights[i] * n.rp.X
		est.Y += weights[i] * n.rp.Y
		votes = addVote(votes, n.rp.Zone, weights[i])
	}
	est.Zone = topVote(votes)

	dmin, dmax := ns[0].distance, ns[len(ns)-1].distance
	est.Confidence = clamp01((1 / (1 + dmin/20)) * (1 / (1 + (dmax-dmin)/30)))
	est.Uncertainty = math.Max(1, dmin/3)
	return est
}

func (e *Engine) weight(d float64) float64 {
	switch e.cfg.Weighting {
	case WeightSquare:
		return 1 / math.Max(minWeightDistance, d*d)
	case WeightGaussian:
		s := e.cfg.GaussianSigma
		return math.Exp(-(d * d) / (2 * s * s))
	default:
		return 1 / math.Max(minWeightDistance, d)
	}
}

type zoneVote struct {
	zone   model.ZoneID
	weight float64
}

func addVote(votes []zoneVote, z model.ZoneID, w float64) []zoneVote {
	for i := range votes {
		if votes[i].zone == z {
			votes[i].weight += w
			return votes
		}
	}
	return append(votes, zoneVote{zone: z, weight: w})
}

// topVote returns the heaviest zone; the first one wins ties.
func topVote(votes []zoneVote) model.ZoneID {
	var best model.ZoneID
	bestW := 0.0
	for _, v := range votes {
		if v.weight > bestW {
			best, bestW = v.zone, v.weight
		}
	}
	return best
}

// Bayesian rates every surveyed zone by the Gaussian likelihood of the
// scan. Probabilities are normalised when any zone matched and the result
// is sorted by descending probability. An empty map yields an empty slice.
func (e *Engine) Bayesian(ms []Measurement) []ZoneEstimate {
	points := e.radio.Points()
	if len(points) == 0 {
		return []ZoneEstimate{}
	}
	var zones []model.ZoneID
	byZone := make(map[model.ZoneID][]ReferencePoint)
	for _, rp := range points {
		if _, ok := byZone[rp.Zone]; !ok {
			zones = append(zones, rp.Zone)
		}
		byZone[rp.Zone] = append(byZone[rp.Zone], rp)
	}
	meas := measured(ms)

	out := make([]ZoneEstimate, 0, len(zones))
	var total float64
	for _, z := range zones {
		est := e.zoneLikelihood(z, byZone[z], meas)
		total += est.Probability
		out = append(out, est)
	}
	if total > 0 {
		for i := range out {
			out[i].Probability /= total
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Probability > out[j].Probability })
	return out
}

func (e *Engine) zoneLikelihood(z model.ZoneID, points []ReferencePoint, meas map[string]float64) ZoneEstimate {
	var (
		logLik    float64
		matched   int
		totalDiff float64
	)
	for bssid, v := range meas {
		best, ok := bestMatch(points, bssid, v, e.cfg.MinSamples)
		if !ok {
			continue
		}
		matched++
		totalDiff += math.Abs(v - best.Mean)
		variance := math.Max(1, best.Std*best.Std)
		logLik += distuv.Normal{Mu: best.Mean, Sigma: math.Sqrt(variance)}.LogProb(v)
	}
	est := ZoneEstimate{Zone: z}
	if matched == 0 {
		return est
	}
	est.Probability = math.Exp(logLik / float64(matched))
	est.RSSIMatch = math.Max(0, 1-totalDiff/(float64(matched)*20))
	est.Confidence = float64(matched) / float64(len(meas))
	return est
}

// bestMatch picks the fingerprint of bssid whose mean is closest to v among
// points with enough samples.
func bestMatch(points []ReferencePoint, bssid string, v float64, minSamples int) (Fingerprint, bool) {
	var (
		best  Fingerprint
		found bool
	)
	for _, rp := range points {
		fp, ok := rp.Fingerprint[bssid]
		if !ok || fp.Count < minSamples {
			continue
		}
		if !found || math.Abs(fp.Mean-v) < math.Abs(best.Mean-v) {
			best, found = fp, true
		}
	}
	return best, found
}

// HybridResult bundles the reconciled position and the zone ranking.
type HybridResult struct {
	Position *PositionEstimate `json:"position,omitempty"`
	Zones    []ZoneEstimate    `json:"zones"`
}

// Hybrid runs both estimators. When the top Bayesian zone disagrees with
// WKNN and is more likely than the configured threshold, the position moves
// to the centroid of that zone's reference points.
func (e *Engine) Hybrid(ms []Measurement) HybridResult {
	pos := e.WKNN(ms, 0)
	zones := e.Bayesian(ms)
	if pos == nil || len(zones) == 0 {
		return HybridResult{Position: pos, Zones: zones}
	}
	top := zones[0]
	if top.Zone == pos.Zone || top.Probability <= e.cfg.HybridThreshold {
		return HybridResult{Position: pos, Zones: zones}
	}
	if x, y, ok := e.centroid(top.Zone); ok {
		pos.X, pos.Y = x, y
		pos.Zone = top.Zone
		pos.Method = MethodHybrid
		pos.Confidence = (pos.Confidence + top.Probability) / 2
	}
	return HybridResult{Position: pos, Zones: zones}
}

func (e *Engine) centroid(z model.ZoneID) (float64, float64, bool) {
	pts := e.radio.PointsForZone(z)
	if len(pts) == 0 {
		return 0, 0, false
	}
	var x, y float64
	for _, p := range pts {
		x += p.X
		y += p.Y
	}
	n := float64(len(pts))
	return x / n, y / n, true
}
