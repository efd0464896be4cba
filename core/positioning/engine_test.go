package positioning

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/zonedispatch/core/model"
)

func scan(a, b int) []Measurement {
	return []Measurement{{BSSID: "aa", RSSI: a}, {BSSID: "bb", RSSI: b}}
}

func addN(m *RadioMap, n int, id string, x, y float64, z model.ZoneID, ms []Measurement) {
	for i := 0; i < n; i++ {
		m.AddReferencePoint(id, x, y, z, ms)
	}
}

func TestRadioMapFingerprintStats(t *testing.T) {
	m := NewRadioMap()
	for _, v := range []int{-50, -52, -54} {
		m.AddReferencePoint("rp1", 1, 2, "lobby", []Measurement{{BSSID: "aa", RSSI: v}})
	}
	m.AddReferencePoint("rp2", 5, 5, "bar", []Measurement{{BSSID: "bb", RSSI: -70}})

	pts := m.Points()
	require.Len(t, pts, 2)
	fp := pts[0].Fingerprint["aa"]
	assert.InDelta(t, -52, fp.Mean, 1e-9)
	assert.InDelta(t, math.Sqrt(8.0/3.0), fp.Std, 1e-9)
	assert.Equal(t, 3, fp.Count)
	assert.Equal(t, []string{"aa", "bb"}, m.KnownAPs())
	assert.Len(t, m.PointsForZone("bar"), 1)

	pts[0].Fingerprint["aa"] = Fingerprint{}
	assert.Equal(t, 3, m.Points()[0].Fingerprint["aa"].Count, "snapshots must not alias")

	m.Clear()
	assert.Equal(t, 0, m.Len())
	assert.Empty(t, m.KnownAPs())
}

func TestWeightedEuclideanDistance(t *testing.T) {
	fp := map[string]Fingerprint{"aa": {Mean: -50, Std: 2}}
	meas := map[string]float64{"aa": -54}
	// aa: weight 0.5, diff 4; bb: weight 0.1, both sides undetected.
	got := WeightedEuclideanDistance(meas, fp, []string{"aa", "bb"}, -100)
	assert.InDelta(t, math.Sqrt(0.5*16/0.6), got, 1e-9)
	assert.Equal(t, 0.0, WeightedEuclideanDistance(meas, fp, nil, -100))
	assert.InDelta(t, 4, EuclideanDistance(meas, fp, []string{"aa", "bb"}, -100), 1e-9)
}

func TestWKNN_EmptyMap(t *testing.T) {
	e := NewEngine(NewRadioMap(), Config{})
	assert.Nil(t, e.WKNN(scan(-50, -70), 4))
	got := e.Bayesian(scan(-50, -70))
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Nil(t, e.Hybrid(scan(-50, -70)).Position)
}

func TestWKNN_WeightedZoneVote(t *testing.T) {
	m := NewRadioMap()
	m.AddReferencePoint("x1", 0, 0, "X", scan(-50, -80))
	m.AddReferencePoint("x2", 2, 0, "X", scan(-53, -80))
	m.AddReferencePoint("x3", 0, 2, "X", scan(-50, -83))
	m.AddReferencePoint("y1", 10, 10, "Y", scan(-70, -60))
	m.AddReferencePoint("y2", 12, 10, "Y", scan(-75, -55))
	e := NewEngine(m, Config{})

	est := e.WKNN(scan(-51, -80), 4)
	require.NotNil(t, est)
	assert.Equal(t, model.ZoneID("X"), est.Zone)
	assert.Equal(t, MethodWKNN, est.Method)

	d := []float64{math.Sqrt(0.5), math.Sqrt(2), math.Sqrt(5), math.Sqrt(380.5)}
	xs := []float64{0, 2, 0, 10}
	ys := []float64{0, 0, 2, 10}
	var total, wx, wy float64
	for i := range d {
		w := 1 / d[i]
		total += w
		wx += w * xs[i]
		wy += w * ys[i]
	}
	assert.InDelta(t, wx/total, est.X, 1e-9)
	assert.InDelta(t, wy/total, est.Y, 1e-9)

	wantConf := (1 / (1 + d[0]/20)) * (1 / (1 + (d[3]-d[0])/30))
	assert.InDelta(t, wantConf, est.Confidence, 1e-9)
	assert.Equal(t, 1.0, est.Uncertainty)
}

func TestWKNN_FewerPointsThanK(t *testing.T) {
	m := NewRadioMap()
	m.AddReferencePoint("only", 3, 4, "Z", scan(-60, -60))
	est := NewEngine(m, Config{}).WKNN(scan(-60, -60), 4)
	require.NotNil(t, est)
	assert.Equal(t, 3.0, est.X)
	assert.Equal(t, 4.0, est.Y)
	assert.Equal(t, 1.0, est.Confidence)
}

func TestWKNN_AlternativeWeightings(t *testing.T) {
	for _, w := range []Weighting{WeightSquare, WeightGaussian} {
		m := NewRadioMap()
		m.AddReferencePoint("a", 0, 0, "A", scan(-50, -70))
		m.AddReferencePoint("b", 10, 0, "B", scan(-70, -50))
		est := NewEngine(m, Config{Weighting: w}).WKNN(scan(-52, -70), 2)
		require.NotNil(t, est)
		assert.Equal(t, model.ZoneID("A"), est.Zone, "weighting %s", w)
		assert.Less(t, est.X, 5.0)
	}
}

func TestBayesian_Normalised(t *testing.T) {
	m := NewRadioMap()
	for i, v := range []int{-48, -50, -52, -50, -50} {
		m.AddReferencePoint("x", 0, 0, "X", scan(v, -80+i%2))
		m.AddReferencePoint("y", 10, 0, "Y", scan(v-25, -55-i%2))
	}
	e := NewEngine(m, Config{})

	got := e.Bayesian(scan(-50, -79))
	require.Len(t, got, 2)
	var sum float64
	for _, z := range got {
		sum += z.Probability
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
	assert.Equal(t, model.ZoneID("X"), got[0].Zone)
	assert.Equal(t, 1.0, got[0].Confidence)
	assert.Greater(t, got[0].RSSIMatch, got[1].RSSIMatch)
}

func TestBayesian_IgnoresThinFingerprints(t *testing.T) {
	m := NewRadioMap()
	addN(m, 4, "x", 0, 0, "X", scan(-50, -70))
	got := NewEngine(m, Config{}).Bayesian(scan(-50, -70))
	require.Len(t, got, 1)
	assert.Equal(t, 0.0, got[0].Probability)
	assert.Equal(t, 0.0, got[0].Confidence)
}

func hybridMap() *RadioMap {
	m := NewRadioMap()
	m.AddReferencePoint("a1", 0, 0, "A", scan(-50, -70))
	m.AddReferencePoint("a2", 1, 0, "A", scan(-51, -70))
	m.AddReferencePoint("a3", 0, 1, "A", scan(-50, -71))
	addN(m, 5, "b1", 20, 20, "B", scan(-60, -60))
	return m
}

func TestHybrid_StrongBayesianOverride(t *testing.T) {
	e := NewEngine(hybridMap(), Config{})
	wknn := e.WKNN(scan(-50, -70), 0)
	require.NotNil(t, wknn)
	require.Equal(t, model.ZoneID("A"), wknn.Zone)

	res := e.Hybrid(scan(-50, -70))
	require.NotNil(t, res.Position)
	assert.Equal(t, model.ZoneID("B"), res.Position.Zone)
	assert.Equal(t, MethodHybrid, res.Position.Method)
	assert.Equal(t, 20.0, res.Position.X)
	assert.Equal(t, 20.0, res.Position.Y)
	assert.InDelta(t, (wknn.Confidence+1)/2, res.Position.Confidence, 1e-9)
	assert.Equal(t, model.ZoneID("B"), res.Zones[0].Zone)
}

func TestHybrid_KeepsWKNNBelowThreshold(t *testing.T) {
	e := NewEngine(hybridMap(), Config{HybridThreshold: 1})
	res := e.Hybrid(scan(-50, -70))
	require.NotNil(t, res.Position)
	assert.Equal(t, model.ZoneID("A"), res.Position.Zone)
	assert.Equal(t, MethodWKNN, res.Position.Method)
}

func TestConfigValidate(t *testing.T) {
	c := DefaultConfig()
	require.NoError(t, c.Validate())
	assert.Equal(t, 4, c.K)
	assert.Equal(t, -95.0, c.MinDetectable)

	c.Weighting = "nearest"
	assert.Error(t, c.Validate())
}
