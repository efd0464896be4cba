package positioning

import (
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/zonedispatch/core/model"
)

func TestEstimateDistance(t *testing.T) {
	r := EstimateDistance(-40, IndoorPathLoss())
	assert.InDelta(t, 1, r.Distance, 1e-9)
	assert.InDelta(t, math.Pow(10, -0.13), r.Min, 1e-9)
	assert.InDelta(t, math.Pow(10, 0.13), r.Max, 1e-9)

	assert.InDelta(t, 10, EstimateDistance(-80, IndoorPathLoss()).Distance, 1e-9)
	assert.InDelta(t, 10, EstimateDistance(-73, OutdoorPathLoss()).Distance, 1e-9)

	near := EstimateDistance(-30, IndoorPathLoss())
	assert.InDelta(t, math.Pow(10, -0.25), near.Distance, 1e-9)
	assert.Equal(t, 0.5, near.Min)

	floored := EstimateDistance(0, IndoorPathLoss())
	assert.Equal(t, 0.5, floored.Distance)
}

func TestPredictRSSI(t *testing.T) {
	p := IndoorPathLoss()
	assert.Equal(t, -40.0, PredictRSSI(0.5, p))
	assert.Equal(t, -40.0, PredictRSSI(1, p))
	assert.InDelta(t, -80, PredictRSSI(10, p), 1e-9)
	d := EstimateDistance(PredictRSSI(25, p), p).Distance
	assert.InDelta(t, 25, d, 1e-9)
}

func TestAPZoneMapper(t *testing.T) {
	m := NewAPZoneMapper(Config{})
	m.Observe("ap1", "z1", -60)
	m.Observe("ap1", "z2", -50)
	m.Observe("ap1", "z3", -70)
	m.Observe("ap2", "z1", -40)
	m.Observe("ap3", "z1", -40)
	m.Observe("ap4", "z1", -40)

	z, ok := m.ZoneForAP("ap1")
	require.True(t, ok)
	assert.Equal(t, model.ZoneID("z2"), z)
	_, ok = m.ZoneForAP("nope")
	assert.False(t, ok)

	got := m.Estimate([]Measurement{
		{BSSID: "ap1", RSSI: -55},
		{BSSID: "ap2", RSSI: -75},
		{BSSID: "ap3", RSSI: -70},
		{BSSID: "ap4", RSSI: -99},
		{BSSID: "ap5", RSSI: -50},
	})
	require.Len(t, got, 2)
	assert.Equal(t, ZoneEstimate{Zone: "z1", Probability: 2.0 / 3, Confidence: 2.0 / 5, RSSIMatch: 0.5}, got[0])
	assert.Equal(t, ZoneEstimate{Zone: "z2", Probability: 1.0 / 3, Confidence: 1.0 / 5, RSSIMatch: 1}, got[1])

	assert.Empty(t, m.Estimate([]Measurement{{BSSID: "ap5", RSSI: -40}}))
}

func TestAccuracy(t *testing.T) {
	o := Point{}
	got := Accuracy([]AccuracySample{
		{Estimated: Point{6, 8}, Actual: o},
		{Estimated: Point{0, 0}, Actual: o},
		{Estimated: Point{3, 4}, Actual: o},
		{Estimated: Point{3, 0}, Actual: o},
	})
	assert.InDelta(t, 4.5, got.Mean, 1e-9)
	assert.Equal(t, 5.0, got.Median)
	assert.Equal(t, 10.0, got.P90)
	assert.InDelta(t, math.Sqrt(13.25), got.StdDev, 1e-9)
	assert.Equal(t, AccuracyMetrics{}, Accuracy(nil))
}

func TestSimulate(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	aps := []SimulatedAP{
		{BSSID: "home", Zone: "z1", BaseRSSI: -50},
		{BSSID: "next", Zone: "z2", BaseRSSI: -50},
		{BSSID: "far", Zone: "z3", BaseRSSI: -90},
	}
	for i := 0; i < 50; i++ {
		ms := Simulate(rng, "z1", aps, Config{})
		byID := map[string]int{}
		for _, m := range ms {
			byID[m.BSSID] = m.RSSI
		}
		require.Contains(t, byID, "home")
		require.Contains(t, byID, "next")
		assert.NotContains(t, byID, "far")
		assert.InDelta(t, -50, byID["home"], 6)
		assert.InDelta(t, -65, byID["next"], 6)
	}
}

func TestLoadSurveyApply(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "survey.yaml")
	content := `
reference_points:
  - id: lobby-1
    zone: lobby
    x: 1
    y: 2
    scans:
      - [{bssid: aa, rssi: -45}, {bssid: bb, rssi: -70}]
      - [{bssid: aa, rssi: -47}, {bssid: bb, rssi: -72}]
  - id: bar-1
    zone: bar
    x: 10
    y: 2
    scans:
      - [{bssid: aa, rssi: -75}, {bssid: bb, rssi: -48}]
access_points:
  - bssid: cc
    zone: spa
    rssi: -40
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	s, err := LoadSurvey(path)
	require.NoError(t, err)
	require.Len(t, s.ReferencePoints, 2)

	m := NewRadioMap()
	mapper := NewAPZoneMapper(Config{})
	s.Apply(m, mapper)

	assert.Equal(t, 2, m.Len())
	assert.Equal(t, 2, m.Points()[0].Fingerprint["aa"].Count)
	for bssid, want := range map[string]model.ZoneID{"aa": "lobby", "bb": "bar", "cc": "spa"} {
		z, ok := mapper.ZoneForAP(bssid)
		require.True(t, ok, bssid)
		assert.Equal(t, want, z, bssid)
	}
}

func TestLoadSurveyErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadSurvey(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "s.toml")
	require.NoError(t, os.WriteFile(bad, []byte(""), 0o600))
	_, err = LoadSurvey(bad)
	assert.Error(t, err)

	noZone := filepath.Join(dir, "s.json")
	require.NoError(t, os.WriteFile(noZone, []byte(`{"reference_points":[{"id":"x"}]}`), 0o600))
	_, err = LoadSurvey(noZone)
	assert.Error(t, err)
}
