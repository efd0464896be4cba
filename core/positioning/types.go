package positioning

import (
	"time"

	"github.com/kilianp07/zonedispatch/core/model"
)

// Measurement is one access point observed in a scan.
type Measurement struct {
	BSSID        string `json:"bssid" yaml:"bssid"`
	RSSI         int    `json:"rssi" yaml:"rssi"`
	SSID         string `json:"ssid,omitempty" yaml:"ssid,omitempty"`
	FrequencyMHz int    `json:"frequency,omitempty" yaml:"frequency,omitempty"`
}

// Method names the estimator that produced a position.
type Method string

const (
	MethodWKNN     Method = "wknn"
	MethodBayesian Method = "bayesian"
	MethodHybrid   Method = "hybrid"
)

// PositionEstimate is the output of one positioning call.
type PositionEstimate struct {
	X           float64      `json:"x"`
	Y           float64      `json:"y"`
	Zone        model.ZoneID `json:"zone"`
	Confidence  float64      `json:"confidence"`
	Method      Method       `json:"method"`
	Uncertainty float64      `json:"uncertainty"`
	Timestamp   time.Time    `json:"timestamp"`
}

// ZoneEstimate is the likelihood of one zone.
type ZoneEstimate struct {
	Zone        model.ZoneID `json:"zone"`
	Probability float64      `json:"probability"`
	Confidence  float64      `json:"confidence"`
	RSSIMatch   float64      `json:"rssi_match"`
}

// measured indexes a scan by BSSID. Later duplicates win.
func measured(ms []Measurement) map[string]float64 {
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		out[m.BSSID] = float64(m.RSSI)
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
