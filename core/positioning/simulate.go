package positioning

import (
	"math"
	"math/rand/v2"

	"github.com/kilianp07/zonedispatch/core/model"
)

// WallAttenuation is the loss applied to access points of other zones.
const WallAttenuation = 15.0

// SimulatedAP is an access point used to synthesise scans.
type SimulatedAP struct {
	BSSID    string       `json:"bssid" yaml:"bssid"`
	Zone     model.ZoneID `json:"zone" yaml:"zone"`
	BaseRSSI float64      `json:"base_rssi" yaml:"base_rssi"`
}

// Simulate produces a noisy scan as seen from trueZone. Each reading gets
// uniform shadowing of ±ShadowingStd and undetectable signals are dropped.
func Simulate(rng *rand.Rand, trueZone model.ZoneID, aps []SimulatedAP, cfg Config) []Measurement {
	cfg.SetDefaults()
	var out []Measurement
	for _, ap := range aps {
		att := 0.0
		if ap.Zone != trueZone {
			att = WallAttenuation
		}
		shadow := (rng.Float64() - 0.5) * cfg.PathLoss.ShadowingStd * 2
		rssi := ap.BaseRSSI - att + shadow
		if rssi > cfg.MinDetectable {
			out = append(out, Measurement{BSSID: ap.BSSID, RSSI: int(math.Floor(rssi + 0.5))})
		}
	}
	return out
}
