package positioning

import (
	"fmt"
	"math"
)

// Log-distance path loss defaults.
const (
	DefaultReferenceRSSI   = -40.0
	IndoorExponent         = 4.0
	OutdoorExponent        = 3.3
	DefaultShadowingStdDev = 5.2
	minRangeMeters         = 0.5
)

// PathLoss parameterises the log-distance model
// RSSI(d) = ref - 10·α·log10(d).
type PathLoss struct {
	ReferenceRSSI float64 `json:"reference_rssi"`
	Exponent      float64 `json:"exponent"`
	ShadowingStd  float64 `json:"shadowing_std"`
}

// IndoorPathLoss returns the indoor corridor parameters.
func IndoorPathLoss() PathLoss {
	return PathLoss{ReferenceRSSI: DefaultReferenceRSSI, Exponent: IndoorExponent, ShadowingStd: DefaultShadowingStdDev}
}

// OutdoorPathLoss returns the outdoor parameters.
func OutdoorPathLoss() PathLoss {
	return PathLoss{ReferenceRSSI: DefaultReferenceRSSI, Exponent: OutdoorExponent, ShadowingStd: DefaultShadowingStdDev}
}

// SetDefaults fills unset fields with the indoor parameters.
func (p *PathLoss) SetDefaults() {
	if p.ReferenceRSSI == 0 {
		p.ReferenceRSSI = DefaultReferenceRSSI
	}
	if p.Exponent == 0 {
		p.Exponent = IndoorExponent
	}
	if p.ShadowingStd == 0 {
		p.ShadowingStd = DefaultShadowingStdDev
	}
}

// Validate checks the parameters.
func (p PathLoss) Validate() error {
	if p.Exponent <= 0 {
		return fmt.Errorf("positioning: path loss exponent must be positive")
	}
	if p.ShadowingStd < 0 {
		return fmt.Errorf("positioning: shadowing std must not be negative")
	}
	return nil
}

// DistanceRange is a distance estimate with its shadowing envelope.
type DistanceRange struct {
	Distance float64 `json:"distance"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
}

// EstimateDistance inverts the path loss model. Distance and Min are
// floored at half a metre.
func EstimateDistance(rssi float64, p PathLoss) DistanceRange {
	d := math.Pow(10, (p.ReferenceRSSI-rssi)/(10*p.Exponent))
	f := p.ShadowingStd / (10 * p.Exponent)
	return DistanceRange{
		Distance: math.Max(minRangeMeters, d),
		Min:      math.Max(minRangeMeters, d*math.Pow(10, -f)),
		Max:      d * math.Pow(10, f),
	}
}

// PredictRSSI returns the expected RSSI at distance meters. Distances up to
// the one metre reference yield the reference RSSI.
func PredictRSSI(meters float64, p PathLoss) float64 {
	if meters <= 1 {
		return p.ReferenceRSSI
	}
	return p.ReferenceRSSI - 10*p.Exponent*math.Log10(meters)
}
