package positioning

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Point is a planar location.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// AccuracySample pairs an estimate with ground truth.
type AccuracySample struct {
	Estimated Point `json:"estimated"`
	Actual    Point `json:"actual"`
}

// AccuracyMetrics summarises position errors in map units.
type AccuracyMetrics struct {
	Mean   float64 `json:"mean_error"`
	Median float64 `json:"median_error"`
	P90    float64 `json:"p90_error"`
	StdDev float64 `json:"std_dev"`
}

// Accuracy computes error statistics. Median and P90 are taken at index
// n/2 and 0.9n of the sorted errors. Empty input yields zero metrics.
func Accuracy(samples []AccuracySample) AccuracyMetrics {
	if len(samples) == 0 {
		return AccuracyMetrics{}
	}
	errs := make([]float64, len(samples))
	for i, s := range samples {
		errs[i] = math.Hypot(s.Estimated.X-s.Actual.X, s.Estimated.Y-s.Actual.Y)
	}
	sort.Float64s(errs)
	mean, std := stat.PopMeanStdDev(errs, nil)
	n := len(errs)
	return AccuracyMetrics{
		Mean:   mean,
		Median: errs[n/2],
		P90:    errs[int(math.Floor(float64(n)*0.9))],
		StdDev: std,
	}
}
