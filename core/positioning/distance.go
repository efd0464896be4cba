package positioning

import "math"

// EuclideanDistance is the plain signal-space distance over aps. Missing
// values on either side are replaced by undetected.
func EuclideanDistance(meas map[string]float64, fp map[string]Fingerprint, aps []string, undetected float64) float64 {
	var sum float64
	for _, ap := range aps {
		d := valueOr(meas, ap, undetected) - meanOr(fp, ap, undetected)
		sum += d * d
	}
	return math.Sqrt(sum)
}

// WeightedEuclideanDistance weights each access point by 1/max(1,std) of
// its fingerprint, or 0.1 when the point never saw it, and normalises by
// the total weight.
func WeightedEuclideanDistance(meas map[string]float64, fp map[string]Fingerprint, aps []string, undetected float64) float64 {
	var sum, total float64
	for _, ap := range aps {
		w := 0.1
		if f, ok := fp[ap]; ok {
			w = 1 / math.Max(1, f.Std)
		}
		total += w
		d := valueOr(meas, ap, undetected) - meanOr(fp, ap, undetected)
		sum += w * d * d
	}
	if total == 0 {
		total = 1
	}
	return math.Sqrt(sum / total)
}

func valueOr(m map[string]float64, k string, def float64) float64 {
	if v, ok := m[k]; ok {
		return v
	}
	return def
}

func meanOr(fp map[string]Fingerprint, k string, def float64) float64 {
	if f, ok := fp[k]; ok {
		return f.Mean
	}
	return def
}
