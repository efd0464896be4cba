package scoring

// NoStatePenalty is the legacy penalty of a worker without live state.
const NoStatePenalty = 9999

// LegacyPenalty is the older lower-is-better cost: travel seconds plus
// penalties for load, unreliability and zone uncertainty.
func LegacyPenalty(w WorkerInput, travelSeconds int, hasState bool) float64 {
	if !hasState {
		return NoStatePenalty
	}
	return float64(travelSeconds) +
		15*float64(w.ActiveTaskCount) +
		60*(1-w.Reliability) +
		45*(1-w.ZoneConfidence)
}

// Band buckets a 0..100 score for display.
func Band(score float64) string {
	switch {
	case score >= 80:
		return "good"
	case score >= 60:
		return "fair"
	case score >= 40:
		return "warn"
	default:
		return "poor"
	}
}
