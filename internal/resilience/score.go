// Package resilience implements the bounded resilience score controller.
//
// The score is a single continuous state variable clamped to [0,100].
// It moves only in response to explicit deltas from upstream decisions;
// there is no decay over time and no automatic recovery.
package resilience

import "github.com/agentic-finance/kestrel/internal/domain"

// Band thresholds for qualitative display. Derived on read, never
// persisted.
const (
	bandExcellent = 80.0
	bandGood      = 60.0
	bandFair      = 40.0
)

// Clamp bounds a score to [0,100].
func Clamp(score float64) float64 {
	if score < domain.ResilienceMin {
		return domain.ResilienceMin
	}
	if score > domain.ResilienceMax {
		return domain.ResilienceMax
	}
	return score
}

// Apply returns the score after a delta, clamped to [0,100]. The delta
// range is [-10,10] by convention but is never trusted; any magnitude
// is clamped silently.
func Apply(score, delta float64) float64 {
	return Clamp(score + delta)
}

// Band returns the qualitative band for a score.
func Band(score float64) domain.ResilienceBand {
	switch {
	case score >= bandExcellent:
		return domain.BandExcellent
	case score >= bandGood:
		return domain.BandGood
	case score >= bandFair:
		return domain.BandFair
	default:
		return domain.BandPoor
	}
}
