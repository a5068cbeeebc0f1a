package domain

// Recommendation is the reasoning layer's verdict on a transaction.
type Recommendation string

const (
	RecommendApprove Recommendation = "approve"
	RecommendModify  Recommendation = "modify"
	RecommendReject  Recommendation = "reject"
)

// Decision is the cross-boundary contract consumed from the reasoning
// component after a transaction has been evaluated. This is the only
// shape the engine depends on; no other field is assumed to exist.
type Decision struct {
	Recommendation   Recommendation `json:"recommendation" validate:"required,oneof=approve modify reject"`
	ThreatLevel      ThreatLevel    `json:"threat_level" validate:"required,oneof=LOW MEDIUM HIGH CRITICAL"`
	PatternsDetected []string       `json:"patterns_detected"`

	// ResilienceImpact is the score delta, by convention in [-10, 10].
	// The score controller clamps regardless, so an out-of-range value
	// here degrades nothing.
	ResilienceImpact float64 `json:"resilience_impact"`
}

// PrimaryPatternType returns the first detected pattern label, falling
// back to "manual_review" when the reasoning layer named none. Used to
// tag risk signals raised from this decision.
func (d *Decision) PrimaryPatternType() PatternType {
	if len(d.PatternsDetected) > 0 {
		return PatternType(d.PatternsDetected[0])
	}
	return PatternType("manual_review")
}
