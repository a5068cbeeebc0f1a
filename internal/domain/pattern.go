package domain

import "time"

// PatternType identifies a recurring economically-harmful behavior.
type PatternType string

const (
	PatternRecurringMicroCosts PatternType = "recurring_micro_costs"
	PatternVendorConcentration PatternType = "vendor_concentration"
	PatternConvenienceBias     PatternType = "convenience_bias"
	PatternDecliningValue      PatternType = "declining_value"
)

// KnownPatternTypes lists every pattern type the detectors can emit.
func KnownPatternTypes() []PatternType {
	return []PatternType{
		PatternRecurringMicroCosts,
		PatternVendorConcentration,
		PatternConvenienceBias,
		PatternDecliningValue,
	}
}

// ValidPatternType reports whether s names a known pattern type.
func ValidPatternType(s string) bool {
	switch PatternType(s) {
	case PatternRecurringMicroCosts, PatternVendorConcentration,
		PatternConvenienceBias, PatternDecliningValue:
		return true
	}
	return false
}

// ThreatLevel is the qualitative severity of a pattern or decision.
type ThreatLevel string

const (
	ThreatLow      ThreatLevel = "LOW"
	ThreatMedium   ThreatLevel = "MEDIUM"
	ThreatHigh     ThreatLevel = "HIGH"
	ThreatCritical ThreatLevel = "CRITICAL"
)

// Severity maps a threat level to an occurrence severity in [0,1].
func (t ThreatLevel) Severity() float64 {
	switch t {
	case ThreatCritical:
		return 1.0
	case ThreatHigh:
		return 0.8
	case ThreatMedium:
		return 0.6
	default:
		return 0.4
	}
}

// AtLeastHigh reports whether the threat level warrants a risk signal.
func (t ThreatLevel) AtLeastHigh() bool {
	return t == ThreatHigh || t == ThreatCritical
}

// PatternOccurrence records one transaction that exhibited a pattern.
// Occurrences are append-only once attached to a pattern.
type PatternOccurrence struct {
	TxID      string    `json:"txId"`
	Timestamp time.Time `json:"timestamp"`
	Severity  float64   `json:"severity"` // 0.0 to 1.0
	Context   string    `json:"context,omitempty"`
}

// PatternKey is the true identity of a pattern. Detectors mint fresh IDs
// on every hit; the memory store merges by key so repeat detections grow
// one pattern instead of duplicating it.
type PatternKey struct {
	Type      PatternType
	Recipient string
}

// EconomicPattern is a detected recurring behavior for one recipient.
type EconomicPattern struct {
	ID          string              `json:"id"`
	Type        PatternType         `json:"type"`
	Recipient   string              `json:"recipient"`
	Description string              `json:"description"`
	DetectedAt  time.Time           `json:"detectedAt"`
	Occurrences []PatternOccurrence `json:"occurrences"`

	// ThreatLevel and EstimatedImpact are recomputed from the latest
	// detection on each occurrence append, never merged.
	ThreatLevel     ThreatLevel `json:"threatLevel"`
	EstimatedImpact float64     `json:"estimatedImpact"`

	// Active is cleared only by an explicit resolution call.
	Active bool `json:"active"`

	// Confidence is the learning confidence in [0.1, 1.0], tuned by
	// outcome feedback. A policy knob, not a calibrated probability.
	Confidence float64 `json:"confidence"`
}

// Key returns the merge identity for this pattern.
func (p *EconomicPattern) Key() PatternKey {
	return PatternKey{Type: p.Type, Recipient: p.Recipient}
}

// LatestOccurrence returns the most recently appended occurrence, or nil
// for a pattern with no occurrences.
func (p *EconomicPattern) LatestOccurrence() *PatternOccurrence {
	if len(p.Occurrences) == 0 {
		return nil
	}
	return &p.Occurrences[len(p.Occurrences)-1]
}
