package domain

import "time"

// RiskSignal is a notification-grade record raised when a decision
// reaches HIGH or CRITICAL threat. Signals live beside patterns, not
// inside them, so operators can triage without touching pattern state.
// Signals are never deleted; resolution is an explicit operator action.
type RiskSignal struct {
	ID           string      `json:"id"`
	PatternType  PatternType `json:"patternType"`
	Severity     float64     `json:"severity"` // 0.0 to 1.0
	Description  string      `json:"description"`
	DetectedAt   time.Time   `json:"detectedAt"`
	RelatedTxIDs []string    `json:"relatedTxIds"`
	Resolved     bool        `json:"resolved"`
}

// AdjustmentDirection is the sensitivity change an adaptation applied.
type AdjustmentDirection string

const (
	AdjustIncrease AdjustmentDirection = "increase"
	AdjustDecrease AdjustmentDirection = "decrease"
	AdjustMaintain AdjustmentDirection = "maintain"
)

// AdaptationOutcome reports how a past decision turned out.
type AdaptationOutcome string

const (
	OutcomeSuccess AdaptationOutcome = "success"
	OutcomeFailure AdaptationOutcome = "failure"
	OutcomePending AdaptationOutcome = "pending"
)

// AdaptationEvent is one entry in the append-only audit trail of
// sensitivity changes.
type AdaptationEvent struct {
	ID          string              `json:"id"`
	Timestamp   time.Time           `json:"timestamp"`
	PatternType PatternType         `json:"patternType"`
	Direction   AdjustmentDirection `json:"direction"`
	Reason      string              `json:"reason"`
	Outcome     AdaptationOutcome   `json:"outcome"`
}
