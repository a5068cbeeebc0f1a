// Package adapt implements the sensitivity adaptation policy.
//
// Outcome feedback (did a past decision turn out correct?) nudges the
// learning confidence of every pattern of the reported type by a fixed
// step. This is simple reinforcement, not a Bayesian update: confidence
// is a policy knob for future threat weighting, not a calibrated
// probability.
package adapt

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentic-finance/kestrel/internal/domain"
)

// Confidence bounds and the per-feedback step.
const (
	Step          = 0.1
	MinConfidence = 0.1
	MaxConfidence = 1.0
)

// DirectionFor maps an outcome to the sensitivity adjustment taken. A
// confirmed detection keeps sensitivity where it is; a contradicted one
// raises it so the pattern needs stronger evidence to alarm again.
func DirectionFor(outcome domain.AdaptationOutcome) domain.AdjustmentDirection {
	if outcome == domain.OutcomeSuccess {
		return domain.AdjustMaintain
	}
	return domain.AdjustIncrease
}

// NextConfidence moves a confidence one step toward 1.0 on success or
// toward the 0.1 floor on failure.
func NextConfidence(current float64, outcome domain.AdaptationOutcome) float64 {
	if outcome == domain.OutcomeSuccess {
		next := current + Step
		if next > MaxConfidence {
			return MaxConfidence
		}
		return next
	}
	next := current - Step
	if next < MinConfidence {
		return MinConfidence
	}
	return next
}

// NewEvent builds the audit-trail entry for one feedback application.
func NewEvent(patternType domain.PatternType, outcome domain.AdaptationOutcome) *domain.AdaptationEvent {
	direction := DirectionFor(outcome)

	var reason string
	if outcome == domain.OutcomeSuccess {
		reason = fmt.Sprintf("outcome confirmed %s detections; sensitivity maintained", patternType)
	} else {
		reason = fmt.Sprintf("outcome contradicted %s detections; sensitivity increased", patternType)
	}

	return &domain.AdaptationEvent{
		ID:          uuid.New().String(),
		Timestamp:   time.Now().UTC(),
		PatternType: patternType,
		Direction:   direction,
		Reason:      reason,
		Outcome:     outcome,
	}
}
