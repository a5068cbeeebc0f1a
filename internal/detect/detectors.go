package detect

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentic-finance/kestrel/internal/domain"
	"github.com/agentic-finance/kestrel/internal/profile"
)

// Threat banding constants. The trigger thresholds live in
// domain.DetectorConfig; these bands map a triggered detection to its
// qualitative level.
const (
	microTotalHigh    = 200.0
	microTotalMedium  = 100.0
	concentrationHigh = 0.6
	convenienceMedium = 0.8
	declineRatioHigh  = 0.5
	initialConfidence = 0.5
)

// newPattern builds the fresh pattern a detector returns. The store
// merges by (type, recipient); the uuid here only survives for the
// first detection of a key.
func newPattern(t domain.PatternType, tx *domain.Transaction, description string, threat domain.ThreatLevel, impact float64, context string) *domain.EconomicPattern {
	now := time.Now().UTC()
	return &domain.EconomicPattern{
		ID:          uuid.New().String(),
		Type:        t,
		Recipient:   tx.Recipient,
		Description: description,
		DetectedAt:  now,
		Occurrences: []domain.PatternOccurrence{{
			TxID:      tx.ID,
			Timestamp: tx.Timestamp,
			Severity:  threat.Severity(),
			Context:   context,
		}},
		ThreatLevel:     threat,
		EstimatedImpact: impact,
		Active:          true,
		Confidence:      initialConfidence,
	}
}

// MicroCosts flags accumulations of individually-negligible payments.
// Single-transaction review never catches these; the cumulative total
// is what matters.
type MicroCosts struct {
	cfg domain.DetectorConfig
}

func (d *MicroCosts) Type() domain.PatternType { return domain.PatternRecurringMicroCosts }

func (d *MicroCosts) Detect(tx *domain.Transaction, h History) (*domain.EconomicPattern, bool) {
	// Strict less-than: an amount of exactly 50 is not a micro-cost.
	if tx.Amount >= d.cfg.MicroCostThreshold {
		return nil, false
	}

	total := 0.0
	count := 0
	for _, prior := range h.ByRecipient(tx.Recipient) {
		if prior.Amount < d.cfg.MicroCostThreshold {
			count++
			total += prior.Amount
		}
	}
	if count < d.cfg.MicroCostMinCount {
		return nil, false
	}

	threat := domain.ThreatLow
	switch {
	case total > microTotalHigh:
		threat = domain.ThreatHigh
	case total > microTotalMedium:
		threat = domain.ThreatMedium
	}

	desc := fmt.Sprintf("recurring micro-costs to %s: %d payments under %.0f totaling %.2f",
		tx.Recipient, count, d.cfg.MicroCostThreshold, total)
	ctx := fmt.Sprintf("amount %.2f, cumulative micro-cost total %.2f", tx.Amount, total)
	return newPattern(d.Type(), tx, desc, threat, total, ctx), true
}

// VendorConcentration flags a single point of economic dependency. The
// risk is structural and independent of any one transaction's size.
type VendorConcentration struct {
	cfg domain.DetectorConfig
}

func (d *VendorConcentration) Type() domain.PatternType { return domain.PatternVendorConcentration }

func (d *VendorConcentration) Detect(tx *domain.Transaction, h History) (*domain.EconomicPattern, bool) {
	totalSpend := h.TotalSpend()
	if totalSpend <= 0 {
		return nil, false
	}

	recipientTotal := 0.0
	for _, t := range h.ByRecipient(tx.Recipient) {
		recipientTotal += t.Amount
	}

	share := recipientTotal / totalSpend
	// Strict greater-than: a share of exactly 30% does not trigger.
	if share <= d.cfg.ConcentrationShare {
		return nil, false
	}

	// A triggered concentration is MEDIUM at minimum; the LOW band is
	// unreachable above the trigger threshold.
	threat := domain.ThreatMedium
	if share > concentrationHigh {
		threat = domain.ThreatHigh
	}

	desc := fmt.Sprintf("vendor concentration: %s holds %.1f%% of total spend",
		tx.Recipient, share*100)
	ctx := fmt.Sprintf("recipient total %.2f of %.2f overall", recipientTotal, totalSpend)
	return newPattern(d.Type(), tx, desc, threat, recipientTotal, ctx), true
}

// ConvenienceBias flags statistically improbable clustering on round,
// large amounts: evidence of unexamined premium pricing rather than
// deliberate budgeting.
type ConvenienceBias struct {
	cfg domain.DetectorConfig
}

func (d *ConvenienceBias) Type() domain.PatternType { return domain.PatternConvenienceBias }

func (d *ConvenienceBias) Detect(tx *domain.Transaction, h History) (*domain.EconomicPattern, bool) {
	if !profile.RoundLarge(tx.Amount, d.cfg.MicroCostThreshold) {
		return nil, false
	}

	all := h.All()
	if len(all) == 0 {
		return nil, false
	}

	roundTotal := 0.0
	roundCount := 0
	for _, t := range all {
		if profile.RoundLarge(t.Amount, d.cfg.MicroCostThreshold) {
			roundCount++
			roundTotal += t.Amount
		}
	}

	share := float64(roundCount) / float64(len(all))
	if share < d.cfg.ConvenienceShare {
		return nil, false
	}

	threat := domain.ThreatLow
	if share > convenienceMedium {
		threat = domain.ThreatMedium
	}

	desc := fmt.Sprintf("convenience bias: %.1f%% of payments are round amounts above %.0f",
		share*100, d.cfg.MicroCostThreshold)
	ctx := fmt.Sprintf("amount %.2f, %d of %d payments round and large", tx.Amount, roundCount, len(all))
	return newPattern(d.Type(), tx, desc, threat, roundTotal, ctx), true
}

// DecliningValue flags rising payments to the same recipient for
// ostensibly similar purposes: eroding unit economics.
type DecliningValue struct {
	cfg domain.DetectorConfig
}

func (d *DecliningValue) Type() domain.PatternType { return domain.PatternDecliningValue }

func (d *DecliningValue) Detect(tx *domain.Transaction, h History) (*domain.EconomicPattern, bool) {
	history := h.ByRecipient(tx.Recipient)
	if len(history) < 4 {
		return nil, false
	}

	early := (history[0].Amount + history[1].Amount) / 2
	recent := (history[len(history)-2].Amount + history[len(history)-1].Amount) / 2
	if early <= 0 {
		return nil, false
	}

	increase := recent/early - 1
	if increase <= d.cfg.DeclineRatio {
		return nil, false
	}

	threat := domain.ThreatMedium
	if increase > declineRatioHigh {
		threat = domain.ThreatHigh
	}

	// Excess paid on the two most recent transactions versus the
	// baseline the relationship started at.
	impact := (recent - early) * 2

	desc := fmt.Sprintf("declining value from %s: recent payments up %.1f%% over the earliest",
		tx.Recipient, increase*100)
	ctx := fmt.Sprintf("early mean %.2f, recent mean %.2f", early, recent)
	return newPattern(d.Type(), tx, desc, threat, impact, ctx), true
}
