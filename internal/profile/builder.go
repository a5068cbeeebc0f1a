// Package profile derives per-recipient statistical summaries from the
// transaction ledger.
package profile

import (
	"math"
	"sort"
	"time"

	"github.com/agentic-finance/kestrel/internal/domain"
)

// Minimum history length before cadence carries any signal.
const cadenceMinTxs = 3

// Variance below this fraction of the mean inter-transaction delta
// classifies a cadence as regular.
const regularVarianceRatio = 0.3

// Builder computes recipient profiles from transaction history.
// A profile is always recomputed from the full per-recipient history,
// never merged incrementally. O(n) per rebuild is the accepted cost.
type Builder struct {
	det domain.DetectorConfig
}

// NewBuilder creates a profile builder with the given detector
// thresholds (used for the risk vector).
func NewBuilder(det domain.DetectorConfig) *Builder {
	return &Builder{det: det}
}

// Build computes the profile for one recipient. history must contain
// only that recipient's countable transactions; totalSpend is the sum
// over all recipients and feeds the concentration component.
//
// Returns nil when the history is empty: an unknown recipient is an
// absence signal, not an error.
func (b *Builder) Build(recipient string, history []*domain.Transaction, totalSpend float64) *domain.RecipientProfile {
	if len(history) == 0 {
		return nil
	}

	sorted := make([]*domain.Transaction, len(history))
	copy(sorted, history)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	total := 0.0
	purposes := make(map[string]int)
	for _, tx := range sorted {
		total += tx.Amount
		if tx.Purpose != "" {
			purposes[tx.Purpose]++
		}
	}

	p := &domain.RecipientProfile{
		Recipient:     recipient,
		TxCount:       len(sorted),
		TotalAmount:   total,
		AverageAmount: total / float64(len(sorted)),
		PurposeCounts: purposes,
		Cadence:       classifyCadence(sorted),
		Risk: domain.RiskVector{
			Concentration:   concentrationRisk(total, totalSpend),
			ConvenienceBias: convenienceScore(sorted, b.det),
			ValueDecline:    valueDeclineScore(sorted),
		},
		UpdatedAt: time.Now().UTC(),
	}
	return p
}

// classifyCadence inspects inter-transaction time deltas and the amount
// trend. Fewer than 3 transactions is always sporadic: two data points
// cannot distinguish rhythm from coincidence.
func classifyCadence(sorted []*domain.Transaction) domain.Cadence {
	if len(sorted) < cadenceMinTxs {
		return domain.CadenceSporadic
	}

	deltas := make([]float64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		deltas = append(deltas, sorted[i].Timestamp.Sub(sorted[i-1].Timestamp).Seconds())
	}

	mean := 0.0
	for _, d := range deltas {
		mean += d
	}
	mean /= float64(len(deltas))

	variance := 0.0
	for _, d := range deltas {
		variance += (d - mean) * (d - mean)
	}
	variance /= float64(len(deltas))

	if mean > 0 && variance < regularVarianceRatio*mean {
		return domain.CadenceRegular
	}

	nonDecreasing := true
	nonIncreasing := true
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Amount < sorted[i-1].Amount {
			nonDecreasing = false
		}
		if sorted[i].Amount > sorted[i-1].Amount {
			nonIncreasing = false
		}
	}

	switch {
	case nonDecreasing:
		return domain.CadenceIncreasing
	case nonIncreasing:
		return domain.CadenceDecreasing
	default:
		return domain.CadenceSporadic
	}
}

// concentrationRisk is the recipient's share of total spend, in [0,1].
func concentrationRisk(recipientTotal, totalSpend float64) float64 {
	if totalSpend <= 0 {
		return 0
	}
	return clamp01(recipientTotal / totalSpend)
}

// convenienceScore is the fraction of this recipient's transactions
// that are round (multiple of 10) and above the micro-cost threshold.
func convenienceScore(history []*domain.Transaction, det domain.DetectorConfig) float64 {
	round := 0
	for _, tx := range history {
		if RoundLarge(tx.Amount, det.MicroCostThreshold) {
			round++
		}
	}
	return clamp01(float64(round) / float64(len(history)))
}

// valueDeclineScore is the relative increase of the most recent two
// transaction amounts over the earliest two, clamped to [0,1]. Zero
// when fewer than 4 transactions exist.
func valueDeclineScore(sorted []*domain.Transaction) float64 {
	if len(sorted) < 4 {
		return 0
	}
	early := (sorted[0].Amount + sorted[1].Amount) / 2
	recent := (sorted[len(sorted)-2].Amount + sorted[len(sorted)-1].Amount) / 2
	if early <= 0 {
		return 0
	}
	return clamp01(recent/early - 1)
}

// RoundLarge reports whether an amount is a multiple of 10 and above
// the micro-cost threshold. Shared with the convenience-bias detector.
func RoundLarge(amount, microThreshold float64) bool {
	return amount > microThreshold && math.Mod(amount, 10) == 0
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
