package domain

import "time"

// Cadence classifies the timing and amount trend of a recipient's
// transaction history.
type Cadence string

const (
	CadenceRegular    Cadence = "regular"
	CadenceSporadic   Cadence = "sporadic"
	CadenceIncreasing Cadence = "increasing"
	CadenceDecreasing Cadence = "decreasing"
)

// RiskVector holds the per-recipient risk assessment. Each component is
// in [0,1]; the overall score is derived, never stored.
type RiskVector struct {
	Concentration   float64 `json:"concentration"`
	ConvenienceBias float64 `json:"convenienceBias"`
	ValueDecline    float64 `json:"valueDecline"`
}

// Overall returns the mean of the risk components.
func (v RiskVector) Overall() float64 {
	return (v.Concentration + v.ConvenienceBias + v.ValueDecline) / 3.0
}

// RecipientProfile is the statistical summary for one counterparty.
// Profiles are recomputed from the full per-recipient history on every
// new transaction rather than merged incrementally. The O(n) recompute
// is deliberate: it buys freedom from incremental-aggregation bugs at a
// cost that is acceptable for thousands of in-memory records.
type RecipientProfile struct {
	Recipient     string         `json:"recipient"`
	TxCount       int            `json:"txCount"`
	TotalAmount   float64        `json:"totalAmount"`
	AverageAmount float64        `json:"averageAmount"`
	PurposeCounts map[string]int `json:"purposeCounts"`
	Cadence       Cadence        `json:"cadence"`
	Risk          RiskVector     `json:"risk"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}
