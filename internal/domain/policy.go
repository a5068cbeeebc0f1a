package domain

import "time"

// PolicyConfig defines an operator-authored spending policy. Policies
// are CEL expressions evaluated against each transaction and its
// recipient context; they produce advisory flags only and never move
// the resilience score.
type PolicyConfig struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	// Expression is a CEL expression returning bool. Available
	// variables: amount, recipient, purpose, recipient_tx_count,
	// recipient_total, recipient_share, resilience_score.
	Expression string `json:"expression"`

	// Message is attached to the flag when the policy matches.
	Message string `json:"message"`

	// Whether the policy is active
	Enabled bool `json:"enabled"`

	// Audit timestamps
	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// PolicyFlag is an advisory flag raised by a matching policy.
type PolicyFlag struct {
	PolicyID string `json:"policyId"`
	Name     string `json:"name"`
	Message  string `json:"message"`
}
