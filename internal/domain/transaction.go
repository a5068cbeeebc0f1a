package domain

import (
	"time"
)

// TransactionStatus is the lifecycle state of a transaction.
// Transitions: pending -> confirming -> completed | failed.
type TransactionStatus string

const (
	StatusPending    TransactionStatus = "pending"
	StatusConfirming TransactionStatus = "confirming"
	StatusCompleted  TransactionStatus = "completed"
	StatusFailed     TransactionStatus = "failed"
)

// Transaction represents a single payment made by the spending agent.
// Transactions are owned by the wallet layer; the engine treats them as
// read-only input and never rewrites one after it is finalized.
type Transaction struct {
	ID        string            `json:"id"`
	Recipient string            `json:"recipient" validate:"required"`
	Amount    float64           `json:"amount" validate:"gte=0"`
	Purpose   string            `json:"purpose,omitempty"`
	Status    TransactionStatus `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Countable reports whether the transaction participates in profile and
// pattern analysis. Failed transfers moved no funds and are excluded.
func (t *Transaction) Countable() bool {
	return t.Status != StatusFailed
}

// TransactionRequest is the API payload carrying a transaction alongside
// the reasoning layer's decision.
type TransactionRequest struct {
	ID        string  `json:"id,omitempty"`
	Recipient string  `json:"recipient" validate:"required"`
	Amount    float64 `json:"amount" validate:"gte=0"`
	Purpose   string  `json:"purpose,omitempty"`
	Status    string  `json:"status,omitempty"`
}

// ToTransaction converts a request to a Transaction domain object.
func (r *TransactionRequest) ToTransaction() *Transaction {
	now := time.Now().UTC()
	status := TransactionStatus(r.Status)
	if status == "" {
		status = StatusCompleted
	}
	return &Transaction{
		ID:        r.ID,
		Recipient: r.Recipient,
		Amount:    r.Amount,
		Purpose:   r.Purpose,
		Status:    status,
		Timestamp: now,
		CreatedAt: now,
	}
}
