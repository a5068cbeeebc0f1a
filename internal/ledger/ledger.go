// Package ledger maintains the engine's append-only mirror of the
// transaction stream.
//
// The wallet layer owns the source of truth; every transaction handed
// to the engine is appended here so profiles and detectors can query
// history without reaching back out. Records are never updated or
// deleted once appended.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/agentic-finance/kestrel/internal/domain"
)

// ErrDuplicateTransaction is returned when a transaction ID has already
// been appended.
var ErrDuplicateTransaction = errors.New("duplicate transaction id")

// Ledger is an in-memory, queryable transaction collection with
// write-through persistence. Failed transactions are stored but
// excluded from every analysis query: they moved no funds.
type Ledger struct {
	mu          sync.RWMutex
	repo        domain.Repository // optional write-through target
	byID        map[string]*domain.Transaction
	countable   []*domain.Transaction
	byRecipient map[string][]*domain.Transaction
	totalSpend  float64
}

// New creates an empty ledger. repo may be nil for a purely in-memory
// ledger (tests, benchmarks).
func New(repo domain.Repository) *Ledger {
	return &Ledger{
		repo:        repo,
		byID:        make(map[string]*domain.Transaction),
		byRecipient: make(map[string][]*domain.Transaction),
	}
}

// Load hydrates the ledger from the repository. Called once at startup
// before the engine accepts decisions.
func (l *Ledger) Load(ctx context.Context) error {
	if l.repo == nil {
		return nil
	}

	txs, err := l.repo.ListTransactions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load ledger: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, tx := range txs {
		l.insert(tx)
	}
	return nil
}

// Append adds a transaction to the ledger and writes it through to the
// repository. A persistence failure is logged but does not fail the
// append: the in-memory ledger is the engine's working state.
func (l *Ledger) Append(ctx context.Context, tx *domain.Transaction) error {
	l.mu.Lock()
	if _, exists := l.byID[tx.ID]; exists {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateTransaction, tx.ID)
	}
	l.insert(tx)
	l.mu.Unlock()

	if l.repo != nil {
		if err := l.repo.SaveTransaction(ctx, tx); err != nil {
			slog.Error("failed to persist transaction",
				"tx_id", tx.ID,
				"error", err,
			)
		}
	}
	return nil
}

// insert indexes a transaction. Caller holds the write lock.
func (l *Ledger) insert(tx *domain.Transaction) {
	l.byID[tx.ID] = tx
	if !tx.Countable() {
		return
	}

	l.countable = insertByTime(l.countable, tx)
	l.byRecipient[tx.Recipient] = insertByTime(l.byRecipient[tx.Recipient], tx)
	l.totalSpend += tx.Amount
}

// insertByTime appends keeping the slice ordered by timestamp.
// Transactions normally arrive in order, so the sort is a no-op on the
// hot path.
func insertByTime(txs []*domain.Transaction, tx *domain.Transaction) []*domain.Transaction {
	txs = append(txs, tx)
	if n := len(txs); n > 1 && txs[n-2].Timestamp.After(tx.Timestamp) {
		sort.SliceStable(txs, func(i, j int) bool {
			return txs[i].Timestamp.Before(txs[j].Timestamp)
		})
	}
	return txs
}

// Get returns a transaction by ID, or nil when unknown.
func (l *Ledger) Get(txID string) *domain.Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.byID[txID]
}

// All returns every countable transaction ordered by time.
func (l *Ledger) All() []*domain.Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*domain.Transaction, len(l.countable))
	copy(out, l.countable)
	return out
}

// ByRecipient returns the countable transactions for one recipient
// ordered by time.
func (l *Ledger) ByRecipient(recipient string) []*domain.Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	txs := l.byRecipient[recipient]
	out := make([]*domain.Transaction, len(txs))
	copy(out, txs)
	return out
}

// TotalSpend returns the sum of all countable amounts.
func (l *Ledger) TotalSpend() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totalSpend
}

// Len returns the number of countable transactions.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.countable)
}
