// Package detect implements the economic pattern detectors.
//
// Each detector is a pure function of (new transaction, ledger view).
// Detectors never mutate state; the memory store decides whether a
// returned pattern is merged into an existing one or created fresh.
package detect

import (
	"sync"

	"github.com/agentic-finance/kestrel/internal/domain"
)

// History is the read-only ledger view detectors inspect. The new
// transaction has already been appended when a detector runs.
type History interface {
	// All returns every countable transaction, ordered by time.
	All() []*domain.Transaction

	// ByRecipient returns the countable transactions for one
	// recipient, ordered by time.
	ByRecipient(recipient string) []*domain.Transaction

	// TotalSpend returns the sum of all countable amounts.
	TotalSpend() float64
}

// Detector inspects one new transaction against the full ledger and
// optionally emits a pattern.
type Detector interface {
	// Type identifies the pattern this detector emits.
	Type() domain.PatternType

	// Detect returns a freshly constructed pattern and true when the
	// pattern fires, or nil and false otherwise.
	Detect(tx *domain.Transaction, h History) (*domain.EconomicPattern, bool)
}

// Registry runs a fixed set of detectors against each transaction.
type Registry struct {
	detectors []Detector
}

// NewRegistry creates a registry holding the four standard detectors.
func NewRegistry(cfg domain.DetectorConfig) *Registry {
	return &Registry{
		detectors: []Detector{
			&MicroCosts{cfg: cfg},
			&VendorConcentration{cfg: cfg},
			&ConvenienceBias{cfg: cfg},
			&DecliningValue{cfg: cfg},
		},
	}
}

// Detectors returns the registered detectors.
func (r *Registry) Detectors() []Detector {
	return r.detectors
}

// DetectAll runs every detector against the transaction in parallel and
// returns the patterns that fired. Order follows registration order so
// results are deterministic for callers.
func (r *Registry) DetectAll(tx *domain.Transaction, h History) []*domain.EconomicPattern {
	results := make([]*domain.EconomicPattern, len(r.detectors))
	var wg sync.WaitGroup

	for i, d := range r.detectors {
		wg.Add(1)
		go func(idx int, det Detector) {
			defer wg.Done()
			if p, ok := det.Detect(tx, h); ok {
				results[idx] = p
			}
		}(i, d)
	}
	wg.Wait()

	fired := make([]*domain.EconomicPattern, 0, len(results))
	for _, p := range results {
		if p != nil {
			fired = append(fired, p)
		}
	}
	return fired
}
