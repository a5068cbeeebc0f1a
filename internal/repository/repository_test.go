package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentic-finance/kestrel/internal/domain"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return repo
}

func TestTransactionRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	ts := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	tx := &domain.Transaction{
		ID:        "tx-1",
		Recipient: "api-vendor",
		Amount:    42.5,
		Purpose:   "api-credits",
		Status:    domain.StatusCompleted,
		Timestamp: ts,
		CreatedAt: ts,
	}

	if err := repo.SaveTransaction(ctx, tx); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := repo.GetTransaction(ctx, "tx-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Recipient != "api-vendor" || got.Amount != 42.5 || got.Status != domain.StatusCompleted {
		t.Errorf("round trip mismatch: %+v", got)
	}

	if _, err := repo.GetTransaction(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListTransactionsByRecipient(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	for i, recipient := range []string{"a", "b", "a"} {
		tx := &domain.Transaction{
			ID:        "tx-" + recipient + string(rune('0'+i)),
			Recipient: recipient,
			Amount:    10,
			Status:    domain.StatusCompleted,
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			CreatedAt: base,
		}
		if err := repo.SaveTransaction(ctx, tx); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	all, err := repo.ListTransactions(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 transactions, got %d", len(all))
	}

	forA, err := repo.ListTransactionsByRecipient(ctx, "a")
	if err != nil {
		t.Fatalf("list by recipient failed: %v", err)
	}
	if len(forA) != 2 {
		t.Errorf("expected 2 transactions for recipient a, got %d", len(forA))
	}
	if len(forA) == 2 && forA[0].Timestamp.After(forA[1].Timestamp) {
		t.Error("transactions must come back in time order")
	}
}

func TestPatternUpsert(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	ts := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	p := &domain.EconomicPattern{
		ID:        "pat-1",
		Type:      domain.PatternRecurringMicroCosts,
		Recipient: "coffee-shop",
		DetectedAt: ts,
		Occurrences: []domain.PatternOccurrence{
			{TxID: "tx-1", Timestamp: ts, Severity: 0.4},
		},
		ThreatLevel:     domain.ThreatLow,
		EstimatedImpact: 45,
		Active:          true,
		Confidence:      0.5,
	}

	if err := repo.SavePattern(ctx, p); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	// Second save with a grown occurrence list must update in place.
	p.Occurrences = append(p.Occurrences, domain.PatternOccurrence{TxID: "tx-2", Timestamp: ts.Add(time.Hour), Severity: 0.4})
	p.EstimatedImpact = 60
	if err := repo.SavePattern(ctx, p); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	patterns, err := repo.ListPatterns(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(patterns) != 1 {
		t.Fatalf("upsert must not duplicate, got %d rows", len(patterns))
	}
	if len(patterns[0].Occurrences) != 2 {
		t.Errorf("expected 2 occurrences, got %d", len(patterns[0].Occurrences))
	}
	if patterns[0].EstimatedImpact != 60 {
		t.Errorf("expected impact 60, got %.2f", patterns[0].EstimatedImpact)
	}
}

func TestSignalResolutionPersists(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	ts := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	s := &domain.RiskSignal{
		ID:           "sig-1",
		PatternType:  domain.PatternVendorConcentration,
		Severity:     0.8,
		Description:  "spend concentrated on one vendor",
		DetectedAt:   ts,
		RelatedTxIDs: []string{"tx-1"},
	}

	if err := repo.SaveSignal(ctx, s); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	s.Resolved = true
	if err := repo.SaveSignal(ctx, s); err != nil {
		t.Fatalf("resolve save failed: %v", err)
	}

	signals, err := repo.ListSignals(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(signals) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(signals))
	}
	if !signals[0].Resolved {
		t.Error("resolution must persist")
	}
	if len(signals[0].RelatedTxIDs) != 1 || signals[0].RelatedTxIDs[0] != "tx-1" {
		t.Errorf("related tx ids mismatch: %v", signals[0].RelatedTxIDs)
	}
}

func TestAdaptationAuditTrail(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		e := &domain.AdaptationEvent{
			ID:          "adapt-" + string(rune('1'+i)),
			Timestamp:   base.Add(time.Duration(i) * time.Minute),
			PatternType: domain.PatternConvenienceBias,
			Direction:   domain.AdjustIncrease,
			Reason:      "outcome contradicted detections",
			Outcome:     domain.OutcomeFailure,
		}
		if err := repo.SaveAdaptation(ctx, e); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	events, err := repo.ListAdaptations(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Timestamp.After(events[1].Timestamp) {
		t.Error("audit trail must come back oldest first")
	}
}

func TestMemoryState(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, _, err := repo.GetMemoryState(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("fresh database must report ErrNotFound, got %v", err)
	}

	ts := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	if err := repo.SaveMemoryState(ctx, 68.5, ts); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := repo.SaveMemoryState(ctx, 70.0, ts.Add(time.Minute)); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	score, updatedAt, err := repo.GetMemoryState(ctx)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if score != 70.0 {
		t.Errorf("expected latest score 70.0, got %.2f", score)
	}
	if !updatedAt.Equal(ts.Add(time.Minute)) {
		t.Errorf("expected latest timestamp, got %v", updatedAt)
	}
}

func TestPolicyCRUD(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	p := &domain.PolicyConfig{
		ID:         "large-spend",
		Name:       "Large Spend",
		Expression: "amount > 1000.0",
		Message:    "single transaction above 1000",
		Enabled:    true,
	}

	if err := repo.SavePolicy(ctx, p); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := repo.GetPolicy(ctx, "large-spend")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Expression != p.Expression || !got.Enabled {
		t.Errorf("round trip mismatch: %+v", got)
	}

	p.Enabled = false
	if err := repo.SavePolicy(ctx, p); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	policies, err := repo.ListPolicies(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(policies) != 1 || policies[0].Enabled {
		t.Errorf("expected one disabled policy, got %+v", policies)
	}

	if err := repo.DeletePolicy(ctx, "large-spend"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := repo.DeletePolicy(ctx, "large-spend"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestUnsupportedDriver(t *testing.T) {
	_, err := New(domain.RepositoryConfig{Driver: "oracle"})
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}
