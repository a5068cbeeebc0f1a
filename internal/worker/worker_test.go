package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/agentic-finance/kestrel/internal/bus"
	"github.com/agentic-finance/kestrel/internal/detect"
	"github.com/agentic-finance/kestrel/internal/domain"
	"github.com/agentic-finance/kestrel/internal/ledger"
	"github.com/agentic-finance/kestrel/internal/memory"
	"github.com/agentic-finance/kestrel/internal/profile"
)

func newTestStore() *memory.Store {
	cfg := domain.DefaultDetectorConfig()
	return memory.New(ledger.New(nil), profile.NewBuilder(cfg), detect.NewRegistry(cfg), memory.Options{})
}

func TestWorkerRecordsSubmittedDecision(t *testing.T) {
	b := bus.NewChannelBus(10)
	defer b.Close()
	store := newTestStore()

	w := NewWorker(b, store)
	if err := w.Start(Config{AgentID: "agent-1"}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer w.Stop()

	payload, _ := json.Marshal(DecisionMessage{
		Transaction: domain.TransactionRequest{
			ID:        "tx-1",
			Recipient: "api-vendor",
			Amount:    120,
			Purpose:   "api-credits",
		},
		Decision: domain.Decision{
			Recommendation:   domain.RecommendApprove,
			ThreatLevel:      domain.ThreatLow,
			ResilienceImpact: -2,
		},
	})

	if err := b.Publish(context.Background(), "agent-1", domain.TopicDecisionSubmitted, payload); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	// The worker records asynchronously; poll for the ledger update.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if store.Status().TransactionCount == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	st := store.Status()
	if st.TransactionCount != 1 {
		t.Fatalf("expected 1 recorded transaction, got %d", st.TransactionCount)
	}
	if st.ResilienceScore != 73 {
		t.Errorf("expected score 73 after -2 impact, got %d", st.ResilienceScore)
	}
}

func TestWorkerIgnoresMalformedPayload(t *testing.T) {
	b := bus.NewChannelBus(10)
	defer b.Close()
	store := newTestStore()

	w := NewWorker(b, store)
	if err := w.Start(Config{AgentID: "agent-1"}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer w.Stop()

	if err := b.Publish(context.Background(), "agent-1", domain.TopicDecisionSubmitted, []byte("not json")); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if store.Status().TransactionCount != 0 {
		t.Error("malformed payload must not mutate the store")
	}
}

func TestWorkerStats(t *testing.T) {
	b := bus.NewChannelBus(10)
	defer b.Close()

	w := NewWorker(b, newTestStore())
	if err := w.Start(Config{}); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	stats := w.GetStats()
	if stats.SubscriptionCount != 1 {
		t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
	}
	if len(stats.Topics) != 1 || stats.Topics[0] != domain.TopicDecisionSubmitted {
		t.Errorf("unexpected topics: %v", stats.Topics)
	}

	if err := w.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if w.GetStats().SubscriptionCount != 0 {
		t.Error("stop must clear subscriptions")
	}
}
