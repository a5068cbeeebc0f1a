// Package worker provides async decision ingestion for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/agentic-finance/kestrel/internal/domain"
	"github.com/agentic-finance/kestrel/internal/memory"
)

// Worker consumes submitted decisions from the EventBus and records
// them through the memory store. It lets the reasoning layer fire and
// forget while the engine keeps up asynchronously.
type Worker struct {
	bus   domain.EventBus
	store *memory.Store

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// AgentID scopes the bus subscription to one spending agent.
	AgentID string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, store *memory.Store) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		store:  store,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to the decision submission topic.
func (w *Worker) Start(cfg Config) error {
	agentID := cfg.AgentID
	if agentID == "" {
		agentID = "default"
	}

	sub, err := w.bus.Subscribe(w.ctx, agentID, domain.TopicDecisionSubmitted, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("worker started",
		"agent_id", agentID,
		"topic", domain.TopicDecisionSubmitted,
	)

	return nil
}

// DecisionMessage is the payload submitted by the reasoning layer.
type DecisionMessage struct {
	Transaction domain.TransactionRequest `json:"transaction"`
	Decision    domain.Decision           `json:"decision"`
}

// handleMessage records one submitted decision.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var dm DecisionMessage
	if err := json.Unmarshal(msg.Payload, &dm); err != nil {
		slog.Error("failed to parse decision message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	tx := dm.Transaction.ToTransaction()

	result, err := w.store.RecordTransactionOutcome(ctx, tx, &dm.Decision)
	if err != nil {
		slog.Error("failed to record decision",
			"tx_id", tx.ID,
			"recipient", tx.Recipient,
			"error", err,
		)
		return err
	}

	slog.Info("decision recorded",
		"tx_id", result.TxID,
		"recipient", tx.Recipient,
		"patterns_fired", len(result.PatternsFired),
		"resilience_score", result.ResilienceScore,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
