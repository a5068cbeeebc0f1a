package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/agentic-finance/kestrel/internal/domain"
	"github.com/agentic-finance/kestrel/internal/memory"
	"github.com/agentic-finance/kestrel/internal/metrics"
	"github.com/agentic-finance/kestrel/internal/policy"
	"github.com/agentic-finance/kestrel/internal/repository"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	store    *memory.Store
	policies *policy.Engine
	repo     domain.Repository
	cache    domain.Cache
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(store *memory.Store, policies *policy.Engine, repo domain.Repository, cache domain.Cache, version string) *Handler {
	return &Handler{
		store:    store,
		policies: policies,
		repo:     repo,
		cache:    cache,
		version:  version,
	}
}

// DecisionRequest is the request body for POST /decisions: one finalized
// transaction together with the reasoning layer's decision about it.
type DecisionRequest struct {
	Transaction domain.TransactionRequest `json:"transaction"`
	Decision    domain.Decision           `json:"decision"`
}

// DecisionResponse is the response for POST /decisions.
type DecisionResponse struct {
	*memory.RecordResult
	PolicyFlags []domain.PolicyFlag `json:"policyFlags,omitempty"`
	Metadata    struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// RecordDecision handles POST /decisions requests.
func (h *Handler) RecordDecision(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	traceID := GetTraceID(ctx)

	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Transaction.ID == "" {
		req.Transaction.ID = uuid.New().String()
	}
	tx := req.Transaction.ToTransaction()

	ctx, span := tracer.Start(ctx, "record_decision")
	defer span.End()

	result, err := h.store.RecordTransactionOutcome(ctx, tx, &req.Decision)
	if err != nil {
		if errors.Is(err, memory.ErrInvalidInput) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		slog.Error("failed to record decision", "tx_id", tx.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to record decision",
		})
		return
	}

	metrics.DecisionsRecordedTotal.WithLabelValues(string(req.Decision.ThreatLevel)).Inc()
	for _, p := range result.PatternsFired {
		metrics.PatternsDetectedTotal.WithLabelValues(string(p.Type)).Inc()
	}
	if result.Signal != nil {
		metrics.SignalsRaisedTotal.Inc()
	}
	metrics.ResilienceScore.Set(float64(result.ResilienceScore))
	metrics.ActiveSignals.Set(float64(len(h.store.ActiveRiskSignals())))

	// Advisory policy flags ride along with the result; they never
	// block the decision or touch the score.
	var flags []domain.PolicyFlag
	if h.policies != nil && result.Profile != nil {
		flags = h.policies.EvaluateAll(&policy.Input{
			Amount:           tx.Amount,
			Recipient:        tx.Recipient,
			Purpose:          tx.Purpose,
			RecipientTxCount: result.Profile.TxCount,
			RecipientTotal:   result.Profile.TotalAmount,
			RecipientShare:   result.Profile.Risk.Concentration,
			ResilienceScore:  result.ResilienceScore,
		})
	}

	resp := DecisionResponse{
		RecordResult: result,
		PolicyFlags:  flags,
	}
	resp.Metadata.TraceID = traceID
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// AdaptationRequest is the request body for POST /adaptations.
type AdaptationRequest struct {
	PatternType string `json:"patternType"`
	Outcome     string `json:"outcome"`
}

// ReportAdaptation handles POST /adaptations requests.
func (h *Handler) ReportAdaptation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req AdaptationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	event, err := h.store.AdaptSensitivity(ctx, domain.PatternType(req.PatternType), domain.AdaptationOutcome(req.Outcome))
	if err != nil {
		if errors.Is(err, memory.ErrInvalidInput) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
		slog.Error("failed to apply adaptation", "pattern_type", req.PatternType, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to apply adaptation",
		})
		return
	}

	metrics.AdaptationsTotal.WithLabelValues(string(event.Direction)).Inc()

	writeJSON(w, http.StatusOK, event)
}

// Status handles GET /status requests.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Status())
}

// Memory handles GET /memory requests: the full read snapshot.
func (h *Handler) Memory(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()
	if snap == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "memory not loaded",
		})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// ListPatterns handles GET /patterns requests.
func (h *Handler) ListPatterns(w http.ResponseWriter, r *http.Request) {
	patterns := h.store.Patterns()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"patterns": patterns,
		"count":    len(patterns),
	})
}

// ListSignals handles GET /signals requests: active signals only.
func (h *Handler) ListSignals(w http.ResponseWriter, r *http.Request) {
	signals := h.store.ActiveRiskSignals()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"signals": signals,
		"count":   len(signals),
	})
}

// ResolveSignal handles POST /signals/{id}/resolve requests.
func (h *Handler) ResolveSignal(w http.ResponseWriter, r *http.Request) {
	signalID := chi.URLParam(r, "id")

	if err := h.store.ResolveSignal(r.Context(), signalID); err != nil {
		if errors.Is(err, memory.ErrUnknownSignal) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "signal not found",
			})
			return
		}
		slog.Error("failed to resolve signal", "id", signalID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to resolve signal",
		})
		return
	}

	metrics.ActiveSignals.Set(float64(len(h.store.ActiveRiskSignals())))

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "resolved",
	})
}

// ResolvePattern handles POST /patterns/{id}/resolve requests.
func (h *Handler) ResolvePattern(w http.ResponseWriter, r *http.Request) {
	patternID := chi.URLParam(r, "id")

	if err := h.store.ResolvePattern(r.Context(), patternID); err != nil {
		if errors.Is(err, memory.ErrUnknownPattern) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "pattern not found",
			})
			return
		}
		slog.Error("failed to resolve pattern", "id", patternID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to resolve pattern",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "resolved",
	})
}

// GetProfile handles GET /profiles/{recipient} requests.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	recipient := chi.URLParam(r, "recipient")

	profile, ok := h.store.RecipientProfile(recipient)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no profile for recipient",
		})
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

// ListAdaptations handles GET /adaptations requests.
func (h *Handler) ListAdaptations(w http.ResponseWriter, r *http.Request) {
	events := h.store.Adaptations()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"adaptations": events,
		"count":       len(events),
	})
}

// GetTransaction handles GET /transactions/{id} requests.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	tx, err := h.repo.GetTransaction(r.Context(), txID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "transaction not found",
			})
			return
		}
		slog.Error("failed to get transaction", "id", txID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get transaction",
		})
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
