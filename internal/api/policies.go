package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agentic-finance/kestrel/internal/domain"
	"github.com/agentic-finance/kestrel/internal/repository"
)

// CreatePolicyRequest is the request body for creating a policy.
type CreatePolicyRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Expression  string `json:"expression"`
	Message     string `json:"message,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// ListPolicies returns all stored policies.
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	policies, err := h.repo.ListPolicies(r.Context())
	if err != nil {
		slog.Error("failed to list policies", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list policies",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"policies": policies,
		"count":    len(policies),
		"loaded":   h.policies.Count(),
	})
}

// GetPolicy retrieves a policy by ID.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	policyID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	p, err := h.repo.GetPolicy(r.Context(), policyID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "policy not found",
			})
			return
		}
		slog.Error("failed to get policy", "id", policyID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get policy",
		})
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// CreatePolicy creates a new policy, validates its CEL expression, and
// loads it into the engine when enabled.
func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreatePolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	cfg := &domain.PolicyConfig{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Expression:  req.Expression,
		Message:     req.Message,
		Enabled:     req.Enabled,
	}

	// Reject bad CEL before anything is stored.
	if err := h.policies.ValidatePolicy(cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SavePolicy(ctx, cfg); err != nil {
			slog.Error("failed to save policy", "id", cfg.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save policy",
			})
			return
		}
	}

	if cfg.Enabled {
		if err := h.policies.LoadPolicy(cfg); err != nil {
			slog.Error("failed to load policy into engine", "id", cfg.ID, "error", err)
		}
	}

	slog.Info("policy created", "id", cfg.ID, "name", cfg.Name)
	writeJSON(w, http.StatusCreated, cfg)
}

// UpdatePolicy updates an existing policy and hot-swaps it in the engine.
func (h *Handler) UpdatePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	policyID := chi.URLParam(r, "id")

	var req CreatePolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "name and expression are required",
		})
		return
	}

	cfg := &domain.PolicyConfig{
		ID:          policyID,
		Name:        req.Name,
		Description: req.Description,
		Expression:  req.Expression,
		Message:     req.Message,
		Enabled:     req.Enabled,
	}

	if err := h.policies.ValidatePolicy(cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SavePolicy(ctx, cfg); err != nil {
			slog.Error("failed to update policy", "id", policyID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to update policy",
			})
			return
		}
	}

	if cfg.Enabled {
		if err := h.policies.LoadPolicy(cfg); err != nil {
			slog.Error("failed to load policy into engine", "id", cfg.ID, "error", err)
		}
	} else {
		h.policies.Unload(policyID)
	}

	slog.Info("policy updated", "id", policyID)
	writeJSON(w, http.StatusOK, cfg)
}

// DeletePolicy removes a policy from storage and the engine.
func (h *Handler) DeletePolicy(w http.ResponseWriter, r *http.Request) {
	policyID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	if err := h.repo.DeletePolicy(r.Context(), policyID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "policy not found",
			})
			return
		}
		slog.Error("failed to delete policy", "id", policyID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to delete policy",
		})
		return
	}

	h.policies.Unload(policyID)

	slog.Info("policy deleted", "id", policyID)
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "deleted",
	})
}

// ReloadPolicies reloads all enabled policies from storage into the
// engine. This enables hot-reloading without server restart.
func (h *Handler) ReloadPolicies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	stored, err := h.repo.ListPolicies(ctx)
	if err != nil {
		slog.Error("failed to list policies from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load policies from database",
		})
		return
	}

	if err := h.policies.Reload(stored); err != nil {
		slog.Error("failed to reload policies into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload policies: " + err.Error(),
		})
		return
	}

	slog.Info("policies reloaded from database", "count", h.policies.Count())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "policies reloaded successfully",
		"count":   h.policies.Count(),
	})
}
