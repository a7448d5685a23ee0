package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cediguard/cediguard/internal/domain"
	"github.com/cediguard/cediguard/internal/parser"
	"github.com/cediguard/cediguard/internal/pipeline"
	"github.com/cediguard/cediguard/internal/repository"
	"github.com/cediguard/cediguard/internal/rules"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	parser    *parser.Parser
	rules     *rules.Engine
	processor *pipeline.Processor
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, ruleEngine *rules.Engine, processor *pipeline.Processor, version string) *Handler {
	return &Handler{
		repo:      repo,
		cache:     cache,
		bus:       bus,
		parser:    parser.New(),
		rules:     ruleEngine,
		processor: processor,
		version:   version,
	}
}

// ParseRequest is the request body for POST /parse.
type ParseRequest struct {
	Message string `json:"message"`
	Sender  string `json:"sender,omitempty"`
}

// Parse handles POST /parse. It runs the SMS parser only, without
// persistence or scoring.
func (h *Handler) Parse(w http.ResponseWriter, r *http.Request) {
	var req ParseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "message is required",
		})
		return
	}

	writeJSON(w, http.StatusOK, h.parser.Parse(req.Message))
}

// Evaluate handles POST /evaluate. It runs the full parse, score, and
// persist flow for one SMS.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req domain.SMSRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "message is required",
		})
		return
	}
	if req.AccountID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "accountId is required",
		})
		return
	}

	res, err := h.processor.Evaluate(ctx, tenantID, &req)
	if err != nil {
		slog.Error("evaluation failed",
			"tenant_id", tenantID,
			"account_id", req.AccountID,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "evaluation failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

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

// GetTransaction retrieves a transaction by ID.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	txID := chi.URLParam(r, "id")

	if txID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transaction id is required",
		})
		return
	}

	tx, err := h.repo.GetTransaction(ctx, tenantID, txID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Error("failed to get transaction", "id", txID, "error", err)
		}
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "transaction not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// GetAssessment retrieves an assessment by ID.
func (h *Handler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	id := chi.URLParam(r, "id")

	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "assessment id is required",
		})
		return
	}

	a, err := h.repo.GetAssessment(ctx, tenantID, id)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Error("failed to get assessment", "id", id, "error", err)
		}
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "assessment not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, a)
}

// GetSettings retrieves per-account settings, falling back to defaults
// when the account has none stored.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	accountID := chi.URLParam(r, "accountId")

	settings, err := h.repo.GetUserSettings(ctx, tenantID, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusOK, &domain.UserSettings{
				TenantID:   tenantID,
				AccountID:  accountID,
				DailyLimit: domain.DefaultDailyLimit,
			})
			return
		}
		slog.Error("failed to get settings", "account_id", accountID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get settings",
		})
		return
	}

	writeJSON(w, http.StatusOK, settings)
}

// UpdateSettingsRequest is the request body for PUT /settings/{accountId}.
type UpdateSettingsRequest struct {
	DailyLimit float64 `json:"dailyLimit"`
}

// UpdateSettings upserts per-account settings and drops the cached risk
// context so the next evaluation sees the new limit.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	accountID := chi.URLParam(r, "accountId")

	var req UpdateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.DailyLimit <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "dailyLimit must be positive",
		})
		return
	}

	settings := &domain.UserSettings{
		TenantID:   tenantID,
		AccountID:  accountID,
		DailyLimit: req.DailyLimit,
		UpdatedAt:  time.Now().UTC(),
	}

	if err := h.repo.SaveUserSettings(ctx, tenantID, settings); err != nil {
		slog.Error("failed to save settings", "account_id", accountID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save settings",
		})
		return
	}

	h.invalidateContext(r, tenantID, accountID)

	writeJSON(w, http.StatusOK, settings)
}

// MerchantRequest is the request body for adding a merchant to a list.
type MerchantRequest struct {
	Merchant string `json:"merchant"`
}

// ListMerchants returns one of an account's merchant lists.
func (h *Handler) ListMerchants(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	accountID := chi.URLParam(r, "accountId")
	kind := chi.URLParam(r, "kind")

	if !validMerchantKind(kind) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "kind must be 'blocked' or 'trusted'",
		})
		return
	}

	merchants, err := h.repo.ListMerchants(ctx, tenantID, accountID, kind)
	if err != nil {
		slog.Error("failed to list merchants", "account_id", accountID, "kind", kind, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list merchants",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"merchants": merchants,
		"count":     len(merchants),
		"kind":      kind,
	})
}

// AddMerchant adds a merchant to an account's blocked or trusted list.
func (h *Handler) AddMerchant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	accountID := chi.URLParam(r, "accountId")
	kind := chi.URLParam(r, "kind")

	if !validMerchantKind(kind) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "kind must be 'blocked' or 'trusted'",
		})
		return
	}

	var req MerchantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Merchant == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "merchant is required",
		})
		return
	}

	if err := h.repo.AddMerchant(ctx, tenantID, accountID, kind, req.Merchant); err != nil {
		slog.Error("failed to add merchant", "account_id", accountID, "kind", kind, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to add merchant",
		})
		return
	}

	h.invalidateContext(r, tenantID, accountID)

	writeJSON(w, http.StatusCreated, map[string]string{
		"merchant": req.Merchant,
		"kind":     kind,
	})
}

// RemoveMerchant removes a merchant from an account's list.
func (h *Handler) RemoveMerchant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	accountID := chi.URLParam(r, "accountId")
	kind := chi.URLParam(r, "kind")
	merchant := chi.URLParam(r, "merchant")

	if !validMerchantKind(kind) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "kind must be 'blocked' or 'trusted'",
		})
		return
	}

	if err := h.repo.RemoveMerchant(ctx, tenantID, accountID, kind, merchant); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "merchant not found",
			})
			return
		}
		slog.Error("failed to remove merchant", "account_id", accountID, "kind", kind, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to remove merchant",
		})
		return
	}

	h.invalidateContext(r, tenantID, accountID)

	writeJSON(w, http.StatusOK, map[string]string{
		"merchant": merchant,
		"kind":     kind,
	})
}

// BlacklistRequest is the request body for POST /blacklist.
type BlacklistRequest struct {
	Identifier string `json:"identifier"`
	Reason     string `json:"reason,omitempty"`
}

// AddToBlacklist adds an identifier to the tenant's global blacklist.
func (h *Handler) AddToBlacklist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req BlacklistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Identifier == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "identifier is required",
		})
		return
	}

	if err := h.repo.AddToBlacklist(ctx, tenantID, req.Identifier, req.Reason); err != nil {
		slog.Error("failed to add to blacklist", "identifier", req.Identifier, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to add to blacklist",
		})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"identifier": req.Identifier,
	})
}

// ListBlacklist returns the tenant's global blacklist.
func (h *Handler) ListBlacklist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	identifiers, err := h.repo.ListBlacklist(ctx, tenantID)
	if err != nil {
		slog.Error("failed to list blacklist", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list blacklist",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"identifiers": identifiers,
		"count":       len(identifiers),
	})
}

// ListRules returns the tenant's rules currently loaded in the engine.
// Rules are loaded from the database at startup and can be reloaded via
// POST /rules/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	tenantID := GetTenantID(r.Context())

	loaded := h.rules.GetLoadedRules()
	tenantRules := make([]*domain.CustomRule, 0, len(loaded))
	for _, rule := range loaded {
		if rule.TenantID == tenantID {
			tenantRules = append(tenantRules, rule)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules": tenantRules,
		"count": len(tenantRules),
	})
}

// GetRule retrieves a rule by ID from the database.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	rule, err := h.repo.GetCustomRule(ctx, tenantID, ruleID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Error("failed to get rule", "id", ruleID, "error", err)
		}
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "rule not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

// CreateRuleRequest is the request body for creating a rule.
type CreateRuleRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Expression  string `json:"expression"`
	Points      int    `json:"points"`
	Reason      string `json:"reason,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// CreateRule validates, persists, and loads a custom rule for the tenant.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req CreateRuleRequest
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

	rule := &domain.CustomRule{
		ID:          req.ID,
		TenantID:    tenantID,
		Name:        req.Name,
		Description: req.Description,
		Expression:  req.Expression,
		Points:      req.Points,
		Reason:      req.Reason,
		Enabled:     req.Enabled,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}

	if err := h.rules.ValidateRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if err := h.repo.SaveCustomRule(ctx, tenantID, rule); err != nil {
		slog.Error("failed to save rule", "id", rule.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save rule",
		})
		return
	}

	if rule.Enabled {
		if err := h.rules.LoadRule(rule); err != nil {
			slog.Error("failed to load saved rule", "id", rule.ID, "error", err)
		}
	}

	slog.Info("rule created", "id", rule.ID, "tenant_id", tenantID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, rule)
}

// ReloadRules reloads the tenant's rules from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	dbRules, err := h.repo.ListCustomRules(ctx, tenantID)
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.rules.ReloadTenantRules(tenantID, dbRules); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("rules reloaded from database", "tenant_id", tenantID, "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   len(dbRules),
	})
}

// invalidateContext drops the account's cached risk context after a
// configuration change.
func (h *Handler) invalidateContext(r *http.Request, tenantID, accountID string) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Delete(r.Context(), tenantID, "rc:"+accountID); err != nil {
		slog.Warn("failed to invalidate cached context", "account_id", accountID, "error", err)
	}
}

func validMerchantKind(kind string) bool {
	return kind == domain.MerchantBlocked || kind == domain.MerchantTrusted
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
