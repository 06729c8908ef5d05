package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openrisk-labs/kite/internal/cache"
	"github.com/openrisk-labs/kite/internal/domain"
	"github.com/openrisk-labs/kite/internal/graph"
	"github.com/openrisk-labs/kite/internal/repository"
	"github.com/openrisk-labs/kite/internal/rules"
	"github.com/openrisk-labs/kite/internal/scoring"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo     domain.Repository
	configs  *cache.ConfigCache
	bus      domain.EventBus
	scorer   *scoring.Service
	scripts  *rules.ScriptEngine
	analyzer *graph.Analyzer
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(
	repo domain.Repository,
	configs *cache.ConfigCache,
	bus domain.EventBus,
	scorer *scoring.Service,
	scripts *rules.ScriptEngine,
	analyzer *graph.Analyzer,
	version string,
) *Handler {
	return &Handler{
		repo:     repo,
		configs:  configs,
		bus:      bus,
		scorer:   scorer,
		scripts:  scripts,
		analyzer: analyzer,
		version:  version,
	}
}

// ScoreRequest is the request body for POST /score.
type ScoreRequest struct {
	TxID                string                 `json:"txId,omitempty"`
	SenderID            string                 `json:"senderId"`
	ReceiverID          string                 `json:"receiverId"`
	Amount              decimal.Decimal        `json:"amount"`
	SourceCurrency      string                 `json:"sourceCurrency"`
	DestinationCurrency string                 `json:"destinationCurrency,omitempty"`
	SourceCountry       string                 `json:"sourceCountry,omitempty"`
	DestinationCountry  string                 `json:"destinationCountry,omitempty"`
	Timestamp           *time.Time             `json:"timestamp,omitempty"`
	RawPayloadRef       string                 `json:"rawPayloadRef,omitempty"`
	Metadata            map[string]interface{} `json:"metadata,omitempty"`
}

// Score handles POST /score: synchronous scoring of one transaction.
func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req ScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	ts := time.Now().UTC()
	if req.Timestamp != nil {
		ts = req.Timestamp.UTC()
	}

	txID := req.TxID
	if txID == "" {
		txID = uuid.New().String()
	}

	tx := &domain.Transaction{
		ID:                  txID,
		TenantID:            tenantID,
		SenderID:            req.SenderID,
		ReceiverID:          req.ReceiverID,
		Amount:              req.Amount,
		SourceCurrency:      req.SourceCurrency,
		DestinationCurrency: req.DestinationCurrency,
		SourceCountry:       req.SourceCountry,
		DestinationCountry:  req.DestinationCountry,
		Timestamp:           ts,
		CreatedAt:           time.Now().UTC(),
		RawPayloadRef:       req.RawPayloadRef,
		Metadata:            req.Metadata,
	}

	analysis, err := h.scorer.ScoreTransaction(ctx, tx)
	if err != nil {
		if isValidation(err) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		slog.Error("scoring failed", "tenant_id", tenantID, "tx_id", txID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "scoring failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, analysis)
}

func isValidation(err error) bool {
	return errors.Is(err, domain.ErrMissingTenant) ||
		errors.Is(err, domain.ErrMissingParty) ||
		errors.Is(err, domain.ErrInvalidAmount) ||
		errors.Is(err, domain.ErrMissingMoment) ||
		errors.Is(err, domain.ErrMissingCurrency)
}

// GetAnalysis retrieves an analysis by ID.
func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	analysisID := chi.URLParam(r, "id")

	analysis, err := h.repo.GetAnalysis(ctx, tenantID, analysisID)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "analysis not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
		return
	}

	writeJSON(w, http.StatusOK, analysis)
}

// ReviewRequest is the request body for POST /analyses/{id}/review.
type ReviewRequest struct {
	Action   string `json:"action"` // approve, reject, escalate
	Reviewer string `json:"reviewer"`
	Note     string `json:"note,omitempty"`
}

// ReviewAnalysis applies a human review action to a pending or escalated
// analysis.
func (h *Handler) ReviewAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	analysisID := chi.URLParam(r, "id")

	var req ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON request body"})
		return
	}
	if req.Reviewer == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "reviewer is required"})
		return
	}

	var to domain.ReviewStatus
	switch req.Action {
	case "approve":
		to = domain.ReviewApproved
	case "reject":
		to = domain.ReviewRejected
	case "escalate":
		to = domain.ReviewEscalated
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "action must be approve, reject or escalate",
		})
		return
	}

	analysis, err := h.scorer.ReviewAnalysis(ctx, tenantID, analysisID, to, req.Reviewer, req.Note)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "analysis not found"})
		return
	}
	if err != nil {
		// Invalid state transitions surface as conflicts.
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, analysis)
}

// GetTransaction retrieves a transaction by ID.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	txID := chi.URLParam(r, "id")

	tx, err := h.repo.GetTransaction(ctx, tenantID, txID)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "transaction not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// GetTransactionAnalysis retrieves the latest analysis for a transaction.
func (h *Handler) GetTransactionAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	txID := chi.URLParam(r, "id")

	analysis, err := h.repo.GetAnalysisByTransaction(ctx, tenantID, txID)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no analysis for transaction"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
		return
	}

	writeJSON(w, http.StatusOK, analysis)
}

// ListRules returns all rules for the tenant.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	ruleSet, err := h.repo.ListRules(ctx, tenantID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "rule listing failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(ruleSet),
		"rules": ruleSet,
	})
}

// GetRule retrieves a rule by ID.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	ruleID := chi.URLParam(r, "id")

	rule, err := h.repo.GetRule(ctx, tenantID, ruleID)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "rule not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

// SaveRule creates or updates a rule. Script rules are compile-checked
// before they are accepted.
func (h *Handler) SaveRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var rule domain.RiskRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON request body"})
		return
	}

	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if rule.Mode == "" {
		rule.Mode = domain.ModeActive
	}
	rule.TenantID = tenantID

	if err := rule.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if rule.Kind == domain.RuleKindExpression {
		if !validField(rule.Field) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "unknown field " + rule.Field,
			})
			return
		}
	}
	if rule.Kind == domain.RuleKindScript && h.scripts != nil {
		if err := h.scripts.Validate(rule.Script); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
	}

	if err := h.repo.SaveRule(ctx, tenantID, &rule); err != nil {
		slog.Error("rule save failed", "tenant_id", tenantID, "rule_id", rule.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "rule save failed"})
		return
	}

	h.invalidateConfig(r, tenantID)
	writeJSON(w, http.StatusCreated, &rule)
}

func validField(field string) bool {
	for _, f := range rules.Fields() {
		if f == field {
			return true
		}
	}
	return false
}

// ReloadConfig drops the tenant's cached configuration snapshots.
func (h *Handler) ReloadConfig(w http.ResponseWriter, r *http.Request) {
	tenantID := GetTenantID(r.Context())
	h.invalidateConfig(r, tenantID)

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "reloaded",
	})
}

// ListRuleGroups returns all rule groups for the tenant.
func (h *Handler) ListRuleGroups(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	groups, err := h.repo.ListRuleGroups(ctx, tenantID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "group listing failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(groups),
		"groups": groups,
	})
}

// GetRuleGroup retrieves a rule group by ID.
func (h *Handler) GetRuleGroup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	groupID := chi.URLParam(r, "id")

	group, err := h.repo.GetRuleGroup(ctx, tenantID, groupID)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "rule group not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
		return
	}

	writeJSON(w, http.StatusOK, group)
}

// SaveRuleGroup creates or updates a rule group.
func (h *Handler) SaveRuleGroup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var group domain.RuleGroup
	if err := json.NewDecoder(r.Body).Decode(&group); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON request body"})
		return
	}

	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	if group.Mode == "" {
		group.Mode = domain.ModeActive
	}
	group.TenantID = tenantID

	if err := group.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	for _, c := range group.Conditions {
		if !validField(c.Field) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "unknown field " + c.Field,
			})
			return
		}
	}

	if err := h.repo.SaveRuleGroup(ctx, tenantID, &group); err != nil {
		slog.Error("rule group save failed", "tenant_id", tenantID, "group_id", group.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "group save failed"})
		return
	}

	h.invalidateConfig(r, tenantID)
	writeJSON(w, http.StatusCreated, &group)
}

// ListWatchlists returns all watchlists for the tenant.
func (h *Handler) ListWatchlists(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	lists, err := h.repo.ListWatchlists(ctx, tenantID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "watchlist listing failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":      len(lists),
		"watchlists": lists,
	})
}

// GetWatchlist retrieves a watchlist by ID.
func (h *Handler) GetWatchlist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	listID := chi.URLParam(r, "id")

	list, err := h.repo.GetWatchlist(ctx, tenantID, listID)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "watchlist not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
		return
	}

	writeJSON(w, http.StatusOK, list)
}

// SaveWatchlist creates or updates a watchlist.
func (h *Handler) SaveWatchlist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var list domain.Watchlist
	if err := json.NewDecoder(r.Body).Decode(&list); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON request body"})
		return
	}

	if list.ID == "" {
		list.ID = uuid.New().String()
	}
	list.TenantID = tenantID

	if err := list.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := h.repo.SaveWatchlist(ctx, tenantID, &list); err != nil {
		slog.Error("watchlist save failed", "tenant_id", tenantID, "list_id", list.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "watchlist save failed"})
		return
	}

	h.invalidateConfig(r, tenantID)
	writeJSON(w, http.StatusCreated, &list)
}

// GetPolicy returns the tenant's policy, falling back to defaults.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	policy, err := h.repo.GetPolicy(ctx, tenantID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "policy lookup failed"})
		return
	}
	if policy == nil {
		policy = domain.DefaultPolicy(tenantID)
	}

	writeJSON(w, http.StatusOK, policy)
}

// SavePolicy replaces the tenant's policy.
func (h *Handler) SavePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var policy domain.TenantPolicy
	if err := json.NewDecoder(r.Body).Decode(&policy); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON request body"})
		return
	}
	if policy.AutoApproveThreshold >= policy.AutoRejectThreshold {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "autoApproveThreshold must be below autoRejectThreshold",
		})
		return
	}

	if err := h.repo.SavePolicy(ctx, tenantID, &policy); err != nil {
		slog.Error("policy save failed", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "policy save failed"})
		return
	}

	h.invalidateConfig(r, tenantID)
	writeJSON(w, http.StatusOK, &policy)
}

// GetGraph returns the relationship graph around one customer.
func (h *Handler) GetGraph(w http.ResponseWriter, r *http.Request) {
	tenantID := GetTenantID(r.Context())
	customerID := chi.URLParam(r, "customerId")

	window, ok := graph.ParseWindow(r.URL.Query().Get("window"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "window must be one of 1h, 24h, 7d, 30d",
		})
		return
	}

	view := h.analyzer.BuildGraph(tenantID, customerID, window, time.Now().UTC())
	writeJSON(w, http.StatusOK, view)
}

// GraphSummary returns the tenant's top actors by distinct counterparties.
func (h *Handler) GraphSummary(w http.ResponseWriter, r *http.Request) {
	tenantID := GetTenantID(r.Context())

	window, ok := graph.ParseWindow(r.URL.Query().Get("window"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "window must be one of 1h, 24h, 7d, 30d",
		})
		return
	}

	topN := 10
	if v := r.URL.Query().Get("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "top must be a positive integer"})
			return
		}
		topN = n
	}

	summary := h.analyzer.Summary(tenantID, window, topN, time.Now().UTC())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(summary),
		"actors": summary,
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo != nil {
		if err := h.repo.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "repository unavailable",
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

// invalidateConfig drops local snapshots, clears compiled scripts and
// broadcasts the invalidation to other nodes.
func (h *Handler) invalidateConfig(r *http.Request, tenantID string) {
	ctx := r.Context()
	if h.configs != nil {
		h.configs.Invalidate(ctx, tenantID)
	}
	if h.scripts != nil {
		h.scripts.Invalidate()
	}
	if h.bus != nil {
		if err := h.bus.Publish(ctx, tenantID, domain.TopicConfigInvalidate, nil); err != nil {
			slog.Warn("config invalidation broadcast failed", "tenant_id", tenantID, "error", err)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
