package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/calc"
	"github.com/opensource-finance/kestrel/internal/catalog"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	service *calc.Service
	catalog *catalog.Catalog
	version string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, service *calc.Service, cat *catalog.Catalog, version string) *Handler {
	return &Handler{
		repo:    repo,
		cache:   cache,
		bus:     bus,
		service: service,
		catalog: cat,
		version: version,
	}
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
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
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

// Calculate handles POST /charges/calculate: one transaction, one
// calculation attempt.
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	var req domain.TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	result := h.service.Calculate(r.Context(), &req)

	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, result)
}

// BulkRequest is the request body for POST /charges/bulk.
type BulkRequest struct {
	Transactions  []*domain.TransactionRequest `json:"transactions"`
	HaltOnFailure bool                         `json:"haltOnFailure,omitempty"`

	// Async hands the batch to the worker over the event bus and
	// returns immediately with a batch ID.
	Async bool `json:"async,omitempty"`
}

// CalculateBulk handles POST /charges/bulk.
func (h *Handler) CalculateBulk(w http.ResponseWriter, r *http.Request) {
	var req BulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if len(req.Transactions) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transactions must not be empty",
		})
		return
	}

	if req.Async {
		if h.bus == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": "event bus not available",
			})
			return
		}

		batchID := uuid.New().String()
		payload, _ := json.Marshal(&worker.BatchRequestMessage{
			BatchID:       batchID,
			Transactions:  req.Transactions,
			HaltOnFailure: req.HaltOnFailure,
		})
		if err := h.bus.Publish(r.Context(), domain.TopicBatchRequest, payload); err != nil {
			slog.Error("failed to enqueue batch", "batch_id", batchID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to enqueue batch",
			})
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]string{
			"batchId": batchID,
			"status":  "accepted",
		})
		return
	}

	result := h.service.CalculateBatch(r.Context(), req.Transactions, req.HaltOnFailure)
	writeJSON(w, http.StatusOK, result)
}

// GetTransaction retrieves a transaction by ID.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "id")

	tx, err := h.repo.GetTransaction(r.Context(), txID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
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

// GetTransactionCharges retrieves the charge line items of a transaction.
func (h *Handler) GetTransactionCharges(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "id")

	exists, err := h.repo.TransactionExists(r.Context(), txID)
	if err != nil {
		slog.Error("failed to check transaction", "id", txID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get charges",
		})
		return
	}
	if !exists {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "transaction not found",
		})
		return
	}

	details, err := h.repo.ListChargeDetails(r.Context(), txID)
	if err != nil {
		slog.Error("failed to list charges", "id", txID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get charges",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transactionId": txID,
		"charges":       details,
		"count":         len(details),
	})
}

// ListRules returns rules in the given lifecycle state (default ACTIVE).
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	status := domain.RuleStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = domain.RuleActive
	}

	rules, err := h.repo.ListChargeRules(r.Context(), status)
	if err != nil {
		slog.Error("failed to list rules", "status", status, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list rules",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rules":  rules,
		"count":  len(rules),
		"status": status,
	})
}

// GetRule retrieves a rule by ID.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	rule, err := h.repo.GetChargeRule(r.Context(), ruleID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "rule not found",
			})
			return
		}
		slog.Error("failed to get rule", "id", ruleID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get rule",
		})
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

// CreateRule creates a new charge rule in DRAFT state. Rules only
// take part in calculations after approval and a catalog reload.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var rule domain.ChargeRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if rule.Code == "" || rule.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "code and name are required",
		})
		return
	}
	if rule.Category == "" {
		rule.Category = domain.CategoryAll
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if rule.EffectiveFrom.IsZero() {
		rule.EffectiveFrom = time.Now().UTC()
	}
	rule.Status = domain.RuleDraft

	if err := h.repo.SaveChargeRule(r.Context(), &rule); err != nil {
		slog.Error("failed to save rule", "code", rule.Code, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save rule",
		})
		return
	}

	slog.Info("rule created", "id", rule.ID, "code", rule.Code)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":    rule,
		"message": "Rule created in DRAFT. Approve it to activate.",
	})
}

// ApproveRule moves a rule to ACTIVE and reloads the catalog.
func (h *Handler) ApproveRule(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, domain.RuleActive)
}

// DeactivateRule moves a rule to INACTIVE and reloads the catalog.
func (h *Handler) DeactivateRule(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, domain.RuleInactive)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, to domain.RuleStatus) {
	ctx := r.Context()
	ruleID := chi.URLParam(r, "id")

	rule, err := h.repo.GetChargeRule(ctx, ruleID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "rule not found",
			})
			return
		}
		slog.Error("failed to get rule", "id", ruleID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get rule",
		})
		return
	}

	if err := rule.CanTransition(to); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": err.Error(),
		})
		return
	}

	if err := h.repo.UpdateRuleStatus(ctx, ruleID, to); err != nil {
		slog.Error("failed to update rule status", "id", ruleID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to update rule status",
		})
		return
	}

	h.reloadCatalog(ctx)

	slog.Info("rule status changed", "id", ruleID, "code", rule.Code, "status", to)
	writeJSON(w, http.StatusOK, map[string]any{
		"id":     ruleID,
		"code":   rule.Code,
		"status": to,
	})
}

// ReloadRules reloads the active rule catalog from the database.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Reload(r.Context()); err != nil {
		slog.Error("failed to reload rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules",
		})
		return
	}

	h.notifyRulesReloaded(r.Context())

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   h.catalog.RulesCount(),
	})
}

// reloadCatalog refreshes the catalog after a lifecycle change,
// best-effort.
func (h *Handler) reloadCatalog(ctx context.Context) {
	if err := h.catalog.Reload(ctx); err != nil {
		slog.Error("failed to reload catalog", "error", err)
		return
	}
	h.notifyRulesReloaded(ctx)
}

func (h *Handler) notifyRulesReloaded(ctx context.Context) {
	if h.bus == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{
		"count":      h.catalog.RulesCount(),
		"reloadedAt": time.Now().UTC(),
	})
	if err := h.bus.Publish(ctx, domain.TopicRulesReloaded, payload); err != nil {
		slog.Warn("failed to publish rules reloaded event", "error", err)
	}
}

// CreateCustomer registers a customer profile.
func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var customer domain.Customer
	if err := json.NewDecoder(r.Body).Decode(&customer); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if customer.Code == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "code is required",
		})
		return
	}
	if customer.Type != domain.CustomerRetail && customer.Type != domain.CustomerCorporate {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "type must be RETAIL or CORPORATE",
		})
		return
	}
	if customer.ID == "" {
		customer.ID = uuid.New().String()
	}
	if customer.Status == "" {
		customer.Status = domain.CustomerStatusActive
	}

	if err := h.repo.SaveCustomer(r.Context(), &customer); err != nil {
		slog.Error("failed to save customer", "code", customer.Code, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save customer",
		})
		return
	}

	slog.Info("customer created", "id", customer.ID, "code", customer.Code)
	writeJSON(w, http.StatusCreated, customer)
}

// ListCustomers returns all registered customers.
func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.repo.ListCustomers(r.Context())
	if err != nil {
		slog.Error("failed to list customers", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list customers",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"customers": customers,
		"count":     len(customers),
	})
}

// GetCustomer retrieves a customer by code.
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	customer, err := h.repo.GetCustomerByCode(r.Context(), code)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "customer not found",
			})
			return
		}
		slog.Error("failed to get customer", "code", code, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get customer",
		})
		return
	}

	writeJSON(w, http.StatusOK, customer)
}

// BalanceRequest is the request body for recording a balance snapshot.
type BalanceRequest struct {
	Balance  float64   `json:"balance"`
	Currency string    `json:"currency"`
	AsOf     time.Time `json:"asOf,omitempty"`
}

// RecordBalance stores an end-of-day balance snapshot for a customer.
func (h *Handler) RecordBalance(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	customer, err := h.repo.GetCustomerByCode(r.Context(), code)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "customer not found",
			})
			return
		}
		slog.Error("failed to get customer", "code", code, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get customer",
		})
		return
	}

	var req BalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.AsOf.IsZero() {
		req.AsOf = time.Now().UTC()
	}

	snap := &domain.BalanceSnapshot{
		CustomerID: customer.ID,
		Balance:    req.Balance,
		Currency:   req.Currency,
		AsOf:       req.AsOf,
	}
	if err := h.repo.SaveBalanceSnapshot(r.Context(), snap); err != nil {
		slog.Error("failed to save balance snapshot", "customer_id", customer.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save balance snapshot",
		})
		return
	}

	writeJSON(w, http.StatusCreated, snap)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
