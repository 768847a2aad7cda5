// Package calc orchestrates the charge calculation pipeline:
// validation, customer resolution, rule evaluation, aggregation, and
// best-effort persistence and event publication.
package calc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/aggregate"
	"github.com/opensource-finance/kestrel/internal/charge"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/period"
)

// txSeenTTL bounds the cached transaction-id fast path used by the
// duplicate check. The repository remains the source of truth.
const txSeenTTL = 24 * time.Hour

// Service runs charge calculations. The repository, cache, and bus are
// optional: persistence and publication are best-effort and never
// change a calculation's outcome.
type Service struct {
	rules     domain.RuleSource
	customers domain.CustomerDirectory
	evaluator *charge.Evaluator
	guard     domain.DuplicateGuard
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
}

// NewService creates a calculation service. guard, repo, cache, and
// bus may be nil.
func NewService(rules domain.RuleSource, customers domain.CustomerDirectory, evaluator *charge.Evaluator, guard domain.DuplicateGuard, repo domain.Repository, cache domain.Cache, bus domain.EventBus) *Service {
	return &Service{
		rules:     rules,
		customers: customers,
		evaluator: evaluator,
		guard:     guard,
		repo:      repo,
		cache:     cache,
		bus:       bus,
	}
}

// Calculate processes a single transaction in its own counting scope.
func (s *Service) Calculate(ctx context.Context, req *domain.TransactionRequest) *domain.ChargeResult {
	return s.calculate(ctx, period.NewScope(), req)
}

// CalculateBatch processes the transactions sequentially, sharing one
// counting scope so that earlier transactions in the batch raise the
// period counts seen by later ones. With haltOnFailure, processing
// stops at the first failed transaction.
func (s *Service) CalculateBatch(ctx context.Context, reqs []*domain.TransactionRequest, haltOnFailure bool) *domain.BatchResult {
	scope := period.NewScope()
	agg := aggregate.NewBatchAggregator(haltOnFailure)

	for _, req := range reqs {
		res := s.calculate(ctx, scope, req)
		if halt := agg.Add(res); halt {
			slog.Warn("batch halted on failure", "tx_id", req.ID, "message", res.Message)
			break
		}
	}

	result := agg.Finish()
	slog.Info("batch completed",
		"processed", result.Processed,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"total_charges", result.TotalCharges,
	)
	return result
}

func (s *Service) calculate(ctx context.Context, scope *period.Scope, req *domain.TransactionRequest) *domain.ChargeResult {
	start := time.Now()

	if msg := s.validate(ctx, req); msg != "" {
		return s.fail(ctx, req, msg)
	}

	customer, err := s.customers.GetCustomerByCode(ctx, req.CustomerCode)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return s.fail(ctx, req, fmt.Sprintf("unknown customer: %s", req.CustomerCode))
		}
		return s.fail(ctx, req, fmt.Sprintf("customer lookup failed: %v", err))
	}

	now := time.Now().UTC()
	rules := s.rules.ActiveRulesFor(customer.RuleCategory(), now)

	items := s.evaluator.Evaluate(ctx, scope, req, customer, rules, now)
	result := aggregate.BuildResult(req, items)

	s.persist(ctx, req, customer, items)
	s.publish(ctx, domain.TopicChargeCalculated, result)

	slog.Info("charges calculated",
		"tx_id", req.ID,
		"customer_code", req.CustomerCode,
		"type", req.Type,
		"rules_applied", result.ApplicableRulesCount,
		"total_charges", result.TotalCharges,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return result
}

// validate runs the short-circuit gate. Returns a failure message, or
// empty when the request may be evaluated.
func (s *Service) validate(ctx context.Context, req *domain.TransactionRequest) string {
	if req.ID == "" {
		return "transaction id is required"
	}
	if req.CustomerCode == "" {
		return "customer code is required"
	}
	if req.Type == "" {
		return "transaction type is required"
	}
	if req.Amount <= 0 {
		return "amount must be positive"
	}

	if s.seenBefore(ctx, req.ID) {
		return fmt.Sprintf("duplicate transaction id: %s", req.ID)
	}

	return ""
}

// seenBefore checks the cached fast path first, then the durable
// guard. An errored check is logged and treated as unseen.
func (s *Service) seenBefore(ctx context.Context, txID string) bool {
	if s.cache != nil {
		if val, err := s.cache.Get(ctx, domain.CacheKeyTxSeenPrefix+txID); err == nil && val != nil {
			return true
		}
	}

	if s.guard == nil {
		return false
	}
	exists, err := s.guard.TransactionExists(ctx, txID)
	if err != nil {
		slog.Warn("duplicate check failed", "tx_id", txID, "error", err)
		return false
	}
	return exists
}

func (s *Service) fail(ctx context.Context, req *domain.TransactionRequest, msg string) *domain.ChargeResult {
	slog.Warn("charge calculation rejected",
		"tx_id", req.ID,
		"customer_code", req.CustomerCode,
		"reason", msg,
	)
	result := aggregate.FailedResult(req, msg)
	s.publish(ctx, domain.TopicChargeFailed, result)
	return result
}

// persist stores the transaction and its line items, best-effort.
func (s *Service) persist(ctx context.Context, req *domain.TransactionRequest, customer *domain.Customer, items []domain.ChargeDetail) {
	if s.repo == nil {
		return
	}

	tx := req.ToTransaction(customer)
	if err := s.repo.SaveTransaction(ctx, tx, items); err != nil {
		slog.Error("failed to persist transaction",
			"tx_id", req.ID,
			"error", err,
		)
		return
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, domain.CacheKeyTxSeenPrefix+req.ID, []byte("1"), txSeenTTL); err != nil {
			slog.Warn("failed to cache transaction id", "tx_id", req.ID, "error", err)
		}
	}
}

// publish emits the result to the bus, best-effort.
func (s *Service) publish(ctx context.Context, topic string, result *domain.ChargeResult) {
	if s.bus == nil {
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, topic, payload); err != nil {
		slog.Error("failed to publish charge result",
			"topic", topic,
			"tx_id", result.TransactionID,
			"error", err,
		)
	}
}
