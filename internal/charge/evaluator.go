// Package charge implements the charge rule evaluation engine: the
// rule matcher, the per-rule-code computation strategies, and the
// evaluator that turns matched rules into charge line items.
package charge

import (
	"context"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/period"
)

// Evaluator computes charge line items for a transaction against a
// set of candidate rules. Matching, dispatch, and rounding are
// CPU-bound; the only I/O is the durable count fetch, memoized per
// window in the scope.
type Evaluator struct {
	matcher  *Matcher
	registry *Registry
	counter  *period.Counter
	balances domain.BalanceSource
}

// NewEvaluator creates a charge evaluator.
func NewEvaluator(matcher *Matcher, registry *Registry, counter *period.Counter, balances domain.BalanceSource) *Evaluator {
	return &Evaluator{
		matcher:  matcher,
		registry: registry,
		counter:  counter,
		balances: balances,
	}
}

// Evaluate records the transaction in the scope, then runs every
// matched rule's strategy and returns the non-zero line items in rule
// order. A rule whose computation fails contributes nothing and does
// not abort the remaining rules. Evaluating the same immutable
// (transaction, rules, counts) input twice yields identical items.
func (e *Evaluator) Evaluate(ctx context.Context, scope *period.Scope, req *domain.TransactionRequest, customer *domain.Customer, rules []*domain.ChargeRule, now time.Time) []domain.ChargeDetail {
	scope.Record(customer.ID, req.Type)

	var items []domain.ChargeDetail
	for _, rule := range rules {
		if !e.matcher.Matches(rule, req, customer) {
			continue
		}

		count, err := e.counter.Count(ctx, scope, customer.ID, req.Type, period.ForRule(rule, now))
		if err != nil {
			slog.Warn("period count failed, treating rule as zero charge",
				"rule_code", rule.Code,
				"tx_id", req.ID,
				"error", err,
			)
			continue
		}

		result, err := e.registry.Resolve(rule.Code)(ctx, &Input{
			Tx:       req,
			Customer: customer,
			Rule:     rule,
			Count:    count,
			Balances: e.balances,
			Now:      now,
		})
		if err != nil {
			slog.Warn("rule computation failed, treating as zero charge",
				"rule_code", rule.Code,
				"tx_id", req.ID,
				"error", err,
			)
			continue
		}

		amount := Round2(result.Amount)
		if amount <= 0 {
			// Matched but free: no line item.
			slog.Debug("rule matched with zero charge",
				"rule_code", rule.Code,
				"tx_id", req.ID,
				"basis", result.Basis,
			)
			continue
		}

		items = append(items, domain.ChargeDetail{
			TransactionID:    req.ID,
			RuleID:           rule.ID,
			RuleCode:         rule.Code,
			RuleName:         rule.Name,
			Category:         rule.Category,
			Activity:         rule.Activity,
			FeeType:          rule.FeeType,
			ChargeAmount:     amount,
			Currency:         ruleCurrency(rule, req),
			CalculationBasis: result.Basis,
			AppliedRate:      result.Rate,
		})
	}

	return items
}

func ruleCurrency(rule *domain.ChargeRule, req *domain.TransactionRequest) string {
	if rule.Currency != "" {
		return rule.Currency
	}
	return req.Currency
}
