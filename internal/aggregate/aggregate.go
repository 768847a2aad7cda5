// Package aggregate accumulates charge line items into transaction
// level results and batch level summaries.
package aggregate

import (
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// BuildResult assembles a successful transaction-level result from
// the computed line items. The total is the exact sum of line item
// amounts and the applicable-rule count equals the item count.
func BuildResult(req *domain.TransactionRequest, items []domain.ChargeDetail) *domain.ChargeResult {
	var total float64
	currency := req.Currency
	for _, item := range items {
		total += item.ChargeAmount
		if item.Currency != "" {
			currency = item.Currency
		}
	}

	return &domain.ChargeResult{
		TransactionID:        req.ID,
		CustomerCode:         req.CustomerCode,
		Type:                 req.Type,
		LineItems:            items,
		TotalCharges:         total,
		Currency:             currency,
		ApplicableRulesCount: len(items),
		Success:              true,
		Message:              "charges calculated",
		Summary:              summarize(items, total),
		Timestamp:            time.Now().UTC(),
	}
}

// FailedResult assembles a short-circuited failure: no line items, no
// charges.
func FailedResult(req *domain.TransactionRequest, message string) *domain.ChargeResult {
	return &domain.ChargeResult{
		TransactionID: req.ID,
		CustomerCode:  req.CustomerCode,
		Type:          req.Type,
		Currency:      req.Currency,
		Success:       false,
		Message:       message,
		Summary:       "calculation failed: " + message,
		Timestamp:     time.Now().UTC(),
	}
}

// summarize renders the human-readable charge summary, e.g.
// "Applied 2 rule(s). Total: 150.00 (statement-print: 50.00 + duplicate-debit-card: 100.00)".
func summarize(items []domain.ChargeDetail, total float64) string {
	if len(items) == 0 {
		return "No charge rules applicable."
	}

	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = fmt.Sprintf("%s: %.2f", item.RuleCode, item.ChargeAmount)
	}
	return fmt.Sprintf("Applied %d rule(s). Total: %.2f (%s)",
		len(items), total, strings.Join(parts, " + "))
}

// BatchAggregator accumulates per-transaction results across a bulk
// or test run. When haltOnFailure is set, Add reports that processing
// should stop at the first failed result.
type BatchAggregator struct {
	haltOnFailure bool
	result        domain.BatchResult
}

// NewBatchAggregator creates an aggregator for one batch.
func NewBatchAggregator(haltOnFailure bool) *BatchAggregator {
	return &BatchAggregator{
		haltOnFailure: haltOnFailure,
		result: domain.BatchResult{
			CountsByType:  make(map[string]int),
			ChargesByRule: make(map[string]float64),
			StartedAt:     time.Now().UTC(),
		},
	}
}

// Add records one transaction's result and reports whether the batch
// should halt.
func (b *BatchAggregator) Add(res *domain.ChargeResult) (halt bool) {
	b.result.Processed++
	b.result.CountsByType[res.Type]++
	b.result.Results = append(b.result.Results, *res)

	if !res.Success {
		b.result.Failed++
		if b.haltOnFailure {
			b.result.Halted = true
			return true
		}
		return false
	}

	b.result.Succeeded++
	b.result.TotalCharges += res.TotalCharges
	for _, item := range res.LineItems {
		b.result.ChargesByRule[item.RuleCode] += item.ChargeAmount
	}
	return false
}

// Finish stamps the end time and returns the accumulated result.
func (b *BatchAggregator) Finish() *domain.BatchResult {
	b.result.FinishedAt = time.Now().UTC()
	return &b.result
}
