package period

import (
	"context"
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Counter combines durable counts from the repository with the
// transient counts of the caller's scope.
type Counter struct {
	durable domain.TransactionCounter
}

// NewCounter creates a period counter over a durable count source.
func NewCounter(durable domain.TransactionCounter) *Counter {
	return &Counter{durable: durable}
}

// Count returns the total number of qualifying transactions for the
// customer and type within the window: the durable count (snapshotted
// per scope on first query) plus the scope's transient count.
func (c *Counter) Count(ctx context.Context, scope *Scope, customerID, txType string, w Window) (int, error) {
	if customerID == "" || txType == "" {
		return 0, fmt.Errorf("customerID and txType are required")
	}

	base, ok := scope.Baseline(customerID, txType, w)
	if !ok {
		var err error
		base, err = c.durable.CountTransactions(ctx, customerID, txType, w.Start, w.End)
		if err != nil {
			return 0, fmt.Errorf("failed to count transactions: %w", err)
		}
		scope.StoreBaseline(customerID, txType, w, base)
	}

	return int(base) + scope.Transient(customerID, txType), nil
}
