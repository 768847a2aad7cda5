package charge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Input carries everything a computation strategy may need: the
// transaction, the resolved customer, the matched rule, the period
// count (including the current transaction), and the balance source
// for balance-based rules.
type Input struct {
	Tx       *domain.TransactionRequest
	Customer *domain.Customer
	Rule     *domain.ChargeRule
	Count    int
	Balances domain.BalanceSource
	Now      time.Time
}

// Charge is a strategy's computed outcome before rounding.
type Charge struct {
	Amount float64
	Basis  string
	Rate   float64 // percentage applied, if any
}

// Strategy computes a non-negative charge for one matched rule.
type Strategy func(ctx context.Context, in *Input) (Charge, error)

// Registry maps rule codes to computation strategies. Unknown codes
// resolve to a zero-charge strategy rather than an error.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry creates a registry preloaded with the built-in
// strategies.
func NewRegistry() *Registry {
	r := &Registry{strategies: make(map[string]Strategy)}
	for code, s := range builtinStrategies() {
		r.strategies[code] = s
	}
	return r
}

// Register adds or replaces the strategy for a rule code.
func (r *Registry) Register(code string, s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[code] = s
}

// Resolve returns the strategy for a rule code. Unrecognized codes
// get the zero-charge strategy; never an error.
func (r *Registry) Resolve(code string) Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.strategies[code]; ok {
		return s
	}
	return zeroCharge
}

// Count returns the number of registered strategies.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.strategies)
}

func zeroCharge(ctx context.Context, in *Input) (Charge, error) {
	return Charge{Basis: "no computation registered for rule code"}, nil
}

// builtinStrategies wires the closed set of fee algorithms. Threshold
// and tiering logic is bespoke per rule code; the rule's FeeValue and
// ThresholdCount override the documented defaults when set.
func builtinStrategies() map[string]Strategy {
	return map[string]Strategy{
		domain.RuleCodeWithdrawalParentBank: thresholdPercentage(20, 2.0, "parent-bank ATM withdrawals"),
		domain.RuleCodeWithdrawalOtherBank:  thresholdPercentage(5, 10.0, "other-bank ATM withdrawals"),
		domain.RuleCodeMonthlyRetailMaint:   monthlyRetailMaintenance,
		domain.RuleCodeCorporateBiMonthly:   corporateBiMonthly,
		domain.RuleCodeFundsTransferTier1:   transferTier(1, 10, 0),
		domain.RuleCodeFundsTransferTier2:   transferTier(11, 30, 100),
		domain.RuleCodeFundsTransferTier3:   transferTier(31, 50, 150),
		domain.RuleCodeFundsTransferTier4:   transferTier(51, 0, 300),
		domain.RuleCodeStatementPrint:       flatFee(50),
		domain.RuleCodeDuplicateDebitCard:   flatFee(150),
		domain.RuleCodeDuplicateCreditCard:  flatFee(450),
	}
}

// thresholdPercentage charges a percentage of the amount once the
// period count exceeds a free threshold. The count includes the
// current transaction, so "the 21st withdrawal" is evaluated with
// count 21.
func thresholdPercentage(defaultThreshold int, defaultRate float64, what string) Strategy {
	return func(ctx context.Context, in *Input) (Charge, error) {
		threshold := intOr(in.Rule.ThresholdCount, defaultThreshold)
		rate := floatOr(in.Rule.FeeValue, defaultRate)

		if in.Count <= threshold {
			return Charge{
				Basis: fmt.Sprintf("%d %s within free limit of %d", in.Count, what, threshold),
			}, nil
		}
		return Charge{
			Amount: in.Tx.Amount * rate / 100,
			Basis: fmt.Sprintf("%d %s exceeds free limit of %d: %.2f%% of %.2f",
				in.Count, what, threshold, rate, in.Tx.Amount),
			Rate: rate,
		}, nil
	}
}

// monthlyRetailMaintenance charges a flat maintenance fee at most
// once per calendar month per retail customer.
func monthlyRetailMaintenance(ctx context.Context, in *Input) (Charge, error) {
	if in.Customer.Type != domain.CustomerRetail {
		return Charge{Basis: "maintenance fee applies to retail customers only"}, nil
	}
	if in.Count > 1 {
		return Charge{
			Basis: fmt.Sprintf("maintenance already charged this month (occurrence %d)", in.Count),
		}, nil
	}
	fee := floatOr(in.Rule.FeeValue, 25)
	return Charge{
		Amount: fee,
		Basis:  fmt.Sprintf("monthly maintenance flat fee of %.2f", fee),
	}, nil
}

// corporateBiMonthly charges a percentage of the average balance over
// the trailing 60 days, at most once per 60-day window.
func corporateBiMonthly(ctx context.Context, in *Input) (Charge, error) {
	if in.Customer.Type != domain.CustomerCorporate {
		return Charge{Basis: "bi-monthly charge applies to corporate customers only"}, nil
	}
	if in.Count > 1 {
		return Charge{
			Basis: fmt.Sprintf("bi-monthly charge already applied in window (occurrence %d)", in.Count),
		}, nil
	}
	if in.Balances == nil {
		return Charge{}, fmt.Errorf("no balance source configured for rule %s", in.Rule.Code)
	}

	days := intOr(in.Rule.PeriodDays, 60)
	from := in.Now.AddDate(0, 0, -days)
	avg, err := in.Balances.AverageBalance(ctx, in.Customer.ID, from, in.Now)
	if err != nil {
		return Charge{}, fmt.Errorf("failed to fetch average balance: %w", err)
	}

	rate := floatOr(in.Rule.FeeValue, 5)
	return Charge{
		Amount: avg * rate / 100,
		Basis: fmt.Sprintf("%.2f%% of %.2f average balance over trailing %d days",
			rate, avg, days),
		Rate: rate,
	}, nil
}

// transferTier charges a flat fee when the funds-transfer count falls
// inside [lower, upper]; upper 0 means unbounded. Tier boundaries are
// inclusive and evaluated against the post-increment count.
func transferTier(lower, upper int, fee float64) Strategy {
	return func(ctx context.Context, in *Input) (Charge, error) {
		if in.Count < lower || (upper > 0 && in.Count > upper) {
			return Charge{
				Basis: fmt.Sprintf("transfer %d outside tier band %s", in.Count, bandLabel(lower, upper)),
			}, nil
		}
		amount := floatOr(in.Rule.FeeValue, fee)
		if amount == 0 {
			return Charge{
				Basis: fmt.Sprintf("transfer %d within free tier %s", in.Count, bandLabel(lower, upper)),
			}, nil
		}
		return Charge{
			Amount: amount,
			Basis: fmt.Sprintf("transfer %d within tier %s: flat fee of %.2f",
				in.Count, bandLabel(lower, upper), amount),
		}, nil
	}
}

// flatFee charges a fixed amount on every matched transaction.
func flatFee(fee float64) Strategy {
	return func(ctx context.Context, in *Input) (Charge, error) {
		amount := floatOr(in.Rule.FeeValue, fee)
		return Charge{
			Amount: amount,
			Basis:  fmt.Sprintf("flat fee of %.2f", amount),
		}, nil
	}
}

func bandLabel(lower, upper int) string {
	if upper <= 0 {
		return fmt.Sprintf("[%d+]", lower)
	}
	return fmt.Sprintf("[%d-%d]", lower, upper)
}

func intOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func floatOr(v, fallback float64) float64 {
	if v > 0 {
		return v
	}
	return fallback
}
