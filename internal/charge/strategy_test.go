package charge

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

type fakeBalances struct {
	avg float64
	err error
}

func (f *fakeBalances) AverageBalance(ctx context.Context, customerID string, from, to time.Time) (float64, error) {
	return f.avg, f.err
}

func strategyInput(code string, txType string, amount float64, count int) *Input {
	return &Input{
		Tx: &domain.TransactionRequest{
			ID:       "tx-001",
			Type:     txType,
			Amount:   amount,
			Currency: "INR",
		},
		Customer: &domain.Customer{ID: "cust-1", Code: "C001", Type: domain.CustomerRetail},
		Rule:     &domain.ChargeRule{ID: "rule-1", Code: code},
		Count:    count,
		Now:      time.Date(2026, time.May, 10, 0, 0, 0, 0, time.UTC),
	}
}

func TestUnknownRuleCodeIsZeroCharge(t *testing.T) {
	registry := NewRegistry()
	s := registry.Resolve("some-future-rule")

	result, err := s(context.Background(), strategyInput("some-future-rule", domain.TxTypeFundsTransfer, 100, 1))
	if err != nil {
		t.Fatalf("zero strategy should never error: %v", err)
	}
	if result.Amount != 0 {
		t.Errorf("expected 0 charge for unknown code, got %.2f", result.Amount)
	}
}

func TestParentBankWithdrawalThreshold(t *testing.T) {
	registry := NewRegistry()
	s := registry.Resolve(domain.RuleCodeWithdrawalParentBank)
	ctx := context.Background()

	// Withdrawals 1-20 are free.
	for count := 1; count <= 20; count++ {
		result, err := s(ctx, strategyInput(domain.RuleCodeWithdrawalParentBank, domain.TxTypeATMWithdrawalParent, 1000, count))
		if err != nil {
			t.Fatalf("count %d: %v", count, err)
		}
		if result.Amount != 0 {
			t.Errorf("count %d: expected free withdrawal, got %.2f", count, result.Amount)
		}
	}

	// The 21st withdrawal of 1000 charges exactly 20.00 (2%).
	result, _ := s(ctx, strategyInput(domain.RuleCodeWithdrawalParentBank, domain.TxTypeATMWithdrawalParent, 1000, 21))
	if Round2(result.Amount) != 20.00 {
		t.Errorf("expected 20.00 for 21st withdrawal, got %.2f", result.Amount)
	}
	if result.Rate != 2.0 {
		t.Errorf("expected applied rate 2.0, got %.2f", result.Rate)
	}
}

func TestOtherBankWithdrawalThreshold(t *testing.T) {
	registry := NewRegistry()
	s := registry.Resolve(domain.RuleCodeWithdrawalOtherBank)
	ctx := context.Background()

	for count := 1; count <= 5; count++ {
		result, _ := s(ctx, strategyInput(domain.RuleCodeWithdrawalOtherBank, domain.TxTypeATMWithdrawalOther, 2000, count))
		if result.Amount != 0 {
			t.Errorf("count %d: expected free withdrawal, got %.2f", count, result.Amount)
		}
	}

	// The 6th withdrawal of 2000 charges exactly 200.00 (10%).
	result, _ := s(ctx, strategyInput(domain.RuleCodeWithdrawalOtherBank, domain.TxTypeATMWithdrawalOther, 2000, 6))
	if Round2(result.Amount) != 200.00 {
		t.Errorf("expected 200.00 for 6th withdrawal, got %.2f", result.Amount)
	}
}

func TestFundsTransferTiers(t *testing.T) {
	registry := NewRegistry()
	ctx := context.Background()

	tiers := []struct {
		code string
		fee  float64
	}{
		{domain.RuleCodeFundsTransferTier1, 0},
		{domain.RuleCodeFundsTransferTier2, 100},
		{domain.RuleCodeFundsTransferTier3, 150},
		{domain.RuleCodeFundsTransferTier4, 300},
	}

	expected := func(count int) float64 {
		switch {
		case count <= 10:
			return 0
		case count <= 30:
			return 100
		case count <= 50:
			return 150
		default:
			return 300
		}
	}

	for count := 1; count <= 55; count++ {
		var total float64
		for _, tier := range tiers {
			result, err := registry.Resolve(tier.code)(ctx, strategyInput(tier.code, domain.TxTypeFundsTransfer, 500, count))
			if err != nil {
				t.Fatalf("count %d tier %s: %v", count, tier.code, err)
			}
			total += result.Amount
		}
		if total != expected(count) {
			t.Errorf("count %d: expected total %.2f across tiers, got %.2f", count, expected(count), total)
		}
	}
}

func TestTierBoundariesInclusive(t *testing.T) {
	registry := NewRegistry()
	ctx := context.Background()
	tier2 := registry.Resolve(domain.RuleCodeFundsTransferTier2)

	cases := []struct {
		count  int
		amount float64
	}{
		{10, 0},
		{11, 100},
		{30, 100},
		{31, 0},
	}
	for _, tc := range cases {
		result, _ := tier2(ctx, strategyInput(domain.RuleCodeFundsTransferTier2, domain.TxTypeFundsTransfer, 500, tc.count))
		if result.Amount != tc.amount {
			t.Errorf("count %d: expected %.2f, got %.2f", tc.count, tc.amount, result.Amount)
		}
	}
}

func TestMonthlyRetailMaintenanceOncePerMonth(t *testing.T) {
	registry := NewRegistry()
	s := registry.Resolve(domain.RuleCodeMonthlyRetailMaint)
	ctx := context.Background()

	first := strategyInput(domain.RuleCodeMonthlyRetailMaint, domain.TxTypeMonthlySavings, 0, 1)
	first.Tx.Amount = 1
	result, err := s(ctx, first)
	if err != nil {
		t.Fatalf("first charge failed: %v", err)
	}
	if result.Amount != 25 {
		t.Errorf("expected flat 25 on first occurrence, got %.2f", result.Amount)
	}

	second := strategyInput(domain.RuleCodeMonthlyRetailMaint, domain.TxTypeMonthlySavings, 1, 2)
	result, _ = s(ctx, second)
	if result.Amount != 0 {
		t.Errorf("expected 0 on second occurrence in month, got %.2f", result.Amount)
	}
}

func TestMonthlyMaintenanceSkipsCorporate(t *testing.T) {
	registry := NewRegistry()
	s := registry.Resolve(domain.RuleCodeMonthlyRetailMaint)

	in := strategyInput(domain.RuleCodeMonthlyRetailMaint, domain.TxTypeMonthlySavings, 1, 1)
	in.Customer.Type = domain.CustomerCorporate

	result, _ := s(context.Background(), in)
	if result.Amount != 0 {
		t.Errorf("expected 0 for corporate customer, got %.2f", result.Amount)
	}
}

func TestCorporateBiMonthlyAverageBalance(t *testing.T) {
	registry := NewRegistry()
	s := registry.Resolve(domain.RuleCodeCorporateBiMonthly)
	ctx := context.Background()

	in := strategyInput(domain.RuleCodeCorporateBiMonthly, domain.TxTypeCorporateBiMonthly, 1, 1)
	in.Customer.Type = domain.CustomerCorporate
	in.Balances = &fakeBalances{avg: 100000}

	result, err := s(ctx, in)
	if err != nil {
		t.Fatalf("computation failed: %v", err)
	}
	if Round2(result.Amount) != 5000.00 {
		t.Errorf("expected 5000.00 (5%% of 100000), got %.2f", result.Amount)
	}

	// Second occurrence inside the 60-day window is free.
	in.Count = 2
	result, _ = s(ctx, in)
	if result.Amount != 0 {
		t.Errorf("expected 0 on second occurrence in window, got %.2f", result.Amount)
	}
}

func TestCorporateBiMonthlyBalanceFailure(t *testing.T) {
	registry := NewRegistry()
	s := registry.Resolve(domain.RuleCodeCorporateBiMonthly)

	in := strategyInput(domain.RuleCodeCorporateBiMonthly, domain.TxTypeCorporateBiMonthly, 1, 1)
	in.Customer.Type = domain.CustomerCorporate
	in.Balances = &fakeBalances{err: fmt.Errorf("ledger unavailable")}

	_, err := s(context.Background(), in)
	if err == nil {
		t.Error("expected error when balance source fails")
	}
}

func TestFlatFees(t *testing.T) {
	registry := NewRegistry()
	ctx := context.Background()

	cases := []struct {
		code   string
		txType string
		fee    float64
	}{
		{domain.RuleCodeStatementPrint, domain.TxTypeStatementPrint, 50},
		{domain.RuleCodeDuplicateDebitCard, domain.TxTypeDuplicateDebitCard, 150},
		{domain.RuleCodeDuplicateCreditCard, domain.TxTypeDuplicateCreditCard, 450},
	}

	for _, tc := range cases {
		// Flat fees never tier: the count must not matter.
		for _, count := range []int{1, 2, 100} {
			result, err := registry.Resolve(tc.code)(ctx, strategyInput(tc.code, tc.txType, 10, count))
			if err != nil {
				t.Fatalf("%s: %v", tc.code, err)
			}
			if result.Amount != tc.fee {
				t.Errorf("%s count %d: expected %.2f, got %.2f", tc.code, count, tc.fee, result.Amount)
			}
		}
	}
}

func TestRound2HalfUp(t *testing.T) {
	cases := []struct {
		in, out float64
	}{
		{20.004, 20.00},
		{0.125, 0.13},
		{0.375, 0.38},
		{200.0, 200.0},
	}
	for _, tc := range cases {
		if got := Round2(tc.in); got != tc.out {
			t.Errorf("Round2(%v): expected %v, got %v", tc.in, tc.out, got)
		}
	}
}
