package aggregate

import (
	"strings"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func req(id, txType string) *domain.TransactionRequest {
	return &domain.TransactionRequest{
		ID:           id,
		CustomerCode: "C001",
		Type:         txType,
		Amount:       100,
		Currency:     "INR",
	}
}

func item(code string, amount float64) domain.ChargeDetail {
	return domain.ChargeDetail{RuleCode: code, ChargeAmount: amount, Currency: "INR"}
}

func TestBuildResultInvariants(t *testing.T) {
	items := []domain.ChargeDetail{
		item("statement-print", 50),
		item("duplicate-debit-card", 150),
	}
	res := BuildResult(req("tx-1", domain.TxTypeStatementPrint), items)

	if !res.Success {
		t.Error("expected success")
	}
	if res.TotalCharges != 200 {
		t.Errorf("expected total 200, got %.2f", res.TotalCharges)
	}
	if res.ApplicableRulesCount != len(res.LineItems) {
		t.Errorf("applicable count %d != line items %d", res.ApplicableRulesCount, len(res.LineItems))
	}

	var sum float64
	for _, li := range res.LineItems {
		sum += li.ChargeAmount
	}
	if res.TotalCharges != sum {
		t.Errorf("total %.2f != sum of line items %.2f", res.TotalCharges, sum)
	}
}

func TestSummaryFormat(t *testing.T) {
	items := []domain.ChargeDetail{
		item("statement-print", 50),
		item("duplicate-credit-card", 450),
	}
	res := BuildResult(req("tx-1", domain.TxTypeStatementPrint), items)

	if !strings.Contains(res.Summary, "Applied 2 rule(s)") {
		t.Errorf("unexpected summary: %s", res.Summary)
	}
	if !strings.Contains(res.Summary, "statement-print: 50.00 + duplicate-credit-card: 450.00") {
		t.Errorf("unexpected summary: %s", res.Summary)
	}
}

func TestSummaryWithNoCharges(t *testing.T) {
	res := BuildResult(req("tx-1", domain.TxTypeFundsTransfer), nil)

	if res.Summary != "No charge rules applicable." {
		t.Errorf("unexpected summary: %s", res.Summary)
	}
	if res.TotalCharges != 0 || res.ApplicableRulesCount != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
}

func TestFailedResultHasNoLineItems(t *testing.T) {
	res := FailedResult(req("tx-1", domain.TxTypeFundsTransfer), "amount must be positive")

	if res.Success {
		t.Error("expected failure")
	}
	if len(res.LineItems) != 0 || res.TotalCharges != 0 {
		t.Errorf("failed result must carry no charges, got %+v", res)
	}
	if !strings.Contains(res.Message, "amount must be positive") {
		t.Errorf("unexpected message: %s", res.Message)
	}
}

func TestBatchAggregation(t *testing.T) {
	agg := NewBatchAggregator(false)

	ok1 := BuildResult(req("tx-1", domain.TxTypeStatementPrint), []domain.ChargeDetail{item("statement-print", 50)})
	ok2 := BuildResult(req("tx-2", domain.TxTypeStatementPrint), []domain.ChargeDetail{item("statement-print", 50)})
	ok3 := BuildResult(req("tx-3", domain.TxTypeFundsTransfer), []domain.ChargeDetail{item("funds-transfer-tier-2", 100)})
	bad := FailedResult(req("tx-4", domain.TxTypeFundsTransfer), "unknown customer")

	for _, r := range []*domain.ChargeResult{ok1, ok2, ok3, bad} {
		if halt := agg.Add(r); halt {
			t.Fatal("should not halt without haltOnFailure")
		}
	}

	res := agg.Finish()
	if res.Processed != 4 || res.Succeeded != 3 || res.Failed != 1 {
		t.Errorf("unexpected counts: %+v", res)
	}
	if res.TotalCharges != 200 {
		t.Errorf("expected batch total 200, got %.2f", res.TotalCharges)
	}
	if res.CountsByType[domain.TxTypeStatementPrint] != 2 {
		t.Errorf("expected 2 statement prints, got %d", res.CountsByType[domain.TxTypeStatementPrint])
	}
	if res.CountsByType[domain.TxTypeFundsTransfer] != 2 {
		t.Errorf("expected 2 funds transfers, got %d", res.CountsByType[domain.TxTypeFundsTransfer])
	}
	if res.ChargesByRule["statement-print"] != 100 {
		t.Errorf("expected 100 summed for statement-print, got %.2f", res.ChargesByRule["statement-print"])
	}
	if res.Halted {
		t.Error("batch should not be marked halted")
	}
}

func TestBatchHaltsOnFirstFailure(t *testing.T) {
	agg := NewBatchAggregator(true)

	if halt := agg.Add(BuildResult(req("tx-1", domain.TxTypeStatementPrint), nil)); halt {
		t.Fatal("success must not halt")
	}
	if halt := agg.Add(FailedResult(req("tx-2", domain.TxTypeStatementPrint), "boom")); !halt {
		t.Fatal("expected halt on first failure")
	}

	res := agg.Finish()
	if !res.Halted {
		t.Error("expected halted flag")
	}
	if res.Processed != 2 {
		t.Errorf("expected 2 processed, got %d", res.Processed)
	}
}
