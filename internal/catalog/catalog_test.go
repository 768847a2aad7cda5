package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

type fakeStore struct {
	rules []*domain.ChargeRule
}

func (f *fakeStore) ListChargeRules(ctx context.Context, status domain.RuleStatus) ([]*domain.ChargeRule, error) {
	var out []*domain.ChargeRule
	for _, r := range f.rules {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out, nil
}

func rule(code string, category domain.RuleCategory, status domain.RuleStatus, from time.Time, to *time.Time) *domain.ChargeRule {
	return &domain.ChargeRule{
		ID:            "id-" + code,
		Code:          code,
		Category:      category,
		Status:        status,
		EffectiveFrom: from,
		EffectiveTo:   to,
	}
}

func TestReloadAndCategoryFilter(t *testing.T) {
	now := time.Now().UTC()
	past := now.AddDate(0, -1, 0)

	store := &fakeStore{rules: []*domain.ChargeRule{
		rule("retail-fee", domain.CategoryRetailBanking, domain.RuleActive, past, nil),
		rule("corp-fee", domain.CategoryCorpBanking, domain.RuleActive, past, nil),
		rule("everyone-fee", domain.CategoryAll, domain.RuleActive, past, nil),
		rule("draft-fee", domain.CategoryRetailBanking, domain.RuleDraft, past, nil),
	}}

	c := New(store, nil)
	if err := c.Reload(context.Background()); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	retail := c.ActiveRulesFor(domain.CategoryRetailBanking, now)
	if len(retail) != 2 {
		t.Fatalf("expected retail-fee + everyone-fee, got %d rules", len(retail))
	}
	for _, r := range retail {
		if r.Code == "corp-fee" || r.Code == "draft-fee" {
			t.Errorf("rule %s must not be served to retail", r.Code)
		}
	}

	corp := c.ActiveRulesFor(domain.CategoryCorpBanking, now)
	if len(corp) != 2 {
		t.Errorf("expected corp-fee + everyone-fee, got %d rules", len(corp))
	}
}

func TestEffectiveWindowFilter(t *testing.T) {
	now := time.Now().UTC()
	past := now.AddDate(0, -1, 0)
	future := now.AddDate(0, 1, 0)
	expired := now.Add(-time.Hour)

	store := &fakeStore{rules: []*domain.ChargeRule{
		rule("current", domain.CategoryAll, domain.RuleActive, past, &future),
		rule("not-yet", domain.CategoryAll, domain.RuleActive, future, nil),
		rule("expired", domain.CategoryAll, domain.RuleActive, past, &expired),
	}}

	c := New(store, nil)
	if err := c.Reload(context.Background()); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	active := c.ActiveRulesFor(domain.CategoryRetailBanking, now)
	if len(active) != 1 || active[0].Code != "current" {
		t.Errorf("expected only the in-window rule, got %+v", active)
	}
}

func TestApprovalVisibleAfterReload(t *testing.T) {
	now := time.Now().UTC()
	past := now.AddDate(0, -1, 0)
	pending := rule("pending-fee", domain.CategoryAll, domain.RuleDraft, past, nil)
	store := &fakeStore{rules: []*domain.ChargeRule{pending}}

	c := New(store, nil)
	c.Reload(context.Background())
	if c.RulesCount() != 0 {
		t.Fatalf("draft rule must not be in catalog, got %d", c.RulesCount())
	}

	// Approve and reload within the same process.
	pending.Status = domain.RuleActive
	c.Reload(context.Background())

	if _, ok := c.ByCode("pending-fee"); !ok {
		t.Error("approved rule must be visible after reload without restart")
	}
}
