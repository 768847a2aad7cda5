// Package catalog maintains the in-memory snapshot of charge rules
// eligible for matching.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// snapshotTTL bounds how long a pushed rule snapshot lives in the
// shared cache before sibling instances fall back to the database.
const snapshotTTL = 5 * time.Minute

// RuleStore is the slice of the repository the catalog reads from.
type RuleStore interface {
	ListChargeRules(ctx context.Context, status domain.RuleStatus) ([]*domain.ChargeRule, error)
}

// Catalog serves the ACTIVE rules for a customer category. The
// snapshot is rebuilt via Reload, so rule approvals become visible
// without a restart; reads never touch the database.
type Catalog struct {
	mu     sync.RWMutex
	store  RuleStore
	cache  domain.Cache
	rules  []*domain.ChargeRule
	byCode map[string]*domain.ChargeRule
}

// New creates an empty catalog. Call Reload to populate it.
// The cache is optional; when present, reloads push the snapshot for
// sibling instances.
func New(store RuleStore, cache domain.Cache) *Catalog {
	return &Catalog{
		store:  store,
		cache:  cache,
		byCode: make(map[string]*domain.ChargeRule),
	}
}

// Reload replaces the snapshot with the ACTIVE rules currently in the
// store.
func (c *Catalog) Reload(ctx context.Context) error {
	rules, err := c.store.ListChargeRules(ctx, domain.RuleActive)
	if err != nil {
		return fmt.Errorf("failed to list active rules: %w", err)
	}

	byCode := make(map[string]*domain.ChargeRule, len(rules))
	for _, rule := range rules {
		byCode[rule.Code] = rule
	}

	c.mu.Lock()
	c.rules = rules
	c.byCode = byCode
	c.mu.Unlock()

	c.pushSnapshot(ctx, rules)

	slog.Info("rule catalog reloaded", "rules_count", len(rules))
	return nil
}

// ActiveRulesFor returns the rules effective at the given instant for
// the category, plus all ALL-category rules. No side effects.
func (c *Catalog) ActiveRulesFor(category domain.RuleCategory, now time.Time) []*domain.ChargeRule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []*domain.ChargeRule
	for _, rule := range c.rules {
		if rule.IsEffective(now) && rule.AppliesTo(category) {
			out = append(out, rule)
		}
	}
	return out
}

// ByCode returns the snapshot rule with the given code.
func (c *Catalog) ByCode(code string) (*domain.ChargeRule, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rule, ok := c.byCode[code]
	return rule, ok
}

// RulesCount returns the snapshot size.
func (c *Catalog) RulesCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rules)
}

// pushSnapshot publishes the snapshot to the shared cache,
// best-effort.
func (c *Catalog) pushSnapshot(ctx context.Context, rules []*domain.ChargeRule) {
	if c.cache == nil {
		return
	}
	payload, err := json.Marshal(rules)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, domain.CacheKeyRuleSnapshot, payload, snapshotTTL); err != nil {
		slog.Warn("failed to push rule snapshot to cache", "error", err)
	}
}
