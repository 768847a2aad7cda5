package domain

import (
	"fmt"
	"time"
)

// RuleCategory selects which customer segment a rule applies to.
type RuleCategory string

const (
	CategoryRetailBanking RuleCategory = "RETAIL_BANKING"
	CategoryCorpBanking   RuleCategory = "CORP_BANKING"
	CategoryAll           RuleCategory = "ALL"
)

// ActivityType describes how a rule recurs. Descriptive only; fee
// computation dispatches on the rule code, not on this.
type ActivityType string

const (
	ActivityUnitWise   ActivityType = "UNIT_WISE"
	ActivityRangeBased ActivityType = "RANGE_BASED"
	ActivityMonthly    ActivityType = "MONTHLY"
	ActivitySpecial    ActivityType = "SPECIAL"
	ActivityAdhoc      ActivityType = "ADHOC"
)

// FeeType describes the shape of a rule's fee value.
type FeeType string

const (
	FeePercentage FeeType = "PERCENTAGE"
	FeeFlatAmount FeeType = "FLAT_AMOUNT"
	FeeTiered     FeeType = "TIERED"
)

// RuleStatus is a charge rule's lifecycle state.
type RuleStatus string

const (
	RuleDraft    RuleStatus = "DRAFT"
	RuleActive   RuleStatus = "ACTIVE"
	RuleInactive RuleStatus = "INACTIVE"
	RuleArchived RuleStatus = "ARCHIVED"
)

// RuleConditions are the structured match constraints of a rule.
// Empty conditions match every transaction in the rule's category.
type RuleConditions struct {
	// TransactionType, when set, must equal the transaction's type
	// exactly (case-sensitive).
	TransactionType string `json:"transactionType,omitempty"`

	// Expression is an optional CEL guard evaluated against the
	// transaction; it must return bool. A failing or broken guard
	// means the rule does not match.
	Expression string `json:"expression,omitempty"`
}

// ChargeRule is a configurable charge rule. The Code is the stable
// dispatch key for fee computation, distinct from the database ID.
type ChargeRule struct {
	ID       string       `json:"id"`
	Code     string       `json:"code"`
	Name     string       `json:"name"`
	Category RuleCategory `json:"category"`
	Activity ActivityType `json:"activityType"`

	Conditions RuleConditions `json:"conditions"`

	FeeType  FeeType `json:"feeType"`
	FeeValue float64 `json:"feeValue"` // percentage points or flat amount
	Currency string  `json:"currency"`

	// Inclusive amount matching window; nil means unbounded.
	MinAmount *float64 `json:"minAmount,omitempty"`
	MaxAmount *float64 `json:"maxAmount,omitempty"`

	// Threshold for count-based rules (free band size) and the
	// counting period in days (0 = calendar month).
	ThresholdCount int `json:"thresholdCount,omitempty"`
	PeriodDays     int `json:"periodDays,omitempty"`

	Status        RuleStatus `json:"status"`
	EffectiveFrom time.Time  `json:"effectiveFrom"`
	EffectiveTo   *time.Time `json:"effectiveTo,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsEffective reports whether the rule is ACTIVE and inside its
// effective date window at the given instant.
func (r *ChargeRule) IsEffective(now time.Time) bool {
	if r.Status != RuleActive {
		return false
	}
	if r.EffectiveFrom.After(now) {
		return false
	}
	if r.EffectiveTo != nil && !r.EffectiveTo.After(now) {
		return false
	}
	return true
}

// AppliesTo reports whether the rule's category covers the given one.
func (r *ChargeRule) AppliesTo(category RuleCategory) bool {
	return r.Category == CategoryAll || r.Category == category
}

// CanTransition validates a lifecycle move. Rules are created in
// DRAFT, become ACTIVE only via approval, may flip between ACTIVE and
// INACTIVE, and never leave ARCHIVED.
func (r *ChargeRule) CanTransition(to RuleStatus) error {
	allowed := map[RuleStatus][]RuleStatus{
		RuleDraft:    {RuleActive, RuleArchived},
		RuleActive:   {RuleInactive, RuleArchived},
		RuleInactive: {RuleActive, RuleArchived},
		RuleArchived: {},
	}
	for _, s := range allowed[r.Status] {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("%w: rule %s cannot move %s -> %s", ErrValidation, r.Code, r.Status, to)
}

// Built-in rule codes recognized by the charge strategy registry.
const (
	RuleCodeWithdrawalParentBank = "withdrawal-parent-bank"
	RuleCodeWithdrawalOtherBank  = "withdrawal-other-bank"
	RuleCodeMonthlyRetailMaint   = "monthly-retail-maintenance"
	RuleCodeCorporateBiMonthly   = "corporate-bi-monthly"
	RuleCodeFundsTransferTier1   = "funds-transfer-tier-1"
	RuleCodeFundsTransferTier2   = "funds-transfer-tier-2"
	RuleCodeFundsTransferTier3   = "funds-transfer-tier-3"
	RuleCodeFundsTransferTier4   = "funds-transfer-tier-4"
	RuleCodeStatementPrint       = "statement-print"
	RuleCodeDuplicateDebitCard   = "duplicate-debit-card"
	RuleCodeDuplicateCreditCard  = "duplicate-credit-card"
)
