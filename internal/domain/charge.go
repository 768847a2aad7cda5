package domain

import (
	"time"
)

// ChargeDetail is one rule's computed charge against one transaction.
// Created once per matched rule with a non-zero charge; immutable.
type ChargeDetail struct {
	TransactionID string       `json:"transactionId"`
	RuleID        string       `json:"ruleId"`
	RuleCode      string       `json:"ruleCode"`
	RuleName      string       `json:"ruleName"`
	Category      RuleCategory `json:"category"`
	Activity      ActivityType `json:"activityType"`
	FeeType       FeeType      `json:"feeType"`

	// ChargeAmount is rounded to 2 decimals, half-up.
	ChargeAmount float64 `json:"chargeAmount"`
	Currency     string  `json:"currency"`

	// CalculationBasis is a human-readable narrative of how the
	// amount was derived.
	CalculationBasis string  `json:"calculationBasis"`
	AppliedRate      float64 `json:"appliedRate,omitempty"`
}

// ChargeResult is the transaction-level calculation outcome.
//
// Invariants: TotalCharges equals the sum of line item amounts, and
// ApplicableRulesCount equals len(LineItems).
type ChargeResult struct {
	TransactionID string `json:"transactionId"`
	CustomerCode  string `json:"customerCode"`
	Type          string `json:"type"`

	LineItems            []ChargeDetail `json:"lineItems"`
	TotalCharges         float64        `json:"totalCharges"`
	Currency             string         `json:"currency"`
	ApplicableRulesCount int            `json:"applicableRulesCount"`

	Success   bool      `json:"success"`
	Message   string    `json:"message,omitempty"`
	Summary   string    `json:"summary"`
	Timestamp time.Time `json:"timestamp"`
}

// BatchResult aggregates a bulk or test run.
type BatchResult struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`

	TotalCharges float64 `json:"totalCharges"`

	// CountsByType counts processed transactions per transaction type.
	CountsByType map[string]int `json:"countsByType"`

	// ChargesByRule sums charged amounts per rule code.
	ChargesByRule map[string]float64 `json:"chargesByRule"`

	Results []ChargeResult `json:"results"`

	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`

	// Halted is true when processing stopped on the first failure.
	Halted bool `json:"halted,omitempty"`
}
