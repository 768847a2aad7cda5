// Package domain defines the core types and interfaces for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
type Repository interface {
	// Transaction operations. SaveTransaction persists the transaction
	// together with its charge line items in one transaction.
	SaveTransaction(ctx context.Context, tx *Transaction, details []ChargeDetail) error
	GetTransaction(ctx context.Context, txID string) (*Transaction, error)
	TransactionExists(ctx context.Context, txID string) (bool, error)
	ListChargeDetails(ctx context.Context, txID string) ([]ChargeDetail, error)

	// CountTransactions counts persisted transactions for a customer
	// and type within [from, to). Feeds the durable period count.
	CountTransactions(ctx context.Context, customerID, txType string, from, to time.Time) (int64, error)

	// Charge rule operations
	SaveChargeRule(ctx context.Context, rule *ChargeRule) error
	GetChargeRule(ctx context.Context, ruleID string) (*ChargeRule, error)
	GetChargeRuleByCode(ctx context.Context, code string) (*ChargeRule, error)
	ListChargeRules(ctx context.Context, status RuleStatus) ([]*ChargeRule, error)
	UpdateRuleStatus(ctx context.Context, ruleID string, status RuleStatus) error

	// Customer operations
	SaveCustomer(ctx context.Context, customer *Customer) error
	GetCustomerByCode(ctx context.Context, code string) (*Customer, error)
	ListCustomers(ctx context.Context) ([]*Customer, error)

	// Balance snapshots for average-balance rules
	SaveBalanceSnapshot(ctx context.Context, snap *BalanceSnapshot) error
	AverageBalance(ctx context.Context, customerID string, from, to time.Time) (float64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RuleSource supplies active rules to the matcher. Implemented by the
// catalog; read-only.
type RuleSource interface {
	ActiveRulesFor(category RuleCategory, now time.Time) []*ChargeRule
	ByCode(code string) (*ChargeRule, bool)
}

// CustomerDirectory resolves customer codes. Read-only; satisfied by
// the Repository.
type CustomerDirectory interface {
	GetCustomerByCode(ctx context.Context, code string) (*Customer, error)
}

// TransactionCounter queries already-persisted transaction counts.
// Satisfied by the Repository.
type TransactionCounter interface {
	CountTransactions(ctx context.Context, customerID, txType string, from, to time.Time) (int64, error)
}

// DuplicateGuard is the idempotency check run before evaluation.
type DuplicateGuard interface {
	TransactionExists(ctx context.Context, txID string) (bool, error)
}

// BalanceSource supplies average balances for balance-based rules.
// External collaborator; never derived from the transaction itself.
type BalanceSource interface {
	AverageBalance(ctx context.Context, customerID string, from, to time.Time) (float64, error)
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
