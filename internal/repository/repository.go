// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveTransaction stores a transaction together with its charge line
// items in a single database transaction.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tx *domain.Transaction, details []domain.ChargeDetail) error {
	if tx.ID == "" {
		return fmt.Errorf("%w: transaction id is required", domain.ErrValidation)
	}

	metadata, _ := json.Marshal(tx.Metadata)

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer dbTx.Rollback()

	txQuery := `
		INSERT INTO transactions (
			id, customer_code, customer_id, type, amount, currency,
			channel, source_account, destination_account,
			timestamp, created_at, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if _, err := dbTx.ExecContext(ctx, r.rebind(txQuery),
		tx.ID, tx.CustomerCode, tx.CustomerID, tx.Type,
		tx.Amount, tx.Currency,
		tx.Channel, tx.SourceAccount, tx.DestinationAccount,
		tx.Timestamp, tx.CreatedAt, string(metadata),
	); err != nil {
		return err
	}

	detailQuery := `
		INSERT INTO charge_details (
			transaction_id, rule_id, rule_code, rule_name, category,
			activity_type, fee_type, charge_amount, currency,
			calculation_basis, applied_rate
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	for _, d := range details {
		if _, err := dbTx.ExecContext(ctx, r.rebind(detailQuery),
			tx.ID, d.RuleID, d.RuleCode, d.RuleName, d.Category,
			d.Activity, d.FeeType, d.ChargeAmount, d.Currency,
			d.CalculationBasis, d.AppliedRate,
		); err != nil {
			return err
		}
	}

	return dbTx.Commit()
}

// GetTransaction retrieves a transaction by ID.
func (r *SQLRepository) GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error) {
	query := `
		SELECT id, customer_code, customer_id, type, amount, currency,
			   channel, source_account, destination_account,
			   timestamp, created_at, metadata
		FROM transactions
		WHERE id = ?
	`

	var tx domain.Transaction
	var channel, source, dest, metadata sql.NullString

	err := r.db.QueryRowContext(ctx, r.rebind(query), txID).Scan(
		&tx.ID, &tx.CustomerCode, &tx.CustomerID, &tx.Type,
		&tx.Amount, &tx.Currency,
		&channel, &source, &dest,
		&tx.Timestamp, &tx.CreatedAt, &metadata,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	tx.Channel = channel.String
	tx.SourceAccount = source.String
	tx.DestinationAccount = dest.String
	if metadata.String != "" {
		json.Unmarshal([]byte(metadata.String), &tx.Metadata)
	}

	return &tx, nil
}

// TransactionExists reports whether a transaction ID is already stored.
func (r *SQLRepository) TransactionExists(ctx context.Context, txID string) (bool, error) {
	query := `SELECT COUNT(1) FROM transactions WHERE id = ?`

	var count int
	if err := r.db.QueryRowContext(ctx, r.rebind(query), txID).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListChargeDetails retrieves the charge line items of a transaction.
func (r *SQLRepository) ListChargeDetails(ctx context.Context, txID string) ([]domain.ChargeDetail, error) {
	query := `
		SELECT transaction_id, rule_id, rule_code, rule_name, category,
			   activity_type, fee_type, charge_amount, currency,
			   calculation_basis, applied_rate
		FROM charge_details
		WHERE transaction_id = ?
		ORDER BY rule_code
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), txID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var details []domain.ChargeDetail
	for rows.Next() {
		var d domain.ChargeDetail
		var activity, feeType, basis sql.NullString

		if err := rows.Scan(
			&d.TransactionID, &d.RuleID, &d.RuleCode, &d.RuleName, &d.Category,
			&activity, &feeType, &d.ChargeAmount, &d.Currency,
			&basis, &d.AppliedRate,
		); err != nil {
			return nil, err
		}

		d.Activity = domain.ActivityType(activity.String)
		d.FeeType = domain.FeeType(feeType.String)
		d.CalculationBasis = basis.String
		details = append(details, d)
	}

	return details, rows.Err()
}

// CountTransactions counts stored transactions for a customer and type
// with timestamps in [from, to).
func (r *SQLRepository) CountTransactions(ctx context.Context, customerID, txType string, from, to time.Time) (int64, error) {
	query := `
		SELECT COUNT(1)
		FROM transactions
		WHERE customer_id = ? AND type = ? AND timestamp >= ? AND timestamp < ?
	`

	var count int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), customerID, txType, from, to).Scan(&count)
	return count, err
}

// SaveChargeRule inserts or updates a charge rule keyed by ID.
func (r *SQLRepository) SaveChargeRule(ctx context.Context, rule *domain.ChargeRule) error {
	if rule.ID == "" || rule.Code == "" {
		return fmt.Errorf("%w: rule id and code are required", domain.ErrValidation)
	}

	conditions, _ := json.Marshal(rule.Conditions)
	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	query := `
		INSERT INTO charge_rules (
			id, code, name, category, activity_type, conditions,
			fee_type, fee_value, currency, min_amount, max_amount,
			threshold_count, period_days, status,
			effective_from, effective_to, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			activity_type = excluded.activity_type,
			conditions = excluded.conditions,
			fee_type = excluded.fee_type,
			fee_value = excluded.fee_value,
			currency = excluded.currency,
			min_amount = excluded.min_amount,
			max_amount = excluded.max_amount,
			threshold_count = excluded.threshold_count,
			period_days = excluded.period_days,
			status = excluded.status,
			effective_from = excluded.effective_from,
			effective_to = excluded.effective_to,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Code, rule.Name, rule.Category, rule.Activity,
		string(conditions), rule.FeeType, rule.FeeValue, rule.Currency,
		nullFloat(rule.MinAmount), nullFloat(rule.MaxAmount),
		rule.ThresholdCount, rule.PeriodDays, rule.Status,
		rule.EffectiveFrom, nullTime(rule.EffectiveTo),
		rule.CreatedAt, rule.UpdatedAt,
	)
	return err
}

// GetChargeRule retrieves a charge rule by ID.
func (r *SQLRepository) GetChargeRule(ctx context.Context, ruleID string) (*domain.ChargeRule, error) {
	return r.getRule(ctx, `WHERE id = ?`, ruleID)
}

// GetChargeRuleByCode retrieves a charge rule by its code.
func (r *SQLRepository) GetChargeRuleByCode(ctx context.Context, code string) (*domain.ChargeRule, error) {
	return r.getRule(ctx, `WHERE code = ?`, code)
}

const ruleColumns = `
	SELECT id, code, name, category, activity_type, conditions,
		   fee_type, fee_value, currency, min_amount, max_amount,
		   threshold_count, period_days, status,
		   effective_from, effective_to, created_at, updated_at
	FROM charge_rules
`

func (r *SQLRepository) getRule(ctx context.Context, where string, arg any) (*domain.ChargeRule, error) {
	row := r.db.QueryRowContext(ctx, r.rebind(ruleColumns+where), arg)

	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rule, nil
}

// ListChargeRules retrieves all rules in the given lifecycle state.
func (r *SQLRepository) ListChargeRules(ctx context.Context, status domain.RuleStatus) ([]*domain.ChargeRule, error) {
	query := ruleColumns + `WHERE status = ? ORDER BY code`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.ChargeRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

// UpdateRuleStatus moves a rule to a new lifecycle state.
func (r *SQLRepository) UpdateRuleStatus(ctx context.Context, ruleID string, status domain.RuleStatus) error {
	query := `UPDATE charge_rules SET status = ?, updated_at = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), status, time.Now().UTC(), ruleID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrNotFound
	}

	return nil
}

// SaveCustomer inserts or updates a customer profile keyed by ID.
func (r *SQLRepository) SaveCustomer(ctx context.Context, customer *domain.Customer) error {
	if customer.ID == "" || customer.Code == "" {
		return fmt.Errorf("%w: customer id and code are required", domain.ErrValidation)
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO customers (id, code, name, type, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			status = excluded.status
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		customer.ID, customer.Code, customer.Name,
		customer.Type, customer.Status, customer.CreatedAt,
	)
	return err
}

// GetCustomerByCode retrieves a customer by their external code.
func (r *SQLRepository) GetCustomerByCode(ctx context.Context, code string) (*domain.Customer, error) {
	query := `
		SELECT id, code, name, type, status, created_at
		FROM customers
		WHERE code = ?
	`

	var c domain.Customer
	var name sql.NullString

	err := r.db.QueryRowContext(ctx, r.rebind(query), code).Scan(
		&c.ID, &c.Code, &name, &c.Type, &c.Status, &c.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	c.Name = name.String
	return &c, nil
}

// ListCustomers returns all customers ordered by code.
func (r *SQLRepository) ListCustomers(ctx context.Context) ([]*domain.Customer, error) {
	query := `
		SELECT id, code, name, type, status, created_at
		FROM customers
		ORDER BY code
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var customers []*domain.Customer
	for rows.Next() {
		var c domain.Customer
		var name sql.NullString
		if err := rows.Scan(&c.ID, &c.Code, &name, &c.Type, &c.Status, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Name = name.String
		customers = append(customers, &c)
	}
	return customers, rows.Err()
}

// SaveBalanceSnapshot records an end-of-day balance observation.
func (r *SQLRepository) SaveBalanceSnapshot(ctx context.Context, snap *domain.BalanceSnapshot) error {
	query := `
		INSERT INTO balance_snapshots (customer_id, balance, currency, as_of)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(customer_id, as_of) DO UPDATE SET
			balance = excluded.balance,
			currency = excluded.currency
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		snap.CustomerID, snap.Balance, snap.Currency, snap.AsOf,
	)
	return err
}

// AverageBalance averages the snapshots for a customer over [from, to).
// Returns ErrNotFound when no snapshots fall inside the window.
func (r *SQLRepository) AverageBalance(ctx context.Context, customerID string, from, to time.Time) (float64, error) {
	query := `
		SELECT AVG(balance), COUNT(1)
		FROM balance_snapshots
		WHERE customer_id = ? AND as_of >= ? AND as_of < ?
	`

	var avg sql.NullFloat64
	var count int64
	if err := r.db.QueryRowContext(ctx, r.rebind(query), customerID, from, to).Scan(&avg, &count); err != nil {
		return 0, err
	}
	if count == 0 || !avg.Valid {
		return 0, fmt.Errorf("%w: no balance snapshots for customer %s", domain.ErrNotFound, customerID)
	}
	return avg.Float64, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRule(s scanner) (*domain.ChargeRule, error) {
	var rule domain.ChargeRule
	var conditions string
	var minAmount, maxAmount sql.NullFloat64
	var effectiveTo sql.NullTime

	if err := s.Scan(
		&rule.ID, &rule.Code, &rule.Name, &rule.Category, &rule.Activity,
		&conditions, &rule.FeeType, &rule.FeeValue, &rule.Currency,
		&minAmount, &maxAmount,
		&rule.ThresholdCount, &rule.PeriodDays, &rule.Status,
		&rule.EffectiveFrom, &effectiveTo,
		&rule.CreatedAt, &rule.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if conditions != "" {
		json.Unmarshal([]byte(conditions), &rule.Conditions)
	}
	if minAmount.Valid {
		rule.MinAmount = &minAmount.Float64
	}
	if maxAmount.Valid {
		rule.MaxAmount = &maxAmount.Float64
	}
	if effectiveTo.Valid {
		t := effectiveTo.Time
		rule.EffectiveTo = &t
	}

	return &rule, nil
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
