package repository

// Schema definitions for Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    customer_code TEXT NOT NULL,
    customer_id TEXT NOT NULL,
    type TEXT NOT NULL,
    amount REAL NOT NULL,
    currency TEXT NOT NULL,
    channel TEXT,
    source_account TEXT,
    destination_account TEXT,
    timestamp TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL,
    metadata TEXT
);

CREATE INDEX IF NOT EXISTS idx_transactions_customer ON transactions(customer_id);
CREATE INDEX IF NOT EXISTS idx_transactions_counting ON transactions(customer_id, type, timestamp);
`

const schemaChargeDetails = `
CREATE TABLE IF NOT EXISTS charge_details (
    transaction_id TEXT NOT NULL,
    rule_id TEXT NOT NULL,
    rule_code TEXT NOT NULL,
    rule_name TEXT NOT NULL,
    category TEXT NOT NULL,
    activity_type TEXT,
    fee_type TEXT,
    charge_amount REAL NOT NULL,
    currency TEXT NOT NULL,
    calculation_basis TEXT,
    applied_rate REAL NOT NULL DEFAULT 0,
    PRIMARY KEY (transaction_id, rule_id)
);

CREATE INDEX IF NOT EXISTS idx_charge_details_tx ON charge_details(transaction_id);
CREATE INDEX IF NOT EXISTS idx_charge_details_rule ON charge_details(rule_code);
`

const schemaChargeRules = `
CREATE TABLE IF NOT EXISTS charge_rules (
    id TEXT PRIMARY KEY,
    code TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL,
    category TEXT NOT NULL,
    activity_type TEXT NOT NULL,
    conditions TEXT NOT NULL,
    fee_type TEXT NOT NULL,
    fee_value REAL NOT NULL DEFAULT 0,
    currency TEXT NOT NULL,
    min_amount REAL,
    max_amount REAL,
    threshold_count INTEGER NOT NULL DEFAULT 0,
    period_days INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL,
    effective_from TIMESTAMP NOT NULL,
    effective_to TIMESTAMP,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_charge_rules_status ON charge_rules(status);
CREATE INDEX IF NOT EXISTS idx_charge_rules_category ON charge_rules(category, status);
`

const schemaCustomers = `
CREATE TABLE IF NOT EXISTS customers (
    id TEXT PRIMARY KEY,
    code TEXT NOT NULL UNIQUE,
    name TEXT,
    type TEXT NOT NULL,
    status TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_customers_code ON customers(code);
`

const schemaBalanceSnapshots = `
CREATE TABLE IF NOT EXISTS balance_snapshots (
    customer_id TEXT NOT NULL,
    balance REAL NOT NULL,
    currency TEXT NOT NULL,
    as_of TIMESTAMP NOT NULL,
    PRIMARY KEY (customer_id, as_of)
);

CREATE INDEX IF NOT EXISTS idx_balance_snapshots_window ON balance_snapshots(customer_id, as_of);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaChargeDetails,
		schemaChargeRules,
		schemaCustomers,
		schemaBalanceSnapshots,
	}
}
