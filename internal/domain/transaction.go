package domain

import (
	"time"
)

// Transaction is a charged banking transaction as stored for audit
// and period counting.
type Transaction struct {
	ID           string `json:"id"`
	CustomerCode string `json:"customerCode"`
	CustomerID   string `json:"customerId"`

	// Transaction type key (e.g. "ATM_WITHDRAWAL_PARENT")
	Type string `json:"type"`

	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	Channel  string  `json:"channel,omitempty"`

	SourceAccount      string `json:"sourceAccount,omitempty"`
	DestinationAccount string `json:"destinationAccount,omitempty"`

	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"createdAt"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// TransactionRequest is an incoming transaction descriptor. The ID is
// caller-supplied and must be globally unique; one request produces
// exactly one calculation attempt.
type TransactionRequest struct {
	ID                 string                 `json:"id"`
	CustomerCode       string                 `json:"customerCode"`
	Type               string                 `json:"type"`
	Amount             float64                `json:"amount"`
	Currency           string                 `json:"currency"`
	Channel            string                 `json:"channel,omitempty"`
	SourceAccount      string                 `json:"sourceAccount,omitempty"`
	DestinationAccount string                 `json:"destinationAccount,omitempty"`
	Timestamp          time.Time              `json:"timestamp,omitempty"`
	Metadata           map[string]interface{} `json:"metadata,omitempty"`
}

// ToTransaction converts a request to a Transaction for persistence.
// A zero timestamp defaults to now.
func (r *TransactionRequest) ToTransaction(customer *Customer) *Transaction {
	now := time.Now().UTC()
	ts := r.Timestamp
	if ts.IsZero() {
		ts = now
	}
	return &Transaction{
		ID:                 r.ID,
		CustomerCode:       r.CustomerCode,
		CustomerID:         customer.ID,
		Type:               r.Type,
		Amount:             r.Amount,
		Currency:           r.Currency,
		Channel:            r.Channel,
		SourceAccount:      r.SourceAccount,
		DestinationAccount: r.DestinationAccount,
		Timestamp:          ts,
		CreatedAt:          now,
		Metadata:           r.Metadata,
	}
}

// Well-known transaction type keys. Types are free-text category keys;
// these are the ones the built-in charge strategies react to.
const (
	TxTypeATMWithdrawalParent = "ATM_WITHDRAWAL_PARENT"
	TxTypeATMWithdrawalOther  = "ATM_WITHDRAWAL_OTHER"
	TxTypeMonthlySavings      = "MONTHLY_SAVINGS_CHARGE"
	TxTypeCorporateBiMonthly  = "CORPORATE_BI_MONTHLY_CHARGE"
	TxTypeFundsTransfer       = "FUNDS_TRANSFER"
	TxTypeStatementPrint      = "STATEMENT_PRINT"
	TxTypeDuplicateDebitCard  = "DUPLICATE_DEBIT_CARD"
	TxTypeDuplicateCreditCard = "DUPLICATE_CREDIT_CARD"
)

// BalanceSnapshot is one end-of-day balance observation for a customer.
// The corporate bi-monthly rule averages these over a trailing window.
type BalanceSnapshot struct {
	CustomerID string    `json:"customerId"`
	Balance    float64   `json:"balance"`
	Currency   string    `json:"currency"`
	AsOf       time.Time `json:"asOf"`
}
