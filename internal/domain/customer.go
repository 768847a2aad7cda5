package domain

import "time"

// CustomerType segments customers for rule selection.
type CustomerType string

const (
	CustomerRetail    CustomerType = "RETAIL"
	CustomerCorporate CustomerType = "CORPORATE"
)

// Customer is a bank customer profile. Owned by customer management;
// the charge engine only reads it.
type Customer struct {
	ID        string       `json:"id"`
	Code      string       `json:"code"`
	Name      string       `json:"name,omitempty"`
	Type      CustomerType `json:"type"`
	Status    string       `json:"status"`
	CreatedAt time.Time    `json:"createdAt"`
}

// Customer status values.
const (
	CustomerStatusActive   = "ACTIVE"
	CustomerStatusInactive = "INACTIVE"
)

// RuleCategory returns the rule category applicable to the customer's
// segment. ALL-category rules apply on top of this.
func (c *Customer) RuleCategory() RuleCategory {
	if c.Type == CustomerCorporate {
		return CategoryCorpBanking
	}
	return CategoryRetailBanking
}
