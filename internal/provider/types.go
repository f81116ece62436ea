package provider

import (
	"fmt"
	"time"

	"github.com/felixkade/ledgersync/internal/model"
)

// Account is one bank account as reported by the aggregator.
type Account struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
	IBAN     string `json:"iban,omitempty"`
}

// Balance is the current balance of an account.
type Balance struct {
	AccountID string  `json:"account_id"`
	Currency  string  `json:"currency"`
	Amount    float64 `json:"amount"`
	AsOf      string  `json:"as_of"`
}

// Transaction is the aggregator's wire representation of one transaction.
// It is validated at the boundary before entering the domain model.
type Transaction struct {
	ID          string   `json:"id"`
	Date        string   `json:"date"`
	Description string   `json:"description"`
	Merchant    string   `json:"merchant,omitempty"`
	Currency    string   `json:"currency"`
	Amount      float64  `json:"amount"`
	Balance     *float64 `json:"balance,omitempty"`
}

// Validate checks the fields required to ingest the transaction.
func (t *Transaction) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("transaction missing id")
	}
	if t.Description == "" {
		return fmt.Errorf("transaction %s missing description", t.ID)
	}
	if _, err := time.Parse("2006-01-02", t.Date); err != nil {
		return fmt.Errorf("transaction %s has invalid date %q: %w", t.ID, t.Date, err)
	}
	return nil
}

// ToModel converts the wire transaction into the domain model. Negative
// amounts are debits (money out), positive amounts are credits.
func (t *Transaction) ToModel(connectionID int64, accountID string) model.BankTransaction {
	date, _ := time.Parse("2006-01-02", t.Date)

	direction := model.DirectionCredit
	if t.Amount < 0 {
		direction = model.DirectionDebit
	}

	return model.BankTransaction{
		ConnectionID: connectionID,
		AccountID:    accountID,
		ExternalID:   t.ID,
		Date:         date,
		Description:  t.Description,
		MerchantName: t.Merchant,
		Amount:       t.Amount,
		Direction:    direction,
		Balance:      t.Balance,
	}
}

// accountsResponse wraps the aggregator's account list payload.
type accountsResponse struct {
	Accounts []Account `json:"accounts"`
}

// transactionsResponse wraps the aggregator's transaction list payload.
type transactionsResponse struct {
	Transactions []Transaction `json:"transactions"`
}
