package model

import (
	"strings"
	"time"
)

// TransactionDirection indicates whether money left or entered the account.
type TransactionDirection string

const (
	// DirectionDebit represents money leaving the account.
	DirectionDebit TransactionDirection = "debit"
	// DirectionCredit represents money entering the account.
	DirectionCredit TransactionDirection = "credit"
)

// ClassificationSource indicates which layer assigned a transaction's category.
type ClassificationSource string

// Classification source constants.
const (
	SourceRule ClassificationSource = "rule"
	SourceAI   ClassificationSource = "ai"
	SourceUser ClassificationSource = "user"
)

// BankTransaction represents a single transaction ingested from a bank
// account. Uniqueness on (AccountID, ExternalID) makes ingestion idempotent.
type BankTransaction struct {
	Date                      time.Time
	CreatedAt                 time.Time
	Balance                   *float64
	CategoryID                *int64
	SuggestedCategoryID       *int64
	DeductiblePercentOverride *int
	AccountID                 string
	ExternalID                string
	Description               string
	MerchantName              string
	Direction                 TransactionDirection
	TaxCode                   string
	Reasoning                 string
	Source                    ClassificationSource
	ID                        int64
	ConnectionID              int64
	Amount                    float64
	Confidence                float64
	TaxDeductible             bool
	NeedsReview               bool
	Reviewed                  bool
}

// NormalizedDescription returns the cleaned, lowercased description used for
// rule matching and feedback fingerprints. Trailing reference numbers are
// stripped so "UBER 828384755" and "UBER 991273318" normalize identically.
func (t *BankTransaction) NormalizedDescription() string {
	return NormalizeDescription(t.Description)
}

// Fingerprint returns the text used to detect repeated corrections: the
// merchant name when known, otherwise the normalized description.
func (t *BankTransaction) Fingerprint() string {
	if t.MerchantName != "" {
		return NormalizeDescription(t.MerchantName)
	}
	return t.NormalizedDescription()
}

// NormalizeDescription lowercases text, collapses whitespace, and drops
// trailing all-digit tokens longer than 5 characters (transaction references).
func NormalizeDescription(s string) string {
	parts := strings.Fields(strings.ToLower(s))
	for len(parts) > 1 {
		last := parts[len(parts)-1]
		if len(last) > 5 && isAllDigits(last) {
			parts = parts[:len(parts)-1]
			continue
		}
		break
	}
	return strings.Join(parts, " ")
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
