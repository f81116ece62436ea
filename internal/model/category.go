package model

import "time"

// CategoryType indicates whether a category is for income or expense.
type CategoryType string

const (
	// CategoryTypeIncome represents categories for money coming in.
	CategoryTypeIncome CategoryType = "income"
	// CategoryTypeExpense represents categories for money going out.
	CategoryTypeExpense CategoryType = "expense"
)

// Category is a classification target with its tax treatment.
type Category struct {
	CreatedAt                time.Time
	Name                     string
	Type                     CategoryType
	TaxCode                  string
	ID                       int64
	DefaultDeductiblePercent int
	IsDefault                bool
	Active                   bool
}
