// Package tax resolves the effective tax treatment of a classified
// transaction: the deductibility percentage and the jurisdictional box code.
package tax

import "github.com/felixkade/ledgersync/internal/model"

// Resolution is the effective tax treatment of one transaction.
type Resolution struct {
	TaxCode    string
	Percent    int
	Deductible bool
}

// Resolve returns the deductibility percentage and box code for a category,
// honoring an optional per-transaction override. Transaction-level overrides
// always win over category defaults. Income categories are never deductible;
// deductibility applies to expenses only.
func Resolve(category model.Category, override *int) Resolution {
	if category.Type == model.CategoryTypeIncome {
		return Resolution{TaxCode: category.TaxCode, Percent: 0, Deductible: false}
	}

	percent := category.DefaultDeductiblePercent
	if override != nil {
		percent = clamp(*override)
	}

	return Resolution{
		TaxCode:    category.TaxCode,
		Percent:    percent,
		Deductible: percent > 0,
	}
}

func clamp(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
