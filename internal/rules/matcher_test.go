package rules

import (
	"context"
	"testing"

	"github.com/felixkade/ledgersync/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_Match(t *testing.T) {
	ctx := context.Background()

	floatPtr := func(f float64) *float64 { return &f }
	dirPtr := func(d model.TransactionDirection) *model.TransactionDirection { return &d }

	tests := []struct {
		name       string
		wantRuleID *int64
		rules      []model.CategorizationRule
		txn        model.BankTransaction
	}{
		{
			name: "exact match is case insensitive",
			rules: []model.CategorizationRule{
				{ID: 1, Pattern: "netflix", MatchType: model.MatchExact, CategoryID: 10, Priority: 10, Active: true},
			},
			txn:        model.BankTransaction{Description: "NETFLIX", Direction: model.DirectionDebit, Amount: -9.99},
			wantRuleID: int64Ptr(1),
		},
		{
			name: "exact match requires full string",
			rules: []model.CategorizationRule{
				{ID: 1, Pattern: "netflix", MatchType: model.MatchExact, CategoryID: 10, Priority: 10, Active: true},
			},
			txn: model.BankTransaction{Description: "NETFLIX MONTHLY", Direction: model.DirectionDebit, Amount: -9.99},
		},
		{
			name: "contains match",
			rules: []model.CategorizationRule{
				{ID: 2, Pattern: "Uber", MatchType: model.MatchContains, CategoryID: 11, Priority: 10, Active: true},
			},
			txn:        model.BankTransaction{Description: "UBER TRIP HELP.UBER.COM", Direction: model.DirectionDebit, Amount: -12.50},
			wantRuleID: int64Ptr(2),
		},
		{
			name: "contains ignores trailing reference numbers",
			rules: []model.CategorizationRule{
				{ID: 2, Pattern: "uber 828384", MatchType: model.MatchContains, CategoryID: 11, Priority: 10, Active: true},
			},
			txn: model.BankTransaction{Description: "UBER 82838475521", Direction: model.DirectionDebit, Amount: -12.50},
		},
		{
			name: "regex match",
			rules: []model.CategorizationRule{
				{ID: 3, Pattern: `tfl.*travel`, MatchType: model.MatchRegex, CategoryID: 12, Priority: 10, Active: true},
			},
			txn:        model.BankTransaction{Description: "TFL London Travel Charge", Direction: model.DirectionDebit, Amount: -5.60},
			wantRuleID: int64Ptr(3),
		},
		{
			name: "invalid regex never matches",
			rules: []model.CategorizationRule{
				{ID: 3, Pattern: `tfl(`, MatchType: model.MatchRegex, CategoryID: 12, Priority: 10, Active: true},
			},
			txn: model.BankTransaction{Description: "TFL London", Direction: model.DirectionDebit, Amount: -5.60},
		},
		{
			name: "amount range uses absolute amount",
			rules: []model.CategorizationRule{
				{ID: 4, MatchType: model.MatchAmountRange, AmountMin: floatPtr(10), AmountMax: floatPtr(50), CategoryID: 13, Priority: 10, Active: true},
			},
			txn:        model.BankTransaction{Description: "CASH WITHDRAWAL", Direction: model.DirectionDebit, Amount: -25.00},
			wantRuleID: int64Ptr(4),
		},
		{
			name: "amount outside range",
			rules: []model.CategorizationRule{
				{ID: 4, MatchType: model.MatchAmountRange, AmountMin: floatPtr(10), AmountMax: floatPtr(50), CategoryID: 13, Priority: 10, Active: true},
			},
			txn: model.BankTransaction{Description: "CASH WITHDRAWAL", Direction: model.DirectionDebit, Amount: -75.00},
		},
		{
			name: "lowest priority wins when multiple rules match",
			rules: []model.CategorizationRule{
				{ID: 5, Pattern: "uber", MatchType: model.MatchContains, CategoryID: 20, Priority: 5, Active: true},
				{ID: 1, Pattern: "uber", MatchType: model.MatchContains, CategoryID: 21, Priority: 1, Active: true},
			},
			txn:        model.BankTransaction{Description: "Uber Trip", Direction: model.DirectionDebit, Amount: -12.50},
			wantRuleID: int64Ptr(1),
		},
		{
			name: "inactive rules are skipped",
			rules: []model.CategorizationRule{
				{ID: 1, Pattern: "uber", MatchType: model.MatchContains, CategoryID: 21, Priority: 1, Active: false},
				{ID: 2, Pattern: "uber", MatchType: model.MatchContains, CategoryID: 22, Priority: 2, Active: true},
			},
			txn:        model.BankTransaction{Description: "Uber Trip", Direction: model.DirectionDebit, Amount: -12.50},
			wantRuleID: int64Ptr(2),
		},
		{
			name: "direction constraint filters rule",
			rules: []model.CategorizationRule{
				{ID: 1, Pattern: "stripe", MatchType: model.MatchContains, CategoryID: 30, Priority: 1, Active: true, Direction: dirPtr(model.DirectionCredit)},
			},
			txn: model.BankTransaction{Description: "STRIPE FEE", Direction: model.DirectionDebit, Amount: -2.00},
		},
		{
			name: "direction constraint permits matching direction",
			rules: []model.CategorizationRule{
				{ID: 1, Pattern: "stripe", MatchType: model.MatchContains, CategoryID: 30, Priority: 1, Active: true, Direction: dirPtr(model.DirectionCredit)},
			},
			txn:        model.BankTransaction{Description: "STRIPE PAYOUT", Direction: model.DirectionCredit, Amount: 480.00},
			wantRuleID: int64Ptr(1),
		},
		{
			name:  "no rules no match",
			rules: nil,
			txn:   model.BankTransaction{Description: "ANYTHING", Direction: model.DirectionDebit, Amount: -1.00},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMatcher(tt.rules)
			got, err := m.Match(ctx, &tt.txn)
			require.NoError(t, err)

			if tt.wantRuleID == nil {
				assert.Nil(t, got)
				return
			}

			require.NotNil(t, got)
			assert.Equal(t, *tt.wantRuleID, got.Rule.ID)
			assert.Equal(t, got.Rule.CategoryID, got.CategoryID)
			assert.Equal(t, 1.0, got.Confidence)
			assert.Equal(t, model.SourceRule, got.Source)
		})
	}
}

func int64Ptr(i int64) *int64 { return &i }
