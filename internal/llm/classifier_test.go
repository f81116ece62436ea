package llm

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/felixkade/ledgersync/internal/common"
	"github.com/felixkade/ledgersync/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedClient returns canned responses in order.
type scriptedClient struct {
	responses []CompletionResponse
	errs      []error
	calls     int
	gotPrompt string
}

func (s *scriptedClient) Complete(_ context.Context, req CompletionRequest) (CompletionResponse, error) {
	s.gotPrompt = req.Messages[0].Content
	idx := s.calls
	s.calls++
	if idx < len(s.errs) && s.errs[idx] != nil {
		return CompletionResponse{}, s.errs[idx]
	}
	if idx >= len(s.responses) {
		return CompletionResponse{}, fmt.Errorf("unexpected call %d", idx)
	}
	return s.responses[idx], nil
}

func testCategories() []model.Category {
	return []model.Category{
		{ID: 1, Name: "Travel", Type: model.CategoryTypeExpense, TaxCode: "SA103F_BOX20", DefaultDeductiblePercent: 100},
		{ID: 2, Name: "Office Costs", Type: model.CategoryTypeExpense, TaxCode: "SA103F_BOX23", DefaultDeductiblePercent: 100},
		{ID: 3, Name: "Sales Income", Type: model.CategoryTypeIncome, TaxCode: "SA103F_BOX15", DefaultDeductiblePercent: 0},
	}
}

func testTxn() *model.BankTransaction {
	return &model.BankTransaction{
		ExternalID:  "ext-1",
		Description: "UBER TRIP",
		Amount:      -12.50,
		Direction:   model.DirectionDebit,
		Date:        time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
	}
}

func TestClassifier_Classify(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path resolves category and tax fields", func(t *testing.T) {
		client := &scriptedClient{responses: []CompletionResponse{{
			Content:  `{"category": "Travel", "taxCode": "SA103F_BOX20", "isTaxDeductible": true, "confidence": 0.91, "reasoning": "Ride hailing is travel"}`,
			Provider: "anthropic",
		}}}
		c := NewClassifierWithClient(client, 0.7, nil)

		got, err := c.Classify(ctx, testTxn(), testCategories())
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.CategoryID)
		assert.Equal(t, "Travel", got.CategoryName)
		assert.Equal(t, "SA103F_BOX20", got.TaxCode)
		assert.True(t, got.TaxDeductible)
		assert.InDelta(t, 0.91, got.Confidence, 0.001)
		assert.False(t, got.NeedsReview)
	})

	t.Run("low confidence forces needs review", func(t *testing.T) {
		client := &scriptedClient{responses: []CompletionResponse{{
			Content: `{"category": "Travel", "confidence": 0.45, "isTaxDeductible": true}`,
		}}}
		c := NewClassifierWithClient(client, 0.7, nil)

		got, err := c.Classify(ctx, testTxn(), testCategories())
		require.NoError(t, err)
		assert.True(t, got.NeedsReview)
	})

	t.Run("category name matched case-insensitively", func(t *testing.T) {
		client := &scriptedClient{responses: []CompletionResponse{{
			Content: `{"category": "office costs", "confidence": 0.8}`,
		}}}
		c := NewClassifierWithClient(client, 0.7, nil)

		got, err := c.Classify(ctx, testTxn(), testCategories())
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.CategoryID)
	})

	t.Run("unknown category is a classification failure", func(t *testing.T) {
		client := &scriptedClient{responses: []CompletionResponse{{
			Content: `{"category": "Cryptocurrency", "confidence": 0.9}`,
		}}}
		c := NewClassifierWithClient(client, 0.7, nil)

		_, err := c.Classify(ctx, testTxn(), testCategories())
		assert.ErrorIs(t, err, common.ErrClassificationFailed)
	})

	t.Run("unparseable response retried then surfaced as failure", func(t *testing.T) {
		client := &scriptedClient{responses: []CompletionResponse{
			{Content: "not json"},
			{Content: "still not json"},
		}}
		c := NewClassifierWithClient(client, 0.7, nil)
		c.retryOpts.Delay = time.Millisecond

		_, err := c.Classify(ctx, testTxn(), testCategories())
		assert.ErrorIs(t, err, common.ErrClassificationFailed)
		assert.Equal(t, 2, client.calls)
	})

	t.Run("transient provider error recovers on retry", func(t *testing.T) {
		client := &scriptedClient{
			errs: []error{fmt.Errorf("temporary outage"), nil},
			responses: []CompletionResponse{
				{},
				{Content: `{"category": "Travel", "confidence": 0.9}`},
			},
		}
		c := NewClassifierWithClient(client, 0.7, nil)
		c.retryOpts.Delay = time.Millisecond

		got, err := c.Classify(ctx, testTxn(), testCategories())
		require.NoError(t, err)
		assert.Equal(t, "Travel", got.CategoryName)
	})

	t.Run("prompt enumerates categories with tax mappings", func(t *testing.T) {
		client := &scriptedClient{responses: []CompletionResponse{{
			Content: `{"category": "Travel", "confidence": 0.9}`,
		}}}
		c := NewClassifierWithClient(client, 0.7, nil)

		_, err := c.Classify(ctx, testTxn(), testCategories())
		require.NoError(t, err)
		assert.Contains(t, client.gotPrompt, "UBER TRIP")
		assert.Contains(t, client.gotPrompt, "Direction: debit")
		assert.Contains(t, client.gotPrompt, "Travel (expense, tax code SA103F_BOX20, default deductible 100%)")
		assert.Contains(t, client.gotPrompt, "Sales Income (income, tax code SA103F_BOX15, default deductible 0%)")
	})

	t.Run("no categories fails fast", func(t *testing.T) {
		c := NewClassifierWithClient(&scriptedClient{}, 0.7, nil)
		_, err := c.Classify(ctx, testTxn(), nil)
		assert.ErrorIs(t, err, common.ErrClassificationFailed)
	})
}
