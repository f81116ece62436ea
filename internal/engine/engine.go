// Package engine implements the categorization pipeline: rule matching
// first, AI classification for whatever the rules leave behind, tax
// resolution for everything that ends up with a category.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/felixkade/ledgersync/internal/model"
	"github.com/felixkade/ledgersync/internal/rules"
	"github.com/felixkade/ledgersync/internal/tax"
)

// Engine categorizes ingested transactions for one user at a time.
type Engine struct {
	store      Store
	classifier Classifier
	logger     *slog.Logger
}

// Stats summarizes one classification pass.
type Stats struct {
	Total        int
	RuleMatched  int
	AIClassified int
	AutoApproved int
	NeedsReview  int
	Failed       int
}

// New creates a classification engine. The classifier may be nil, in which
// case transactions without a rule match are flagged for review instead of
// sent to the AI.
func New(store Store, classifier Classifier, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:      store,
		classifier: classifier,
		logger:     logger,
	}
}

// ClassifyConnection categorizes every unclassified transaction on a
// connection. Rules are evaluated first in priority order; the AI only sees
// transactions no rule matched. Classification failures are not fatal: the
// transaction is flagged for review and the pass continues.
func (e *Engine) ClassifyConnection(ctx context.Context, connectionID int64, userID string) (*Stats, error) {
	categories, err := e.store.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}
	if len(categories) == 0 {
		return nil, fmt.Errorf("no categories found; run migrations first")
	}

	activeRules, err := e.store.ListActiveRules(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	matcher := rules.NewMatcher(activeRules)

	transactions, err := e.store.ListUnclassifiedTransactions(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load unclassified transactions: %w", err)
	}

	stats := &Stats{Total: len(transactions)}
	if len(transactions) == 0 {
		return stats, nil
	}

	e.logger.Info("starting classification pass",
		"connection_id", connectionID,
		"transactions", len(transactions),
		"rules", len(activeRules))

	byID := make(map[int64]model.Category, len(categories))
	for _, cat := range categories {
		byID[cat.ID] = cat
	}

	for i := range transactions {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		txn := &transactions[i]
		if err := e.classifyOne(ctx, matcher, byID, categories, txn, stats); err != nil {
			return stats, err
		}
	}

	e.logger.Info("classification pass complete",
		"connection_id", connectionID,
		"rule_matched", stats.RuleMatched,
		"ai_classified", stats.AIClassified,
		"auto_approved", stats.AutoApproved,
		"needs_review", stats.NeedsReview,
		"failed", stats.Failed)

	return stats, nil
}

func (e *Engine) classifyOne(ctx context.Context, matcher *rules.Matcher, byID map[int64]model.Category, categories []model.Category, txn *model.BankTransaction, stats *Stats) error {
	match, err := matcher.Match(ctx, txn)
	if err != nil {
		return fmt.Errorf("rule matching failed for transaction %d: %w", txn.ID, err)
	}

	switch {
	case match != nil:
		e.applyRuleMatch(txn, match, byID, stats)
	case e.classifier != nil:
		e.applyAIClassification(ctx, txn, categories, byID, stats)
	default:
		txn.NeedsReview = true
		stats.NeedsReview++
	}

	if err := e.store.UpdateTransactionClassification(ctx, txn); err != nil {
		return fmt.Errorf("failed to persist classification for transaction %d: %w", txn.ID, err)
	}
	return nil
}

func (e *Engine) applyRuleMatch(txn *model.BankTransaction, match *rules.Match, byID map[int64]model.Category, stats *Stats) {
	stats.RuleMatched++

	categoryID := match.CategoryID
	txn.Source = match.Source
	txn.Confidence = match.Confidence
	txn.Reasoning = fmt.Sprintf("matched %s rule %q", match.Rule.Source, match.Rule.Pattern)

	if match.Rule.AutoApprove {
		txn.CategoryID = &categoryID
		txn.SuggestedCategoryID = nil
		txn.Reviewed = true
		txn.NeedsReview = false
		stats.AutoApproved++
	} else {
		txn.SuggestedCategoryID = &categoryID
		txn.NeedsReview = true
		stats.NeedsReview++
	}

	if cat, ok := byID[categoryID]; ok {
		resolution := tax.Resolve(cat, txn.DeductiblePercentOverride)
		txn.TaxCode = resolution.TaxCode
		txn.TaxDeductible = resolution.Deductible
	}
}

func (e *Engine) applyAIClassification(ctx context.Context, txn *model.BankTransaction, categories []model.Category, byID map[int64]model.Category, stats *Stats) {
	result, err := e.classifier.Classify(ctx, txn, categories)
	if err != nil {
		// A failed classification never fails the pass. The transaction is
		// flagged for manual review and keeps no category.
		e.logger.Warn("classification failed, flagging for review",
			"transaction_id", txn.ID,
			"description", txn.Description,
			"error", err)
		txn.NeedsReview = true
		stats.Failed++
		stats.NeedsReview++
		return
	}

	stats.AIClassified++

	categoryID := result.CategoryID
	txn.SuggestedCategoryID = &categoryID
	txn.Source = model.SourceAI
	txn.Confidence = result.Confidence
	txn.Reasoning = result.Reasoning
	txn.NeedsReview = result.NeedsReview
	if result.NeedsReview {
		stats.NeedsReview++
	}

	if cat, ok := byID[categoryID]; ok {
		resolution := tax.Resolve(cat, txn.DeductiblePercentOverride)
		txn.TaxCode = resolution.TaxCode
		txn.TaxDeductible = resolution.Deductible
	}
}
