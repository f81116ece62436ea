// Package feedback records user corrections of suggested categories and
// promotes repeated corrections into categorization rules.
package feedback

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/felixkade/ledgersync/internal/model"
	"github.com/felixkade/ledgersync/internal/tax"
)

// DefaultPromotionThreshold is how many times the same correction must
// repeat before a rule is created from it.
const DefaultPromotionThreshold = 3

// promotedRulePriority places promoted rules after the seeded system rules
// so explicit curation keeps winning.
const promotedRulePriority = 100

// Store is the slice of the persistence layer the learner needs.
type Store interface {
	GetTransaction(ctx context.Context, id int64) (*model.BankTransaction, error)
	UpdateTransactionClassification(ctx context.Context, txn *model.BankTransaction) error
	GetCategory(ctx context.Context, id int64) (*model.Category, error)
	RecordFeedbackEvent(ctx context.Context, event *model.FeedbackEvent) error
	CountCorrections(ctx context.Context, userID, fingerprint string, finalCategoryID int64) (int, error)
	RuleExists(ctx context.Context, userID, pattern string, categoryID int64) (bool, error)
	CreateRule(ctx context.Context, rule *model.CategorizationRule) error
}

// Learner applies corrections and promotes the repeated ones.
type Learner struct {
	store     Store
	logger    *slog.Logger
	threshold int
}

// Outcome reports what one correction did.
type Outcome struct {
	PromotedRule *model.CategorizationRule
	Fingerprint  string
	Corrections  int
}

// NewLearner creates a feedback learner. A threshold below 1 falls back to
// the default.
func NewLearner(store Store, threshold int, logger *slog.Logger) *Learner {
	if threshold < 1 {
		threshold = DefaultPromotionThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Learner{store: store, threshold: threshold, logger: logger}
}

// RecordCorrection assigns the user's final category to a transaction,
// records the correction event, and promotes a contains rule once the same
// fingerprint has been corrected to the same category often enough.
// Promotion is idempotent: an existing rule for the pair is never
// duplicated. Promoted rules suggest, they do not auto-approve.
func (l *Learner) RecordCorrection(ctx context.Context, userID string, transactionID, finalCategoryID int64, deductibleOverride *int) (*Outcome, error) {
	txn, err := l.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	category, err := l.store.GetCategory(ctx, finalCategoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to load category %d: %w", finalCategoryID, err)
	}

	previousSuggestion := txn.SuggestedCategoryID

	txn.CategoryID = &finalCategoryID
	txn.SuggestedCategoryID = nil
	txn.Source = model.SourceUser
	txn.Confidence = 1.0
	txn.Reasoning = ""
	txn.Reviewed = true
	txn.NeedsReview = false
	txn.DeductiblePercentOverride = deductibleOverride

	resolution := tax.Resolve(*category, deductibleOverride)
	txn.TaxCode = resolution.TaxCode
	txn.TaxDeductible = resolution.Deductible

	if err := l.store.UpdateTransactionClassification(ctx, txn); err != nil {
		return nil, fmt.Errorf("failed to apply correction: %w", err)
	}

	fingerprint := txn.Fingerprint()
	event := &model.FeedbackEvent{
		ID:                  uuid.New().String(),
		UserID:              userID,
		TransactionID:       txn.ID,
		Fingerprint:         fingerprint,
		SuggestedCategoryID: previousSuggestion,
		FinalCategoryID:     finalCategoryID,
	}
	if err := l.store.RecordFeedbackEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to record feedback event: %w", err)
	}

	outcome := &Outcome{Fingerprint: fingerprint}
	outcome.Corrections, err = l.store.CountCorrections(ctx, userID, fingerprint, finalCategoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to count corrections: %w", err)
	}
	if outcome.Corrections < l.threshold {
		return outcome, nil
	}

	rule, err := l.promote(ctx, userID, fingerprint, finalCategoryID)
	if err != nil {
		return nil, err
	}
	outcome.PromotedRule = rule
	return outcome, nil
}

func (l *Learner) promote(ctx context.Context, userID, fingerprint string, categoryID int64) (*model.CategorizationRule, error) {
	exists, err := l.store.RuleExists(ctx, userID, fingerprint, categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to check for existing rule: %w", err)
	}
	if exists {
		return nil, nil
	}

	rule := &model.CategorizationRule{
		Pattern:    fingerprint,
		MatchType:  model.MatchContains,
		CategoryID: categoryID,
		Priority:   promotedRulePriority,
		Source:     model.RuleSourceUser,
		UserID:     &userID,
		Active:     true,
	}
	if err := l.store.CreateRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to promote rule: %w", err)
	}

	l.logger.Info("promoted correction to rule",
		"user_id", userID,
		"pattern", fingerprint,
		"category_id", categoryID)
	return rule, nil
}
