package engine

import (
	"context"

	"github.com/felixkade/ledgersync/internal/llm"
	"github.com/felixkade/ledgersync/internal/model"
)

// Store is the slice of the persistence layer the engine depends on.
type Store interface {
	ListActiveRules(ctx context.Context, userID string) ([]model.CategorizationRule, error)
	ListCategories(ctx context.Context) ([]model.Category, error)
	ListUnclassifiedTransactions(ctx context.Context, connectionID int64) ([]model.BankTransaction, error)
	UpdateTransactionClassification(ctx context.Context, txn *model.BankTransaction) error
}

// Classifier produces an AI classification for transactions no rule matched.
type Classifier interface {
	Classify(ctx context.Context, txn *model.BankTransaction, categories []model.Category) (*llm.Result, error)
}
