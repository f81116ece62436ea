// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/felixkade/ledgersync/internal/model"
)

// Storage defines the contract for our persistence layer.
type Storage interface {
	// Connection operations
	CreateConnection(ctx context.Context, conn *model.BankConnection) error
	GetConnection(ctx context.Context, id int64) (*model.BankConnection, error)
	GetConnectionByState(ctx context.Context, state string) (*model.BankConnection, error)
	GetOpenConnection(ctx context.Context, userID, externalAccountID string) (*model.BankConnection, error)
	ListConnectionsByStatus(ctx context.Context, status model.ConnectionStatus) ([]model.BankConnection, error)
	UpdateConnection(ctx context.Context, conn *model.BankConnection) error
	UpdateConnectionTokens(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt time.Time) error
	SetConnectionStatus(ctx context.Context, id int64, status model.ConnectionStatus, lastError string) error
	RecordSyncOutcome(ctx context.Context, id int64, syncedAt time.Time, lastError string) error
	DeleteConnection(ctx context.Context, id int64) error

	// Transaction operations. InsertTransaction returns false when the
	// (account, external id) pair already exists; that is the sole dedup
	// mechanism and not an error.
	InsertTransaction(ctx context.Context, txn *model.BankTransaction) (bool, error)
	GetTransaction(ctx context.Context, id int64) (*model.BankTransaction, error)
	ListUnclassifiedTransactions(ctx context.Context, connectionID int64) ([]model.BankTransaction, error)
	ListTransactionsByAccount(ctx context.Context, accountID string) ([]model.BankTransaction, error)
	UpdateTransactionClassification(ctx context.Context, txn *model.BankTransaction) error

	// Rule operations
	CreateRule(ctx context.Context, rule *model.CategorizationRule) error
	ListActiveRules(ctx context.Context, userID string) ([]model.CategorizationRule, error)
	GetRule(ctx context.Context, id int64) (*model.CategorizationRule, error)
	RuleExists(ctx context.Context, userID string, pattern string, categoryID int64) (bool, error)
	DeactivateRule(ctx context.Context, id int64) error

	// Category operations
	ListCategories(ctx context.Context) ([]model.Category, error)
	GetCategory(ctx context.Context, id int64) (*model.Category, error)
	GetCategoryByName(ctx context.Context, name string) (*model.Category, error)
	CreateCategory(ctx context.Context, category *model.Category) error

	// Feedback operations
	RecordFeedbackEvent(ctx context.Context, event *model.FeedbackEvent) error
	CountCorrections(ctx context.Context, userID, fingerprint string, finalCategoryID int64) (int, error)

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts int
	Delay       time.Duration
}
