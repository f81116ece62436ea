package sync

import (
	"context"
	"time"

	"github.com/felixkade/ledgersync/internal/engine"
	"github.com/felixkade/ledgersync/internal/model"
	"github.com/felixkade/ledgersync/internal/provider"
)

// Store is the slice of the persistence layer the orchestrator needs.
type Store interface {
	GetConnection(ctx context.Context, id int64) (*model.BankConnection, error)
	ListConnectionsByStatus(ctx context.Context, status model.ConnectionStatus) ([]model.BankConnection, error)
	SetConnectionStatus(ctx context.Context, id int64, status model.ConnectionStatus, lastError string) error
	RecordSyncOutcome(ctx context.Context, id int64, syncedAt time.Time, lastError string) error
	InsertTransaction(ctx context.Context, txn *model.BankTransaction) (bool, error)
}

// Source fetches transactions from the bank provider. Satisfied by
// provider.Client.
type Source interface {
	ListTransactions(ctx context.Context, accessToken, accountID string, from, to time.Time) ([]provider.Transaction, error)
}

// TokenSource yields a valid access token for a connection, refreshing if
// needed. Satisfied by token.Manager.
type TokenSource interface {
	EnsureValidToken(ctx context.Context, conn *model.BankConnection) (string, error)
}

// Categorizer runs the classification pipeline over a connection's
// unclassified transactions. Satisfied by engine.Engine.
type Categorizer interface {
	ClassifyConnection(ctx context.Context, connectionID int64, userID string) (*engine.Stats, error)
}
