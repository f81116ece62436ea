// Package sync orchestrates a full sync pass over bank connections: token
// acquisition, windowed fetch, idempotent ingestion, and categorization.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	stdsync "sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/felixkade/ledgersync/internal/common"
	"github.com/felixkade/ledgersync/internal/model"
)

const (
	// windowOverlap is re-fetched before the last checkpoint so late-posting
	// transactions are not missed. Dedup makes the overlap harmless.
	windowOverlap = 24 * time.Hour
	// initialWindow is the fetch range for a connection that has never
	// synced.
	initialWindow = 30 * 24 * time.Hour

	defaultConcurrency = 4
)

// Orchestrator coordinates sync passes. Concurrent syncs of the same
// connection are serialized; the uniqueness constraint on
// (account, external id) is the backstop if two processes race anyway.
type Orchestrator struct {
	store       Store
	source      Source
	tokens      TokenSource
	categorizer Categorizer
	logger      *slog.Logger
	now         func() time.Time

	mu    stdsync.Mutex
	locks map[int64]*stdsync.Mutex

	concurrency int
}

// ConnectionResult pairs a connection with its sync outcome for batch runs.
type ConnectionResult struct {
	Err        error
	Result     *model.SyncResult
	Connection model.BankConnection
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCategorizer attaches a classification pipeline to run after ingestion.
func WithCategorizer(c Categorizer) Option {
	return func(o *Orchestrator) { o.categorizer = c }
}

// WithConcurrency caps the number of connections synced in parallel.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates a sync orchestrator.
func NewOrchestrator(store Store, source Source, tokens TokenSource, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		store:       store,
		source:      source,
		tokens:      tokens,
		logger:      logger,
		now:         time.Now,
		locks:       make(map[int64]*stdsync.Mutex),
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SyncConnection runs one sync pass over a single connection. Expired
// tokens and exhausted SCA consent are reported as result codes with a nil
// error; only infrastructure failures are errors. The checkpoint advances
// only after the entire pass succeeds.
func (o *Orchestrator) SyncConnection(ctx context.Context, connectionID int64) (*model.SyncResult, error) {
	lock := o.connectionLock(connectionID)
	lock.Lock()
	defer lock.Unlock()

	conn, err := o.store.GetConnection(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if !conn.CanSync() {
		if conn.Status.IsTerminal() {
			return nil, fmt.Errorf("%w: connection %d is %s", common.ErrConnectionTerminal, conn.ID, conn.Status)
		}
		return nil, fmt.Errorf("connection %d is %s and cannot be synced", conn.ID, conn.Status)
	}

	accessToken, err := o.tokens.EnsureValidToken(ctx, conn)
	if err != nil {
		if errors.Is(err, common.ErrTokenExpired) {
			o.logger.Warn("token refresh failed permanently, reconnect required",
				"connection_id", conn.ID)
			return &model.SyncResult{Code: model.SyncCodeTokenExpired}, nil
		}
		if recordErr := o.store.RecordSyncOutcome(ctx, conn.ID, time.Time{}, err.Error()); recordErr != nil {
			o.logger.Error("failed to record sync error", "connection_id", conn.ID, "error", recordErr)
		}
		return nil, fmt.Errorf("failed to acquire token for connection %d: %w", conn.ID, err)
	}

	from, to := o.syncWindow(conn)
	o.logger.Info("fetching transactions",
		"connection_id", conn.ID,
		"account_id", conn.ExternalAccountID,
		"from", from.Format(time.RFC3339),
		"to", to.Format(time.RFC3339))

	fetched, err := o.source.ListTransactions(ctx, accessToken, conn.ExternalAccountID, from, to)
	if err != nil {
		if errors.Is(err, common.ErrSCAExceeded) {
			// The connection stays active: the tokens are fine, the user
			// just has to re-authenticate with the bank.
			if recordErr := o.store.RecordSyncOutcome(ctx, conn.ID, time.Time{}, err.Error()); recordErr != nil {
				o.logger.Error("failed to record sync error", "connection_id", conn.ID, "error", recordErr)
			}
			return &model.SyncResult{Code: model.SyncCodeSCAExceeded}, nil
		}
		if statusErr := o.store.SetConnectionStatus(ctx, conn.ID, model.ConnectionError, err.Error()); statusErr != nil {
			o.logger.Error("failed to set connection status", "connection_id", conn.ID, "error", statusErr)
		}
		return nil, fmt.Errorf("failed to fetch transactions for connection %d: %w", conn.ID, err)
	}

	result := &model.SyncResult{}
	for i := range fetched {
		txn := fetched[i].ToModel(conn.ID, conn.ExternalAccountID)
		inserted, err := o.store.InsertTransaction(ctx, &txn)
		if err != nil {
			return nil, fmt.Errorf("failed to store transaction %s: %w", txn.ExternalID, err)
		}
		if inserted {
			result.Synced++
		} else {
			result.Skipped++
		}
	}

	if o.categorizer != nil {
		stats, err := o.categorizer.ClassifyConnection(ctx, conn.ID, conn.UserID)
		if err != nil {
			return nil, fmt.Errorf("categorization failed for connection %d: %w", conn.ID, err)
		}
		result.Categorized = stats.RuleMatched + stats.AIClassified
	}

	if conn.Status == model.ConnectionError {
		if err := o.store.SetConnectionStatus(ctx, conn.ID, model.ConnectionActive, ""); err != nil {
			return nil, fmt.Errorf("failed to reactivate connection %d: %w", conn.ID, err)
		}
	}
	if err := o.store.RecordSyncOutcome(ctx, conn.ID, to, ""); err != nil {
		return nil, fmt.Errorf("failed to record sync outcome for connection %d: %w", conn.ID, err)
	}

	if len(fetched) > 0 && result.Synced == 0 {
		result.Code = model.SyncCodeAlreadySynced
	}

	o.logger.Info("sync pass complete",
		"connection_id", conn.ID,
		"fetched", len(fetched),
		"synced", result.Synced,
		"skipped", result.Skipped,
		"categorized", result.Categorized,
		"code", string(result.Code))

	return result, nil
}

// SyncAll syncs every syncable connection, a bounded number in parallel.
// Per-connection failures are collected, not fatal; onProgress, if non-nil,
// is invoked after each connection finishes.
func (o *Orchestrator) SyncAll(ctx context.Context, onProgress func(ConnectionResult)) ([]ConnectionResult, error) {
	var connections []model.BankConnection
	for _, status := range []model.ConnectionStatus{model.ConnectionActive, model.ConnectionError} {
		batch, err := o.store.ListConnectionsByStatus(ctx, status)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s connections: %w", status, err)
		}
		connections = append(connections, batch...)
	}
	if len(connections) == 0 {
		return nil, nil
	}

	results := make([]ConnectionResult, len(connections))
	var progressMu stdsync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i := range connections {
		i := i
		g.Go(func() error {
			result, err := o.SyncConnection(gctx, connections[i].ID)
			results[i] = ConnectionResult{
				Connection: connections[i],
				Result:     result,
				Err:        err,
			}
			if onProgress != nil {
				progressMu.Lock()
				onProgress(results[i])
				progressMu.Unlock()
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// syncWindow computes the fetch range: a day of overlap before the last
// checkpoint, or the initial window for a never-synced connection.
func (o *Orchestrator) syncWindow(conn *model.BankConnection) (from, to time.Time) {
	to = o.now().UTC()
	if conn.LastSyncAt != nil && !conn.LastSyncAt.IsZero() {
		from = conn.LastSyncAt.Add(-windowOverlap)
	} else {
		from = to.Add(-initialWindow)
	}
	return from, to
}

func (o *Orchestrator) connectionLock(id int64) *stdsync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()

	lock, ok := o.locks[id]
	if !ok {
		lock = &stdsync.Mutex{}
		o.locks[id] = lock
	}
	return lock
}
