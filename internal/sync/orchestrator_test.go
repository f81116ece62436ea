package sync_test

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"testing"
	"time"

	"github.com/felixkade/ledgersync/internal/common"
	"github.com/felixkade/ledgersync/internal/engine"
	"github.com/felixkade/ledgersync/internal/model"
	"github.com/felixkade/ledgersync/internal/provider"
	"github.com/felixkade/ledgersync/internal/storage"
	syncer "github.com/felixkade/ledgersync/internal/sync"
	"github.com/felixkade/ledgersync/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu           stdsync.Mutex
	transactions map[string][]provider.Transaction
	err          error
	lastFrom     time.Time
	lastTo       time.Time
}

func (f *fakeSource) ListTransactions(_ context.Context, _, accountID string, from, to time.Time) ([]provider.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lastFrom, f.lastTo = from, to
	if f.err != nil {
		return nil, f.err
	}
	return f.transactions[accountID], nil
}

type fakeTokens struct {
	err error
}

func (f *fakeTokens) EnsureValidToken(_ context.Context, conn *model.BankConnection) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return conn.AccessToken, nil
}

func wireTransactions(n int) []provider.Transaction {
	txns := make([]provider.Transaction, n)
	for i := range txns {
		txns[i] = provider.Transaction{
			ID:          fmt.Sprintf("txn-%d", i),
			Date:        "2026-03-10",
			Description: fmt.Sprintf("COFFEE SHOP %d", i),
			Currency:    "GBP",
			Amount:      -3.50,
		}
	}
	return txns
}

func newOrchestrator(store *storage.SQLiteStorage, source *fakeSource, tokens *fakeTokens, opts ...syncer.Option) *syncer.Orchestrator {
	return syncer.NewOrchestrator(store, source, tokens, nil, opts...)
}

func TestSyncConnection_FirstSyncUsesInitialWindow(t *testing.T) {
	store := testutil.SetupTestDB(t)
	conn := testutil.SeedConnection(t, store, "user-1", "acc-1")
	ctx := context.Background()

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	source := &fakeSource{transactions: map[string][]provider.Transaction{
		"acc-1": wireTransactions(3),
	}}

	o := newOrchestrator(store, source, &fakeTokens{}, syncer.WithClock(func() time.Time { return now }))
	result, err := o.SyncConnection(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Synced)
	assert.Equal(t, 0, result.Skipped)
	assert.Empty(t, result.Code)

	assert.Equal(t, now.Add(-30*24*time.Hour), source.lastFrom)
	assert.Equal(t, now, source.lastTo)

	got, err := store.GetConnection(ctx, conn.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastSyncAt)
	assert.WithinDuration(t, now, *got.LastSyncAt, time.Second)
}

func TestSyncConnection_SecondSyncIsIdempotent(t *testing.T) {
	store := testutil.SetupTestDB(t)
	conn := testutil.SeedConnection(t, store, "user-1", "acc-1")
	ctx := context.Background()

	source := &fakeSource{transactions: map[string][]provider.Transaction{
		"acc-1": wireTransactions(3),
	}}

	o := newOrchestrator(store, source, &fakeTokens{})
	first, err := o.SyncConnection(ctx, conn.ID)
	require.NoError(t, err)
	require.Equal(t, 3, first.Synced)

	second, err := o.SyncConnection(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Synced)
	assert.Equal(t, 3, second.Skipped)
	assert.Equal(t, model.SyncCodeAlreadySynced, second.Code)

	// Every row is still there exactly once.
	stored, err := store.ListTransactionsByAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.Len(t, stored, 3)
}

func TestSyncConnection_WindowOverlapsCheckpoint(t *testing.T) {
	store := testutil.SetupTestDB(t)
	conn := testutil.SeedConnection(t, store, "user-1", "acc-1")
	ctx := context.Background()

	lastSync := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.RecordSyncOutcome(ctx, conn.ID, lastSync, ""))

	source := &fakeSource{}
	o := newOrchestrator(store, source, &fakeTokens{})
	_, err := o.SyncConnection(ctx, conn.ID)
	require.NoError(t, err)

	assert.WithinDuration(t, lastSync.Add(-24*time.Hour), source.lastFrom, time.Second)
}

func TestSyncConnection_SCAExceededIsACodeNotAnError(t *testing.T) {
	store := testutil.SetupTestDB(t)
	conn := testutil.SeedConnection(t, store, "user-1", "acc-1")
	ctx := context.Background()

	source := &fakeSource{err: fmt.Errorf("provider: %w", common.ErrSCAExceeded)}
	o := newOrchestrator(store, source, &fakeTokens{})

	result, err := o.SyncConnection(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncCodeSCAExceeded, result.Code)

	// The connection stays active and keeps no checkpoint.
	got, err := store.GetConnection(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ConnectionActive, got.Status)
	assert.Nil(t, got.LastSyncAt)
	assert.NotEmpty(t, got.LastSyncError)
}

func TestSyncConnection_TokenExpiredIsACodeNotAnError(t *testing.T) {
	store := testutil.SetupTestDB(t)
	conn := testutil.SeedConnection(t, store, "user-1", "acc-1")
	ctx := context.Background()

	tokens := &fakeTokens{err: fmt.Errorf("refresh: %w", common.ErrTokenExpired)}
	o := newOrchestrator(store, &fakeSource{}, tokens)

	result, err := o.SyncConnection(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncCodeTokenExpired, result.Code)
}

func TestSyncConnection_TerminalConnectionRefused(t *testing.T) {
	store := testutil.SetupTestDB(t)
	conn := testutil.SeedConnection(t, store, "user-1", "acc-1")
	ctx := context.Background()
	require.NoError(t, store.SetConnectionStatus(ctx, conn.ID, model.ConnectionRevoked, ""))

	o := newOrchestrator(store, &fakeSource{}, &fakeTokens{})
	_, err := o.SyncConnection(ctx, conn.ID)
	assert.ErrorIs(t, err, common.ErrConnectionTerminal)
}

func TestSyncConnection_FetchFailureMarksConnectionErrored(t *testing.T) {
	store := testutil.SetupTestDB(t)
	conn := testutil.SeedConnection(t, store, "user-1", "acc-1")
	ctx := context.Background()

	source := &fakeSource{err: errors.New("gateway timeout")}
	o := newOrchestrator(store, source, &fakeTokens{})

	_, err := o.SyncConnection(ctx, conn.ID)
	require.Error(t, err)

	got, err := store.GetConnection(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ConnectionError, got.Status)
	assert.Nil(t, got.LastSyncAt)
}

func TestSyncConnection_ErroredConnectionRecovers(t *testing.T) {
	store := testutil.SetupTestDB(t)
	conn := testutil.SeedConnection(t, store, "user-1", "acc-1")
	ctx := context.Background()
	require.NoError(t, store.SetConnectionStatus(ctx, conn.ID, model.ConnectionError, "gateway timeout"))

	source := &fakeSource{transactions: map[string][]provider.Transaction{
		"acc-1": wireTransactions(1),
	}}
	o := newOrchestrator(store, source, &fakeTokens{})

	result, err := o.SyncConnection(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Synced)

	got, err := store.GetConnection(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ConnectionActive, got.Status)
	assert.Empty(t, got.LastSyncError)
}

func TestSyncConnection_CategorizesAfterIngestion(t *testing.T) {
	store := testutil.SetupTestDB(t)
	conn := testutil.SeedConnection(t, store, "user-1", "acc-1")
	ctx := context.Background()

	source := &fakeSource{transactions: map[string][]provider.Transaction{
		"acc-1": {{
			ID:          "txn-1",
			Date:        "2026-03-10",
			Description: "TRAINLINE TICKETS",
			Currency:    "GBP",
			Amount:      -44.50,
		}},
	}}

	eng := engine.New(store, nil, nil)
	o := newOrchestrator(store, source, &fakeTokens{}, syncer.WithCategorizer(eng))

	result, err := o.SyncConnection(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Synced)
	assert.Equal(t, 1, result.Categorized)

	stored, err := store.ListTransactionsByAccount(ctx, "acc-1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.NotNil(t, stored[0].CategoryID)
}

func TestSyncAll(t *testing.T) {
	store := testutil.SetupTestDB(t)
	conn1 := testutil.SeedConnection(t, store, "user-1", "acc-1")
	conn2 := testutil.SeedConnection(t, store, "user-2", "acc-2")
	ctx := context.Background()
	require.NoError(t, store.SetConnectionStatus(ctx, conn2.ID, model.ConnectionError, "previous failure"))

	source := &fakeSource{transactions: map[string][]provider.Transaction{
		"acc-1": wireTransactions(2),
		"acc-2": wireTransactions(1),
	}}
	o := newOrchestrator(store, source, &fakeTokens{}, syncer.WithConcurrency(2))

	var progress int
	results, err := o.SyncAll(ctx, func(syncer.ConnectionResult) { progress++ })
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 2, progress)

	for _, r := range results {
		assert.NoError(t, r.Err)
		require.NotNil(t, r.Result)
	}

	got1, err := store.GetConnection(ctx, conn1.ID)
	require.NoError(t, err)
	assert.NotNil(t, got1.LastSyncAt)

	got2, err := store.GetConnection(ctx, conn2.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ConnectionActive, got2.Status)
}

func TestSyncAll_NoConnections(t *testing.T) {
	store := testutil.SetupTestDB(t)

	o := newOrchestrator(store, &fakeSource{}, &fakeTokens{})
	results, err := o.SyncAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}
