package token

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/felixkade/ledgersync/internal/common"
	"github.com/felixkade/ledgersync/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type mockStore struct {
	mu            sync.Mutex
	tokensUpdated int
	statusSet     []model.ConnectionStatus
	lastError     string
}

func (m *mockStore) UpdateConnectionTokens(_ context.Context, _ int64, _, _ string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokensUpdated++
	return nil
}

func (m *mockStore) SetConnectionStatus(_ context.Context, _ int64, status model.ConnectionStatus, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusSet = append(m.statusSet, status)
	m.lastError = lastError
	return nil
}

type mockRefresher struct {
	mu    sync.Mutex
	errs  []error
	calls int
	delay time.Duration
	token *oauth2.Token
}

func (m *mockRefresher) Refresh(_ context.Context, _ string) (*oauth2.Token, error) {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.calls
	m.calls++
	if idx < len(m.errs) && m.errs[idx] != nil {
		return nil, m.errs[idx]
	}
	if m.token != nil {
		return m.token, nil
	}
	return &oauth2.Token{
		AccessToken:  "new-access",
		RefreshToken: "new-refresh",
		Expiry:       time.Now().Add(time.Hour),
	}, nil
}

func permanentByMarker(err error) bool {
	return strings.Contains(err.Error(), "invalid_grant")
}

func testConn(expiry time.Time) *model.BankConnection {
	return &model.BankConnection{
		ID:             42,
		Status:         model.ConnectionActive,
		AccessToken:    "old-access",
		RefreshToken:   "old-refresh",
		TokenExpiresAt: expiry,
	}
}

func fastManager(store ConnectionStore, refresher Refresher) *Manager {
	m := NewManager(store, refresher, permanentByMarker)
	m.retryOpts.Delay = time.Millisecond
	return m
}

func TestManager_EnsureValidToken(t *testing.T) {
	ctx := context.Background()

	t.Run("token well inside expiry is returned as-is", func(t *testing.T) {
		store := &mockStore{}
		refresher := &mockRefresher{}
		m := fastManager(store, refresher)

		conn := testConn(time.Now().Add(time.Hour))
		got, err := m.EnsureValidToken(ctx, conn)
		require.NoError(t, err)
		assert.Equal(t, "old-access", got)
		assert.Equal(t, 0, refresher.calls)
	})

	t.Run("token inside 10 minute buffer triggers refresh", func(t *testing.T) {
		store := &mockStore{}
		refresher := &mockRefresher{}
		m := fastManager(store, refresher)

		conn := testConn(time.Now().Add(5 * time.Minute))
		got, err := m.EnsureValidToken(ctx, conn)
		require.NoError(t, err)
		assert.Equal(t, "new-access", got)
		assert.Equal(t, 1, refresher.calls)
		assert.Equal(t, 1, store.tokensUpdated)
		assert.Equal(t, "new-access", conn.AccessToken)
		assert.Equal(t, "new-refresh", conn.RefreshToken)
	})

	t.Run("already expired token triggers refresh", func(t *testing.T) {
		store := &mockStore{}
		refresher := &mockRefresher{}
		m := fastManager(store, refresher)

		conn := testConn(time.Now().Add(-time.Minute))
		got, err := m.EnsureValidToken(ctx, conn)
		require.NoError(t, err)
		assert.Equal(t, "new-access", got)
	})

	t.Run("transient failure retried within budget", func(t *testing.T) {
		store := &mockStore{}
		refresher := &mockRefresher{errs: []error{fmt.Errorf("connection reset"), nil}}
		m := fastManager(store, refresher)

		conn := testConn(time.Now())
		got, err := m.EnsureValidToken(ctx, conn)
		require.NoError(t, err)
		assert.Equal(t, "new-access", got)
		assert.Equal(t, 2, refresher.calls)
	})

	t.Run("exhausted retries expire the connection", func(t *testing.T) {
		store := &mockStore{}
		refresher := &mockRefresher{errs: []error{fmt.Errorf("timeout"), fmt.Errorf("timeout")}}
		m := fastManager(store, refresher)

		conn := testConn(time.Now())
		_, err := m.EnsureValidToken(ctx, conn)
		assert.ErrorIs(t, err, common.ErrTokenExpired)
		assert.Equal(t, 2, refresher.calls)
		assert.Equal(t, []model.ConnectionStatus{model.ConnectionExpired}, store.statusSet)
		assert.Equal(t, model.ConnectionExpired, conn.Status)
	})

	t.Run("permanent failure aborts without retry", func(t *testing.T) {
		store := &mockStore{}
		refresher := &mockRefresher{errs: []error{fmt.Errorf("oauth2: invalid_grant")}}
		m := fastManager(store, refresher)

		conn := testConn(time.Now())
		_, err := m.EnsureValidToken(ctx, conn)
		assert.ErrorIs(t, err, common.ErrTokenExpired)
		assert.Equal(t, 1, refresher.calls)
		assert.Equal(t, []model.ConnectionStatus{model.ConnectionExpired}, store.statusSet)
	})

	t.Run("terminal connection refuses immediately", func(t *testing.T) {
		store := &mockStore{}
		refresher := &mockRefresher{}
		m := fastManager(store, refresher)

		conn := testConn(time.Now())
		conn.Status = model.ConnectionRevoked
		_, err := m.EnsureValidToken(ctx, conn)
		assert.ErrorIs(t, err, common.ErrTokenExpired)
		assert.Equal(t, 0, refresher.calls)
	})

	t.Run("concurrent refreshes are single-flighted", func(t *testing.T) {
		store := &mockStore{}
		refresher := &mockRefresher{delay: 50 * time.Millisecond, token: &oauth2.Token{
			AccessToken:  "shared-access",
			RefreshToken: "shared-refresh",
			Expiry:       time.Now().Add(time.Hour),
		}}
		m := fastManager(store, refresher)

		conn := testConn(time.Now())
		var wg sync.WaitGroup
		results := make([]string, 8)
		for i := range results {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				// Each goroutine uses its own copy; the flight is keyed by ID.
				c := *conn
				tok, err := m.EnsureValidToken(ctx, &c)
				assert.NoError(t, err)
				results[idx] = tok
			}(i)
		}
		wg.Wait()

		for _, tok := range results {
			assert.Equal(t, "shared-access", tok)
		}
		assert.Equal(t, 1, refresher.calls)
	})
}
