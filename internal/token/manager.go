// Package token manages OAuth credential lifecycles for bank connections:
// expiry checks, serialized refresh, and permanent-failure handling.
package token

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/felixkade/ledgersync/internal/common"
	"github.com/felixkade/ledgersync/internal/model"
	"github.com/felixkade/ledgersync/internal/service"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// Default refresh policy. Refresh is interactive-adjacent, so the delay is a
// short fixed interval rather than backoff.
const (
	defaultRefreshBuffer = 10 * time.Minute
	defaultMaxAttempts   = 2
	defaultRetryDelay    = 2 * time.Second
)

// Refresher exchanges a refresh token for a new token pair.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// ConnectionStore is the slice of storage the manager needs. Satisfied by
// service.Storage.
type ConnectionStore interface {
	UpdateConnectionTokens(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt time.Time) error
	SetConnectionStatus(ctx context.Context, id int64, status model.ConnectionStatus, lastError string) error
}

// PermanentErrorFunc classifies a refresh failure as unrecoverable.
type PermanentErrorFunc func(error) bool

// Manager acquires and refreshes access tokens for connections. Concurrent
// refreshes for the same connection are collapsed into one flight to avoid
// racing refresh-token rotation.
type Manager struct {
	store         ConnectionStore
	refresher     Refresher
	isPermanent   PermanentErrorFunc
	logger        *slog.Logger
	group         singleflight.Group
	refreshBuffer time.Duration
	retryOpts     service.RetryOptions
}

// NewManager creates a token manager.
func NewManager(store ConnectionStore, refresher Refresher, isPermanent PermanentErrorFunc) *Manager {
	return &Manager{
		store:         store,
		refresher:     refresher,
		isPermanent:   isPermanent,
		logger:        slog.Default().With("component", "token"),
		refreshBuffer: defaultRefreshBuffer,
		retryOpts: service.RetryOptions{
			MaxAttempts: defaultMaxAttempts,
			Delay:       defaultRetryDelay,
		},
	}
}

// EnsureValidToken returns an access token valid for at least the refresh
// buffer, refreshing first when needed. On exhausted or permanent refresh
// failure the connection transitions to expired and the error wraps
// ErrTokenExpired so the caller can instruct the user to reconnect.
func (m *Manager) EnsureValidToken(ctx context.Context, conn *model.BankConnection) (string, error) {
	if conn.Status.IsTerminal() {
		return "", fmt.Errorf("%w: connection %d is %s", common.ErrTokenExpired, conn.ID, conn.Status)
	}

	if !conn.TokenExpiringWithin(m.refreshBuffer) {
		return conn.AccessToken, nil
	}

	key := strconv.FormatInt(conn.ID, 10)
	result, err, _ := m.group.Do(key, func() (any, error) {
		return m.refresh(ctx, conn)
	})
	if err != nil {
		return "", err
	}

	token := result.(*oauth2.Token)
	conn.AccessToken = token.AccessToken
	conn.RefreshToken = token.RefreshToken
	conn.TokenExpiresAt = token.Expiry
	return token.AccessToken, nil
}

func (m *Manager) refresh(ctx context.Context, conn *model.BankConnection) (*oauth2.Token, error) {
	m.logger.Info("refreshing access token",
		"connection_id", conn.ID,
		"expires_at", conn.TokenExpiresAt)

	var token *oauth2.Token
	err := common.WithRetry(ctx, func() error {
		fresh, refreshErr := m.refresher.Refresh(ctx, conn.RefreshToken)
		if refreshErr != nil {
			if m.isPermanent != nil && m.isPermanent(refreshErr) {
				return &common.RetryableError{Err: refreshErr, Retryable: false}
			}
			return refreshErr
		}
		token = fresh
		return nil
	}, m.retryOpts)

	if err != nil {
		m.logger.Error("token refresh failed, expiring connection",
			"connection_id", conn.ID,
			"error", err)

		msg := fmt.Sprintf("token refresh failed: %v", err)
		if statusErr := m.store.SetConnectionStatus(ctx, conn.ID, model.ConnectionExpired, msg); statusErr != nil {
			m.logger.Error("failed to persist expired status",
				"connection_id", conn.ID,
				"error", statusErr)
		}
		conn.Status = model.ConnectionExpired
		conn.LastSyncError = msg

		return nil, fmt.Errorf("%w: %w", common.ErrTokenExpired, err)
	}

	// New token pair, expiry, and cleared error persist in one update.
	if err := m.store.UpdateConnectionTokens(ctx, conn.ID, token.AccessToken, token.RefreshToken, token.Expiry); err != nil {
		return nil, fmt.Errorf("failed to persist refreshed tokens: %w", err)
	}

	m.logger.Info("access token refreshed",
		"connection_id", conn.ID,
		"new_expiry", token.Expiry)

	return token, nil
}
