package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/felixkade/ledgersync/internal/common"
	"github.com/felixkade/ledgersync/internal/model"
)

const connectionColumns = `id, user_id, provider, external_account_id, access_token, refresh_token,
	token_expires_at, status, last_sync_at, last_sync_error, consent_state, consent_expires_at,
	created_at, updated_at`

// CreateConnection inserts a new bank connection. The partial unique index on
// (user_id, external_account_id) rejects a second non-terminal connection for
// the same account; that surfaces as ErrDuplicateEntry.
func (s *SQLiteStorage) CreateConnection(ctx context.Context, conn *model.BankConnection) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(conn.UserID, "userID"); err != nil {
		return err
	}
	if err := validateString(conn.Provider, "provider"); err != nil {
		return err
	}
	if conn.Status == "" {
		conn.Status = model.ConnectionPending
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO bank_connections
			(user_id, provider, external_account_id, access_token, refresh_token,
			 token_expires_at, status, consent_state, consent_expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, conn.UserID, conn.Provider, conn.ExternalAccountID, conn.AccessToken, conn.RefreshToken,
		nullTime(conn.TokenExpiresAt), string(conn.Status), conn.ConsentState, nullTime(conn.ConsentExpiresAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: open connection already exists for account %s", common.ErrDuplicateEntry, conn.ExternalAccountID)
		}
		return fmt.Errorf("failed to create connection: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get connection ID: %w", err)
	}
	conn.ID = id
	return nil
}

// GetConnection retrieves a connection by ID.
func (s *SQLiteStorage) GetConnection(ctx context.Context, id int64) (*model.BankConnection, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+connectionColumns+` FROM bank_connections WHERE id = ?`, id)
	return scanConnection(row)
}

// GetConnectionByState retrieves the pending connection created for an OAuth
// state token.
func (s *SQLiteStorage) GetConnectionByState(ctx context.Context, state string) (*model.BankConnection, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(state, "state"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+connectionColumns+` FROM bank_connections WHERE consent_state = ?`, state)
	return scanConnection(row)
}

// GetOpenConnection retrieves the non-terminal connection for a
// (user, external account) pair, if one exists.
func (s *SQLiteStorage) GetOpenConnection(ctx context.Context, userID, externalAccountID string) (*model.BankConnection, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+connectionColumns+` FROM bank_connections
		WHERE user_id = ? AND external_account_id = ? AND status NOT IN ('expired', 'revoked')
	`, userID, externalAccountID)
	return scanConnection(row)
}

// ListConnectionsByStatus returns all connections in the given status.
func (s *SQLiteStorage) ListConnectionsByStatus(ctx context.Context, status model.ConnectionStatus) ([]model.BankConnection, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+connectionColumns+` FROM bank_connections WHERE status = ? ORDER BY id`, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var connections []model.BankConnection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		connections = append(connections, *conn)
	}
	return connections, rows.Err()
}

// UpdateConnection persists all mutable connection fields.
func (s *SQLiteStorage) UpdateConnection(ctx context.Context, conn *model.BankConnection) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE bank_connections
		SET external_account_id = ?, access_token = ?, refresh_token = ?, token_expires_at = ?,
			status = ?, last_sync_at = ?, last_sync_error = ?, consent_state = ?,
			consent_expires_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, conn.ExternalAccountID, conn.AccessToken, conn.RefreshToken, nullTime(conn.TokenExpiresAt),
		string(conn.Status), conn.LastSyncAt, conn.LastSyncError, conn.ConsentState,
		nullTime(conn.ConsentExpiresAt), conn.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: open connection already exists for account %s", common.ErrDuplicateEntry, conn.ExternalAccountID)
		}
		return fmt.Errorf("failed to update connection: %w", err)
	}
	return nil
}

// UpdateConnectionTokens atomically persists a refreshed token pair and
// clears any previous sync error.
func (s *SQLiteStorage) UpdateConnectionTokens(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE bank_connections
		SET access_token = ?, refresh_token = ?, token_expires_at = ?,
			last_sync_error = '', updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, accessToken, refreshToken, expiresAt, id)
	if err != nil {
		return fmt.Errorf("failed to update connection tokens: %w", err)
	}
	return nil
}

// SetConnectionStatus moves a connection to the given status with an
// accompanying error message (empty to clear).
func (s *SQLiteStorage) SetConnectionStatus(ctx context.Context, id int64, status model.ConnectionStatus, lastError string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE bank_connections
		SET status = ?, last_sync_error = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, string(status), lastError, id)
	if err != nil {
		return fmt.Errorf("failed to set connection status: %w", err)
	}
	return nil
}

// RecordSyncOutcome persists the result of a sync pass: the checkpoint
// timestamp on success (zero to leave unchanged) and the error message.
func (s *SQLiteStorage) RecordSyncOutcome(ctx context.Context, id int64, syncedAt time.Time, lastError string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var err error
	if syncedAt.IsZero() {
		_, err = s.db.ExecContext(ctx, `
			UPDATE bank_connections
			SET last_sync_error = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, lastError, id)
	} else {
		_, err = s.db.ExecContext(ctx, `
			UPDATE bank_connections
			SET last_sync_at = ?, last_sync_error = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, syncedAt, lastError, id)
	}
	if err != nil {
		return fmt.Errorf("failed to record sync outcome: %w", err)
	}
	return nil
}

// DeleteConnection removes a connection. Only terminal connections may be
// deleted; transactions cascade.
func (s *SQLiteStorage) DeleteConnection(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM bank_connections
		WHERE id = ? AND status IN ('expired', 'revoked')
	`, id)
	if err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: connection %d not found or not terminal", common.ErrNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (*model.BankConnection, error) {
	var conn model.BankConnection
	var status string
	var tokenExpiresAt, consentExpiresAt, lastSyncAt sql.NullTime

	err := row.Scan(&conn.ID, &conn.UserID, &conn.Provider, &conn.ExternalAccountID,
		&conn.AccessToken, &conn.RefreshToken, &tokenExpiresAt, &status, &lastSyncAt,
		&conn.LastSyncError, &conn.ConsentState, &consentExpiresAt,
		&conn.CreatedAt, &conn.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: connection", common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan connection: %w", err)
	}

	conn.Status = model.ConnectionStatus(status)
	if tokenExpiresAt.Valid {
		conn.TokenExpiresAt = tokenExpiresAt.Time
	}
	if consentExpiresAt.Valid {
		conn.ConsentExpiresAt = consentExpiresAt.Time
	}
	if lastSyncAt.Valid {
		conn.LastSyncAt = &lastSyncAt.Time
	}
	return &conn, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
