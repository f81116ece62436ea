// Package model defines the core domain models used throughout the application.
package model

import "time"

// ConnectionStatus tracks the lifecycle of a bank connection.
type ConnectionStatus string

// Connection lifecycle states.
const (
	// ConnectionPending indicates the OAuth handshake has started but not completed.
	ConnectionPending ConnectionStatus = "pending"
	// ConnectionActive indicates the connection can be synced.
	ConnectionActive ConnectionStatus = "active"
	// ConnectionExpired indicates token refresh failed permanently; the user must reconnect.
	ConnectionExpired ConnectionStatus = "expired"
	// ConnectionError indicates the last sync failed; the connection may recover.
	ConnectionError ConnectionStatus = "error"
	// ConnectionRevoked indicates the user explicitly disconnected.
	ConnectionRevoked ConnectionStatus = "revoked"
)

// IsTerminal reports whether the connection can no longer be used without
// a full reconnect.
func (s ConnectionStatus) IsTerminal() bool {
	return s == ConnectionExpired || s == ConnectionRevoked
}

// BankConnection represents one consented link between a user and an
// external bank account at the aggregator.
type BankConnection struct {
	CreatedAt         time.Time
	UpdatedAt         time.Time
	TokenExpiresAt    time.Time
	ConsentExpiresAt  time.Time
	LastSyncAt        *time.Time
	UserID            string
	Provider          string
	ExternalAccountID string
	AccessToken       string
	RefreshToken      string
	Status            ConnectionStatus
	LastSyncError     string
	ConsentState      string
	ID                int64
}

// CanSync reports whether the connection is in a state that permits syncing.
func (c *BankConnection) CanSync() bool {
	return c.Status == ConnectionActive || c.Status == ConnectionError
}

// TokenExpiringWithin reports whether the access token expires inside the
// given buffer from now.
func (c *BankConnection) TokenExpiringWithin(buffer time.Duration) bool {
	return !time.Now().Add(buffer).Before(c.TokenExpiresAt)
}
