// Package testutil provides shared helpers for tests that need real storage.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/felixkade/ledgersync/internal/model"
	"github.com/felixkade/ledgersync/internal/storage"
)

// SetupTestDB creates a migrated in-memory SQLite storage with the seeded
// system categories, registered for cleanup.
func SetupTestDB(t *testing.T) *storage.SQLiteStorage {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}

// SeedConnection inserts an active connection and returns it.
func SeedConnection(t *testing.T, store *storage.SQLiteStorage, userID, accountID string) *model.BankConnection {
	t.Helper()

	conn := &model.BankConnection{
		UserID:            userID,
		Provider:          "testbank",
		ExternalAccountID: accountID,
		AccessToken:       "access-token",
		RefreshToken:      "refresh-token",
		TokenExpiresAt:    time.Now().Add(time.Hour),
		Status:            model.ConnectionActive,
	}
	if err := store.CreateConnection(context.Background(), conn); err != nil {
		t.Fatalf("failed to seed connection: %v", err)
	}
	return conn
}

// MustCategory returns the seeded category with the given name.
func MustCategory(t *testing.T, store *storage.SQLiteStorage, name string) *model.Category {
	t.Helper()

	cat, err := store.GetCategoryByName(context.Background(), name)
	if err != nil {
		t.Fatalf("failed to load category %q: %v", name, err)
	}
	return cat
}
