package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application
// expects. If the database cannot be migrated to this version, it's a fatal
// error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS bank_connections (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					user_id TEXT NOT NULL,
					provider TEXT NOT NULL,
					external_account_id TEXT NOT NULL DEFAULT '',
					access_token TEXT NOT NULL DEFAULT '',
					refresh_token TEXT NOT NULL DEFAULT '',
					token_expires_at DATETIME,
					status TEXT NOT NULL DEFAULT 'pending',
					last_sync_at DATETIME,
					last_sync_error TEXT NOT NULL DEFAULT '',
					consent_state TEXT NOT NULL DEFAULT '',
					consent_expires_at DATETIME,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				// At most one non-terminal connection per (user, account).
				`CREATE UNIQUE INDEX idx_connections_open
					ON bank_connections(user_id, external_account_id)
					WHERE status NOT IN ('expired', 'revoked') AND external_account_id != ''`,
				`CREATE INDEX idx_connections_status ON bank_connections(status)`,
				`CREATE INDEX idx_connections_state ON bank_connections(consent_state)`,

				`CREATE TABLE IF NOT EXISTS categories (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL UNIQUE,
					type TEXT NOT NULL,
					default_deductible_percent INTEGER NOT NULL DEFAULT 0,
					tax_code TEXT NOT NULL DEFAULT '',
					is_default INTEGER NOT NULL DEFAULT 0,
					active INTEGER NOT NULL DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS bank_transactions (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					connection_id INTEGER NOT NULL REFERENCES bank_connections(id) ON DELETE CASCADE,
					account_id TEXT NOT NULL,
					external_id TEXT NOT NULL,
					date DATETIME NOT NULL,
					description TEXT NOT NULL,
					merchant_name TEXT NOT NULL DEFAULT '',
					amount REAL NOT NULL,
					direction TEXT NOT NULL,
					balance REAL,
					category_id INTEGER REFERENCES categories(id),
					suggested_category_id INTEGER REFERENCES categories(id),
					tax_code TEXT NOT NULL DEFAULT '',
					tax_deductible INTEGER NOT NULL DEFAULT 0,
					confidence REAL NOT NULL DEFAULT 0,
					reasoning TEXT NOT NULL DEFAULT '',
					source TEXT NOT NULL DEFAULT '',
					needs_review INTEGER NOT NULL DEFAULT 0,
					reviewed INTEGER NOT NULL DEFAULT 0,
					deductible_percent_override INTEGER,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(account_id, external_id)
				)`,
				`CREATE INDEX idx_transactions_connection ON bank_transactions(connection_id)`,
				`CREATE INDEX idx_transactions_date ON bank_transactions(date)`,
				`CREATE INDEX idx_transactions_category ON bank_transactions(category_id)`,

				`CREATE TABLE IF NOT EXISTS categorization_rules (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					pattern TEXT NOT NULL,
					match_type TEXT NOT NULL,
					amount_min REAL,
					amount_max REAL,
					direction TEXT,
					category_id INTEGER NOT NULL REFERENCES categories(id),
					priority INTEGER NOT NULL DEFAULT 100,
					active INTEGER NOT NULL DEFAULT 1,
					auto_approve INTEGER NOT NULL DEFAULT 0,
					source TEXT NOT NULL DEFAULT 'user',
					user_id TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_rules_priority ON categorization_rules(priority)`,
				`CREATE INDEX idx_rules_user ON categorization_rules(user_id)`,

				`CREATE TABLE IF NOT EXISTS feedback_events (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					transaction_id INTEGER NOT NULL,
					fingerprint TEXT NOT NULL,
					suggested_category_id INTEGER,
					final_category_id INTEGER NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_feedback_lookup
					ON feedback_events(user_id, fingerprint, final_category_id)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Seed system categories",
		Up: func(tx *sql.Tx) error {
			seed := []struct {
				name      string
				catType   string
				taxCode   string
				percent   int
				isDefault bool
			}{
				{"Sales Income", "income", "SA103F_BOX15", 0, false},
				{"Other Income", "income", "SA103F_BOX16", 0, false},
				{"Cost of Goods", "expense", "SA103F_BOX17", 100, false},
				{"Wages & Staff", "expense", "SA103F_BOX19", 100, false},
				{"Travel", "expense", "SA103F_BOX20", 100, false},
				{"Subsistence", "expense", "SA103F_BOX20", 50, false},
				{"Rent & Utilities", "expense", "SA103F_BOX21", 100, false},
				{"Repairs & Maintenance", "expense", "SA103F_BOX22", 100, false},
				{"Office Costs", "expense", "SA103F_BOX23", 100, false},
				{"Phone & Internet", "expense", "SA103F_BOX23", 50, false},
				{"Advertising", "expense", "SA103F_BOX24", 100, false},
				{"Bank Charges", "expense", "SA103F_BOX26", 100, false},
				{"Professional Fees", "expense", "SA103F_BOX27", 100, false},
				{"Personal", "expense", "", 0, true},
			}

			stmt, err := tx.Prepare(`
				INSERT OR IGNORE INTO categories (name, type, default_deductible_percent, tax_code, is_default)
				VALUES (?, ?, ?, ?, ?)
			`)
			if err != nil {
				return fmt.Errorf("failed to prepare category seed: %w", err)
			}
			defer func() { _ = stmt.Close() }()

			for _, c := range seed {
				if _, err := stmt.Exec(c.name, c.catType, c.percent, c.taxCode, c.isDefault); err != nil {
					return fmt.Errorf("failed to seed category %q: %w", c.name, err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Seed system rules",
		Up: func(tx *sql.Tx) error {
			seed := []struct {
				pattern   string
				matchType string
				category  string
				direction string
				priority  int
			}{
				{"bank charge", "contains", "Bank Charges", "debit", 10},
				{"account fee", "contains", "Bank Charges", "debit", 11},
				{"tfl travel", "contains", "Travel", "debit", 20},
				{"trainline", "contains", "Travel", "debit", 21},
				{"interest earned", "contains", "Other Income", "credit", 30},
			}

			for _, r := range seed {
				_, err := tx.Exec(`
					INSERT INTO categorization_rules
						(pattern, match_type, direction, category_id, priority, active, auto_approve, source)
					SELECT ?, ?, ?, id, ?, 1, 1, 'system'
					FROM categories WHERE name = ?
				`, r.pattern, r.matchType, r.direction, r.priority, r.category)
				if err != nil {
					return fmt.Errorf("failed to seed rule %q: %w", r.pattern, err)
				}
			}
			return nil
		},
	},
}

// Migrate brings the schema up to the expected version.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion); err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		slog.Info("Applying migration",
			"version", migration.Version,
			"description", migration.Description)

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", migration.Version, err)
		}

		if err := migration.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}

		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to set schema version %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
