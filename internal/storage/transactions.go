package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/felixkade/ledgersync/internal/common"
	"github.com/felixkade/ledgersync/internal/model"
)

const transactionColumns = `id, connection_id, account_id, external_id, date, description,
	merchant_name, amount, direction, balance, category_id, suggested_category_id, tax_code,
	tax_deductible, confidence, reasoning, source, needs_review, reviewed,
	deductible_percent_override, created_at`

// InsertTransaction inserts a transaction keyed by (account, external id).
// It returns false when the pair already exists; the uniqueness constraint is
// the sole dedup mechanism, so "already present" is an expected outcome, not
// an error.
func (s *SQLiteStorage) InsertTransaction(ctx context.Context, txn *model.BankTransaction) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateString(txn.AccountID, "accountID"); err != nil {
		return false, err
	}
	if err := validateString(txn.ExternalID, "externalID"); err != nil {
		return false, err
	}
	if txn.Direction != model.DirectionDebit && txn.Direction != model.DirectionCredit {
		return false, fmt.Errorf("invalid direction %q", txn.Direction)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO bank_transactions
			(connection_id, account_id, external_id, date, description, merchant_name,
			 amount, direction, balance, category_id, suggested_category_id, tax_code,
			 tax_deductible, confidence, reasoning, source, needs_review, reviewed,
			 deductible_percent_override)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, txn.ConnectionID, txn.AccountID, txn.ExternalID, txn.Date, txn.Description,
		txn.MerchantName, txn.Amount, string(txn.Direction), txn.Balance, txn.CategoryID,
		txn.SuggestedCategoryID, txn.TaxCode, txn.TaxDeductible, txn.Confidence,
		txn.Reasoning, string(txn.Source), txn.NeedsReview, txn.Reviewed,
		txn.DeductiblePercentOverride)
	if err != nil {
		return false, fmt.Errorf("failed to insert transaction: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check insert result: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("failed to get transaction ID: %w", err)
	}
	txn.ID = id
	return true, nil
}

// GetTransaction retrieves a transaction by ID.
func (s *SQLiteStorage) GetTransaction(ctx context.Context, id int64) (*model.BankTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM bank_transactions WHERE id = ?`, id)
	return scanTransaction(row)
}

// ListUnclassifiedTransactions returns transactions for a connection with
// neither an assigned nor a suggested category.
func (s *SQLiteStorage) ListUnclassifiedTransactions(ctx context.Context, connectionID int64) ([]model.BankTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+` FROM bank_transactions
		WHERE connection_id = ? AND category_id IS NULL AND suggested_category_id IS NULL
		ORDER BY date, id
	`, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list unclassified transactions: %w", err)
	}
	return collectTransactions(rows)
}

// ListTransactionsByAccount returns all transactions for an account, oldest
// first.
func (s *SQLiteStorage) ListTransactionsByAccount(ctx context.Context, accountID string) ([]model.BankTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+` FROM bank_transactions
		WHERE account_id = ?
		ORDER BY date, id
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return collectTransactions(rows)
}

// UpdateTransactionClassification persists the classification fields of a
// transaction: category assignment, tax treatment, confidence, and review
// state.
func (s *SQLiteStorage) UpdateTransactionClassification(ctx context.Context, txn *model.BankTransaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE bank_transactions
		SET category_id = ?, suggested_category_id = ?, tax_code = ?, tax_deductible = ?,
			confidence = ?, reasoning = ?, source = ?, needs_review = ?, reviewed = ?,
			deductible_percent_override = ?
		WHERE id = ?
	`, txn.CategoryID, txn.SuggestedCategoryID, txn.TaxCode, txn.TaxDeductible,
		txn.Confidence, txn.Reasoning, string(txn.Source), txn.NeedsReview, txn.Reviewed,
		txn.DeductiblePercentOverride, txn.ID)
	if err != nil {
		return fmt.Errorf("failed to update transaction classification: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: transaction %d", common.ErrNotFound, txn.ID)
	}
	return nil
}

func scanTransaction(row rowScanner) (*model.BankTransaction, error) {
	var txn model.BankTransaction
	var direction, source string

	err := row.Scan(&txn.ID, &txn.ConnectionID, &txn.AccountID, &txn.ExternalID, &txn.Date,
		&txn.Description, &txn.MerchantName, &txn.Amount, &direction, &txn.Balance,
		&txn.CategoryID, &txn.SuggestedCategoryID, &txn.TaxCode, &txn.TaxDeductible,
		&txn.Confidence, &txn.Reasoning, &source, &txn.NeedsReview, &txn.Reviewed,
		&txn.DeductiblePercentOverride, &txn.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: transaction", common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}

	txn.Direction = model.TransactionDirection(direction)
	txn.Source = model.ClassificationSource(source)
	return &txn, nil
}

func collectTransactions(rows *sql.Rows) ([]model.BankTransaction, error) {
	defer func() { _ = rows.Close() }()

	var transactions []model.BankTransaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *txn)
	}
	return transactions, rows.Err()
}
