package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/felixkade/ledgersync/internal/common"
	"github.com/felixkade/ledgersync/internal/model"
)

const ruleColumns = `id, pattern, match_type, amount_min, amount_max, direction, category_id,
	priority, active, auto_approve, source, user_id, created_at, updated_at`

// CreateRule creates a categorization rule after verifying its category.
func (s *SQLiteStorage) CreateRule(ctx context.Context, rule *model.CategorizationRule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if rule.MatchType != model.MatchAmountRange {
		if err := validateString(rule.Pattern, "pattern"); err != nil {
			return err
		}
	}
	if rule.Source == model.RuleSourceUser && (rule.UserID == nil || *rule.UserID == "") {
		return fmt.Errorf("user rules require an owning user")
	}

	var categoryCount int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM categories WHERE id = ? AND active = 1",
		rule.CategoryID).Scan(&categoryCount)
	if err != nil {
		return fmt.Errorf("failed to verify category: %w", err)
	}
	if categoryCount == 0 {
		return fmt.Errorf("category %d does not exist or is inactive", rule.CategoryID)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO categorization_rules
			(pattern, match_type, amount_min, amount_max, direction, category_id,
			 priority, active, auto_approve, source, user_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rule.Pattern, string(rule.MatchType), rule.AmountMin, rule.AmountMax,
		directionToNullString(rule.Direction), rule.CategoryID, rule.Priority,
		rule.Active, rule.AutoApprove, string(rule.Source), rule.UserID)
	if err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get rule ID: %w", err)
	}
	rule.ID = id
	rule.CreatedAt = time.Now()
	rule.UpdatedAt = time.Now()
	return nil
}

// GetRule retrieves a rule by ID.
func (s *SQLiteStorage) GetRule(ctx context.Context, id int64) (*model.CategorizationRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM categorization_rules WHERE id = ?`, id)
	return scanRule(row)
}

// ListActiveRules returns active system rules plus the user's own active
// rules, ordered by priority ascending.
func (s *SQLiteStorage) ListActiveRules(ctx context.Context, userID string) ([]model.CategorizationRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ruleColumns+` FROM categorization_rules
		WHERE active = 1 AND (user_id IS NULL OR user_id = ?)
		ORDER BY priority, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.CategorizationRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

// RuleExists reports whether the user already has an active rule with the
// same pattern and category, case-insensitively. Used to keep rule promotion
// idempotent.
func (s *SQLiteStorage) RuleExists(ctx context.Context, userID, pattern string, categoryID int64) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}

	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM categorization_rules
		WHERE active = 1 AND user_id = ? AND category_id = ? AND LOWER(pattern) = LOWER(?)
	`, userID, categoryID, pattern).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check rule existence: %w", err)
	}
	return count > 0, nil
}

// DeactivateRule marks a rule inactive. Rules are deactivated rather than
// hard-deleted so history stays explainable.
func (s *SQLiteStorage) DeactivateRule(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE categorization_rules
		SET active = 0, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate rule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deactivate result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: rule %d", common.ErrNotFound, id)
	}
	return nil
}

func scanRule(row rowScanner) (*model.CategorizationRule, error) {
	var rule model.CategorizationRule
	var matchType, source string
	var direction, userID sql.NullString

	err := row.Scan(&rule.ID, &rule.Pattern, &matchType, &rule.AmountMin, &rule.AmountMax,
		&direction, &rule.CategoryID, &rule.Priority, &rule.Active, &rule.AutoApprove,
		&source, &userID, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: rule", common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan rule: %w", err)
	}

	rule.MatchType = model.RuleMatchType(matchType)
	rule.Source = model.RuleSource(source)
	if direction.Valid {
		d := model.TransactionDirection(direction.String)
		rule.Direction = &d
	}
	if userID.Valid {
		rule.UserID = &userID.String
	}
	return &rule, nil
}

func directionToNullString(d *model.TransactionDirection) any {
	if d == nil {
		return nil
	}
	return string(*d)
}
