package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/felixkade/ledgersync/internal/common"
	"github.com/felixkade/ledgersync/internal/model"
)

const categoryColumns = `id, name, type, default_deductible_percent, tax_code, is_default, active, created_at`

// ListCategories returns all active categories ordered by name.
func (s *SQLiteStorage) ListCategories(ctx context.Context) ([]model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE active = 1 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var categories []model.Category
	for rows.Next() {
		cat, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, *cat)
	}
	return categories, rows.Err()
}

// GetCategory retrieves a category by ID.
func (s *SQLiteStorage) GetCategory(ctx context.Context, id int64) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id)
	return scanCategory(row)
}

// GetCategoryByName retrieves a category by exact name.
func (s *SQLiteStorage) GetCategoryByName(ctx context.Context, name string) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE name = ?`, name)
	return scanCategory(row)
}

// CreateCategory inserts a new category.
func (s *SQLiteStorage) CreateCategory(ctx context.Context, category *model.Category) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(category.Name, "name"); err != nil {
		return err
	}
	if category.Type != model.CategoryTypeIncome && category.Type != model.CategoryTypeExpense {
		return fmt.Errorf("invalid category type %q", category.Type)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (name, type, default_deductible_percent, tax_code, is_default, active)
		VALUES (?, ?, ?, ?, ?, 1)
	`, category.Name, string(category.Type), category.DefaultDeductiblePercent,
		category.TaxCode, category.IsDefault)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: category %q", common.ErrDuplicateEntry, category.Name)
		}
		return fmt.Errorf("failed to create category: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get category ID: %w", err)
	}
	category.ID = id
	category.Active = true
	return nil
}

func scanCategory(row rowScanner) (*model.Category, error) {
	var cat model.Category
	var catType string

	err := row.Scan(&cat.ID, &cat.Name, &catType, &cat.DefaultDeductiblePercent,
		&cat.TaxCode, &cat.IsDefault, &cat.Active, &cat.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: category", common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan category: %w", err)
	}

	cat.Type = model.CategoryType(catType)
	return &cat, nil
}
