package storage

import (
	"context"
	"fmt"

	"github.com/felixkade/ledgersync/internal/common"
	"github.com/felixkade/ledgersync/internal/model"
)

// RecordFeedbackEvent appends a correction to the feedback log.
func (s *SQLiteStorage) RecordFeedbackEvent(ctx context.Context, event *model.FeedbackEvent) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(event.ID, "event ID"); err != nil {
		return err
	}
	if err := validateString(event.UserID, "userID"); err != nil {
		return err
	}
	if err := validateString(event.Fingerprint, "fingerprint"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback_events
			(id, user_id, transaction_id, fingerprint, suggested_category_id, final_category_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`, event.ID, event.UserID, event.TransactionID, event.Fingerprint,
		event.SuggestedCategoryID, event.FinalCategoryID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: feedback event %s", common.ErrDuplicateEntry, event.ID)
		}
		return fmt.Errorf("failed to record feedback event: %w", err)
	}
	return nil
}

// CountCorrections returns how many times the user has corrected the given
// fingerprint to the given final category.
func (s *SQLiteStorage) CountCorrections(ctx context.Context, userID, fingerprint string, finalCategoryID int64) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM feedback_events
		WHERE user_id = ? AND fingerprint = ? AND final_category_id = ?
	`, userID, fingerprint, finalCategoryID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count corrections: %w", err)
	}
	return count, nil
}
