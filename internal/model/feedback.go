package model

import "time"

// FeedbackEvent records a single user correction of a suggested category.
// Events are append-only; they exist to detect repeated corrections of the
// same description so the learner can promote them into a rule.
type FeedbackEvent struct {
	CreatedAt           time.Time
	SuggestedCategoryID *int64
	ID                  string
	UserID              string
	Fingerprint         string
	TransactionID       int64
	FinalCategoryID     int64
}
