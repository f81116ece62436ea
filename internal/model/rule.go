package model

import "time"

// RuleMatchType selects the matching semantics for a categorization rule.
type RuleMatchType string

// Rule match type constants.
const (
	MatchExact       RuleMatchType = "exact"
	MatchContains    RuleMatchType = "contains"
	MatchRegex       RuleMatchType = "regex"
	MatchAmountRange RuleMatchType = "amount_range"
)

// RuleSource indicates who owns a categorization rule.
type RuleSource string

const (
	// RuleSourceSystem marks seeded rules that regular users cannot modify.
	RuleSourceSystem RuleSource = "system"
	// RuleSourceUser marks rules owned by a single user, including rules
	// promoted from repeated corrections.
	RuleSourceUser RuleSource = "user"
)

// CategorizationRule is an ordered matcher that assigns a category to
// transactions. Rules are evaluated in priority order ascending; the first
// match wins.
type CategorizationRule struct {
	CreatedAt  time.Time
	UpdatedAt  time.Time
	AmountMin  *float64
	AmountMax  *float64
	Direction  *TransactionDirection
	UserID     *string
	Pattern    string
	MatchType  RuleMatchType
	Source     RuleSource
	ID         int64
	CategoryID int64
	Priority   int
	Active     bool
	AutoApprove bool
}

// OwnedBy reports whether the given user may edit or delete this rule.
// System rules have no owner and are immutable by regular users.
func (r *CategorizationRule) OwnedBy(userID string) bool {
	return r.Source == RuleSourceUser && r.UserID != nil && *r.UserID == userID
}

// AppliesTo reports whether the rule's direction constraint, if any, permits
// the given transaction direction.
func (r *CategorizationRule) AppliesTo(direction TransactionDirection) bool {
	return r.Direction == nil || *r.Direction == direction
}
