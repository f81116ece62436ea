// Package rules evaluates ordered categorization rules against transactions.
package rules

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/felixkade/ledgersync/internal/model"
)

// Match is the outcome of a successful rule evaluation. Rule matches are
// authoritative, so confidence is always 1.0.
type Match struct {
	Rule       model.CategorizationRule
	CategoryID int64
	Confidence float64
	Source     model.ClassificationSource
}

// Matcher evaluates rules in priority order ascending. The first matching
// rule wins; there is no rule scoring.
type Matcher struct {
	compiledRegex map[int64]*regexp.Regexp
	rules         []model.CategorizationRule
}

// NewMatcher creates a matcher over the given rules. Rules are sorted by
// priority ascending; regex patterns are pre-compiled, and rules whose
// patterns fail to compile never match.
func NewMatcher(ruleSet []model.CategorizationRule) *Matcher {
	rules := make([]model.CategorizationRule, len(ruleSet))
	copy(rules, ruleSet)
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority < rules[j].Priority
	})

	m := &Matcher{
		rules:         rules,
		compiledRegex: make(map[int64]*regexp.Regexp),
	}

	for _, rule := range rules {
		if rule.MatchType == model.MatchRegex && rule.Pattern != "" {
			if re, err := regexp.Compile("(?i)" + rule.Pattern); err == nil {
				m.compiledRegex[rule.ID] = re
			}
		}
	}

	return m
}

// Match evaluates the transaction against all active rules and returns the
// first match, or nil when no rule applies.
func (m *Matcher) Match(_ context.Context, txn *model.BankTransaction) (*Match, error) {
	description := txn.NormalizedDescription()

	for _, rule := range m.rules {
		if !rule.Active {
			continue
		}
		if !rule.AppliesTo(txn.Direction) {
			continue
		}
		if m.matchesRule(rule, txn, description) {
			return &Match{
				Rule:       rule,
				CategoryID: rule.CategoryID,
				Confidence: 1.0,
				Source:     model.SourceRule,
			}, nil
		}
	}

	return nil, nil
}

func (m *Matcher) matchesRule(rule model.CategorizationRule, txn *model.BankTransaction, description string) bool {
	switch rule.MatchType {
	case model.MatchExact:
		return strings.EqualFold(strings.TrimSpace(rule.Pattern), description)
	case model.MatchContains:
		return strings.Contains(description, strings.ToLower(rule.Pattern))
	case model.MatchRegex:
		re, ok := m.compiledRegex[rule.ID]
		return ok && re.MatchString(description)
	case model.MatchAmountRange:
		amount := math.Abs(txn.Amount)
		if rule.AmountMin != nil && amount < *rule.AmountMin {
			return false
		}
		if rule.AmountMax != nil && amount > *rule.AmountMax {
			return false
		}
		return rule.AmountMin != nil || rule.AmountMax != nil
	}

	return false
}
