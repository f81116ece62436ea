package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/felixkade/ledgersync/internal/llm"
	"github.com/felixkade/ledgersync/internal/model"
)

// MockClassifier is a test implementation of the Classifier interface. It
// returns scripted results keyed by normalized description.
type MockClassifier struct {
	results map[string]*llm.Result
	err     error
	calls   []model.BankTransaction
	mu      sync.Mutex
}

// NewMockClassifier creates an empty mock classifier.
func NewMockClassifier() *MockClassifier {
	return &MockClassifier{results: make(map[string]*llm.Result)}
}

// SetResult scripts the result returned for a normalized description.
func (m *MockClassifier) SetResult(description string, result *llm.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[model.NormalizeDescription(description)] = result
}

// SetError makes every classification fail with the given error.
func (m *MockClassifier) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Classify returns the scripted result for the transaction's description.
func (m *MockClassifier) Classify(_ context.Context, txn *model.BankTransaction, _ []model.Category) (*llm.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, *txn)
	if m.err != nil {
		return nil, m.err
	}

	result, ok := m.results[txn.NormalizedDescription()]
	if !ok {
		return nil, fmt.Errorf("no scripted result for %q", txn.Description)
	}
	return result, nil
}

// Calls returns the transactions submitted for classification.
func (m *MockClassifier) Calls() []model.BankTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	calls := make([]model.BankTransaction, len(m.calls))
	copy(calls, m.calls)
	return calls
}
