// Package testutil provides shared mock implementations for use in tests
// across the codebase.
package testutil

import (
	"context"
	"sync"
	"time"

	"sqlgate/internal/domain"
)

// === Executor Mock ===

// ExecCall records one statement passed to a MockExecutor.
type ExecCall struct {
	Statement domain.Statement
	Timeout   time.Duration
	Query     bool
}

// MockExecutor implements records.Executor for testing. Unset functions
// return an empty result.
type MockExecutor struct {
	QueryFn func(ctx context.Context, st domain.Statement, timeout time.Duration) ([]domain.Row, error)
	ExecFn  func(ctx context.Context, st domain.Statement, timeout time.Duration) (domain.ExecResult, error)

	mu    sync.Mutex
	calls []ExecCall
}

// Query implements the interface method for testing.
func (m *MockExecutor) Query(ctx context.Context, st domain.Statement, timeout time.Duration) ([]domain.Row, error) {
	m.record(ExecCall{Statement: st, Timeout: timeout, Query: true})
	if m.QueryFn != nil {
		return m.QueryFn(ctx, st, timeout)
	}
	return []domain.Row{}, nil
}

// Exec implements the interface method for testing.
func (m *MockExecutor) Exec(ctx context.Context, st domain.Statement, timeout time.Duration) (domain.ExecResult, error) {
	m.record(ExecCall{Statement: st, Timeout: timeout})
	if m.ExecFn != nil {
		return m.ExecFn(ctx, st, timeout)
	}
	return domain.ExecResult{}, nil
}

func (m *MockExecutor) record(c ExecCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, c)
}

// Calls returns the statements received so far, in order.
func (m *MockExecutor) Calls() []ExecCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ExecCall(nil), m.calls...)
}
