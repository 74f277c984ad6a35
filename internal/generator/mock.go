package generator

import (
	"context"
	"sync"

	"github.com/dshills/docsync/pkg/types"
)

// Mock is a Generator for tests. It records every request and answers with
// Func, or with "doc for <qualified name>" when Func is nil. Errors from
// Fail are returned for matching qualified names.
type Mock struct {
	Func func(Request) (string, error)
	Fail map[string]error

	mu    sync.Mutex
	calls []Request
}

// Generate implements Generator
func (m *Mock) Generate(ctx context.Context, req Request) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", &types.GenerationError{ElementID: req.Element.ID, Retryable: true, Err: err}
	}
	if err, ok := m.Fail[req.Element.QualifiedName]; ok {
		return "", err
	}
	if m.Func != nil {
		return m.Func(req)
	}
	return "doc for " + req.Element.QualifiedName, nil
}

// Calls returns a copy of the recorded requests
func (m *Mock) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of Generate calls
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Reset forgets recorded calls
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}
