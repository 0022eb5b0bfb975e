// Package testutil provides test doubles for LLM-backed components.
package testutil

import (
	"context"
	"sync"

	"github.com/c360studio/casegen/llm"
)

// MockGenerator is a thread-safe scripted generator for testing. It returns
// configured responses in sequence and captures every prompt for
// verification.
//
// Usage:
//
//	mock := &testutil.MockGenerator{
//	    Responses: []string{`{"scenarios": ["a"]}`, `{"test_cases": [...]}`},
//	}
//
// Use Errs to script failures; a nil entry means the corresponding call
// succeeds with the next response.
type MockGenerator struct {
	mu        sync.Mutex
	Responses []string // responses returned in sequence
	Errs      []error  // per-call errors; nil entries fall through to Responses
	prompts   []string
	opts      []llm.GenerateOptions
	calls     int
	respIdx   int
}

// Generate implements the generator contract used by the pipeline.
func (m *MockGenerator) Generate(_ context.Context, prompt string, opts llm.GenerateOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := m.calls
	m.calls++
	m.prompts = append(m.prompts, prompt)
	m.opts = append(m.opts, opts)

	if call < len(m.Errs) && m.Errs[call] != nil {
		return "", m.Errs[call]
	}
	if m.respIdx < len(m.Responses) {
		resp := m.Responses[m.respIdx]
		m.respIdx++
		return resp, nil
	}
	return "", nil
}

// Calls returns the number of Generate invocations.
func (m *MockGenerator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Prompts returns the captured prompts in call order.
func (m *MockGenerator) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.prompts))
	copy(out, m.prompts)
	return out
}

// Options returns the captured options in call order.
func (m *MockGenerator) Options() []llm.GenerateOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llm.GenerateOptions, len(m.opts))
	copy(out, m.opts)
	return out
}

// Reset clears captured state so the mock can be reused across cases.
func (m *MockGenerator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = nil
	m.opts = nil
	m.calls = 0
	m.respIdx = 0
}

// GeneratorFunc adapts a function to the generator contract, for tests that
// route responses by prompt content.
type GeneratorFunc func(ctx context.Context, prompt string, opts llm.GenerateOptions) (string, error)

// Generate implements the generator contract.
func (f GeneratorFunc) Generate(ctx context.Context, prompt string, opts llm.GenerateOptions) (string, error) {
	return f(ctx, prompt, opts)
}
