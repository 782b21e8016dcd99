package adapter

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/zen-systems/contentflow/pkg/artifact"
)

// MockAdapter returns deterministic responses for local runs and tests.
type MockAdapter struct {
	responses       map[string]string
	defaultResponse string
	respond         func(prompt string) (string, error)

	// Usage is attached to every response when set.
	Usage *Usage

	mu       sync.Mutex
	failures []error
	calls    []string
}

// NewMockAdapter creates a mock adapter with a default response.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		responses:       make(map[string]string),
		defaultResponse: "mock response:",
	}
}

// NewMockAdapterWithResponses creates a mock adapter with predefined
// responses. A key matches a prompt equal to it or, failing that, the longest
// key contained in the prompt wins.
func NewMockAdapterWithResponses(responses map[string]string, defaultResponse string) *MockAdapter {
	if defaultResponse == "" {
		defaultResponse = "mock response:"
	}
	return &MockAdapter{responses: responses, defaultResponse: defaultResponse}
}

// NewMockAdapterFunc creates a mock adapter that answers with fn.
func NewMockAdapterFunc(fn func(prompt string) (string, error)) *MockAdapter {
	return &MockAdapter{respond: fn, defaultResponse: "mock response:"}
}

// FailNext makes the next len(errs) calls return the given errors in order.
func (a *MockAdapter) FailNext(errs ...error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures = append(a.failures, errs...)
}

// Calls returns the prompts received so far.
func (a *MockAdapter) Calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

// Name returns the adapter identifier.
func (a *MockAdapter) Name() string {
	return "mock"
}

// Models returns the list of supported mock models.
func (a *MockAdapter) Models() []string {
	return []string{"mock-1"}
}

// Generate returns a deterministic artifact for the prompt.
func (a *MockAdapter) Generate(ctx context.Context, model string, prompt string) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if model == "" {
		model = "mock-1"
	}

	a.mu.Lock()
	a.calls = append(a.calls, prompt)
	if len(a.failures) > 0 {
		err := a.failures[0]
		a.failures = a.failures[1:]
		a.mu.Unlock()
		return nil, err
	}
	a.mu.Unlock()

	content, err := a.answer(prompt)
	if err != nil {
		return nil, err
	}
	art := artifact.New(content, a.Name(), model, prompt)
	return &Response{Artifact: art, Usage: a.Usage}, nil
}

func (a *MockAdapter) answer(prompt string) (string, error) {
	if a.respond != nil {
		return a.respond(prompt)
	}
	if response, ok := a.responses[prompt]; ok {
		return response, nil
	}

	keys := make([]string, 0, len(a.responses))
	for k := range a.responses {
		if k != "" && strings.Contains(prompt, k) {
			keys = append(keys, k)
		}
	}
	if len(keys) > 0 {
		sort.Slice(keys, func(i, j int) bool {
			if len(keys[i]) != len(keys[j]) {
				return len(keys[i]) > len(keys[j])
			}
			return keys[i] < keys[j]
		})
		return a.responses[keys[0]], nil
	}
	return fmt.Sprintf("%s\n%s", a.defaultResponse, prompt), nil
}
