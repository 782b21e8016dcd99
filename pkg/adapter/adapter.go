package adapter

import (
	"context"
)

// Adapter defines the interface for LLM provider adapters.
type Adapter interface {
	// Generate sends a prompt to the model and returns its answer.
	Generate(ctx context.Context, model string, prompt string) (*Response, error)

	// Name returns the adapter's identifier.
	Name() string

	// Models returns the list of supported models.
	Models() []string
}
