// Package tools provides the named external tools pipelines call through
// tool steps: Tavily web search, file output and text-to-speech.
package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ErrUnknownTool is returned when no tool is registered under a name.
var ErrUnknownTool = errors.New("unknown tool")

// Tool is a single named capability.
type Tool interface {
	Name() string
	Description() string
	Invoke(ctx context.Context, args map[string]any) (any, error)
}

// Info describes a registered tool.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// StatusError is returned by HTTP-backed tools on a non-2xx response.
type StatusError struct {
	Tool   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.Tool, e.Status)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Tool, e.Status, e.Body)
}

// Registry holds tools by name. It implements pipeline.ToolInvoker and is
// safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	logger *slog.Logger
}

// NewRegistry returns a registry holding tools.
func NewRegistry(logger *slog.Logger, tools ...Tool) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{tools: make(map[string]Tool), logger: logger}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds t, replacing any tool with the same name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns the registered tools sorted by name.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, Info{Name: t.Name(), Description: t.Description()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// InvokeTool calls the named tool with args.
func (r *Registry) InvokeTool(ctx context.Context, name string, args map[string]any) (any, error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	start := time.Now()
	out, err := t.Invoke(ctx, args)
	if err != nil {
		r.logger.WarnContext(ctx, "tool_failed",
			slog.String("tool", name),
			slog.Duration("duration", time.Since(start)),
			slog.Any("error", err),
		)
		return nil, err
	}
	r.logger.DebugContext(ctx, "tool_completed",
		slog.String("tool", name),
		slog.Duration("duration", time.Since(start)),
	)
	return out, nil
}
