package pipeline

import "fmt"

// RunContext holds the values of one run: the input bindings and each step
// output, keyed by name. Values are written once and never replaced.
type RunContext struct {
	values map[string]any
	order  []string
}

func newRunContext() *RunContext {
	return &RunContext{values: make(map[string]any)}
}

func (rc *RunContext) set(name string, v any) error {
	if _, exists := rc.values[name]; exists {
		return fmt.Errorf("run context: %q already written", name)
	}
	rc.values[name] = v
	rc.order = append(rc.order, name)
	return nil
}

// Get returns the value stored under name.
func (rc *RunContext) Get(name string) (any, bool) {
	v, ok := rc.values[name]
	return v, ok
}

// Has reports whether name has a value.
func (rc *RunContext) Has(name string) bool {
	_, ok := rc.values[name]
	return ok
}

// Names returns the stored names in write order.
func (rc *RunContext) Names() []string {
	return append([]string(nil), rc.order...)
}

// Snapshot returns a shallow copy of the stored values.
func (rc *RunContext) Snapshot() map[string]any {
	out := make(map[string]any, len(rc.values))
	for k, v := range rc.values {
		out[k] = v
	}
	return out
}
