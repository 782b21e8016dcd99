package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zen-systems/contentflow/pkg/schema"
)

var (
	// ErrEmptyName is returned when an input or step is declared without a name.
	ErrEmptyName = errors.New("name is required")
	// ErrNoPromptExecutor is returned when a prompt step runs on an engine
	// without a PromptExecutor.
	ErrNoPromptExecutor = errors.New("no prompt executor configured")
	// ErrNoToolInvoker is returned when a tool step runs on an engine without
	// a ToolInvoker.
	ErrNoToolInvoker = errors.New("no tool invoker configured")
)

// SchemaValidationError is returned when an output does not match its schema.
type SchemaValidationError = schema.ValidationError

// MissingRequiredInputError is returned when a run omits inputs that have no default.
type MissingRequiredInputError struct {
	Pipeline string
	Names    []string
}

func (e *MissingRequiredInputError) Error() string {
	return fmt.Sprintf("pipeline %q: missing required inputs: %s", e.Pipeline, strings.Join(e.Names, ", "))
}

// DuplicateNameError is returned when an input or step name is declared twice.
type DuplicateNameError struct {
	Pipeline string
	Name     string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("pipeline %q: duplicate name %q", e.Pipeline, e.Name)
}

// UnbalancedBlockError is returned for mismatched If/Else/EndIf calls.
type UnbalancedBlockError struct {
	Pipeline string
	Reason   string
}

func (e *UnbalancedBlockError) Error() string {
	return fmt.Sprintf("pipeline %q: unbalanced conditional block: %s", e.Pipeline, e.Reason)
}

// MissingInputError is returned when a sub-pipeline mapping does not cover
// every input the sub-pipeline requires.
type MissingInputError struct {
	Step     string
	Pipeline string
	Names    []string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("step %q: sub-pipeline %q is missing inputs: %s", e.Step, e.Pipeline, strings.Join(e.Names, ", "))
}

// UnknownInputError is returned when a sub-pipeline mapping names an input
// the sub-pipeline does not declare.
type UnknownInputError struct {
	Pipeline string
	Name     string
}

func (e *UnknownInputError) Error() string {
	return fmt.Sprintf("pipeline %q has no input %q", e.Pipeline, e.Name)
}

// UnresolvedReferenceError is returned when a reference names a value that is
// not available: a step declared later, an undeclared input, a step that was
// skipped by a branch, or a path that does not exist in the referenced output.
type UnresolvedReferenceError struct {
	Step   string
	Ref    string
	Path   string
	Reason string
}

func (e *UnresolvedReferenceError) Error() string {
	ref := e.Ref
	if e.Path != "" {
		ref += "." + e.Path
	}
	return fmt.Sprintf("step %q: unresolved reference %q: %s", e.Step, ref, e.Reason)
}

// ToolInvocationError wraps a failure returned by a tool.
type ToolInvocationError struct {
	Step string
	Tool string
	Err  error
}

func (e *ToolInvocationError) Error() string {
	return fmt.Sprintf("step %q: tool %q failed: %v", e.Step, e.Tool, e.Err)
}

func (e *ToolInvocationError) Unwrap() error { return e.Err }

// FunctionStepError wraps a failure (or panic) raised by a function or predicate.
type FunctionStepError struct {
	Step string
	Func string
	Err  error
}

func (e *FunctionStepError) Error() string {
	return fmt.Sprintf("step %q: function %q failed: %v", e.Step, e.Func, e.Err)
}

func (e *FunctionStepError) Unwrap() error { return e.Err }

// PromptStepError wraps a failure from the prompt executor.
type PromptStepError struct {
	Step string
	Err  error
}

func (e *PromptStepError) Error() string {
	return fmt.Sprintf("step %q: prompt failed: %v", e.Step, e.Err)
}

func (e *PromptStepError) Unwrap() error { return e.Err }

// SubPipelineError wraps the failure of an embedded pipeline.
type SubPipelineError struct {
	Step     string
	Pipeline string
	Err      error
}

func (e *SubPipelineError) Error() string {
	return fmt.Sprintf("step %q: sub-pipeline %q failed: %v", e.Step, e.Pipeline, e.Err)
}

func (e *SubPipelineError) Unwrap() error { return e.Err }

// IsBuildError reports whether err is raised while constructing a pipeline,
// as opposed to while running one.
func IsBuildError(err error) bool {
	var (
		dup     *DuplicateNameError
		block   *UnbalancedBlockError
		missing *MissingInputError
		unknown *UnknownInputError
	)
	return errors.As(err, &dup) || errors.As(err, &block) ||
		errors.As(err, &missing) || errors.As(err, &unknown) || errors.Is(err, ErrEmptyName)
}
