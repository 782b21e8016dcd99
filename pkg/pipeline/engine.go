package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zen-systems/contentflow/pkg/schema"
)

// PromptRequest is what a prompt step asks of the PromptExecutor.
type PromptRequest struct {
	Step     string
	Task     string
	Inputs   map[string]any
	Adapter  string
	Model    string
	TaskType string
	Schema   *schema.Schema
}

// PromptExecutor runs a prompt against a language model.
type PromptExecutor interface {
	ExecutePrompt(ctx context.Context, req PromptRequest) (any, error)
}

// ToolInvoker calls a named external tool.
type ToolInvoker interface {
	InvokeTool(ctx context.Context, name string, args map[string]any) (any, error)
}

// Status is the lifecycle state of a run or step.
type Status string

const (
	StatusReady     Status = "ready"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// StepResult records how one step went.
type StepResult struct {
	Name      string        `json:"name"`
	Kind      StepKind      `json:"kind"`
	Target    string        `json:"target,omitempty"`
	Status    Status        `json:"status"`
	Branch    string        `json:"branch,omitempty"`
	StartedAt time.Time     `json:"started_at,omitempty"`
	EndedAt   time.Time     `json:"ended_at,omitempty"`
	Duration  time.Duration `json:"duration"`
	Err       error         `json:"-"`
	Error     string        `json:"error,omitempty"`
}

// Result is the outcome of Engine.Execute.
type Result struct {
	RunID     string         `json:"run_id"`
	Pipeline  string         `json:"pipeline"`
	Status    Status         `json:"status"`
	Output    any            `json:"output,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
	Steps     []StepResult   `json:"steps"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   time.Time      `json:"ended_at"`
	Error     string         `json:"error,omitempty"`
}

// Duration returns the wall time of the run.
func (r *Result) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// Engine runs pipelines. It keeps no per-run state and is safe for
// concurrent use.
type Engine struct {
	prompts  PromptExecutor
	tools    ToolInvoker
	observer Observer
	logger   *slog.Logger
	now      func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithPromptExecutor sets the executor for prompt steps.
func WithPromptExecutor(p PromptExecutor) EngineOption {
	return func(e *Engine) { e.prompts = p }
}

// WithToolInvoker sets the invoker for tool steps.
func WithToolInvoker(t ToolInvoker) EngineOption {
	return func(e *Engine) { e.tools = t }
}

// WithObserver sets the run observer.
func WithObserver(o Observer) EngineOption {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates an engine.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		observer: NoopObserver{},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs p against bindings and returns the (schema-validated) final
// output in Result.Output. On failure the returned Result is still non-nil
// and carries the status and step results up to the failure.
func (e *Engine) Execute(ctx context.Context, p *Pipeline, bindings map[string]any) (*Result, error) {
	return e.execute(ctx, p, bindings, "")
}

func (e *Engine) execute(ctx context.Context, p *Pipeline, bindings map[string]any, parentRunID string) (*Result, error) {
	if p == nil {
		return nil, fmt.Errorf("pipeline is nil")
	}

	started := e.now()
	run := RunInfo{
		RunID:       uuid.NewString(),
		ParentRunID: parentRunID,
		Pipeline:    p.name,
		Inputs:      bindings,
		StartedAt:   started,
	}
	res := &Result{
		RunID:     run.RunID,
		Pipeline:  p.name,
		Status:    StatusReady,
		StartedAt: started,
	}

	ctx = context.WithValue(ctx, runKey{}, run)
	e.observer.OnRunStart(ctx, run)

	x := &execution{engine: e, run: run, result: res}
	output, err := x.runPipeline(ctx, p, bindings)

	res.EndedAt = e.now()
	if x.rc != nil {
		res.Context = x.rc.Snapshot()
	}
	if err != nil {
		res.Status = StatusFailed
		res.Error = err.Error()
		e.observer.OnRunFailed(ctx, run, err, res.Duration())
		return res, err
	}

	res.Status = StatusCompleted
	res.Output = output
	e.observer.OnRunCompleted(ctx, run, output, res.Duration())
	return res, nil
}

// execution is the state of a single run.
type execution struct {
	engine *Engine
	run    RunInfo
	result *Result
	rc     *RunContext
	last   string
}

func (x *execution) runPipeline(ctx context.Context, p *Pipeline, bindings map[string]any) (any, error) {
	rc, err := seedContext(p, bindings)
	if err != nil {
		return nil, err
	}
	x.rc = rc
	for name := range bindings {
		if _, ok := p.Input(name); !ok {
			x.engine.logger.DebugContext(ctx, "ignoring undeclared binding",
				slog.String("pipeline", p.name), slog.String("name", name))
		}
	}

	x.result.Status = StatusRunning
	if err := x.steps(ctx, p.steps); err != nil {
		return nil, err
	}
	return x.finalOutput(p)
}

func seedContext(p *Pipeline, bindings map[string]any) (*RunContext, error) {
	rc := newRunContext()
	var missing []string
	for _, in := range p.inputs {
		if v, ok := bindings[in.Name]; ok {
			_ = rc.set(in.Name, v)
			continue
		}
		if in.HasDefault {
			_ = rc.set(in.Name, in.Default)
			continue
		}
		missing = append(missing, in.Name)
	}
	if len(missing) > 0 {
		return nil, &MissingRequiredInputError{Pipeline: p.name, Names: missing}
	}
	return rc, nil
}

func (x *execution) steps(ctx context.Context, steps []*Step) error {
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := x.step(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (x *execution) step(ctx context.Context, s *Step) error {
	info := StepInfo{Name: s.Name, Kind: s.Kind, Target: s.Target()}
	start := x.engine.now()
	x.engine.observer.OnStepStart(ctx, x.run, info)

	// Reserve the slot now so nested branch steps are listed after their parent.
	idx := len(x.result.Steps)
	x.result.Steps = append(x.result.Steps, StepResult{
		Name: s.Name, Kind: s.Kind, Target: info.Target, Status: StatusRunning, StartedAt: start,
	})

	output, produced, branch, err := x.dispatch(ctx, s)

	end := x.engine.now()
	sr := x.result.Steps[idx]
	sr.EndedAt = end
	sr.Duration = end.Sub(start)
	sr.Branch = branch
	if err != nil {
		sr.Status = StatusFailed
		sr.Err = err
		sr.Error = err.Error()
	} else {
		sr.Status = StatusCompleted
	}
	x.result.Steps[idx] = sr

	if err == nil && produced {
		if setErr := x.rc.set(s.Name, output); setErr != nil {
			err = setErr
		} else {
			x.last = s.Name
		}
	}
	x.engine.observer.OnStepCompleted(ctx, x.run, sr, output)
	return err
}

func (x *execution) dispatch(ctx context.Context, s *Step) (output any, produced bool, branch string, err error) {
	switch s.Kind {
	case KindBranch:
		branch, err = x.branch(ctx, s)
		return nil, false, branch, err
	case KindSub:
		output, err = x.sub(ctx, s)
		return output, err == nil, "", err
	}

	args, err := resolveArgs(x.rc, s.Name, s.Args)
	if err != nil {
		return nil, false, "", err
	}

	switch s.Kind {
	case KindPrompt:
		output, err = x.prompt(ctx, s, args)
	case KindTool:
		output, err = x.tool(ctx, s, args)
	case KindFunc:
		output, err = callFunc(ctx, s, args)
	default:
		err = fmt.Errorf("step %q: unknown kind %q", s.Name, s.Kind)
	}
	return output, err == nil, "", err
}

func (x *execution) prompt(ctx context.Context, s *Step, args map[string]any) (any, error) {
	if x.engine.prompts == nil {
		return nil, &PromptStepError{Step: s.Name, Err: ErrNoPromptExecutor}
	}
	out, err := x.engine.prompts.ExecutePrompt(ctx, PromptRequest{
		Step:     s.Name,
		Task:     s.Task,
		Inputs:   args,
		Adapter:  s.Adapter,
		Model:    s.Model,
		TaskType: s.TaskType,
		Schema:   s.Schema,
	})
	if err != nil {
		return nil, &PromptStepError{Step: s.Name, Err: err}
	}
	if s.Schema != nil {
		validated, verr := s.Schema.Validate(out)
		if verr != nil {
			return nil, &PromptStepError{Step: s.Name, Err: verr}
		}
		out = validated
	}
	return out, nil
}

func (x *execution) tool(ctx context.Context, s *Step, args map[string]any) (any, error) {
	if x.engine.tools == nil {
		return nil, &ToolInvocationError{Step: s.Name, Tool: s.Tool, Err: ErrNoToolInvoker}
	}
	out, err := x.engine.tools.InvokeTool(ctx, s.Tool, args)
	if err != nil {
		return nil, &ToolInvocationError{Step: s.Name, Tool: s.Tool, Err: err}
	}
	return out, nil
}

func callFunc(ctx context.Context, s *Step, args map[string]any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = &FunctionStepError{Step: s.Name, Func: s.FuncName, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	out, err = s.Func(ctx, args)
	if err != nil {
		return nil, &FunctionStepError{Step: s.Name, Func: s.FuncName, Err: err}
	}
	return out, nil
}

func (x *execution) branch(ctx context.Context, s *Step) (string, error) {
	args, err := resolveArgs(x.rc, s.Name, s.Args)
	if err != nil {
		return "", err
	}
	ok, err := evalPredicate(s, args)
	if err != nil {
		return "", err
	}
	if ok {
		if err := x.steps(ctx, s.Then); err != nil {
			return "then", err
		}
		x.skip(ctx, s.Else)
		return "then", nil
	}
	x.skip(ctx, s.Then)
	if len(s.Else) == 0 {
		return "none", nil
	}
	return "else", x.steps(ctx, s.Else)
}

func evalPredicate(s *Step, args map[string]any) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = &FunctionStepError{Step: s.Name, Func: s.PredicateName, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	ok, err = s.Predicate(args)
	if err != nil {
		return false, &FunctionStepError{Step: s.Name, Func: s.PredicateName, Err: err}
	}
	return ok, nil
}

func (x *execution) skip(ctx context.Context, steps []*Step) {
	for _, s := range steps {
		info := StepInfo{Name: s.Name, Kind: s.Kind, Target: s.Target()}
		x.result.Steps = append(x.result.Steps, StepResult{
			Name: s.Name, Kind: s.Kind, Target: info.Target, Status: StatusSkipped,
		})
		x.engine.observer.OnStepSkipped(ctx, x.run, info)
		if s.Kind == KindBranch {
			x.skip(ctx, s.Then)
			x.skip(ctx, s.Else)
		}
	}
}

func (x *execution) sub(ctx context.Context, s *Step) (any, error) {
	bindings, err := resolveArgs(x.rc, s.Name, s.Mapping)
	if err != nil {
		return nil, err
	}
	res, err := x.engine.execute(ctx, s.Sub, bindings, x.run.RunID)
	if err != nil {
		return nil, &SubPipelineError{Step: s.Name, Pipeline: s.Sub.Name(), Err: err}
	}
	return res.Output, nil
}

func (x *execution) finalOutput(p *Pipeline) (any, error) {
	name := p.finalOutput
	if name == "" {
		name = x.last
	}
	if name == "" {
		return nil, &UnresolvedReferenceError{Step: "final_output", Reason: "no step produced an output"}
	}
	out, ok := x.rc.Get(name)
	if !ok {
		return nil, &UnresolvedReferenceError{Step: "final_output", Ref: name, Reason: "step did not run"}
	}
	if p.outputSchema == nil {
		return out, nil
	}
	return p.outputSchema.Validate(out)
}
