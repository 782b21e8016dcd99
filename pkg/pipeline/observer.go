package pipeline

import (
	"context"
	"log/slog"
	"time"
)

// RunInfo identifies a pipeline run for observers.
type RunInfo struct {
	RunID       string
	ParentRunID string
	Pipeline    string
	Inputs      map[string]any
	StartedAt   time.Time
}

type runKey struct{}

// RunFromContext returns the run whose step is executing with ctx. Prompt
// executors and tools use it to attribute their work to a run.
func RunFromContext(ctx context.Context) (RunInfo, bool) {
	run, ok := ctx.Value(runKey{}).(RunInfo)
	return run, ok
}

// StepInfo identifies a step for observers.
type StepInfo struct {
	Name   string
	Kind   StepKind
	Target string
}

// Observer receives callbacks from the engine as a run progresses.
//
// Callbacks run synchronously on the run's goroutine, so implementations
// should return quickly. Sub-pipeline runs are reported as their own runs
// with ParentRunID set.
type Observer interface {
	OnRunStart(ctx context.Context, run RunInfo)
	OnRunCompleted(ctx context.Context, run RunInfo, output any, d time.Duration)
	OnRunFailed(ctx context.Context, run RunInfo, err error, d time.Duration)

	OnStepStart(ctx context.Context, run RunInfo, step StepInfo)
	// OnStepCompleted is called for both successes and failures (res.Err != nil).
	OnStepCompleted(ctx context.Context, run RunInfo, res StepResult, output any)
	OnStepSkipped(ctx context.Context, run RunInfo, step StepInfo)
}

// NoopObserver ignores every event.
type NoopObserver struct{}

func (NoopObserver) OnRunStart(context.Context, RunInfo)                         {}
func (NoopObserver) OnRunCompleted(context.Context, RunInfo, any, time.Duration) {}
func (NoopObserver) OnRunFailed(context.Context, RunInfo, error, time.Duration)  {}
func (NoopObserver) OnStepStart(context.Context, RunInfo, StepInfo)              {}
func (NoopObserver) OnStepCompleted(context.Context, RunInfo, StepResult, any)   {}
func (NoopObserver) OnStepSkipped(context.Context, RunInfo, StepInfo)            {}

// CompositeObserver fans events out to several observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver returns an Observer forwarding to each non-nil
// observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	switch len(filtered) {
	case 0:
		return NoopObserver{}
	case 1:
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnRunStart(ctx context.Context, run RunInfo) {
	for _, o := range c.observers {
		o.OnRunStart(ctx, run)
	}
}

func (c *CompositeObserver) OnRunCompleted(ctx context.Context, run RunInfo, output any, d time.Duration) {
	for _, o := range c.observers {
		o.OnRunCompleted(ctx, run, output, d)
	}
}

func (c *CompositeObserver) OnRunFailed(ctx context.Context, run RunInfo, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnRunFailed(ctx, run, err, d)
	}
}

func (c *CompositeObserver) OnStepStart(ctx context.Context, run RunInfo, step StepInfo) {
	for _, o := range c.observers {
		o.OnStepStart(ctx, run, step)
	}
}

func (c *CompositeObserver) OnStepCompleted(ctx context.Context, run RunInfo, res StepResult, output any) {
	for _, o := range c.observers {
		o.OnStepCompleted(ctx, run, res, output)
	}
}

func (c *CompositeObserver) OnStepSkipped(ctx context.Context, run RunInfo, step StepInfo) {
	for _, o := range c.observers {
		o.OnStepSkipped(ctx, run, step)
	}
}

// LoggingObserver writes run and step lifecycle events with log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver returns a LoggingObserver; a nil logger means slog.Default().
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnRunStart(ctx context.Context, run RunInfo) {
	o.Logger.InfoContext(ctx, "run_start",
		slog.String("pipeline", run.Pipeline),
		slog.String("run_id", run.RunID),
		slog.String("parent_run_id", run.ParentRunID),
	)
}

func (o *LoggingObserver) OnRunCompleted(ctx context.Context, run RunInfo, _ any, d time.Duration) {
	o.Logger.InfoContext(ctx, "run_completed",
		slog.String("pipeline", run.Pipeline),
		slog.String("run_id", run.RunID),
		slog.Duration("duration", d),
	)
}

func (o *LoggingObserver) OnRunFailed(ctx context.Context, run RunInfo, err error, d time.Duration) {
	o.Logger.ErrorContext(ctx, "run_failed",
		slog.String("pipeline", run.Pipeline),
		slog.String("run_id", run.RunID),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnStepStart(ctx context.Context, run RunInfo, step StepInfo) {
	o.Logger.DebugContext(ctx, "step_start",
		slog.String("run_id", run.RunID),
		slog.String("step", step.Name),
		slog.String("kind", string(step.Kind)),
		slog.String("target", step.Target),
	)
}

func (o *LoggingObserver) OnStepCompleted(ctx context.Context, run RunInfo, res StepResult, _ any) {
	level := slog.LevelDebug
	msg := "step_completed"
	if res.Err != nil {
		level = slog.LevelError
		msg = "step_failed"
	}
	o.Logger.Log(ctx, level, msg,
		slog.String("run_id", run.RunID),
		slog.String("step", res.Name),
		slog.String("kind", string(res.Kind)),
		slog.Duration("duration", res.Duration),
		slog.Any("error", res.Err),
	)
}

func (o *LoggingObserver) OnStepSkipped(ctx context.Context, run RunInfo, step StepInfo) {
	o.Logger.DebugContext(ctx, "step_skipped",
		slog.String("run_id", run.RunID),
		slog.String("step", step.Name),
	)
}
