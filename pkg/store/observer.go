package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/zen-systems/contentflow/pkg/pipeline"
)

// OnRunStart records a running run. Write failures in the observer callbacks
// are logged and never fail the run.
func (s *SQLiteStore) OnRunStart(ctx context.Context, run pipeline.RunInfo) {
	s.check(ctx, run.RunID, s.SaveRun(context.WithoutCancel(ctx), &Run{
		ID:        run.RunID,
		ParentID:  run.ParentRunID,
		Pipeline:  run.Pipeline,
		Status:    string(pipeline.StatusRunning),
		Inputs:    run.Inputs,
		StartedAt: run.StartedAt,
	}))
}

func (s *SQLiteStore) OnRunCompleted(ctx context.Context, run pipeline.RunInfo, output any, d time.Duration) {
	s.finish(ctx, run, pipeline.StatusCompleted, output, "", d)
}

func (s *SQLiteStore) OnRunFailed(ctx context.Context, run pipeline.RunInfo, err error, d time.Duration) {
	s.finish(ctx, run, pipeline.StatusFailed, nil, err.Error(), d)
}

func (s *SQLiteStore) OnStepCompleted(ctx context.Context, run pipeline.RunInfo, res pipeline.StepResult, _ any) {
	s.check(ctx, run.RunID, s.AddStep(context.WithoutCancel(ctx), run.RunID, Step{
		Name:     res.Name,
		Kind:     string(res.Kind),
		Target:   res.Target,
		Status:   string(res.Status),
		Branch:   res.Branch,
		Error:    res.Error,
		Duration: res.Duration,
	}))
}

func (s *SQLiteStore) OnStepSkipped(ctx context.Context, run pipeline.RunInfo, step pipeline.StepInfo) {
	s.check(ctx, run.RunID, s.AddStep(context.WithoutCancel(ctx), run.RunID, Step{
		Name:   step.Name,
		Kind:   string(step.Kind),
		Target: step.Target,
		Status: string(pipeline.StatusSkipped),
	}))
}

func (s *SQLiteStore) finish(ctx context.Context, run pipeline.RunInfo, status pipeline.Status, output any, errMsg string, d time.Duration) {
	ended := run.StartedAt.Add(d)
	s.check(ctx, run.RunID, s.SaveRun(context.WithoutCancel(ctx), &Run{
		ID:        run.RunID,
		ParentID:  run.ParentRunID,
		Pipeline:  run.Pipeline,
		Status:    string(status),
		Inputs:    run.Inputs,
		Output:    output,
		Error:     errMsg,
		StartedAt: run.StartedAt,
		EndedAt:   &ended,
		Duration:  d,
	}))
}

func (s *SQLiteStore) check(ctx context.Context, runID string, err error) {
	if err != nil {
		s.logger.WarnContext(ctx, "run_history_write_failed", slog.String("run_id", runID), slog.Any("error", err))
	}
}
