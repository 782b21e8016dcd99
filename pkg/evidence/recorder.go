package evidence

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/zen-systems/contentflow/pkg/archive"
	"github.com/zen-systems/contentflow/pkg/artifact"
	"github.com/zen-systems/contentflow/pkg/pipeline"
)

// Recorder is a pipeline.Observer that writes an evidence bundle for every
// run under baseDir. Step outputs and model answers go to the archive; the
// bundle holds references to them. It is safe for concurrent runs.
type Recorder struct {
	pipeline.NoopObserver

	baseDir string
	store   *archive.Store
	logger  *slog.Logger

	mu   sync.Mutex
	runs map[string]*runState
}

type runState struct {
	writer  *Writer
	record  RunRecord
	seq     int
	answers map[string][]AnswerRecord
}

// NewRecorder creates a recorder writing bundles to baseDir.
func NewRecorder(baseDir string, store *archive.Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		baseDir: baseDir,
		store:   store,
		logger:  logger,
		runs:    make(map[string]*runState),
	}
}

// RunDir returns the bundle directory of runID.
func (r *Recorder) RunDir(runID string) string {
	return filepath.Join(r.baseDir, runID)
}

func (r *Recorder) OnRunStart(ctx context.Context, run pipeline.RunInfo) {
	w, err := NewWriter(r.baseDir, run.RunID)
	if err != nil {
		r.logger.WarnContext(ctx, "evidence_disabled", slog.String("run_id", run.RunID), slog.Any("error", err))
		return
	}
	st := &runState{
		writer: w,
		record: RunRecord{
			ID:        run.RunID,
			ParentID:  run.ParentRunID,
			Pipeline:  run.Pipeline,
			Status:    string(pipeline.StatusRunning),
			Inputs:    run.Inputs,
			StartedAt: run.StartedAt,
		},
		answers: make(map[string][]AnswerRecord),
	}
	r.mu.Lock()
	r.runs[run.RunID] = st
	r.mu.Unlock()
	r.check(ctx, run.RunID, w.WriteRun(st.record))
}

func (r *Recorder) OnStepCompleted(ctx context.Context, run pipeline.RunInfo, res pipeline.StepResult, output any) {
	rec := StepRecord{
		Name:           res.Name,
		Kind:           string(res.Kind),
		Target:         res.Target,
		Status:         string(res.Status),
		Branch:         res.Branch,
		Error:          res.Error,
		DurationMillis: res.Duration.Milliseconds(),
	}
	if res.Err == nil && output != nil {
		rec.Output = r.archiveValue(ctx, run.RunID, output)
	}
	r.writeStep(ctx, run.RunID, rec)
}

func (r *Recorder) OnStepSkipped(ctx context.Context, run pipeline.RunInfo, step pipeline.StepInfo) {
	r.writeStep(ctx, run.RunID, StepRecord{
		Name:   step.Name,
		Kind:   string(step.Kind),
		Target: step.Target,
		Status: string(pipeline.StatusSkipped),
	})
}

func (r *Recorder) OnRunCompleted(ctx context.Context, run pipeline.RunInfo, output any, d time.Duration) {
	r.finish(ctx, run, pipeline.StatusCompleted, output, nil, d)
}

func (r *Recorder) OnRunFailed(ctx context.Context, run pipeline.RunInfo, err error, d time.Duration) {
	r.finish(ctx, run, pipeline.StatusFailed, nil, err, d)
}

// RecordArtifact attaches a raw model answer to the step running in ctx. It
// has the signature of pipeline.WithArtifactHook.
func (r *Recorder) RecordArtifact(ctx context.Context, step string, art *artifact.Artifact) {
	run, ok := pipeline.RunFromContext(ctx)
	if !ok || art == nil {
		return
	}
	r.mu.Lock()
	st := r.runs[run.RunID]
	r.mu.Unlock()
	if st == nil {
		return
	}

	ans := AnswerRecord{
		ArtifactID: art.ID,
		Adapter:    art.Adapter,
		Model:      art.Model,
		Hash:       art.Hash,
	}
	if art.Prompt != "" {
		rel, sha, err := st.writer.WriteBlob("prompt", []byte(art.Prompt))
		r.check(ctx, run.RunID, err)
		ans.Prompt, ans.PromptHash = rel, sha
	}
	if r.store != nil {
		ref, err := r.store.StoreBlob("answer", []byte(art.Content))
		r.check(ctx, run.RunID, err)
		ans.Answer = ref
	}

	r.mu.Lock()
	st.answers[step] = append(st.answers[step], ans)
	r.mu.Unlock()
}

func (r *Recorder) writeStep(ctx context.Context, runID string, rec StepRecord) {
	r.mu.Lock()
	st := r.runs[runID]
	if st == nil {
		r.mu.Unlock()
		return
	}
	st.seq++
	rec.Seq = st.seq
	rec.Answers = st.answers[rec.Name]
	delete(st.answers, rec.Name)
	r.mu.Unlock()

	rel, err := st.writer.WriteStep(rec)
	r.check(ctx, runID, err)

	r.mu.Lock()
	st.record.Steps = append(st.record.Steps, rel)
	r.mu.Unlock()
}

func (r *Recorder) finish(ctx context.Context, run pipeline.RunInfo, status pipeline.Status, output any, runErr error, d time.Duration) {
	r.mu.Lock()
	st := r.runs[run.RunID]
	delete(r.runs, run.RunID)
	r.mu.Unlock()
	if st == nil {
		return
	}

	st.record.Status = string(status)
	st.record.EndedAt = run.StartedAt.Add(d)
	st.record.DurationMillis = d.Milliseconds()
	if runErr != nil {
		st.record.Error = runErr.Error()
	}
	if output != nil {
		st.record.Output = r.archiveValue(ctx, run.RunID, output)
	}
	r.check(ctx, run.RunID, st.writer.WriteRun(st.record))
}

func (r *Recorder) archiveValue(ctx context.Context, runID string, v any) *archive.Ref {
	if r.store == nil {
		return nil
	}
	var (
		ref archive.Ref
		err error
	)
	if s, ok := v.(string); ok {
		ref, err = r.store.StoreBlob("output", []byte(s))
	} else {
		ref, err = r.store.StoreObject(v, "output")
	}
	if err != nil {
		r.check(ctx, runID, err)
		return nil
	}
	return &ref
}

func (r *Recorder) check(ctx context.Context, runID string, err error) {
	if err != nil {
		r.logger.WarnContext(ctx, "evidence_write_failed", slog.String("run_id", runID), slog.Any("error", err))
	}
}
