package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zen-systems/contentflow/pkg/pipeline"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "contentflow.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndGetRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	run := &Run{
		ID:        "r1",
		Pipeline:  "market_research",
		Status:    "running",
		Inputs:    map[string]any{"topic": "tea"},
		StartedAt: started,
	}
	require.NoError(t, s.SaveRun(ctx, run))
	require.NoError(t, s.AddStep(ctx, "r1", Step{Name: "search", Kind: "tool", Target: "search", Status: "completed", Duration: 1500 * time.Millisecond}))
	require.NoError(t, s.AddStep(ctx, "r1", Step{Name: "analyse", Kind: "prompt", Status: "failed", Error: "boom"}))

	ended := started.Add(2 * time.Second)
	run.Status = "failed"
	run.Error = "boom"
	run.EndedAt = &ended
	run.Duration = 2 * time.Second
	require.NoError(t, s.SaveRun(ctx, run))

	got, err := s.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "failed", got.Status)
	assert.Equal(t, "boom", got.Error)
	assert.Equal(t, map[string]any{"topic": "tea"}, got.Inputs)
	assert.True(t, started.Equal(got.StartedAt))
	require.NotNil(t, got.EndedAt)
	assert.True(t, ended.Equal(*got.EndedAt))
	assert.Equal(t, 2*time.Second, got.Duration)
	require.Len(t, got.Steps, 2)
	assert.Equal(t, 1, got.Steps[0].Seq)
	assert.Equal(t, 1500*time.Millisecond, got.Steps[0].Duration)
	assert.Equal(t, "analyse", got.Steps[1].Name)
	assert.Equal(t, 2, got.Steps[1].Seq)
}

func TestGetRunNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetRun(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestListRuns(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, r := range []Run{
		{ID: "a", Pipeline: "article_writing", Status: "completed"},
		{ID: "b", Pipeline: "fact_checking", Status: "failed"},
		{ID: "c", Pipeline: "article_writing", Status: "completed"},
		{ID: "child", ParentID: "c", Pipeline: "market_research", Status: "completed"},
	} {
		r := r
		r.StartedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.SaveRun(ctx, &r))
	}

	runs, err := s.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, ids(runs))

	runs, err = s.ListRuns(ctx, RunFilter{IncludeChildren: true, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"child", "c"}, ids(runs))

	runs, err = s.ListRuns(ctx, RunFilter{Pipeline: "article_writing", Status: "completed"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, ids(runs))
}

func TestObserverRecordsRuns(t *testing.T) {
	s := openTestStore(t)

	sub := pipeline.New("inner").
		Input("x", "").
		Func("echo", "merge", pipeline.Merge, pipeline.Args{"x": pipeline.InputRef("x")}).
		MustBuild()
	p := pipeline.New("outer").
		If("never", pipeline.Truthy("flag"), pipeline.Args{"flag": pipeline.Literal(false)}).
		Func("skipped", "merge", pipeline.Merge, nil).
		EndIf().
		Embed("nested", sub, pipeline.Args{"x": pipeline.Literal("tea")}).
		MustBuild()

	engine := pipeline.NewEngine(pipeline.WithObserver(s))
	res, err := engine.Execute(context.Background(), p, nil)
	require.NoError(t, err)

	got, err := s.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, "completed", got.Status)
	assert.Equal(t, map[string]any{"x": "tea"}, got.Output)
	require.NotNil(t, got.EndedAt)

	var names, statuses []string
	for _, st := range got.Steps {
		names = append(names, st.Name)
		statuses = append(statuses, st.Status)
	}
	assert.Equal(t, []string{"skipped", "if_1", "nested"}, names)
	assert.Equal(t, []string{"skipped", "completed", "completed"}, statuses)

	all, err := s.ListRuns(context.Background(), RunFilter{IncludeChildren: true})
	require.NoError(t, err)
	require.Len(t, all, 2)
	top, err := s.ListRuns(context.Background(), RunFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{res.RunID}, ids(top))
}

func TestObserverFailedRun(t *testing.T) {
	s := openTestStore(t)
	fail := func(context.Context, map[string]any) (any, error) { return nil, errors.New("nope") }
	p := pipeline.New("bad").Func("f", "fail", fail, nil).MustBuild()

	res, err := pipeline.NewEngine(pipeline.WithObserver(s)).Execute(context.Background(), p, nil)
	require.Error(t, err)

	got, err := s.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, "failed", got.Status)
	assert.Contains(t, got.Error, "nope")
	require.Len(t, got.Steps, 1)
	assert.Equal(t, "failed", got.Steps[0].Status)
}

func TestConcurrentRuns(t *testing.T) {
	s := openTestStore(t)
	p := pipeline.New("p").Func("w", "word_count", pipeline.WordCount, pipeline.Args{"text": pipeline.Literal("a b")}).MustBuild()
	engine := pipeline.NewEngine(pipeline.WithObserver(s))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Execute(context.Background(), p, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	runs, err := s.ListRuns(context.Background(), RunFilter{})
	require.NoError(t, err)
	assert.Len(t, runs, 8)
	for _, r := range runs {
		assert.Equal(t, "completed", r.Status)
	}
}

func ids(runs []*Run) []string {
	out := make([]string, 0, len(runs))
	for _, r := range runs {
		out = append(out, r.ID)
	}
	return out
}
