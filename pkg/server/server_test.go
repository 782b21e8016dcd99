package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zen-systems/contentflow/pkg/adapter"
	"github.com/zen-systems/contentflow/pkg/config"
	"github.com/zen-systems/contentflow/pkg/logger"
	"github.com/zen-systems/contentflow/pkg/pipeline"
	"github.com/zen-systems/contentflow/pkg/plans"
	"github.com/zen-systems/contentflow/pkg/router"
	"github.com/zen-systems/contentflow/pkg/schema"
	"github.com/zen-systems/contentflow/pkg/store"
	"github.com/zen-systems/contentflow/pkg/tools"
	"github.com/zen-systems/contentflow/pkg/workspace"
)

type searchTool struct {
	err error
}

func (searchTool) Name() string        { return "search" }
func (searchTool) Description() string { return "canned web search" }
func (s searchTool) Invoke(_ context.Context, args map[string]any) (any, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []any{
		map[string]any{"title": "Result", "url": "https://one.example/a", "content": fmt.Sprint(args["query"]), "score": 0.8},
	}, nil
}

type fixture struct {
	srv   *Server
	ws    *workspace.Workspace
	store *store.SQLiteStore
}

func newFixture(t *testing.T, search searchTool) *fixture {
	t.Helper()
	return newFixtureWith(t, search, plans.NewMockAdapter())
}

func newFixtureWith(t *testing.T, search searchTool, model adapter.Adapter) *fixture {
	t.Helper()
	ws, err := workspace.New(t.TempDir())
	require.NoError(t, err)
	st, err := store.Open(filepath.Join(t.TempDir(), "runs.db"), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	catalog, err := plans.Default()
	require.NoError(t, err)

	registry := tools.NewRegistry(logger.Discard(),
		search,
		tools.NewMakeFileInFolderTool(ws),
		tools.NewFileWriterTool(ws),
	)
	routing := &config.RoutingConfig{Default: config.RouteTarget{Adapter: "mock", Model: "mock-1"}}
	r := router.NewRouter(map[string]adapter.Adapter{"mock": model}, routing)

	srv, err := New(config.ServerConfig{Addr: "127.0.0.1:0"}, Deps{
		Catalog: catalog,
		NewEngine: func() *pipeline.Engine {
			return pipeline.NewEngine(
				pipeline.WithPromptExecutor(pipeline.NewAdapterExecutor(r)),
				pipeline.WithToolInvoker(registry),
				pipeline.WithObserver(st),
				pipeline.WithLogger(logger.Discard()),
			)
		},
		Workspace: ws,
		Runs:      st,
		Tools:     registry,
		Logger:    logger.Discard(),
		Version:   "test",
	})
	require.NoError(t, err)
	return &fixture{srv: srv, ws: ws, store: st}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func TestNewRequiresDeps(t *testing.T) {
	_, err := New(config.ServerConfig{}, Deps{})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, searchTool{})
	rec, body := f.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "test", body["version"])
	assert.NotEmpty(t, body["timestamp"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRequestIDIsEchoed(t *testing.T) {
	f := newFixture(t, searchTool{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}

func TestListPlansAndTools(t *testing.T) {
	f := newFixture(t, searchTool{})

	rec, body := f.do(t, http.MethodGet, "/api/plans", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list, ok := body["plans"].([]any)
	require.True(t, ok)
	assert.Len(t, list, 10)
	first := list[0].(map[string]any)
	assert.Equal(t, "market_research", first["id"])
	assert.Equal(t, "market-research", first["route"])

	rec, body = f.do(t, http.MethodGet, "/api/tools", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	names := []string{}
	for _, item := range body["tools"].([]any) {
		names = append(names, item.(map[string]any)["name"].(string))
	}
	assert.ElementsMatch(t, []string{"search", "make_file_in_folder", "file_writer"}, names)
}

func TestRunPlan(t *testing.T) {
	f := newFixture(t, searchTool{})

	rec, body := f.do(t, http.MethodPost, "/api/market-research", map[string]any{
		"topic":           "AI in Healthcare",
		"target_audience": "clinicians",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, true, body["success"])
	assert.Equal(t, "market_research", body["plan"])
	assert.Equal(t, string(pipeline.StatusCompleted), body["status"])
	runID, _ := body["run_id"].(string)
	require.NotEmpty(t, runID)

	result, ok := body["result"].(map[string]any)
	require.True(t, ok)
	_, err := schema.ResearchSummary.Validate(result)
	assert.NoError(t, err)

	files, ok := body["files"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, files, "ai_in_healthcare_market_research.json")

	rec, body = f.do(t, http.MethodGet, "/api/runs/"+runID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "market_research", body["pipeline"])
	assert.Equal(t, "completed", body["status"])
	assert.NotEmpty(t, body["steps"])

	rec, body = f.do(t, http.MethodGet, "/api/runs?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	runs := body["runs"].([]any)
	require.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].(map[string]any)["id"])
}

func TestRunPlanRequestErrors(t *testing.T) {
	f := newFixture(t, searchTool{})

	tests := []struct {
		name   string
		path   string
		body   any
		status int
		errSub string
	}{
		{"unknown plan", "/api/no-such-plan", map[string]any{}, http.StatusNotFound, "unknown plan"},
		{"bad json", "/api/market-research", "{not json", http.StatusBadRequest, "invalid JSON body"},
		{"missing fields", "/api/market-research", map[string]any{"topic": "tea"}, http.StatusBadRequest, "missing required fields: target_audience"},
		{"publishing alias", "/api/publishing", map[string]any{}, http.StatusBadRequest, "missing required fields: content_package"},
		{"empty body", "/api/article-writing", nil, http.StatusBadRequest, "missing required fields: topic, target_keywords"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := f.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, false, body["success"])
			assert.Contains(t, body["error"], tt.errSub)
		})
	}

	_, body := f.do(t, http.MethodPost, "/api/market-research", map[string]any{"topic": "tea"})
	assert.Equal(t, []any{"target_audience"}, body["missing_fields"])
}

func TestRunPlanToolFailureIsBadGateway(t *testing.T) {
	f := newFixture(t, searchTool{err: errors.New("search quota exhausted")})

	rec, body := f.do(t, http.MethodPost, "/api/market-research", map[string]any{
		"topic":           "tea",
		"target_audience": "shops",
	})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, body["error"], "search quota exhausted")
	runID, _ := body["run_id"].(string)
	require.NotEmpty(t, runID)

	run, err := f.store.GetRun(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, "failed", run.Status)
}

func TestRunPlanReportsProviderFailure(t *testing.T) {
	model := adapter.NewMockAdapterFunc(func(string) (string, error) {
		return "", &adapter.AdapterError{Provider: "openai", Status: http.StatusBadRequest, Err: errors.New("context too long")}
	})
	f := newFixtureWith(t, searchTool{}, model)

	rec, body := f.do(t, http.MethodPost, "/api/market-research", map[string]any{
		"topic":           "tea",
		"target_audience": "shops",
	})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "openai", body["provider"])
	assert.Equal(t, float64(http.StatusBadRequest), body["provider_status"])
	assert.NotEmpty(t, body["run_id"])
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t, searchTool{})
	tests := []struct {
		method, path, allow string
	}{
		{http.MethodGet, "/api/market-research", http.MethodPost},
		{http.MethodDelete, "/api/plans", "GET, HEAD"},
		{http.MethodPut, "/api/runs/abc", "GET, HEAD"},
		{http.MethodPost, "/health", "GET, HEAD"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec, body := f.do(t, tt.method, tt.path, nil)
			assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
			assert.Equal(t, tt.allow, rec.Header().Get("Allow"))
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, "method "+tt.method+" not allowed", body["error"])
		})
	}
}

func TestRunsEndpoints(t *testing.T) {
	f := newFixture(t, searchTool{})

	rec, body := f.do(t, http.MethodGet, "/api/runs/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "run not found", body["error"])

	rec, _ = f.do(t, http.MethodGet, "/api/runs?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = f.do(t, http.MethodGet, "/api/runs", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, body["runs"])

	f.srv.deps.Runs = nil
	rec, _ = f.do(t, http.MethodGet, "/api/runs", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRecoveryReturnsJSON(t *testing.T) {
	h := recovery(logger.Discard())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "internal server error", body["error"])
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"missing fields", &plans.MissingFieldsError{Plan: "p", Fields: []string{"a"}}, http.StatusBadRequest},
		{"missing input", &pipeline.MissingRequiredInputError{Pipeline: "p", Names: []string{"a"}}, http.StatusBadRequest},
		{"schema", &pipeline.PromptStepError{Step: "s", Err: &schema.ValidationError{Schema: "x"}}, http.StatusUnprocessableEntity},
		{"budget", &pipeline.PromptStepError{Step: "s", Err: fmt.Errorf("%w: spent", pipeline.ErrBudgetExceeded)}, http.StatusTooManyRequests},
		{"adapter", &pipeline.PromptStepError{Step: "s", Err: &adapter.AdapterError{Status: 503, Err: errors.New("down")}}, http.StatusBadGateway},
		{"tool", &pipeline.ToolInvocationError{Step: "s", Tool: "search", Err: errors.New("x")}, http.StatusBadGateway},
		{"no adapter", fmt.Errorf("route: %w", router.ErrNoAdapter), http.StatusBadGateway},
		{"other", errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	f := newFixture(t, searchTool{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.srv.serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
