package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zen-systems/contentflow/pkg/adapter"
	"github.com/zen-systems/contentflow/pkg/config"
)

type namedMock struct {
	*adapter.MockAdapter
	name   string
	models []string
}

func (m namedMock) Name() string     { return m.name }
func (m namedMock) Models() []string { return m.models }

func newTestRouter(names ...string) *Router {
	adapters := make(map[string]adapter.Adapter)
	for _, n := range names {
		adapters[n] = namedMock{MockAdapter: adapter.NewMockAdapter(), name: n, models: []string{n + "-default"}}
	}
	return NewRouter(adapters, config.DefaultRoutingConfig(), WithAliases(config.DefaultAliases()))
}

func TestResolvePrecedence(t *testing.T) {
	r := newTestRouter("anthropic", "openai", "google", "deepseek")

	tests := []struct {
		name        string
		req         Request
		wantAdapter string
		wantModel   string
		wantTask    string
	}{
		{
			name:        "explicit adapter and alias",
			req:         Request{Adapter: "openai", Model: "fast", TaskType: "research", Prompt: "write"},
			wantAdapter: "openai",
			wantModel:   "gpt-4o-mini",
			wantTask:    "research",
		},
		{
			name:        "task type beats triggers",
			req:         Request{TaskType: "fact_check", Prompt: "write a tweet"},
			wantAdapter: "anthropic",
			wantModel:   "claude-opus-4-20250514",
			wantTask:    "fact_check",
		},
		{
			name:        "unknown task type falls to triggers",
			req:         Request{TaskType: "poetry", Prompt: "Summarize the notes"},
			wantAdapter: "deepseek",
			wantModel:   "deepseek-chat",
			wantTask:    "summarize",
		},
		{
			name:        "default route",
			req:         Request{Prompt: "hello"},
			wantAdapter: "anthropic",
			wantModel:   "claude-sonnet-4-20250514",
			wantTask:    "default",
		},
		{
			name:        "explicit adapter without model uses its first model",
			req:         Request{Adapter: "google"},
			wantAdapter: "google",
			wantModel:   "google-default",
		},
		{
			name:        "model override keeps routed adapter",
			req:         Request{TaskType: "writing", Model: "deep"},
			wantAdapter: "anthropic",
			wantModel:   "claude-opus-4-20250514",
			wantTask:    "writing",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := r.Resolve(tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantAdapter, d.Adapter)
			assert.Equal(t, tt.wantModel, d.Model)
			assert.Equal(t, tt.wantTask, d.TaskType)
			assert.NotEmpty(t, d.Reasons)
		})
	}
}

func TestResolveUnavailableAdapter(t *testing.T) {
	t.Run("falls back to default adapter", func(t *testing.T) {
		r := newTestRouter("anthropic")
		d, err := r.Resolve(Request{TaskType: "research"})
		require.NoError(t, err)
		assert.Equal(t, "anthropic", d.Adapter)
		assert.Equal(t, "claude-sonnet-4-20250514", d.Model)
	})

	t.Run("falls back to first registered adapter", func(t *testing.T) {
		r := newTestRouter("mock", "deepseek")
		d, err := r.Resolve(Request{TaskType: "writing"})
		require.NoError(t, err)
		assert.Equal(t, "deepseek", d.Adapter)
		assert.Equal(t, "deepseek-default", d.Model)
	})

	t.Run("no adapters", func(t *testing.T) {
		r := NewRouter(nil, nil)
		_, err := r.Resolve(Request{Prompt: "x"})
		assert.ErrorIs(t, err, ErrNoAdapter)
	})
}

func TestSend(t *testing.T) {
	mock := adapter.NewMockAdapterWithResponses(map[string]string{"ping": "pong"}, "")
	r := NewRouter(map[string]adapter.Adapter{"mock": mock}, &config.RoutingConfig{
		Default: config.RouteTarget{Adapter: "mock", Model: "local"},
	}, WithAliases(config.DefaultAliases()))

	resp, d, err := r.Send(context.Background(), Request{Prompt: "ping"})
	require.NoError(t, err)
	assert.Equal(t, "pong", resp.Text())
	assert.Equal(t, "mock-1", d.Model)
	assert.Equal(t, []string{"ping"}, mock.Calls())
}

func TestGetRoutesSorted(t *testing.T) {
	r := newTestRouter("anthropic")
	routes := r.GetRoutes()
	require.NotEmpty(t, routes)
	for i := 1; i < len(routes); i++ {
		assert.Less(t, routes[i-1].TaskType, routes[i].TaskType)
	}
	for _, route := range routes {
		assert.Equal(t, route.Adapter == "anthropic", route.Available, route.TaskType)
	}
}
