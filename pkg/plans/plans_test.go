package plans

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zen-systems/contentflow/pkg/adapter"
	"github.com/zen-systems/contentflow/pkg/config"
	"github.com/zen-systems/contentflow/pkg/pipeline"
	"github.com/zen-systems/contentflow/pkg/router"
	"github.com/zen-systems/contentflow/pkg/schema"
	"github.com/zen-systems/contentflow/pkg/tools"
	"github.com/zen-systems/contentflow/pkg/workspace"
)

type fakeTool struct {
	name string
	fn   func(args map[string]any) (any, error)
}

func (f fakeTool) Name() string        { return f.name }
func (f fakeTool) Description() string { return "fake " + f.name }
func (f fakeTool) Invoke(_ context.Context, args map[string]any) (any, error) {
	return f.fn(args)
}

type harness struct {
	ws     *workspace.Workspace
	engine *pipeline.Engine

	mu    sync.Mutex
	calls []string
}

func (h *harness) record(call string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, call)
}

func (h *harness) called(prefix string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, c := range h.calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, NewMockAdapter())
}

func newHarnessWith(t *testing.T, mock adapter.Adapter) *harness {
	t.Helper()
	ws, err := workspace.New(t.TempDir())
	require.NoError(t, err)
	h := &harness{ws: ws}

	search := fakeTool{name: "search", fn: func(args map[string]any) (any, error) {
		h.record(fmt.Sprintf("search:%v", args["query"]))
		return []any{
			map[string]any{"title": "Result one", "url": "https://one.example/a", "content": "one", "score": 0.9},
			map[string]any{"title": "Result two", "url": "https://two.example/b", "content": "two", "score": 0.5},
		}, nil
	}}
	extract := fakeTool{name: "extract", fn: func(args map[string]any) (any, error) {
		h.record(fmt.Sprintf("extract:%v", args["urls"]))
		return []any{map[string]any{"url": "https://one.example/a", "raw_content": "page text"}}, nil
	}}
	tts := fakeTool{name: "elevenlabs_tts", fn: func(args map[string]any) (any, error) {
		h.record(fmt.Sprintf("tts:%v", args["voice_id"]))
		return ws.WriteFile(fmt.Sprint(args["output_path"]), []byte("ID3audio"))
	}}
	registry := tools.NewRegistry(nil,
		search, extract, tts,
		tools.NewMakeFileInFolderTool(ws),
		tools.NewFileWriterTool(ws),
	)

	routing := &config.RoutingConfig{Default: config.RouteTarget{Adapter: "mock", Model: "mock-1"}}
	r := router.NewRouter(map[string]adapter.Adapter{"mock": mock}, routing)
	h.engine = pipeline.NewEngine(
		pipeline.WithPromptExecutor(pipeline.NewAdapterExecutor(r)),
		pipeline.WithToolInvoker(registry),
	)
	return h
}

func mustCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Default()
	require.NoError(t, err)
	return c
}

func TestDefaultCatalog(t *testing.T) {
	c := mustCatalog(t)

	ids := make([]string, 0)
	for _, p := range c.Plans() {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{
		"market_research", "content_gap_analysis", "content_planning", "article_writing",
		"fact_checking", "podcast_production", "podcast_audio", "video_production",
		"multi_platform_publishing", "master",
	}, ids)

	p, ok := c.Lookup("master-pipeline")
	require.True(t, ok)
	assert.Equal(t, "master", p.ID)
	assert.Equal(t, FamilyFinal, p.Family)

	p, ok = c.Lookup("fact_checking")
	require.True(t, ok)
	assert.Equal(t, "fact-checking", p.Route)

	p, ok = c.ByRoute("publishing")
	require.True(t, ok)
	assert.Equal(t, "multi_platform_publishing", p.ID)
	assert.Equal(t, []string{"publishing"}, p.Summary().Aliases)

	_, ok = c.Lookup("nope")
	assert.False(t, ok)

	sum := c.Summaries()[0]
	assert.Equal(t, []string{"topic", "target_audience"}, sum.Required)
	assert.Equal(t, []string{"competitor_domains", "research_depth"}, sum.Optional)
	assert.Positive(t, sum.Steps)
}

func TestNewCatalogRejectsDuplicates(t *testing.T) {
	pl := pipeline.New("x").Func("a", "merge", pipeline.Merge, nil).MustBuild()
	_, err := NewCatalog(&Plan{ID: "a", Route: "a", Pipeline: pl}, &Plan{ID: "a", Route: "b", Pipeline: pl})
	assert.ErrorContains(t, err, "duplicate plan id")
	_, err = NewCatalog(&Plan{ID: "a", Route: "r", Pipeline: pl}, &Plan{ID: "b", Route: "r", Pipeline: pl})
	assert.ErrorContains(t, err, "duplicate plan route")
	_, err = NewCatalog(&Plan{ID: "a", Route: "r", Pipeline: pl}, &Plan{ID: "b", Route: "s", Aliases: []string{"r"}, Pipeline: pl})
	assert.ErrorContains(t, err, "duplicate plan route")
}

func TestPlanCheckRequiredFields(t *testing.T) {
	p, _ := mustCatalog(t).Get("market_research")

	tests := []struct {
		name     string
		bindings map[string]any
		missing  []string
	}{
		{"all present", map[string]any{"topic": "tea", "target_audience": "shops"}, nil},
		{"one absent", map[string]any{"topic": "tea"}, []string{"target_audience"}},
		{"blank string", map[string]any{"topic": "  ", "target_audience": "shops"}, []string{"topic"}},
		{"empty list", map[string]any{"topic": []any{}, "target_audience": nil}, []string{"topic", "target_audience"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.Check(tt.bindings)
			if tt.missing == nil {
				assert.NoError(t, err)
				return
			}
			var mf *MissingFieldsError
			require.True(t, errors.As(err, &mf))
			assert.Equal(t, tt.missing, mf.Fields)
			assert.Equal(t, "missing required fields: "+strings.Join(tt.missing, ", "), err.Error())
		})
	}
}

func TestPlanRunRejectsMissingFieldsBeforeExecution(t *testing.T) {
	h := newHarness(t)
	p, _ := mustCatalog(t).Get("article_writing")

	res, err := p.Run(context.Background(), h.engine, map[string]any{"topic": "tea"})
	assert.Nil(t, res)
	var mf *MissingFieldsError
	require.ErrorAs(t, err, &mf)
	assert.Equal(t, []string{"target_keywords"}, mf.Fields)
	assert.Empty(t, h.called(""))
}

func TestPlansRunWithMockAdapter(t *testing.T) {
	tests := []struct {
		plan     string
		bindings map[string]any
		files    []string
		check    func(t *testing.T, h *harness, out map[string]any)
	}{
		{
			plan:     "market_research",
			bindings: map[string]any{"topic": "AI in Healthcare", "target_audience": "clinicians"},
			files:    []string{"ai_in_healthcare_market_research.json"},
			check: func(t *testing.T, h *harness, out map[string]any) {
				assert.Len(t, h.called("search:"), 3)
				assert.Empty(t, h.called("extract:"))
			},
		},
		{
			plan: "content_gap_analysis",
			bindings: map[string]any{
				"topic":           "AI in Healthcare",
				"competitor_urls": []any{"https://rival.example/guide"},
			},
			files: []string{"ai_in_healthcare_content_gaps.json"},
			check: func(t *testing.T, h *harness, out map[string]any) {
				assert.Equal(t, []string{"extract:[https://rival.example/guide]"}, h.called("extract:"))
				assert.Empty(t, h.called("search:"))
			},
		},
		{
			plan:     "content_planning",
			bindings: map[string]any{"topic": "AI in Healthcare", "target_keywords": []any{"clinical ai"}},
			files:    []string{"ai_in_healthcare_content_plan.json"},
		},
		{
			plan:     "article_writing",
			bindings: map[string]any{"topic": "AI in Healthcare", "target_keywords": []any{"clinical ai"}},
			files:    []string{"ai_in_healthcare.md", "ai_in_healthcare_package.json"},
			check: func(t *testing.T, h *harness, out map[string]any) {
				assert.Positive(t, out["word_count"])
				assert.Equal(t, "sample meta_description", out["meta_description"])
				assert.Equal(t, []any{"clinical ai"}, out["target_keywords"])
			},
		},
		{
			plan:     "fact_checking",
			bindings: map[string]any{"content_to_verify": "Tea contains caffeine.", "content_id": "Tea Post"},
			files:    []string{"verification_report_tea_post.json"},
			check: func(t *testing.T, h *harness, out map[string]any) {
				assert.Equal(t, []string{"search:fact check sample claims", "search:site:edu OR site:gov OR site:org sample claims"}, h.called("search:"))
				assert.Equal(t, []string{"extract:[https://one.example/a https://two.example/b]"}, h.called("extract:"))
			},
		},
		{
			plan:     "podcast_production",
			bindings: map[string]any{"episode_topic": "AI in Healthcare", "source_content": "notes", "episode_number": 7},
			files:    []string{"episode_7_script.md", "episode_7_package.json"},
			check: func(t *testing.T, h *harness, out map[string]any) {
				assert.Equal(t, "1 minutes", out["estimated_duration"])
				assert.Len(t, out["chapter_markers"], 1)
			},
		},
		{
			plan:     "podcast_audio",
			bindings: map[string]any{"script": "Hello and welcome.", "voice_id": "voice-1"},
			files:    []string{"episode_1.mp3", "episode_1_tts_script.txt"},
			check: func(t *testing.T, h *harness, out map[string]any) {
				assert.Equal(t, []string{"tts:voice-1"}, h.called("tts:"))
				assert.Equal(t, "voice-1", out["voice_id"])
			},
		},
		{
			plan:     "video_production",
			bindings: map[string]any{"video_topic": "AI in Healthcare", "target_platform": "youtube"},
			files:    []string{"ai_in_healthcare_script.md", "ai_in_healthcare_production_package.json"},
			check: func(t *testing.T, h *harness, out map[string]any) {
				assert.Equal(t, []any{"first point", "second point", "third point"}, out["shot_list"])
				assert.Len(t, out["thumbnail_concepts"], 2)
			},
		},
		{
			plan: "multi_platform_publishing",
			bindings: map[string]any{
				"content_package":  map[string]any{"main_article": "# Tea"},
				"target_platforms": []any{"blog", "twitter", "youtube", "myspace"},
				"content_id":       "tea",
			},
			files: []string{
				"tea_blog.md", "tea_social.json", "tea_video_description.md",
				"tea_approval_request.json", "tea_publishing_results.json",
			},
			check: func(t *testing.T, h *harness, out map[string]any) {
				assert.Len(t, out["published_urls"], 3)
				results := out["platform_results"].(map[string]any)
				assert.Equal(t, "awaiting_approval", results["blog"].(map[string]any)["status"])
				assert.Equal(t, "unsupported", results["myspace"].(map[string]any)["status"])
			},
		},
		{
			plan: "master",
			bindings: map[string]any{
				"project_name":    "Spring Launch",
				"primary_topic":   "AI in Healthcare",
				"target_audience": "clinicians",
			},
			files: []string{"spring_launch_final_output.json"},
			check: func(t *testing.T, h *harness, out map[string]any) {
				assert.Equal(t, "completed_pending_review", out["status"])
				deliverables := out["deliverables"].(map[string]any)
				assert.Contains(t, deliverables, "article")

				for family, name := range map[string]string{
					FamilyResearch:   "ai_in_healthcare_market_research.json",
					FamilyPlans:      "ai_in_healthcare_content_plan.json",
					FamilyDrafts:     "ai_in_healthcare_package.json",
					FamilyFactChecks: "verification_report_spring_launch.json",
				} {
					files, err := h.ws.ReadFolder(family)
					require.NoError(t, err)
					assert.Contains(t, files, name, family)
				}
			},
		},
	}

	catalog := mustCatalog(t)
	for _, tt := range tests {
		t.Run(tt.plan, func(t *testing.T) {
			h := newHarness(t)
			p, ok := catalog.Get(tt.plan)
			require.True(t, ok)

			res, err := p.Run(context.Background(), h.engine, tt.bindings)
			require.NoError(t, err)
			assert.Equal(t, pipeline.StatusCompleted, res.Status)

			out, ok := res.Output.(map[string]any)
			require.True(t, ok, "output is %T", res.Output)
			if s := p.Pipeline.OutputSchema(); s != nil {
				_, err := s.Validate(out)
				require.NoError(t, err)
			}

			files, err := h.ws.ReadFolder(p.Family)
			require.NoError(t, err)
			for _, name := range tt.files {
				assert.Contains(t, files, name)
			}
			if tt.check != nil {
				tt.check(t, h, out)
			}
		})
	}
}

func TestMasterProjectIDIsRunID(t *testing.T) {
	h := newHarness(t)
	p, _ := mustCatalog(t).Get("master")
	res, err := p.Run(context.Background(), h.engine, map[string]any{
		"project_name": "Launch", "primary_topic": "tea", "target_audience": "shops",
	})
	require.NoError(t, err)
	assert.Equal(t, res.RunID, res.Output.(map[string]any)["project_id"])
}

func TestMasterRunsWithoutRecommendedAngles(t *testing.T) {
	respond := MockResponder(schema.Registry())
	mock := adapter.NewMockAdapterFunc(func(prompt string) (string, error) {
		answer, err := respond(prompt)
		if err != nil || !strings.Contains(prompt, schema.ResearchSummary.Describe()) {
			return answer, err
		}
		var summary map[string]any
		require.NoError(t, json.Unmarshal([]byte(answer), &summary))
		summary["recommended_angles"] = []any{}
		data, err := json.Marshal(summary)
		return string(data), err
	})
	h := newHarnessWith(t, mock)

	p, _ := mustCatalog(t).Get("master")
	res, err := p.Run(context.Background(), h.engine, map[string]any{
		"project_name": "Launch", "primary_topic": "tea", "target_audience": "shops",
	})
	require.NoError(t, err)
	assert.Equal(t, "", res.Context["content_angle"])
	assert.Equal(t, pipeline.StatusCompleted, res.Status)
}

func TestFirstOr(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		want any
	}{
		{"first item", map[string]any{"items": []any{"calm", "bold"}, "fallback": "x"}, "calm"},
		{"skips blanks", map[string]any{"items": []any{" ", "bold"}}, "bold"},
		{"text", map[string]any{"items": " one, two "}, "one, two"},
		{"empty list", map[string]any{"items": []any{}, "fallback": "tea"}, "tea"},
		{"nothing", map[string]any{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FirstOr(context.Background(), tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSearchQueryCutsOnRuneBoundary(t *testing.T) {
	long := "a" + strings.Repeat("é", maxQueryLen)
	got, err := SearchQuery(context.Background(), map[string]any{"text": long})
	require.NoError(t, err)
	q := got.(string)
	assert.True(t, utf8.ValidString(q))
	assert.LessOrEqual(t, len(q), maxQueryLen)
	assert.NotEmpty(t, q)

	got, err = SearchQuery(context.Background(), map[string]any{"items": []any{"green tea", "matcha"}})
	require.NoError(t, err)
	assert.Equal(t, "green tea; matcha", got)
}

func TestFactCheckingCorrectsContentThatNeedsReview(t *testing.T) {
	h := newHarness(t)
	mock := adapter.NewMockAdapterFunc(func(prompt string) (string, error) {
		if strings.Contains(prompt, schema.FactCheckReport.Describe()) {
			return `{"claims_verified": 1, "verification_results": [], "confidence_score": 4.5,
				"sources_cited": [], "corrections_needed": ["tea is not a bean"], "approval_status": "requires_changes"}`, nil
		}
		return MockResponder(schema.Registry())(prompt)
	})
	routing := &config.RoutingConfig{Default: config.RouteTarget{Adapter: "mock", Model: "mock-1"}}
	r := router.NewRouter(map[string]adapter.Adapter{"mock": mock}, routing)
	engine := pipeline.NewEngine(
		pipeline.WithPromptExecutor(pipeline.NewAdapterExecutor(r)),
		pipeline.WithToolInvoker(tools.NewRegistry(nil,
			fakeTool{name: "search", fn: func(map[string]any) (any, error) { return []any{}, nil }},
			tools.NewMakeFileInFolderTool(h.ws),
			tools.NewFileWriterTool(h.ws),
		)),
	)

	p, _ := mustCatalog(t).Get("fact_checking")
	res, err := p.Run(context.Background(), engine, map[string]any{"content_to_verify": "Tea is a bean."})
	require.NoError(t, err)
	assert.Equal(t, "requires_changes", res.Output.(map[string]any)["approval_status"])

	files, err := h.ws.ReadFolder(FamilyFactChecks)
	require.NoError(t, err)
	assert.Contains(t, files, "corrected_content.md")
	assert.Contains(t, files, "verification_report_content.json")

	status := make(map[string]pipeline.Status)
	for _, st := range res.Steps {
		status[st.Name] = st.Status
	}
	assert.Equal(t, pipeline.StatusCompleted, status["create_corrected_content"])
	assert.Equal(t, pipeline.StatusCompleted, status["save_corrected_content"])
}

func TestContentPlanningPrefillsResearchSummary(t *testing.T) {
	ws, err := workspace.New(t.TempDir())
	require.NoError(t, err)
	_, err = ws.WriteFile(FamilyResearch+"/tea_shops_market_research.json", map[string]any{"trending_topics": []any{"matcha"}})
	require.NoError(t, err)

	p, _ := mustCatalog(t).Get("content_planning")

	bindings := map[string]any{"topic": "Tea Shops", "target_keywords": "tea"}
	require.NoError(t, p.Prepare(ws, bindings))
	assert.Equal(t, map[string]any{"trending_topics": []any{"matcha"}}, bindings["research_summary"])

	given := map[string]any{"topic": "Tea Shops", "research_summary": map[string]any{"x": 1}}
	require.NoError(t, p.Prepare(ws, given))
	assert.Equal(t, map[string]any{"x": 1}, given["research_summary"])

	other, _ := mustCatalog(t).Get("market_research")
	assert.NoError(t, other.Prepare(ws, map[string]any{}))

	podcast, _ := mustCatalog(t).Get("podcast_production")
	require.NoError(t, podcast.Prepare(ws, map[string]any{}))
	assert.DirExists(t, filepath.Join(ws.Root(), FamilyPodcasts))
}

func TestCatalogRegistry(t *testing.T) {
	reg := mustCatalog(t).Registry()
	assert.Contains(t, reg.Funcs, "compile_publishing")
	assert.Contains(t, reg.Funcs, "slugify")
	assert.Contains(t, reg.Pipelines, "market_research")
	assert.Contains(t, reg.Schemas, "SocialVariants")

	p, err := pipeline.ParseManifest([]byte(`
name: quick_research
inputs:
  - name: topic
steps:
  - name: research
    sub: market_research
    with:
      topic: {input: topic}
      target_audience: "founders"
`), reg)
	require.NoError(t, err)
	assert.Equal(t, "quick_research", p.Name())
}
