// Package plans defines the content production pipelines served by the CLI
// and the HTTP API.
package plans

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/zen-systems/contentflow/pkg/pipeline"
	"github.com/zen-systems/contentflow/pkg/workspace"
)

// Output family folders under the output root.
const (
	FamilyResearch   = "research_reports"
	FamilyPlans      = "content_plans"
	FamilyDrafts     = "content_drafts"
	FamilyFactChecks = "fact_check_reports"
	FamilyPodcasts   = "podcast_episodes"
	FamilyVideo      = "video_production"
	FamilyPublished  = "published_content"
	FamilyFinal      = "final_outputs"
)

// Plan is a named pipeline with the request fields it cannot run without.
type Plan struct {
	ID       string
	Title    string
	Route    string
	Family   string
	Required []string
	Pipeline *pipeline.Pipeline
	// Aliases are extra routes the plan answers on.
	Aliases []string

	// prefill fills optional bindings from earlier outputs in the workspace.
	prefill func(ws *workspace.Workspace, bindings map[string]any) error
}

// MissingFieldsError reports request fields that are absent or empty.
type MissingFieldsError struct {
	Plan   string
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}

// Check returns a *MissingFieldsError when a required field is absent, null,
// blank, or an empty list or object.
func (p *Plan) Check(bindings map[string]any) error {
	var missing []string
	for _, name := range p.Required {
		if isEmpty(bindings[name]) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &MissingFieldsError{Plan: p.ID, Fields: missing}
	}
	return nil
}

// Prepare creates the plan's output folder in ws and fills bindings the
// caller left out from files earlier runs wrote there.
func (p *Plan) Prepare(ws *workspace.Workspace, bindings map[string]any) error {
	if ws == nil {
		return nil
	}
	if _, err := ws.Mkdir(p.Family); err != nil {
		return fmt.Errorf("plan %s: %w", p.ID, err)
	}
	if p.prefill == nil {
		return nil
	}
	return p.prefill(ws, bindings)
}

// Run checks the required fields and executes the plan's pipeline.
func (p *Plan) Run(ctx context.Context, engine *pipeline.Engine, bindings map[string]any) (*pipeline.Result, error) {
	if err := p.Check(bindings); err != nil {
		return nil, err
	}
	return engine.Execute(ctx, p.Pipeline, bindings)
}

// Summary is the listing form of a plan.
type Summary struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Route       string   `json:"route"`
	Family      string   `json:"family"`
	Aliases     []string `json:"aliases,omitempty"`
	Required    []string `json:"required"`
	Optional    []string `json:"optional"`
	Description string   `json:"description,omitempty"`
	Steps       int      `json:"steps"`
}

// Summary describes p for listings.
func (p *Plan) Summary() Summary {
	required := make(map[string]bool, len(p.Required))
	for _, r := range p.Required {
		required[r] = true
	}
	optional := []string{}
	for _, in := range p.Pipeline.Inputs() {
		if !required[in.Name] {
			optional = append(optional, in.Name)
		}
	}
	return Summary{
		ID:          p.ID,
		Title:       p.Title,
		Route:       p.Route,
		Family:      p.Family,
		Aliases:     append([]string(nil), p.Aliases...),
		Required:    append([]string(nil), p.Required...),
		Optional:    optional,
		Description: p.Pipeline.Description(),
		Steps:       p.Pipeline.StepCount(),
	}
}

// Catalog indexes plans by ID and by route.
type Catalog struct {
	plans   []*Plan
	byID    map[string]*Plan
	byRoute map[string]*Plan
}

// NewCatalog indexes plans. IDs and routes must be unique.
func NewCatalog(plans ...*Plan) (*Catalog, error) {
	c := &Catalog{
		byID:    make(map[string]*Plan, len(plans)),
		byRoute: make(map[string]*Plan, len(plans)),
	}
	for _, p := range plans {
		if p == nil || p.Pipeline == nil {
			return nil, fmt.Errorf("plan without pipeline")
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate plan id %q", p.ID)
		}
		c.byID[p.ID] = p
		for _, route := range append([]string{p.Route}, p.Aliases...) {
			if _, dup := c.byRoute[route]; dup {
				return nil, fmt.Errorf("duplicate plan route %q", route)
			}
			c.byRoute[route] = p
		}
		c.plans = append(c.plans, p)
	}
	return c, nil
}

// Get returns the plan with the given ID.
func (c *Catalog) Get(id string) (*Plan, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// ByRoute returns the plan served at route.
func (c *Catalog) ByRoute(route string) (*Plan, bool) {
	p, ok := c.byRoute[route]
	return p, ok
}

// Lookup accepts either a plan ID or its route.
func (c *Catalog) Lookup(name string) (*Plan, bool) {
	if p, ok := c.Get(name); ok {
		return p, true
	}
	return c.ByRoute(name)
}

// Plans returns the plans in catalog order.
func (c *Catalog) Plans() []*Plan {
	return append([]*Plan(nil), c.plans...)
}

// Summaries lists every plan.
func (c *Catalog) Summaries() []Summary {
	out := make([]Summary, 0, len(c.plans))
	for _, p := range c.plans {
		out = append(out, p.Summary())
	}
	return out
}

// Registry extends the standard manifest registry with the plan functions
// and every plan pipeline, so manifests can embed plans by ID.
func (c *Catalog) Registry() *pipeline.Registry {
	reg := pipeline.DefaultRegistry()
	for name, fn := range Funcs() {
		reg.Funcs[name] = fn
	}
	for _, p := range c.plans {
		reg.Pipelines[p.ID] = p.Pipeline
	}
	return reg
}

// Default builds the standard catalog.
func Default() (*Catalog, error) {
	marketResearch, err := MarketResearch()
	if err != nil {
		return nil, err
	}
	contentGap, err := ContentGapAnalysis()
	if err != nil {
		return nil, err
	}
	contentPlanning, err := ContentPlanning()
	if err != nil {
		return nil, err
	}
	article, err := ArticleWriting()
	if err != nil {
		return nil, err
	}
	factCheck, err := FactChecking()
	if err != nil {
		return nil, err
	}
	podcast, err := PodcastProduction()
	if err != nil {
		return nil, err
	}
	audio, err := PodcastAudio()
	if err != nil {
		return nil, err
	}
	video, err := VideoProduction()
	if err != nil {
		return nil, err
	}
	publishing, err := MultiPlatformPublishing()
	if err != nil {
		return nil, err
	}
	master, err := Master(marketResearch, contentPlanning, article, factCheck)
	if err != nil {
		return nil, err
	}

	return NewCatalog(
		&Plan{
			ID: "market_research", Title: "Market research", Route: "market-research",
			Family: FamilyResearch, Required: []string{"topic", "target_audience"},
			Pipeline: marketResearch,
		},
		&Plan{
			ID: "content_gap_analysis", Title: "Content gap analysis", Route: "content-gap-analysis",
			Family: FamilyResearch, Required: []string{"topic", "competitor_urls"},
			Pipeline: contentGap,
		},
		&Plan{
			ID: "content_planning", Title: "Content planning", Route: "content-planning",
			Family: FamilyPlans, Required: []string{"topic", "target_keywords"},
			Pipeline: contentPlanning, prefill: latestResearchSummary,
		},
		&Plan{
			ID: "article_writing", Title: "Article writing", Route: "article-writing",
			Family: FamilyDrafts, Required: []string{"topic", "target_keywords"},
			Pipeline: article,
		},
		&Plan{
			ID: "fact_checking", Title: "Fact checking", Route: "fact-checking",
			Family: FamilyFactChecks, Required: []string{"content_to_verify"},
			Pipeline: factCheck,
		},
		&Plan{
			ID: "podcast_production", Title: "Podcast production", Route: "podcast-production",
			Family: FamilyPodcasts, Required: []string{"episode_topic", "source_content"},
			Pipeline: podcast,
		},
		&Plan{
			ID: "podcast_audio", Title: "Podcast audio", Route: "podcast-audio",
			Family: FamilyPodcasts, Required: []string{"script", "voice_id"},
			Pipeline: audio,
		},
		&Plan{
			ID: "video_production", Title: "Video production", Route: "video-production",
			Family: FamilyVideo, Required: []string{"video_topic", "target_platform"},
			Pipeline: video,
		},
		&Plan{
			ID: "multi_platform_publishing", Title: "Multi-platform publishing", Route: "multi-platform-publishing",
			Family: FamilyPublished, Required: []string{"content_package"},
			Pipeline: publishing, Aliases: []string{"publishing"},
		},
		&Plan{
			ID: "master", Title: "Master content pipeline", Route: "master-pipeline",
			Family: FamilyFinal, Required: []string{"project_name", "primary_topic", "target_audience"},
			Pipeline: master,
		},
	)
}

// latestResearchSummary binds research_summary to the market research report
// for the same topic, when one exists and the caller supplied none.
func latestResearchSummary(ws *workspace.Workspace, bindings map[string]any) error {
	if !isEmpty(bindings["research_summary"]) {
		return nil
	}
	topic, _ := bindings["topic"].(string)
	if topic == "" {
		return nil
	}
	files, err := ws.ReadFolder(FamilyResearch)
	if err != nil {
		return err
	}
	name := pipeline.SlugString(topic) + "_market_research.json"
	if report, ok := files[name].(map[string]any); ok {
		bindings["research_summary"] = report
	}
	return nil
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() == 0
	}
	return false
}

// sortedNames returns the keys of m in order.
func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
