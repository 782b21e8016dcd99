package plans

import (
	p "github.com/zen-systems/contentflow/pkg/pipeline"
	"github.com/zen-systems/contentflow/pkg/schema"
)

// CompetitorSources extracts the given competitor pages, or searches for
// leading competitor content when no URLs are supplied. Its output is the
// extracted pages or the search results.
func CompetitorSources() (*p.Pipeline, error) {
	return p.New("competitor_sources").
		Describe("Competitor pages, extracted from the given urls or found by search").
		Input("topic", "subject to find competitor content for").
		InputDefault("urls", "competitor page urls", []any{}).
		If("has_urls", p.LenAtLeast("urls", 1), p.Args{"urls": p.InputRef("urls")}).
		Tool("extract_competitor_pages", "extract", p.Args{"urls": p.InputRef("urls")}).
		Else().
		Tool("search_competitor_content", "search", p.Args{
			"query":       p.Format("best %s content marketing examples case studies", p.InputRef("topic")),
			"max_results": p.Literal(8),
		}).
		EndIf().
		Build()
}

// MarketResearch researches a topic for an audience and writes a
// ResearchSummary report.
func MarketResearch() (*p.Pipeline, error) {
	competitors, err := CompetitorSources()
	if err != nil {
		return nil, err
	}
	return p.New("market_research").
		Describe("Trend, competitor and industry research for a topic").
		Input("topic", "main topic or niche to research").
		Input("target_audience", "who the content is for").
		InputDefault("competitor_domains", "competitor pages to analyse", []any{}).
		InputDefault("research_depth", "basic, standard or comprehensive", "comprehensive").
		Func("slug", "slugify", p.Slugify, p.Args{"text": p.InputRef("topic")}).
		Tool("search_trends", "search", p.Args{
			"query":        p.Format("%s trends statistics market analysis data insights", p.InputRef("topic")),
			"search_depth": p.Literal("advanced"),
			"max_results":  p.Literal(10),
		}).
		Tool("find_industry_reports", "search", p.Args{
			"query":       p.Format("%s industry report survey whitepaper", p.InputRef("topic")),
			"max_results": p.Literal(5),
		}).
		Embed("competitor_sources", competitors, p.Args{
			"topic": p.InputRef("topic"),
			"urls":  p.InputRef("competitor_domains"),
		}).
		Prompt("synthesize_research",
			`You are a market research analyst. Using the search results below, produce a {{.research_depth}} research summary on "{{.topic}}" for {{.target_audience}}.
Cover trending topics, competitor content gaps, audience pain points, popular formats, target keywords, recommended angles, seasonal and emerging trends.`,
			p.Args{
				"topic":            p.InputRef("topic"),
				"target_audience":  p.InputRef("target_audience"),
				"research_depth":   p.InputRef("research_depth"),
				"trends":           p.StepRef("search_trends"),
				"industry_reports": p.StepRef("find_industry_reports"),
				"competitors":      p.StepRef("competitor_sources"),
			},
			p.WithTaskType("research"),
			p.WithStructuredOutput(schema.ResearchSummary),
		).
		Tool("save_research_report", "make_file_in_folder", p.Args{
			"folder":   p.Literal(FamilyResearch),
			"filename": p.Format("%s_market_research.json", p.StepRef("slug")),
			"content":  p.StepRef("synthesize_research"),
		}).
		FinalOutput("synthesize_research").
		OutputSchema(schema.ResearchSummary).
		Build()
}

// ContentGapAnalysis compares competitor coverage of a topic against the
// research so far and writes a ContentGapReport.
func ContentGapAnalysis() (*p.Pipeline, error) {
	competitors, err := CompetitorSources()
	if err != nil {
		return nil, err
	}
	return p.New("content_gap_analysis").
		Describe("Find topics competitors cover poorly or not at all").
		Input("topic", "topic to analyse").
		Input("competitor_urls", "competitor pages to analyse").
		InputDefault("research_data", "earlier research summary", map[string]any{}).
		Func("slug", "slugify", p.Slugify, p.Args{"text": p.InputRef("topic")}).
		Embed("competitor_sources", competitors, p.Args{
			"topic": p.InputRef("topic"),
			"urls":  p.InputRef("competitor_urls"),
		}).
		Prompt("identify_gaps",
			`Compare the competitor content below with what an expert resource on "{{.topic}}" should cover.
List the content gaps and rank the opportunities they open up. Name the source urls you analysed.`,
			p.Args{
				"topic":         p.InputRef("topic"),
				"competitors":   p.StepRef("competitor_sources"),
				"research_data": p.InputRef("research_data"),
			},
			p.WithTaskType("research"),
			p.WithStructuredOutput(schema.ContentGapReport),
		).
		Tool("save_gap_report", "make_file_in_folder", p.Args{
			"folder":   p.Literal(FamilyResearch),
			"filename": p.Format("%s_content_gaps.json", p.StepRef("slug")),
			"content":  p.StepRef("identify_gaps"),
		}).
		FinalOutput("identify_gaps").
		OutputSchema(schema.ContentGapReport).
		Build()
}

// ContentPlanning turns research into a 30-day content calendar and
// cross-platform strategy.
func ContentPlanning() (*p.Pipeline, error) {
	return p.New("content_planning").
		Describe("Content calendar and cross-platform strategy").
		Input("topic", "topic the plan is for").
		Input("target_keywords", "keywords to target").
		InputDefault("research_summary", "market research summary", map[string]any{}).
		InputDefault("content_goals", "what the content should achieve", "grow organic traffic and audience engagement").
		InputDefault("brand_guidelines", "voice and style rules", "").
		InputDefault("publishing_frequency", "how often to publish", "3x per week").
		Func("slug", "slugify", p.Slugify, p.Args{"text": p.InputRef("topic")}).
		Tool("research_posting_times", "search", p.Args{
			"query":       p.Literal("best times to post on social media platforms engagement data"),
			"max_results": p.Literal(5),
		}).
		Prompt("create_content_calendar",
			`Draft a 30-day content calendar for "{{.topic}}" publishing {{.publishing_frequency}}.
For each entry give the date offset, platform, format, working title and target keyword.`,
			p.Args{
				"topic":                p.InputRef("topic"),
				"target_keywords":      p.InputRef("target_keywords"),
				"research_summary":     p.InputRef("research_summary"),
				"publishing_frequency": p.InputRef("publishing_frequency"),
				"posting_times":        p.StepRef("research_posting_times"),
			},
			p.WithTaskType("outline"),
		).
		Prompt("develop_strategy",
			`Turn the draft calendar into a content plan that serves these goals: {{.content_goals}}.
Include the posting schedule per platform, monthly themes, a cross-promotion strategy and success metrics.`,
			p.Args{
				"calendar":         p.StepRef("create_content_calendar"),
				"content_goals":    p.InputRef("content_goals"),
				"brand_guidelines": p.InputRef("brand_guidelines"),
				"posting_times":    p.StepRef("research_posting_times"),
			},
			p.WithTaskType("outline"),
			p.WithStructuredOutput(schema.ContentPlan),
		).
		Tool("save_content_plan", "make_file_in_folder", p.Args{
			"folder":   p.Literal(FamilyPlans),
			"filename": p.Format("%s_content_plan.json", p.StepRef("slug")),
			"content":  p.StepRef("develop_strategy"),
		}).
		FinalOutput("develop_strategy").
		OutputSchema(schema.ContentPlan).
		Build()
}
