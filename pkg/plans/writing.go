package plans

import (
	p "github.com/zen-systems/contentflow/pkg/pipeline"
	"github.com/zen-systems/contentflow/pkg/schema"
)

// ArticleWriting researches, outlines and writes a long-form article, then
// packages it with social variants and SEO details.
func ArticleWriting() (*p.Pipeline, error) {
	return p.New("article_writing").
		Describe("Long-form article with social variants and SEO package").
		Input("topic", "article topic").
		Input("target_keywords", "SEO keywords to target").
		InputDefault("word_count_target", "approximate article length in words", 2000).
		InputDefault("audience_level", "beginner, intermediate or expert", "intermediate").
		InputDefault("content_angle", "angle or hook for the piece", "").
		Func("slug", "slugify", p.Slugify, p.Args{"text": p.InputRef("topic")}).
		Tool("research_topic_details", "search", p.Args{
			"query":        p.Format("%s statistics examples expert insights", p.InputRef("topic")),
			"search_depth": p.Literal("advanced"),
			"max_results":  p.Literal(8),
		}).
		Tool("analyze_top_content", "search", p.Args{
			"query":       p.Format("%s complete guide", p.InputRef("topic")),
			"max_results": p.Literal(5),
		}).
		Prompt("create_article_outline",
			`Outline an article on "{{.topic}}" for a {{.audience_level}} audience.
Use H2 and H3 headings, note where each target keyword fits and what evidence supports each section.`,
			p.Args{
				"topic":           p.InputRef("topic"),
				"audience_level":  p.InputRef("audience_level"),
				"content_angle":   p.InputRef("content_angle"),
				"target_keywords": p.InputRef("target_keywords"),
				"research":        p.StepRef("research_topic_details"),
				"top_content":     p.StepRef("analyze_top_content"),
			},
			p.WithTaskType("outline"),
		).
		Prompt("write_full_article",
			`Write the full article in markdown following the outline. Aim for about {{.word_count_target}} words.
Cite the research where you use it and keep the keywords natural.`,
			p.Args{
				"outline":           p.StepRef("create_article_outline"),
				"word_count_target": p.InputRef("word_count_target"),
				"target_keywords":   p.InputRef("target_keywords"),
				"research":          p.StepRef("research_topic_details"),
			},
			p.WithTaskType("writing"),
		).
		Prompt("create_social_variants",
			`Write social media variants of the article: a Twitter/X thread, a LinkedIn post, a Facebook post and an Instagram caption.`,
			p.Args{"article": p.StepRef("write_full_article")},
			p.WithTaskType("social"),
			p.WithStructuredOutput(schema.SocialVariants),
		).
		Prompt("seo_optimization_check",
			`Review the article for SEO against the target keywords. Write a meta description, suggest featured images and internal links.`,
			p.Args{
				"article":         p.StepRef("write_full_article"),
				"target_keywords": p.InputRef("target_keywords"),
			},
			p.WithTaskType("editing"),
			p.WithStructuredOutput(schema.SEOAnalysis),
		).
		Func("package_content", "package_content", p.PackageContent, p.Args{
			"article":  p.StepRef("write_full_article"),
			"social":   p.StepRef("create_social_variants"),
			"seo":      p.StepRef("seo_optimization_check"),
			"keywords": p.InputRef("target_keywords"),
		}).
		Tool("save_article_markdown", "file_writer", p.Args{
			"path":    p.Format(FamilyDrafts+"/%s.md", p.StepRef("slug")),
			"content": p.StepRef("write_full_article"),
		}).
		Tool("save_content_package", "make_file_in_folder", p.Args{
			"folder":   p.Literal(FamilyDrafts),
			"filename": p.Format("%s_package.json", p.StepRef("slug")),
			"content":  p.StepRef("package_content"),
		}).
		FinalOutput("package_content").
		OutputSchema(schema.ContentPackage).
		Build()
}

// SourceEvidence gathers authoritative sources for a query when
// include_sources is set. Its output is the extracted source pages, the
// search results when nothing could be extracted, or an empty source list.
func SourceEvidence() (*p.Pipeline, error) {
	return p.New("source_evidence").
		Describe("Authoritative sources backing a set of claims").
		Input("query", "claims to find sources for").
		InputDefault("include_sources", "whether to look for sources at all", true).
		If("include_sources", p.Truthy("include_sources"), p.Args{"include_sources": p.InputRef("include_sources")}).
		Tool("find_authoritative_sources", "search", p.Args{
			"query":        p.Format("site:edu OR site:gov OR site:org %s", p.InputRef("query")),
			"search_depth": p.Literal("advanced"),
			"max_results":  p.Literal(5),
		}).
		If("has_results", p.LenAtLeast("results", 1), p.Args{"results": p.StepRef("find_authoritative_sources")}).
		Tool("extract_verification_sources", "extract", p.Args{
			"urls": p.StepRef("find_authoritative_sources").Path("#.url"),
		}).
		EndIf().
		Else().
		Func("no_sources", "merge", p.Merge, p.Args{"sources": p.Literal([]any{})}).
		EndIf().
		Build()
}

// FactChecking extracts the claims in a piece of content, verifies them
// against web sources and writes a FactCheckReport. Content that needs
// changes also gets a corrected version.
func FactChecking() (*p.Pipeline, error) {
	sources, err := SourceEvidence()
	if err != nil {
		return nil, err
	}
	return p.New("fact_checking").
		Describe("Claim verification report with optional corrected content").
		Input("content_to_verify", "text whose claims should be checked").
		InputDefault("verification_level", "basic, standard or thorough", "thorough").
		InputDefault("content_id", "identifier used in report file names", "content").
		InputDefault("include_sources", "search authoritative sources", true).
		Func("slug", "slugify", p.Slugify, p.Args{"text": p.InputRef("content_id")}).
		Prompt("extract_claims",
			`List every factual claim, statistic and quotation in the content that can be checked against a source.`,
			p.Args{"content": p.InputRef("content_to_verify")},
			p.WithTaskType("fact_check"),
			p.WithStructuredOutput(schema.ClaimList),
		).
		Func("claim_query", "search_query", SearchQuery, p.Args{
			"items": p.StepRef("extract_claims").Path("claims"),
		}).
		Tool("verify_claims", "search", p.Args{
			"query":       p.Format("fact check %s", p.StepRef("claim_query")),
			"max_results": p.Literal(8),
		}).
		Embed("source_evidence", sources, p.Args{
			"query":           p.StepRef("claim_query"),
			"include_sources": p.InputRef("include_sources"),
		}).
		Prompt("generate_verification_report",
			`Verify each claim against the search results and sources. Apply a {{.verification_level}} standard.
Rate overall confidence from 0 to 10 and set approval_status to ready_to_publish, needs_review or requires_changes.`,
			p.Args{
				"claims":             p.StepRef("extract_claims"),
				"search_results":     p.StepRef("verify_claims"),
				"sources":            p.StepRef("source_evidence"),
				"verification_level": p.InputRef("verification_level"),
			},
			p.WithTaskType("fact_check"),
			p.WithStructuredOutput(schema.FactCheckReport),
		).
		If("needs_corrections", p.ContainsAny("status", "needs_review", "requires_changes"), p.Args{
			"status": p.StepRef("generate_verification_report").Path("approval_status"),
		}).
		Prompt("create_corrected_content",
			`Rewrite the content applying every correction from the report. Keep everything else as written.`,
			p.Args{
				"content": p.InputRef("content_to_verify"),
				"report":  p.StepRef("generate_verification_report"),
			},
			p.WithTaskType("editing"),
		).
		Tool("save_corrected_content", "file_writer", p.Args{
			"path":    p.Format(FamilyFactChecks+"/corrected_%s.md", p.StepRef("slug")),
			"content": p.StepRef("create_corrected_content"),
		}).
		EndIf().
		Tool("save_fact_check_report", "make_file_in_folder", p.Args{
			"folder":   p.Literal(FamilyFactChecks),
			"filename": p.Format("verification_report_%s.json", p.StepRef("slug")),
			"content":  p.StepRef("generate_verification_report"),
		}).
		FinalOutput("generate_verification_report").
		OutputSchema(schema.FactCheckReport).
		Build()
}
