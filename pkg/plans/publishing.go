package plans

import (
	p "github.com/zen-systems/contentflow/pkg/pipeline"
	"github.com/zen-systems/contentflow/pkg/schema"
)

// Platform groups recognised in target_platforms.
var (
	BlogPlatforms   = []string{"blog", "wordpress", "medium", "notion"}
	SocialPlatforms = []string{"twitter", "x", "linkedin", "facebook", "instagram"}
	VideoPlatforms  = []string{"youtube", "tiktok", "video"}
)

// MultiPlatformPublishing formats a content package for each requested
// platform group and stages the results under published_content. With
// approval_required set, an approval request is written alongside.
func MultiPlatformPublishing() (*p.Pipeline, error) {
	platforms := p.Args{"platforms": p.InputRef("target_platforms")}
	return p.New("multi_platform_publishing").
		Describe("Format and stage content for each target platform").
		Input("content_package", "article package or text to publish").
		InputDefault("target_platforms", "platforms to publish to", []any{"blog"}).
		InputDefault("publishing_schedule", "immediately or a schedule description", "immediately").
		InputDefault("approval_required", "stage for human approval before publishing", true).
		InputDefault("content_id", "identifier used in file names", "content").
		Func("slug", "slugify", p.Slugify, p.Args{"text": p.InputRef("content_id")}).
		If("blog", p.ContainsAny("platforms", BlogPlatforms...), platforms).
		Prompt("format_blog_post",
			`Format the content as a publish-ready blog post in markdown with front matter (title, description, tags).`,
			p.Args{"content": p.InputRef("content_package")},
			p.WithTaskType("editing"),
		).
		Tool("save_blog_post", "file_writer", p.Args{
			"path":    p.Format(FamilyPublished+"/%s_blog.md", p.StepRef("slug")),
			"content": p.StepRef("format_blog_post"),
		}).
		EndIf().
		If("social", p.ContainsAny("platforms", SocialPlatforms...), platforms).
		Prompt("format_social_posts",
			`Adapt the content into native posts for each social platform. Respect each platform's length limits.`,
			p.Args{
				"content":   p.InputRef("content_package"),
				"platforms": p.InputRef("target_platforms"),
			},
			p.WithTaskType("social"),
			p.WithStructuredOutput(schema.SocialVariants),
		).
		Tool("save_social_posts", "make_file_in_folder", p.Args{
			"folder":   p.Literal(FamilyPublished),
			"filename": p.Format("%s_social.json", p.StepRef("slug")),
			"content":  p.StepRef("format_social_posts"),
		}).
		EndIf().
		If("video", p.ContainsAny("platforms", VideoPlatforms...), platforms).
		Prompt("format_video_description",
			`Write a video description with chapters, links and hashtags for the content.`,
			p.Args{"content": p.InputRef("content_package")},
			p.WithTaskType("social"),
		).
		Tool("save_video_description", "file_writer", p.Args{
			"path":    p.Format(FamilyPublished+"/%s_video_description.md", p.StepRef("slug")),
			"content": p.StepRef("format_video_description"),
		}).
		EndIf().
		If("approval_required", p.Truthy("approval_required"), p.Args{"approval_required": p.InputRef("approval_required")}).
		Tool("request_approval", "make_file_in_folder", p.Args{
			"folder":   p.Literal(FamilyPublished),
			"filename": p.Format("%s_approval_request.json", p.StepRef("slug")),
			"content": p.Object(map[string]p.Source{
				"content_id": p.InputRef("content_id"),
				"platforms":  p.InputRef("target_platforms"),
				"schedule":   p.InputRef("publishing_schedule"),
				"status":     p.Literal("pending_approval"),
			}),
		}).
		EndIf().
		Func("compile_publishing_results", "compile_publishing", CompilePublishing, p.Args{
			"platforms":         p.InputRef("target_platforms"),
			"schedule":          p.InputRef("publishing_schedule"),
			"approval_required": p.InputRef("approval_required"),
			"slug":              p.StepRef("slug"),
		}).
		Tool("save_publishing_results", "make_file_in_folder", p.Args{
			"folder":   p.Literal(FamilyPublished),
			"filename": p.Format("%s_publishing_results.json", p.StepRef("slug")),
			"content":  p.StepRef("compile_publishing_results"),
		}).
		FinalOutput("compile_publishing_results").
		OutputSchema(schema.PublishingResults).
		Build()
}

// Master runs research, planning, writing and fact checking for one project
// and assembles the deliverables into a FinalContentOutput.
func Master(research, planning, article, factCheck *p.Pipeline) (*p.Pipeline, error) {
	return p.New("master").
		Describe("End-to-end content project: research, plan, article and fact check").
		Input("project_name", "name of the content project").
		Input("primary_topic", "main topic").
		Input("target_audience", "who the content is for").
		InputDefault("content_goals", "what the project should achieve", "grow organic traffic and audience engagement").
		InputDefault("competitor_domains", "competitor pages to analyse", []any{}).
		Func("slug", "slugify", p.Slugify, p.Args{"text": p.InputRef("project_name")}).
		Embed("market_research_phase", research, p.Args{
			"topic":              p.InputRef("primary_topic"),
			"target_audience":    p.InputRef("target_audience"),
			"competitor_domains": p.InputRef("competitor_domains"),
		}).
		Embed("content_planning_phase", planning, p.Args{
			"topic":            p.InputRef("primary_topic"),
			"target_keywords":  p.StepRef("market_research_phase").Path("target_keywords"),
			"research_summary": p.StepRef("market_research_phase"),
			"content_goals":    p.InputRef("content_goals"),
		}).
		Func("content_angle", "first_or", FirstOr, p.Args{
			"items":    p.StepRef("market_research_phase").Path("recommended_angles"),
			"fallback": p.Literal(""),
		}).
		Embed("article_phase", article, p.Args{
			"topic":           p.InputRef("primary_topic"),
			"target_keywords": p.StepRef("market_research_phase").Path("target_keywords"),
			"content_angle":   p.StepRef("content_angle"),
		}).
		Embed("fact_check_phase", factCheck, p.Args{
			"content_to_verify": p.StepRef("article_phase").Path("main_article"),
			"content_id":        p.StepRef("slug"),
		}).
		Func("assemble_project", "assemble_project", AssembleProject, p.Args{
			"project_name":    p.InputRef("project_name"),
			"primary_topic":   p.InputRef("primary_topic"),
			"target_audience": p.InputRef("target_audience"),
			"research":        p.StepRef("market_research_phase"),
			"plan":            p.StepRef("content_planning_phase"),
			"article":         p.StepRef("article_phase"),
			"fact_check":      p.StepRef("fact_check_phase"),
		}).
		Tool("save_final_output", "make_file_in_folder", p.Args{
			"folder":   p.Literal(FamilyFinal),
			"filename": p.Format("%s_final_output.json", p.StepRef("slug")),
			"content":  p.StepRef("assemble_project"),
		}).
		FinalOutput("assemble_project").
		OutputSchema(schema.FinalContentOutput).
		Build()
}
