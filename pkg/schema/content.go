package schema

// ResearchSummary is the output of market research.
var ResearchSummary = New("ResearchSummary",
	ListOf("trending_topics", true, TypeString, "top trending topics and subtopics"),
	ListOf("competitor_content_gaps", true, TypeString, "competitor content gaps and opportunities"),
	ListOf("audience_pain_points", true, TypeString, "audience pain points and interests"),
	ListOf("popular_content_formats", true, TypeString, "popular content formats"),
	ListOf("target_keywords", true, TypeString, "SEO keywords with high potential"),
	ListOf("recommended_angles", true, TypeString, "recommended content angles"),
	ListOf("seasonal_trends", true, TypeString, "seasonal trends and timing"),
	ListOf("emerging_trends", true, TypeString, "emerging trends to watch"),
	Optional("competitor_insights", TypeObject, "competitor analysis results"),
	ListOf("industry_reports", false, TypeString, "key findings from industry reports"),
	Optional("raw_sources", TypeObject, "raw data sources used"),
)

// ContentGapReport is the output of content gap analysis.
var ContentGapReport = New("ContentGapReport",
	ListOf("content_gaps", true, TypeString, "topics competitors cover poorly or not at all"),
	ListOf("opportunities", true, TypeString, "ranked content opportunities"),
	ListOf("sources", false, TypeString, "urls analysed"),
)

// ContentPlan is the output of content planning.
var ContentPlan = New("ContentPlan",
	ListOf("content_calendar", true, TypeObject, "30-day content calendar"),
	Required("posting_schedule", TypeObject, "optimal posting times per platform"),
	ListOf("content_themes", true, TypeString, "monthly content themes"),
	Required("cross_promotion_strategy", TypeObject, "cross-platform promotion plan"),
	Required("success_metrics", TypeObject, "KPIs and success metrics"),
)

// ContentPackage is the output of article writing.
var ContentPackage = New("ContentPackage",
	Required("main_article", TypeString, "primary article content"),
	Required("social_variants", TypeObject, "platform-specific content variants"),
	Required("meta_description", TypeString, "SEO meta description"),
	ListOf("featured_image_suggestions", true, TypeString, "featured image recommendations"),
	ListOf("internal_links", true, TypeString, "internal linking opportunities"),
	Required("word_count", TypeInteger, "total word count"),
)

// FactCheckReport is the output of fact checking.
var FactCheckReport = New("FactCheckReport",
	Required("claims_verified", TypeInteger, "number of claims checked"),
	ListOf("verification_results", true, TypeObject, "verification result per claim"),
	Required("confidence_score", TypeNumber, "overall confidence score 0-10"),
	ListOf("sources_cited", true, TypeString, "reliable sources found"),
	ListOf("corrections_needed", true, TypeString, "required corrections"),
	Required("approval_status", TypeString, "ready_to_publish, needs_review or requires_changes"),
)

// PodcastPackage is the output of podcast production.
var PodcastPackage = New("PodcastPackage",
	Required("episode_script", TypeString, "complete podcast script"),
	Required("show_notes", TypeString, "detailed show notes"),
	ListOf("chapter_markers", true, TypeObject, "chapter markers with timestamps"),
	Required("episode_metadata", TypeObject, "episode metadata"),
	Required("audio_instructions", TypeString, "audio production instructions"),
	Required("estimated_duration", TypeString, "estimated episode duration"),
)

// VideoPackage is the output of video production.
var VideoPackage = New("VideoPackage",
	Required("video_script", TypeString, "complete video script"),
	ListOf("shot_list", true, TypeString, "shot list"),
	ListOf("thumbnail_concepts", true, TypeString, "thumbnail design concepts"),
	Required("video_metadata", TypeObject, "title, description, tags"),
	Required("editing_instructions", TypeString, "editing instructions"),
	Optional("video_url", TypeString, "url of the rendered video"),
	Required("production_details", TypeObject, "topic, platform, estimated time, equipment, status"),
)

// PublishingResults is the output of multi-platform publishing.
var PublishingResults = New("PublishingResults",
	Required("platform_results", TypeObject, "results per platform"),
	ListOf("published_urls", true, TypeString, "published or staged content locations"),
	Required("scheduling_status", TypeObject, "scheduling status per platform"),
	Required("performance_baseline", TypeObject, "initial performance metrics"),
	ListOf("next_actions", true, TypeString, "recommended next actions"),
)

// FinalContentOutput is the output of the master pipeline.
var FinalContentOutput = New("FinalContentOutput",
	Required("project_id", TypeString, "unique project identifier"),
	Required("content_summary", TypeString, "summary of all created content"),
	Required("deliverables", TypeObject, "all content deliverables"),
	Required("performance_targets", TypeObject, "performance targets and metrics"),
	Required("total_execution_time", TypeString, "total production time"),
	Required("status", TypeString, "project completion status"),
)

// SocialVariants holds platform-specific posts derived from a longer piece.
var SocialVariants = New("SocialVariants",
	ListOf("twitter_thread", true, TypeString, "tweets in thread order"),
	Required("linkedin_post", TypeString, "LinkedIn post"),
	Optional("facebook_post", TypeString, "Facebook post"),
	Optional("instagram_caption", TypeString, "Instagram caption with hashtags"),
)

// SEOAnalysis is the result of an SEO review of an article.
var SEOAnalysis = New("SEOAnalysis",
	Required("meta_description", TypeString, "meta description under 160 characters"),
	ListOf("featured_image_suggestions", true, TypeString, "featured image ideas"),
	ListOf("internal_links", true, TypeString, "internal linking opportunities"),
	Optional("keyword_density", TypeNumber, "primary keyword density in percent"),
	ListOf("recommendations", false, TypeString, "further SEO improvements"),
)

// ClaimList is the set of checkable claims pulled from a piece of content.
var ClaimList = New("ClaimList",
	ListOf("claims", true, TypeString, "factual claims, statistics and quotes to verify"),
)

// ChapterMarkers lists podcast chapters.
var ChapterMarkers = New("ChapterMarkers",
	ListOf("chapters", true, TypeObject, "chapters with timestamp and title"),
)

// VideoMetadata is the publishing metadata of a video.
var VideoMetadata = New("VideoMetadata",
	Required("title", TypeString, "video title"),
	Required("description", TypeString, "video description"),
	ListOf("tags", true, TypeString, "tags and hashtags"),
)

// Registry maps schema names to the content schemas.
func Registry() map[string]*Schema {
	all := []*Schema{
		ResearchSummary,
		ContentGapReport,
		ContentPlan,
		ContentPackage,
		FactCheckReport,
		PodcastPackage,
		VideoPackage,
		PublishingResults,
		FinalContentOutput,
		SocialVariants,
		SEOAnalysis,
		ClaimList,
		ChapterMarkers,
		VideoMetadata,
	}
	out := make(map[string]*Schema, len(all))
	for _, s := range all {
		out[s.Name] = s
	}
	return out
}
