package plans

import (
	p "github.com/zen-systems/contentflow/pkg/pipeline"
	"github.com/zen-systems/contentflow/pkg/schema"
)

// PodcastProduction writes a podcast episode script with show notes,
// chapters and audio production notes.
func PodcastProduction() (*p.Pipeline, error) {
	return p.New("podcast_production").
		Describe("Podcast script, show notes and chapter markers").
		Input("episode_topic", "what the episode is about").
		Input("source_content", "article or notes the episode is based on").
		InputDefault("target_duration", "target length in minutes", 25).
		InputDefault("host_style", "conversational, interview or narrative", "conversational").
		InputDefault("episode_number", "episode number", 1).
		Tool("research_podcast_content", "search", p.Args{
			"query":       p.Format("%s expert interviews stories statistics", p.InputRef("episode_topic")),
			"max_results": p.Literal(6),
		}).
		Tool("analyze_similar_podcasts", "search", p.Args{
			"query":       p.Format("%s podcast episode", p.InputRef("episode_topic")),
			"max_results": p.Literal(5),
		}).
		Prompt("create_podcast_script",
			`Write a {{.host_style}} podcast script of about {{.target_duration}} minutes on "{{.episode_topic}}".
Include an intro hook, segment transitions and an outro with a call to action. Mark [MUSIC] and [PAUSE] cues.`,
			p.Args{
				"episode_topic":   p.InputRef("episode_topic"),
				"source_content":  p.InputRef("source_content"),
				"target_duration": p.InputRef("target_duration"),
				"host_style":      p.InputRef("host_style"),
				"research":        p.StepRef("research_podcast_content"),
				"similar":         p.StepRef("analyze_similar_podcasts"),
			},
			p.WithTaskType("script"),
		).
		Prompt("generate_show_notes",
			`Write show notes for the episode: summary, key takeaways, resources mentioned and links.`,
			p.Args{
				"script":   p.StepRef("create_podcast_script"),
				"research": p.StepRef("research_podcast_content"),
			},
			p.WithTaskType("summarize"),
		).
		Prompt("create_chapter_markers",
			`Split the script into chapters. Give each chapter a timestamp (mm:ss) and a short title.`,
			p.Args{"script": p.StepRef("create_podcast_script")},
			p.WithTaskType("summarize"),
			p.WithStructuredOutput(schema.ChapterMarkers),
		).
		Prompt("create_audio_instructions",
			`Write production notes for recording and editing this episode: pacing, music beds, sound effects and levels.`,
			p.Args{"script": p.StepRef("create_podcast_script")},
			p.WithTaskType("editing"),
		).
		Func("package_episode", "package_podcast", PackagePodcast, p.Args{
			"script":             p.StepRef("create_podcast_script"),
			"show_notes":         p.StepRef("generate_show_notes"),
			"chapters":           p.StepRef("create_chapter_markers").Path("chapters"),
			"audio_instructions": p.StepRef("create_audio_instructions"),
			"episode_topic":      p.InputRef("episode_topic"),
			"episode_number":     p.InputRef("episode_number"),
			"target_duration":    p.InputRef("target_duration"),
			"host_style":         p.InputRef("host_style"),
		}).
		Tool("save_episode_script", "make_file_in_folder", p.Args{
			"folder":   p.Literal(FamilyPodcasts),
			"filename": p.Format("episode_%v_script.md", p.InputRef("episode_number")),
			"content":  p.StepRef("create_podcast_script"),
		}).
		Tool("save_episode_package", "make_file_in_folder", p.Args{
			"folder":   p.Literal(FamilyPodcasts),
			"filename": p.Format("episode_%v_package.json", p.InputRef("episode_number")),
			"content":  p.StepRef("package_episode"),
		}).
		FinalOutput("package_episode").
		OutputSchema(schema.PodcastPackage).
		Build()
}

// PodcastAudio turns a podcast script into speech with ElevenLabs.
func PodcastAudio() (*p.Pipeline, error) {
	return p.New("podcast_audio").
		Describe("Text-to-speech rendering of a podcast script").
		Input("script", "podcast script to narrate").
		Input("voice_id", "ElevenLabs voice id").
		InputDefault("model_id", "ElevenLabs model", "eleven_multilingual_v2").
		InputDefault("episode_number", "episode number", 1).
		Prompt("prepare_tts_script",
			`Rewrite the script as plain narration for text-to-speech. Drop stage directions, cues and markdown. Keep the wording otherwise.`,
			p.Args{"script": p.InputRef("script")},
			p.WithTaskType("editing"),
		).
		Tool("save_tts_script", "make_file_in_folder", p.Args{
			"folder":   p.Literal(FamilyPodcasts),
			"filename": p.Format("episode_%v_tts_script.txt", p.InputRef("episode_number")),
			"content":  p.StepRef("prepare_tts_script"),
		}).
		Tool("synthesize_audio", "elevenlabs_tts", p.Args{
			"text":        p.StepRef("prepare_tts_script"),
			"voice_id":    p.InputRef("voice_id"),
			"model_id":    p.InputRef("model_id"),
			"output_path": p.Format(FamilyPodcasts+"/episode_%v.mp3", p.InputRef("episode_number")),
		}).
		Func("audio_result", "merge", p.Merge, p.Args{
			"audio_path":     p.StepRef("synthesize_audio"),
			"script_path":    p.StepRef("save_tts_script"),
			"voice_id":       p.InputRef("voice_id"),
			"model_id":       p.InputRef("model_id"),
			"episode_number": p.InputRef("episode_number"),
		}).
		Build()
}

// VideoProduction writes a video script with shot list, thumbnail concepts,
// metadata and editing instructions.
func VideoProduction() (*p.Pipeline, error) {
	return p.New("video_production").
		Describe("Video script and production package").
		Input("video_topic", "what the video is about").
		Input("target_platform", "youtube, tiktok, instagram or linkedin").
		InputDefault("video_length", "target running time", "8-10 minutes").
		InputDefault("video_style", "educational, entertaining or documentary", "educational").
		InputDefault("brand_guidelines", "visual and tone rules", "").
		Func("slug", "slugify", p.Slugify, p.Args{"text": p.InputRef("video_topic")}).
		Tool("research_platform_specs", "search", p.Args{
			"query":       p.Format("%s video best practices specs length format", p.InputRef("target_platform")),
			"max_results": p.Literal(5),
		}).
		Tool("analyze_viral_videos", "search", p.Args{
			"query":       p.Format("viral %s videos about %s", p.InputRef("target_platform"), p.InputRef("video_topic")),
			"max_results": p.Literal(5),
		}).
		Prompt("create_video_script",
			`Write a {{.video_style}} {{.target_platform}} video script on "{{.video_topic}}" running {{.video_length}}.
Open with a hook in the first five seconds. Give visual directions next to the narration.`,
			p.Args{
				"video_topic":      p.InputRef("video_topic"),
				"target_platform":  p.InputRef("target_platform"),
				"video_length":     p.InputRef("video_length"),
				"video_style":      p.InputRef("video_style"),
				"brand_guidelines": p.InputRef("brand_guidelines"),
				"platform_specs":   p.StepRef("research_platform_specs"),
				"viral_examples":   p.StepRef("analyze_viral_videos"),
			},
			p.WithTaskType("script"),
		).
		Prompt("create_shot_list",
			`Write the shot list for the script as a markdown bullet list, one shot per bullet.`,
			p.Args{"script": p.StepRef("create_video_script")},
			p.WithTaskType("script"),
		).
		Func("shot_list", "parse_bullet_list", p.ParseBulletList, p.Args{"text": p.StepRef("create_shot_list")}).
		Prompt("generate_thumbnail_concepts",
			`Propose three thumbnail concepts for the video. Answer with a JSON array of strings, one concept each.`,
			p.Args{
				"video_topic":      p.InputRef("video_topic"),
				"brand_guidelines": p.InputRef("brand_guidelines"),
			},
			p.WithTaskType("social"),
		).
		Func("thumbnail_concepts", "parse_json", p.ParseJSON, p.Args{"text": p.StepRef("generate_thumbnail_concepts")}).
		Prompt("create_video_metadata",
			`Write the {{.target_platform}} title, description and tags for the video.`,
			p.Args{
				"target_platform": p.InputRef("target_platform"),
				"script":          p.StepRef("create_video_script"),
			},
			p.WithTaskType("social"),
			p.WithStructuredOutput(schema.VideoMetadata),
		).
		Prompt("create_editing_instructions",
			`Write editing instructions for the video: cuts, pacing, captions, music and color.`,
			p.Args{
				"script":    p.StepRef("create_video_script"),
				"shot_list": p.StepRef("shot_list"),
			},
			p.WithTaskType("editing"),
		).
		Func("package_video", "package_video", PackageVideo, p.Args{
			"script":               p.StepRef("create_video_script"),
			"shot_list":            p.StepRef("shot_list"),
			"thumbnail_concepts":   p.StepRef("thumbnail_concepts"),
			"metadata":             p.StepRef("create_video_metadata"),
			"editing_instructions": p.StepRef("create_editing_instructions"),
			"video_topic":          p.InputRef("video_topic"),
			"target_platform":      p.InputRef("target_platform"),
			"video_length":         p.InputRef("video_length"),
		}).
		Tool("save_video_script", "make_file_in_folder", p.Args{
			"folder":   p.Literal(FamilyVideo),
			"filename": p.Format("%s_script.md", p.StepRef("slug")),
			"content":  p.StepRef("create_video_script"),
		}).
		Tool("save_production_package", "make_file_in_folder", p.Args{
			"folder":   p.Literal(FamilyVideo),
			"filename": p.Format("%s_production_package.json", p.StepRef("slug")),
			"content":  p.StepRef("package_video"),
		}).
		FinalOutput("package_video").
		OutputSchema(schema.VideoPackage).
		Build()
}
