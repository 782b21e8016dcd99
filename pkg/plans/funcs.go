package plans

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/zen-systems/contentflow/pkg/pipeline"
)

// maxQueryLen keeps generated search queries within what search APIs accept.
const maxQueryLen = 350

// narrationWordsPerMinute estimates spoken length of a script.
const narrationWordsPerMinute = 150

// Funcs returns the plan functions by name, for use from manifests.
func Funcs() map[string]pipeline.Func {
	return map[string]pipeline.Func{
		"search_query":       SearchQuery,
		"first_or":           FirstOr,
		"package_podcast":    PackagePodcast,
		"package_video":      PackageVideo,
		"compile_publishing": CompilePublishing,
		"assemble_project":   AssembleProject,
	}
}

// SearchQuery joins args["items"] (or args["text"]) into one search query,
// cut at a word boundary to stay within maxQueryLen.
func SearchQuery(_ context.Context, args map[string]any) (any, error) {
	var parts []string
	if v, ok := args["items"]; ok {
		parts = stringsOf(v)
	} else if v, ok := args["text"]; ok {
		parts = []string{fmt.Sprint(v)}
	} else {
		return nil, fmt.Errorf("missing argument %q", "items")
	}

	query := strings.Join(strings.Fields(strings.Join(parts, "; ")), " ")
	if len(query) > maxQueryLen {
		cut := strings.LastIndexByte(query[:maxQueryLen], ' ')
		if cut <= 0 {
			cut = maxQueryLen
			for cut > 0 && !utf8.RuneStart(query[cut]) {
				cut--
			}
		}
		query = query[:cut]
	}
	if query == "" {
		return nil, fmt.Errorf("nothing to search for")
	}
	return query, nil
}

// FirstOr returns the first non-empty entry of args["items"], or
// args["fallback"] when there is none.
func FirstOr(_ context.Context, args map[string]any) (any, error) {
	switch t := args["items"].(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return s, nil
		}
	default:
		if items := stringsOf(t); len(items) > 0 {
			return items[0], nil
		}
	}
	if fb, ok := args["fallback"]; ok && fb != nil {
		return fb, nil
	}
	return "", nil
}

// PackagePodcast assembles a PodcastPackage from the episode parts.
func PackagePodcast(_ context.Context, args map[string]any) (any, error) {
	script, err := textArg(args, "script")
	if err != nil {
		return nil, err
	}
	minutes := len(strings.Fields(script)) / narrationWordsPerMinute
	if minutes < 1 {
		minutes = 1
	}
	chapters := args["chapters"]
	if chapters == nil {
		chapters = []any{}
	}
	return map[string]any{
		"episode_script":     script,
		"show_notes":         fmt.Sprint(args["show_notes"]),
		"chapter_markers":    chapters,
		"audio_instructions": fmt.Sprint(args["audio_instructions"]),
		"estimated_duration": fmt.Sprintf("%d minutes", minutes),
		"episode_metadata": map[string]any{
			"title":           args["episode_topic"],
			"episode_number":  args["episode_number"],
			"target_duration": args["target_duration"],
			"host_style":      args["host_style"],
			"word_count":      len(strings.Fields(script)),
			"created_at":      time.Now().UTC().Format(time.RFC3339),
		},
	}, nil
}

// PackageVideo assembles a VideoPackage from the production parts.
func PackageVideo(_ context.Context, args map[string]any) (any, error) {
	script, err := textArg(args, "script")
	if err != nil {
		return nil, err
	}
	shots := stringsOf(args["shot_list"])
	concepts := args["thumbnail_concepts"]
	if m, ok := concepts.(map[string]any); ok {
		if inner, ok := m["concepts"]; ok {
			concepts = inner
		}
	}
	return map[string]any{
		"video_script":         script,
		"shot_list":            toAnySlice(shots),
		"thumbnail_concepts":   toAnySlice(stringsOf(concepts)),
		"video_metadata":       args["metadata"],
		"editing_instructions": fmt.Sprint(args["editing_instructions"]),
		"production_details": map[string]any{
			"topic":            args["video_topic"],
			"platform":         args["target_platform"],
			"estimated_length": args["video_length"],
			"shot_count":       len(shots),
			"status":           "ready_for_production",
		},
	}, nil
}

// CompilePublishing reports where each requested platform's content was
// staged and what happens next.
func CompilePublishing(_ context.Context, args map[string]any) (any, error) {
	platforms := stringsOf(args["platforms"])
	if len(platforms) == 0 {
		return nil, fmt.Errorf("no target platforms")
	}
	approval, err := pipeline.Truthy("approval_required")(args)
	if err != nil {
		return nil, err
	}
	schedule := strings.TrimSpace(fmt.Sprint(args["schedule"]))
	slug := fmt.Sprint(args["slug"])

	results := make(map[string]any, len(platforms))
	scheduling := make(map[string]any, len(platforms))
	baseline := make(map[string]any, len(platforms))
	locations := make(map[string]bool)
	var unsupported []string

	for _, platform := range platforms {
		group, location := platformGroup(platform, slug)
		status := "staged"
		switch {
		case group == "":
			status = "unsupported"
			unsupported = append(unsupported, platform)
		case approval:
			status = "awaiting_approval"
		case !strings.EqualFold(schedule, "immediately"):
			status = "scheduled"
		}
		entry := map[string]any{"group": group, "status": status}
		if location != "" {
			entry["location"] = location
			locations[location] = true
		}
		results[platform] = entry
		scheduling[platform] = map[string]any{"schedule": schedule, "status": status}
		baseline[platform] = map[string]any{"impressions": 0, "engagements": 0, "clicks": 0}
	}

	urls := make([]any, 0, len(locations))
	for _, loc := range sortedNames(locations) {
		urls = append(urls, loc)
	}

	next := []any{}
	if approval {
		next = append(next, fmt.Sprintf("review %s/%s_approval_request.json and approve publishing", FamilyPublished, slug))
	}
	if len(unsupported) > 0 {
		next = append(next, "add formatting for unsupported platforms: "+strings.Join(unsupported, ", "))
	}
	next = append(next, "collect engagement metrics 24 hours after publishing")

	return map[string]any{
		"platform_results":     results,
		"published_urls":       urls,
		"scheduling_status":    scheduling,
		"performance_baseline": baseline,
		"next_actions":         next,
	}, nil
}

func platformGroup(platform, slug string) (group, location string) {
	name := strings.ToLower(strings.TrimSpace(platform))
	switch {
	case slices.Contains(BlogPlatforms, name):
		return "blog", fmt.Sprintf("%s/%s_blog.md", FamilyPublished, slug)
	case slices.Contains(SocialPlatforms, name):
		return "social", fmt.Sprintf("%s/%s_social.json", FamilyPublished, slug)
	case slices.Contains(VideoPlatforms, name):
		return "video", fmt.Sprintf("%s/%s_video_description.md", FamilyPublished, slug)
	}
	return "", ""
}

// AssembleProject combines the phase outputs of the master plan into a
// FinalContentOutput. The project id is the id of the run assembling it.
func AssembleProject(ctx context.Context, args map[string]any) (any, error) {
	research, _ := args["research"].(map[string]any)
	plan, _ := args["plan"].(map[string]any)
	article, _ := args["article"].(map[string]any)
	factCheck, _ := args["fact_check"].(map[string]any)
	if article == nil || factCheck == nil {
		return nil, fmt.Errorf("article and fact_check outputs are required")
	}

	projectID := uuid.NewString()
	elapsed := "unknown"
	if run, ok := pipeline.RunFromContext(ctx); ok {
		projectID = run.RunID
		if !run.StartedAt.IsZero() {
			elapsed = time.Since(run.StartedAt).Round(time.Second).String()
		}
	}

	approval := fmt.Sprint(factCheck["approval_status"])
	status := "completed"
	if approval != "ready_to_publish" {
		status = "completed_pending_review"
	}

	summary := fmt.Sprintf("%s: market research, a content plan, a %v-word article on %q for %s, and a fact check report (%s, confidence %v).",
		args["project_name"], article["word_count"], args["primary_topic"], args["target_audience"],
		approval, factCheck["confidence_score"])

	return map[string]any{
		"project_id":      projectID,
		"content_summary": summary,
		"deliverables": map[string]any{
			"market_research": research,
			"content_plan":    plan,
			"article":         article,
			"fact_check":      factCheck,
		},
		"performance_targets": map[string]any{
			"target_keywords":       research["target_keywords"],
			"success_metrics":       plan["success_metrics"],
			"fact_check_confidence": factCheck["confidence_score"],
		},
		"total_execution_time": elapsed,
		"status":               status,
	}, nil
}

func textArg(args map[string]any, name string) (string, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return "", fmt.Errorf("missing argument %q", name)
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	return fmt.Sprint(v), nil
}

// stringsOf reads a string, a comma-separated string or a list as trimmed,
// non-empty strings.
func stringsOf(v any) []string {
	var raw []string
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		raw = strings.Split(t, ",")
	case []string:
		raw = t
	default:
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			raw = []string{fmt.Sprint(v)}
			break
		}
		for i := 0; i < rv.Len(); i++ {
			raw = append(raw, fmt.Sprint(rv.Index(i).Interface()))
		}
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func toAnySlice(items []string) []any {
	out := make([]any, len(items))
	for i, s := range items {
		out[i] = s
	}
	return out
}
