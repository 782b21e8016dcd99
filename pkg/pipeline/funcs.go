package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Funcs returns the standard functions by name.
func Funcs() map[string]Func {
	return map[string]Func{
		"parse_json":        ParseJSON,
		"parse_bullet_list": ParseBulletList,
		"split_paragraphs":  SplitParagraphs,
		"word_count":        WordCount,
		"slugify":           Slugify,
		"join_lines":        JoinLines,
		"merge":             Merge,
		"package_content":   PackageContent,
	}
}

// ParseJSON decodes the first JSON object or array in args["text"]. Markdown
// code fences and surrounding prose are ignored. Structured values pass
// through unchanged.
func ParseJSON(_ context.Context, args map[string]any) (any, error) {
	v, ok := args["text"]
	if !ok {
		return nil, fmt.Errorf("missing argument %q", "text")
	}
	text, ok := v.(string)
	if !ok {
		return v, nil
	}
	return DecodeJSONText(text)
}

var fenceRe = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

// DecodeJSONText extracts and decodes JSON embedded in model output.
func DecodeJSONText(text string) (any, error) {
	body := strings.TrimSpace(text)
	if m := fenceRe.FindStringSubmatch(body); m != nil {
		body = strings.TrimSpace(m[1])
	}

	var out any
	if err := json.Unmarshal([]byte(body), &out); err == nil {
		return out, nil
	}

	start := strings.IndexAny(body, "{[")
	if start < 0 {
		return nil, fmt.Errorf("no JSON found in text")
	}
	closer := byte('}')
	if body[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(body, closer)
	if end <= start {
		return nil, fmt.Errorf("unterminated JSON in text")
	}
	if err := json.Unmarshal([]byte(body[start:end+1]), &out); err != nil {
		return nil, fmt.Errorf("decode JSON: %w", err)
	}
	return out, nil
}

var bulletRe = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+(.*)$`)

// ParseBulletList returns the items of a markdown bullet or numbered list in
// args["text"].
func ParseBulletList(_ context.Context, args map[string]any) (any, error) {
	text, err := stringArg(args, "text")
	if err != nil {
		return nil, err
	}
	items := []any{}
	for _, line := range strings.Split(text, "\n") {
		m := bulletRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		item := strings.TrimSpace(strings.Trim(m[1], "*"))
		if item != "" {
			items = append(items, item)
		}
	}
	return items, nil
}

var paragraphRe = regexp.MustCompile(`\n\s*\n`)

// SplitParagraphs splits args["text"] on blank lines.
func SplitParagraphs(_ context.Context, args map[string]any) (any, error) {
	text, err := stringArg(args, "text")
	if err != nil {
		return nil, err
	}
	items := []any{}
	for _, part := range paragraphRe.Split(text, -1) {
		if p := strings.TrimSpace(part); p != "" {
			items = append(items, p)
		}
	}
	return items, nil
}

// WordCount counts whitespace-separated words in args["text"].
func WordCount(_ context.Context, args map[string]any) (any, error) {
	text, err := stringArg(args, "text")
	if err != nil {
		return nil, err
	}
	return len(strings.Fields(text)), nil
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// SlugString turns free text into a lower_snake file-name fragment.
func SlugString(s string) string {
	slug := strings.Trim(slugRe.ReplaceAllString(strings.ToLower(s), "_"), "_")
	if len(slug) > 60 {
		slug = strings.TrimRight(slug[:60], "_")
	}
	if slug == "" {
		slug = "untitled"
	}
	return slug
}

// Slugify returns SlugString(args["text"]).
func Slugify(_ context.Context, args map[string]any) (any, error) {
	text, err := stringArg(args, "text")
	if err != nil {
		return nil, err
	}
	return SlugString(text), nil
}

// JoinLines joins the list in args["items"] with newlines.
func JoinLines(_ context.Context, args map[string]any) (any, error) {
	items, err := stringItems(args, "items")
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i] = strings.TrimSpace(items[i])
	}
	return strings.Join(items, "\n"), nil
}

// Merge combines its arguments into one map. Map arguments are merged
// key-by-key (in argument name order); other values are set under their
// argument name.
func Merge(_ context.Context, args map[string]any) (any, error) {
	names := make([]string, 0, len(args))
	for k := range args {
		names = append(names, k)
	}
	sort.Strings(names)

	out := make(map[string]any)
	for _, name := range names {
		if m, ok := args[name].(map[string]any); ok {
			for k, v := range m {
				out[k] = v
			}
			continue
		}
		out[name] = args[name]
	}
	return out, nil
}

// PackageContent assembles an article package from the article text, its
// social variants and SEO details, adding the computed word count.
func PackageContent(_ context.Context, args map[string]any) (any, error) {
	article, err := stringArg(args, "article")
	if err != nil {
		return nil, err
	}
	pkg := map[string]any{
		"main_article": article,
		"word_count":   len(strings.Fields(article)),
		"created_at":   time.Now().UTC().Format(time.RFC3339),
	}
	if v, ok := args["social"]; ok {
		pkg["social_variants"] = v
	}
	if v, ok := args["keywords"]; ok {
		pkg["target_keywords"] = v
	}
	if seo, ok := args["seo"].(map[string]any); ok {
		for _, key := range []string{"meta_description", "featured_image_suggestions", "internal_links"} {
			if v, ok := seo[key]; ok {
				pkg[key] = v
			}
		}
		pkg["seo_analysis"] = seo
	}
	return pkg, nil
}

func stringArg(args map[string]any, name string) (string, error) {
	v, ok := args[name]
	if !ok {
		return "", fmt.Errorf("missing argument %q", name)
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case nil:
		return "", nil
	case fmt.Stringer:
		return t.String(), nil
	}
	return "", fmt.Errorf("argument %q must be text, got %T", name, v)
}
