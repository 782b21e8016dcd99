package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSONText(t *testing.T) {
	tests := []struct {
		name string
		text string
		want any
	}{
		{"plain object", `{"a":1}`, map[string]any{"a": float64(1)}},
		{"fenced", "Here you go:\n```json\n{\"a\": [1, 2]}\n```\nThanks", map[string]any{"a": []any{float64(1), float64(2)}}},
		{"prose around", `Sure! {"ok": true} hope that helps`, map[string]any{"ok": true}},
		{"array", `Result: ["x", "y"]`, []any{"x", "y"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeJSONText(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := DecodeJSONText("no json here")
	assert.Error(t, err)
	_, err = DecodeJSONText("{ broken")
	assert.Error(t, err)
}

func TestParseJSONPassesStructuredValues(t *testing.T) {
	in := map[string]any{"a": 1}
	out, err := ParseJSON(context.Background(), map[string]any{"text": in})
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = ParseJSON(context.Background(), map[string]any{})
	assert.Error(t, err)
}

func TestTextFuncs(t *testing.T) {
	ctx := context.Background()

	items, err := ParseBulletList(ctx, map[string]any{"text": "Intro\n- one\n* **two**\n3. three\n\n• four"})
	require.NoError(t, err)
	assert.Equal(t, []any{"one", "two", "three", "four"}, items)

	paras, err := SplitParagraphs(ctx, map[string]any{"text": "first\n\n  \nsecond\nline\n\n"})
	require.NoError(t, err)
	assert.Equal(t, []any{"first", "second\nline"}, paras)

	n, err := WordCount(ctx, map[string]any{"text": "  one two\tthree\nfour "})
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	joined, err := JoinLines(ctx, map[string]any{"items": []any{" a ", "b"}})
	require.NoError(t, err)
	assert.Equal(t, "a\nb", joined)

	_, err = WordCount(ctx, map[string]any{"text": 3})
	assert.Error(t, err)
}

func TestSlugString(t *testing.T) {
	tests := map[string]string{
		"Hello, World!":        "hello_world",
		"  Go 1.24 Release  ": "go_1_24_release",
		"!!!":                  "untitled",
		"":                     "untitled",
	}
	for in, want := range tests {
		assert.Equal(t, want, SlugString(in), in)
	}
	long := SlugString("a very long title that keeps going and going well past the sixty character limit")
	assert.LessOrEqual(t, len(long), 60)
	assert.NotEqual(t, byte('_'), long[len(long)-1])
}

func TestMerge(t *testing.T) {
	out, err := Merge(context.Background(), map[string]any{
		"a":     map[string]any{"x": 1, "y": 1},
		"b":     map[string]any{"y": 2},
		"title": "T",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": 1, "y": 2, "title": "T"}, out)
}

func TestPackageContent(t *testing.T) {
	out, err := PackageContent(context.Background(), map[string]any{
		"article":  "one two three",
		"social":   map[string]any{"twitter": "t"},
		"keywords": []any{"tea"},
		"seo": map[string]any{
			"meta_description": "desc",
			"internal_links":   []any{"/a"},
		},
	})
	require.NoError(t, err)
	pkg := out.(map[string]any)
	assert.Equal(t, "one two three", pkg["main_article"])
	assert.Equal(t, 3, pkg["word_count"])
	assert.Equal(t, "desc", pkg["meta_description"])
	assert.Equal(t, []any{"/a"}, pkg["internal_links"])
	assert.Equal(t, []any{"tea"}, pkg["target_keywords"])
	assert.NotEmpty(t, pkg["created_at"])
	assert.NotContains(t, pkg, "featured_image_suggestions")
}

func TestFuncsRegistry(t *testing.T) {
	fns := Funcs()
	for _, name := range []string{"parse_json", "parse_bullet_list", "split_paragraphs", "word_count", "slugify", "join_lines", "merge", "package_content"} {
		assert.Contains(t, fns, name)
	}
}
