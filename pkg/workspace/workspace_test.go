package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeJoin(t *testing.T) {
	root := t.TempDir()
	tests := []struct {
		rel     string
		wantErr bool
	}{
		{"a.txt", false},
		{"reports/a.json", false},
		{"reports/../a.json", false},
		{"..hidden/a", false},
		{"", true},
		{".", true},
		{"..", true},
		{"../escape.txt", true},
		{"reports/../../escape.txt", true},
		{"/etc/passwd", true},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			got, err := SafeJoin(root, tt.rel)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(got, root), got)
			rel, err := filepath.Rel(root, got)
			require.NoError(t, err)
			assert.NotEqual(t, "..", rel)
			assert.False(t, strings.HasPrefix(rel, ".."+string(filepath.Separator)), rel)
		})
	}
}

func TestWriteFileJSON(t *testing.T) {
	w, err := New(t.TempDir())
	require.NoError(t, err)

	path, err := w.WriteFile("reports/plan.json", map[string]any{"title": "Tea", "n": 2})
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"Tea","n":2}`, string(data))
	assert.Contains(t, string(data), "\n  \"n\": 2")

	_, err = w.WriteFile("reports/raw.json", `{"a":[1,2]}`)
	require.NoError(t, err)
	data, err = os.ReadFile(filepath.Join(w.Root(), "reports", "raw.json"))
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": [\n    1,\n    2\n  ]\n}\n", string(data))

	_, err = w.WriteFile("reports/text.json", "just words")
	require.NoError(t, err)
	data, err = os.ReadFile(filepath.Join(w.Root(), "reports", "text.json"))
	require.NoError(t, err)
	assert.Equal(t, "\"just words\"\n", string(data))
}

func TestWriteFileTextAndBytes(t *testing.T) {
	w, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = w.WriteFile("drafts/post.md", "# Tea\n")
	require.NoError(t, err)
	_, err = w.WriteFile("drafts/post.md", "# Coffee\n")
	require.NoError(t, err)
	_, err = w.WriteFile("audio/ep.mp3", []byte{0x49, 0x44, 0x33})
	require.NoError(t, err)

	files, err := w.ReadFolder("drafts")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"post.md": "# Coffee\n"}, files)

	data, err := os.ReadFile(filepath.Join(w.Root(), "audio", "ep.mp3"))
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3"), data)
}

func TestWriteFileRejectsEscapes(t *testing.T) {
	w, err := New(t.TempDir())
	require.NoError(t, err)
	_, err = w.WriteFile("../outside.txt", "x")
	assert.Error(t, err)
	_, err = w.Mkdir("/abs")
	assert.Error(t, err)
}

func TestMkdirIdempotent(t *testing.T) {
	w, err := New(t.TempDir())
	require.NoError(t, err)

	p1, err := w.Mkdir("a/b")
	require.NoError(t, err)
	p2, err := w.Mkdir("a/b")
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
	info, err := os.Stat(p1)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestReadFolder(t *testing.T) {
	w, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = w.WriteFile("out/a.json", map[string]any{"k": "v"})
	require.NoError(t, err)
	_, err = w.WriteFile("out/b.txt", "hello")
	require.NoError(t, err)
	_, err = w.WriteFile("out/broken.json", []byte("{nope"))
	require.NoError(t, err)
	_, err = w.Mkdir("out/nested")
	require.NoError(t, err)

	files, err := w.ReadFolder("out")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"a.json":      map[string]any{"k": "v"},
		"b.txt":       "hello",
		"broken.json": "{nope",
	}, files)

	names, err := w.List("out")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.json", "b.txt", "broken.json"}, names)

	empty, err := w.ReadFolder("missing")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
