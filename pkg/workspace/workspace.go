// Package workspace confines pipeline file output to one root directory.
package workspace

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	fileModeDefault = 0644
	dirModeDefault  = 0755
)

// Workspace is an output root. Every path handed to it is relative to the
// root and may not leave it.
type Workspace struct {
	root string
}

// New creates the root directory if needed.
func New(root string) (*Workspace, error) {
	if root == "" {
		return nil, fmt.Errorf("workspace root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, dirModeDefault); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{root: abs}, nil
}

// Root returns the absolute root directory.
func (w *Workspace) Root() string {
	return w.root
}

// Path returns the absolute path for rel, checked with SafeJoin.
func (w *Workspace) Path(rel string) (string, error) {
	return SafeJoin(w.root, rel)
}

// Mkdir creates rel and its parents. It is a no-op when rel exists.
func (w *Workspace) Mkdir(rel string) (string, error) {
	path, err := w.Path(rel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(path, dirModeDefault); err != nil {
		return "", err
	}
	return path, nil
}

// WriteFile writes content to rel, creating parent folders and replacing any
// existing file. Files ending in .json are written as indented JSON: a string
// holding JSON is re-indented, and any other value is marshalled. Byte slices
// are written unchanged and other values are rendered as text.
func (w *Workspace) WriteFile(rel string, content any) (string, error) {
	path, err := w.Path(rel)
	if err != nil {
		return "", err
	}
	data, err := encode(path, content)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", rel, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), dirModeDefault); err != nil {
		return "", err
	}
	mode := os.FileMode(fileModeDefault)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := writeAtomic(path, data, mode); err != nil {
		return "", err
	}
	return path, nil
}

func encode(path string, content any) ([]byte, error) {
	if b, ok := content.([]byte); ok {
		return b, nil
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if s, ok := content.(string); ok {
			var buf bytes.Buffer
			if err := json.Indent(&buf, []byte(strings.TrimSpace(s)), "", "  "); err == nil {
				buf.WriteByte('\n')
				return buf.Bytes(), nil
			}
		}
		data, err := json.MarshalIndent(content, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	}
	switch t := content.(type) {
	case string:
		return []byte(t), nil
	case nil:
		return nil, nil
	case fmt.Stringer:
		return []byte(t.String()), nil
	}
	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return []byte(fmt.Sprint(content)), nil
	}
	return data, nil
}

// writeAtomic writes through a temp file in the same folder so readers never
// see a partial file.
func writeAtomic(path string, data []byte, mode os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// ReadFolder returns the regular files directly inside rel, keyed by file
// name. JSON files are decoded; everything else is returned as a string.
// A folder that does not exist yields an empty map.
func (w *Workspace) ReadFolder(rel string) (map[string]any, error) {
	path, err := w.Path(rel)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(path)
	if os.IsNotExist(err) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, err
	}

	out := make(map[string]any, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(path, e.Name()))
		if err != nil {
			return nil, err
		}
		var v any
		if strings.EqualFold(filepath.Ext(e.Name()), ".json") && json.Unmarshal(data, &v) == nil {
			out[e.Name()] = v
			continue
		}
		out[e.Name()] = string(data)
	}
	return out, nil
}

// List returns the file names directly inside rel, sorted.
func (w *Workspace) List(rel string) ([]string, error) {
	files, err := w.ReadFolder(rel)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// SafeJoin joins rel onto root, rejecting empty and absolute paths and any
// path that leaves root.
func SafeJoin(root, rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("empty path")
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") || strings.HasPrefix(rel, `\`) {
		return "", fmt.Errorf("absolute paths are not allowed: %s", rel)
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid path: %s", rel)
	}

	joined := filepath.Join(root, cleaned)
	relCheck, err := filepath.Rel(root, joined)
	if err != nil || relCheck == ".." || strings.HasPrefix(relCheck, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace: %s", rel)
	}
	return joined, nil
}
