// Package evidence writes a per-run evidence bundle: run.json, one file per
// step, and the prompts and answers exchanged with language models.
package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/zen-systems/contentflow/pkg/archive"
)

const (
	dirMode  = 0700
	fileMode = 0600
)

// RunRecord captures run-level metadata.
type RunRecord struct {
	ID             string         `json:"id"`
	ParentID       string         `json:"parent_id,omitempty"`
	Pipeline       string         `json:"pipeline"`
	Status         string         `json:"status"`
	Inputs         map[string]any `json:"inputs,omitempty"`
	Output         *archive.Ref   `json:"output,omitempty"`
	Error          string         `json:"error,omitempty"`
	StartedAt      time.Time      `json:"started_at"`
	EndedAt        time.Time      `json:"ended_at,omitempty"`
	DurationMillis int64          `json:"duration_ms"`
	Steps          []string       `json:"steps,omitempty"`
}

// StepRecord captures evidence for a single step.
type StepRecord struct {
	Seq            int            `json:"seq"`
	Name           string         `json:"name"`
	Kind           string         `json:"kind"`
	Target         string         `json:"target,omitempty"`
	Status         string         `json:"status"`
	Branch         string         `json:"branch,omitempty"`
	Output         *archive.Ref   `json:"output,omitempty"`
	Error          string         `json:"error,omitempty"`
	Answers        []AnswerRecord `json:"answers,omitempty"`
	DurationMillis int64          `json:"duration_ms"`
}

// AnswerRecord is one model answer given during a prompt step.
type AnswerRecord struct {
	ArtifactID string      `json:"artifact_id"`
	Adapter    string      `json:"adapter"`
	Model      string      `json:"model"`
	Prompt     string      `json:"prompt,omitempty"`
	PromptHash string      `json:"prompt_hash,omitempty"`
	Answer     archive.Ref `json:"answer"`
	Hash       string      `json:"hash"`
}

// Writer writes one run's evidence bundle to disk.
type Writer struct {
	baseDir string
	runDir  string
}

// NewWriter creates a writer rooted at baseDir/runID.
func NewWriter(baseDir, runID string) (*Writer, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if runID == "" || runID != filepath.Base(runID) || runID == "." || runID == ".." {
		return nil, fmt.Errorf("invalid run ID %q", runID)
	}

	runDir := filepath.Join(baseDir, runID)
	for _, dir := range []string{runDir, filepath.Join(runDir, "steps"), filepath.Join(runDir, "blobs")} {
		if err := os.MkdirAll(dir, dirMode); err != nil {
			return nil, err
		}
		if err := os.Chmod(dir, dirMode); err != nil {
			return nil, err
		}
	}
	return &Writer{baseDir: baseDir, runDir: runDir}, nil
}

// RunDir returns the run directory path.
func (w *Writer) RunDir() string {
	return w.runDir
}

// WriteRun writes run metadata to run.json.
func (w *Writer) WriteRun(record RunRecord) error {
	return writeJSON(filepath.Join(w.runDir, "run.json"), record)
}

// WriteStep writes a step record to steps/<seq>-<name>.json and returns the
// path relative to the run directory.
func (w *Writer) WriteStep(record StepRecord) (string, error) {
	rel := filepath.ToSlash(filepath.Join("steps", fmt.Sprintf("%03d-%s.json", record.Seq, sanitize(record.Name, "step"))))
	return rel, writeJSON(filepath.Join(w.runDir, rel), record)
}

// WriteBlob stores content as blobs/<kind>-<sha256>.txt and returns the
// relative path and hash. Writing the same content twice is a no-op.
func (w *Writer) WriteBlob(kind string, content []byte) (string, string, error) {
	sum := sha256.Sum256(content)
	sha := hex.EncodeToString(sum[:])
	rel := "blobs/" + sanitize(kind, "blob") + "-" + sha + ".txt"
	path := filepath.Join(w.runDir, filepath.FromSlash(rel))
	if _, err := os.Stat(path); err == nil {
		return rel, sha, nil
	}
	if err := os.WriteFile(path, content, fileMode); err != nil {
		return "", "", err
	}
	return rel, sha, nil
}

var unsafeRe = regexp.MustCompile(`[^a-z0-9_-]+`)

func sanitize(s, fallback string) string {
	s = strings.Trim(unsafeRe.ReplaceAllString(strings.ToLower(s), "_"), "_-")
	if s == "" {
		return fallback
	}
	return s
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, fileMode); err != nil {
		return err
	}
	return os.Chmod(path, fileMode)
}
