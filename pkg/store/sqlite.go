// Package store keeps pipeline run history in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/zen-systems/contentflow/pkg/pipeline"
)

// ErrRunNotFound is returned by GetRun for an unknown id.
var ErrRunNotFound = errors.New("run not found")

// Run is a stored pipeline run.
type Run struct {
	ID        string         `json:"id"`
	ParentID  string         `json:"parent_id,omitempty"`
	Pipeline  string         `json:"pipeline"`
	Status    string         `json:"status"`
	Inputs    map[string]any `json:"inputs,omitempty"`
	Output    any            `json:"output,omitempty"`
	Error     string         `json:"error,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   *time.Time     `json:"ended_at,omitempty"`
	Duration  time.Duration  `json:"duration"`
	Steps     []Step         `json:"steps,omitempty"`
}

// Step is a stored step result.
type Step struct {
	Seq      int           `json:"seq"`
	Name     string        `json:"name"`
	Kind     string        `json:"kind"`
	Target   string        `json:"target,omitempty"`
	Status   string        `json:"status"`
	Branch   string        `json:"branch,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	Pipeline string
	Status   string
	// IncludeChildren lists sub-pipeline runs too.
	IncludeChildren bool
	Limit           int
}

// SQLiteStore records runs as a pipeline.Observer and serves run history.
type SQLiteStore struct {
	pipeline.NoopObserver

	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path. ":memory:" gives a
// private in-memory database.
func Open(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serialises writers and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)

	s, err := New(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps db, which must use the modernc sqlite driver, and creates the
// schema.
func New(db *sql.DB, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &SQLiteStore{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			parent_id TEXT NOT NULL DEFAULT '',
			pipeline TEXT NOT NULL,
			status TEXT NOT NULL,
			inputs BLOB,
			output BLOB,
			error TEXT NOT NULL DEFAULT '',
			started_at TEXT NOT NULL,
			ended_at TEXT,
			duration_ms INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS runs_started ON runs (started_at);
		CREATE TABLE IF NOT EXISTS steps (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			name TEXT NOT NULL,
			kind TEXT NOT NULL,
			target TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			branch TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (run_id, seq)
		);`,
	)
	return err
}

// SaveRun inserts run, or replaces the stored row with the same id. Steps
// are not touched.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *Run) error {
	inputs, err := encode(run.Inputs)
	if err != nil {
		return err
	}
	output, err := encode(run.Output)
	if err != nil {
		return err
	}
	var ended sql.NullString
	if run.EndedAt != nil {
		ended = sql.NullString{String: formatTime(*run.EndedAt), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, parent_id, pipeline, status, inputs, output, error, started_at, ended_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			output = excluded.output,
			error = excluded.error,
			ended_at = excluded.ended_at,
			duration_ms = excluded.duration_ms`,
		run.ID, run.ParentID, run.Pipeline, run.Status, inputs, output, run.Error,
		formatTime(run.StartedAt), ended, run.Duration.Milliseconds(),
	)
	return err
}

// AddStep appends a step to a run.
func (s *SQLiteStore) AddStep(ctx context.Context, runID string, step Step) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO steps (run_id, seq, name, kind, target, status, branch, error, duration_ms)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM steps WHERE run_id = ?), ?, ?, ?, ?, ?, ?, ?)`,
		runID, runID, step.Name, step.Kind, step.Target, step.Status, step.Branch, step.Error,
		step.Duration.Milliseconds(),
	)
	return err
}

// GetRun returns a run with its steps.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, parent_id, pipeline, status, inputs, output, error, started_at, ended_at, duration_ms
		FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, name, kind, target, status, branch, error, duration_ms
		FROM steps WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var st Step
		var ms int64
		if err := rows.Scan(&st.Seq, &st.Name, &st.Kind, &st.Target, &st.Status, &st.Branch, &st.Error, &ms); err != nil {
			return nil, err
		}
		st.Duration = time.Duration(ms) * time.Millisecond
		run.Steps = append(run.Steps, st)
	}
	return run, rows.Err()
}

// ListRuns returns runs newest first, without steps.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error) {
	query := `
		SELECT id, parent_id, pipeline, status, inputs, output, error, started_at, ended_at, duration_ms
		FROM runs`
	var clauses []string
	var args []any
	if !filter.IncludeChildren {
		clauses = append(clauses, "parent_id = ''")
	}
	if filter.Pipeline != "" {
		clauses = append(clauses, "pipeline = ?")
		args = append(args, filter.Pipeline)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, filter.Status)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY started_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		run            Run
		inputs, output []byte
		started        string
		ended          sql.NullString
		ms             int64
	)
	if err := row.Scan(&run.ID, &run.ParentID, &run.Pipeline, &run.Status, &inputs, &output,
		&run.Error, &started, &ended, &ms); err != nil {
		return nil, err
	}

	var err error
	if run.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return nil, fmt.Errorf("run %s: bad started_at: %w", run.ID, err)
	}
	if ended.Valid && ended.String != "" {
		t, err := time.Parse(time.RFC3339Nano, ended.String)
		if err != nil {
			return nil, fmt.Errorf("run %s: bad ended_at: %w", run.ID, err)
		}
		run.EndedAt = &t
	}
	run.Duration = time.Duration(ms) * time.Millisecond

	if len(inputs) > 0 {
		if err := json.Unmarshal(inputs, &run.Inputs); err != nil {
			return nil, fmt.Errorf("run %s: decode inputs: %w", run.ID, err)
		}
	}
	if len(output) > 0 {
		if err := json.Unmarshal(output, &run.Output); err != nil {
			return nil, fmt.Errorf("run %s: decode output: %w", run.ID, err)
		}
	}
	return &run, nil
}

func encode(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	return data, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
