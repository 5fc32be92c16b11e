package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/wpforge-dev/wpforge/internal/plugin"
)

// ErrRunNotFound is returned when no stored run matches the given id.
var ErrRunNotFound = errors.New("run not found")

type DB struct {
	conn *sql.DB
}

// Connect opens (and if needed creates) the run-history database at dbPath.
func Connect(dbPath string) (*DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" && dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}
	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}

	return &DB{conn: conn}, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		prompt TEXT,
		plugin_name TEXT,
		slug TEXT,
		status TEXT,
		model TEXT,
		started_at DATETIME,
		finished_at DATETIME
	);
	CREATE TABLE IF NOT EXISTS phase_results (
		run_id TEXT,
		phase TEXT,
		attempts INTEGER,
		status TEXT,
		detail TEXT,
		created_at DATETIME
	);
	CREATE TABLE IF NOT EXISTS artifacts (
		run_id TEXT,
		path TEXT,
		kind TEXT,
		created_at DATETIME
	);`
	_, err := db.Exec(schema)
	return err
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// pipelinePhases is the recorded order. The reporting phase never retries
// and never fails a run, so it has no row.
var pipelinePhases = []string{"specification", "generation", "compliance", "testing"}

// SaveRun records one finished run: a summary row, one row per phase, and the
// paths worth keeping. Called once at run end.
func (db *DB) SaveRun(ctx context.Context, run *plugin.Run) error {
	if run == nil {
		return errors.New("nil run")
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var name, slug string
	if run.Spec != nil {
		name = run.Spec.Name
		slug = run.Spec.Slug
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO runs (id, prompt, plugin_name, slug, status, model, started_at, finished_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		run.ID, run.Prompt, name, slug, string(run.Status), run.Model, run.StartedAt, run.FinishedAt)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, phase := range pipelinePhases {
		attempts := run.PhaseAttempts[phase]
		_, err = tx.ExecContext(ctx,
			"INSERT INTO phase_results (run_id, phase, attempts, status, detail, created_at) VALUES (?, ?, ?, ?, ?, ?)",
			run.ID, phase, attempts, phaseStatus(run, phase, attempts), phaseDetail(run, phase), now)
		if err != nil {
			return err
		}
	}

	if run.OutputRoot != "" && len(run.Files) > 0 {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO artifacts (run_id, path, kind, created_at) VALUES (?, ?, ?, ?)",
			run.ID, run.OutputRoot, "plugin", now); err != nil {
			return err
		}
	}
	if run.ArchivePath != "" {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO artifacts (run_id, path, kind, created_at) VALUES (?, ?, ?, ?)",
			run.ID, run.ArchivePath, "zip", now); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func phaseStatus(run *plugin.Run, phase string, attempts int) string {
	switch {
	case run.FailedPhase == phase:
		return "failed"
	case attempts == 0:
		return "skipped"
	default:
		return "ok"
	}
}

func phaseDetail(run *plugin.Run, phase string) string {
	if run.FailedPhase == phase {
		return firstErrorLine(run.LastError)
	}
	switch phase {
	case "specification":
		if run.Spec != nil {
			return run.Spec.Name
		}
	case "generation":
		if len(run.Files) > 0 {
			return fmt.Sprintf("%d file(s)", len(run.Files))
		}
	case "compliance":
		if run.PhaseAttempts[phase] == 0 {
			return ""
		}
		var errs, warns, hints int
		for _, f := range run.Findings {
			switch f.Severity {
			case plugin.SeverityError:
				errs++
			case plugin.SeverityWarning:
				warns++
			default:
				hints++
			}
		}
		if errs+warns+hints == 0 {
			return "no findings"
		}
		return fmt.Sprintf("%d error(s), %d warning(s), %d suggestion(s)", errs, warns, hints)
	case "testing":
		if len(run.Tests) == 0 {
			return ""
		}
		counts := make(map[plugin.TestStatus]int, 4)
		for _, t := range run.Tests {
			counts[t.Status]++
		}
		parts := make([]string, 0, 4)
		for _, st := range []plugin.TestStatus{plugin.TestPassed, plugin.TestFailed, plugin.TestSkipped, plugin.TestErrored} {
			if counts[st] > 0 {
				parts = append(parts, fmt.Sprintf("%d %s", counts[st], st))
			}
		}
		return strings.Join(parts, ", ")
	}
	return ""
}

func firstErrorLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	return s
}

// RunSummary is one row of `wpforge runs`.
type RunSummary struct {
	ID         string
	PluginName string
	Slug       string
	Status     string
	Model      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// PhaseResult is one phase row of a stored run.
type PhaseResult struct {
	Phase    string
	Attempts int
	Status   string
	Detail   string
}

type Artifact struct {
	Path string
	Kind string
}

// RunDetail is everything stored about one run.
type RunDetail struct {
	RunSummary
	Prompt    string
	Phases    []PhaseResult
	Artifacts []Artifact
}

// ListRuns returns the most recent runs, newest first.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.QueryContext(ctx,
		"SELECT id, plugin_name, slug, status, model, started_at, finished_at FROM runs ORDER BY started_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var s RunSummary
		if err := rows.Scan(&s.ID, &s.PluginName, &s.Slug, &s.Status, &s.Model, &s.StartedAt, &s.FinishedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetRun loads one run by full id or unique prefix, so the short ids printed
// in reports and listings work as arguments.
func (db *DB) GetRun(ctx context.Context, id string) (*RunDetail, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrRunNotFound
	}

	rows, err := db.conn.QueryContext(ctx,
		"SELECT id, prompt, plugin_name, slug, status, model, started_at, finished_at FROM runs WHERE id LIKE ? LIMIT 2", id+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []RunDetail
	for rows.Next() {
		var d RunDetail
		if err := rows.Scan(&d.ID, &d.Prompt, &d.PluginName, &d.Slug, &d.Status, &d.Model, &d.StartedAt, &d.FinishedAt); err != nil {
			return nil, err
		}
		matches = append(matches, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, ErrRunNotFound
	case 1:
	default:
		return nil, fmt.Errorf("run id %q is ambiguous", id)
	}
	detail := matches[0]

	phaseRows, err := db.conn.QueryContext(ctx,
		"SELECT phase, attempts, status, detail FROM phase_results WHERE run_id = ? ORDER BY rowid ASC", detail.ID)
	if err != nil {
		return nil, err
	}
	defer phaseRows.Close()
	for phaseRows.Next() {
		var p PhaseResult
		if err := phaseRows.Scan(&p.Phase, &p.Attempts, &p.Status, &p.Detail); err != nil {
			return nil, err
		}
		detail.Phases = append(detail.Phases, p)
	}
	if err := phaseRows.Err(); err != nil {
		return nil, err
	}

	artRows, err := db.conn.QueryContext(ctx,
		"SELECT path, kind FROM artifacts WHERE run_id = ? ORDER BY rowid ASC", detail.ID)
	if err != nil {
		return nil, err
	}
	defer artRows.Close()
	for artRows.Next() {
		var a Artifact
		if err := artRows.Scan(&a.Path, &a.Kind); err != nil {
			return nil, err
		}
		detail.Artifacts = append(detail.Artifacts, a)
	}
	return &detail, artRows.Err()
}
