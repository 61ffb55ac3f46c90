package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/stellarlinkco/eval-studio/internal/suite"
)

const defaultListLimit = 50

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB

	insertRunStmt    *sql.Stmt
	updateStatusStmt *sql.Stmt
	markFailedStmt   *sql.Stmt
	insertResultStmt *sql.Stmt
	setSummaryStmt   *sql.Stmt
	getRunStmt       *sql.Stmt
	resultsByRunStmt *sql.Stmt
	listRunsStmt     *sql.Stmt
}

// NewSQLiteStore opens or creates a SQLite store at the given path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("store: empty sqlite path")
	}
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("store: create sqlite dir: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping sqlite: %w", err)
	}

	if err := initSQLiteSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	st := &SQLiteStore{db: db}
	if err := st.prepareStatements(); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func initSQLiteSchema(db *sql.DB) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON`,
		`PRAGMA journal_mode = WAL`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			model TEXT NOT NULL DEFAULT '',
			system_prompt TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			test_cases BLOB NOT NULL,
			pass_count INTEGER,
			avg_score REAL,
			avg_latency_ms REAL
		)`,
		`CREATE TABLE IF NOT EXISTS results (
			run_id TEXT NOT NULL,
			case_index INTEGER NOT NULL,
			actual_output TEXT NOT NULL DEFAULT '',
			score REAL NOT NULL,
			passed INTEGER NOT NULL,
			reasoning TEXT NOT NULL DEFAULT '',
			latency_ms INTEGER NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			PRIMARY KEY (run_id, case_index),
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("store: init schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) prepareStatements() error {
	if s == nil || s.db == nil {
		return errors.New("store: nil sqlite store")
	}

	ctx := context.Background()
	type stmtSpec struct {
		dst    **sql.Stmt
		query  string
		errFmt string
	}

	specs := []stmtSpec{
		{
			dst: &s.insertRunStmt,
			query: `
				INSERT INTO runs (
					id, name, model, system_prompt, status, error, created_at, test_cases
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`,
			errFmt: "store: prepare insert run: %w",
		},
		{
			dst:    &s.updateStatusStmt,
			query:  `UPDATE runs SET status = ? WHERE id = ? AND status = ?`,
			errFmt: "store: prepare update status: %w",
		},
		{
			dst: &s.markFailedStmt,
			query: `
				UPDATE runs SET status = 'failed', error = ?
				WHERE id = ? AND status IN ('pending', 'running')
			`,
			errFmt: "store: prepare mark failed: %w",
		},
		{
			dst: &s.insertResultStmt,
			query: `
				INSERT INTO results (
					run_id, case_index, actual_output, score, passed, reasoning, latency_ms, error, created_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			`,
			errFmt: "store: prepare insert result: %w",
		},
		{
			dst: &s.setSummaryStmt,
			query: `
				UPDATE runs SET pass_count = ?, avg_score = ?, avg_latency_ms = ?
				WHERE id = ?
			`,
			errFmt: "store: prepare set summary: %w",
		},
		{
			dst: &s.getRunStmt,
			query: `
				SELECT id, name, model, system_prompt, status, error, created_at, test_cases,
					pass_count, avg_score, avg_latency_ms
				FROM runs WHERE id = ?
			`,
			errFmt: "store: prepare get run: %w",
		},
		{
			dst: &s.resultsByRunStmt,
			query: `
				SELECT case_index, actual_output, score, passed, reasoning, latency_ms, error, created_at
				FROM results
				WHERE run_id = ?
				ORDER BY case_index ASC
			`,
			errFmt: "store: prepare results by run: %w",
		},
		{
			dst: &s.listRunsStmt,
			query: `
				SELECT
					r.id, r.name, r.status, r.created_at,
					COUNT(res.run_id) AS result_count,
					AVG(res.score) AS avg_score
				FROM runs r
				LEFT JOIN results res ON res.run_id = r.id
				GROUP BY r.id
				ORDER BY r.created_at DESC, r.id DESC
				LIMIT ?
			`,
			errFmt: "store: prepare list runs: %w",
		},
	}

	for _, spec := range specs {
		stmt, err := s.db.PrepareContext(ctx, spec.query)
		if err != nil {
			return fmt.Errorf(spec.errFmt, err)
		}
		*spec.dst = stmt
	}

	return nil
}

// Close releases database resources.
func (s *SQLiteStore) Close() error {
	if s == nil {
		return nil
	}
	stmts := []*sql.Stmt{
		s.insertRunStmt,
		s.updateStatusStmt,
		s.markFailedStmt,
		s.insertResultStmt,
		s.setSummaryStmt,
		s.getRunStmt,
		s.resultsByRunStmt,
		s.listRunsStmt,
	}
	for _, stmt := range stmts {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// CreateRun persists a new run with its ordered test cases.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *RunRecord) error {
	if s == nil {
		return errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return errors.New("store: nil context")
	}
	if run == nil {
		return errors.New("store: nil run")
	}

	id := strings.TrimSpace(run.ID)
	if id == "" {
		return errors.New("store: empty run id")
	}
	if strings.TrimSpace(run.Status) == "" {
		return errors.New("store: empty run status")
	}
	if run.CreatedAt.IsZero() {
		return errors.New("store: missing run timestamp")
	}

	casesJSON, err := json.Marshal(run.TestCases)
	if err != nil {
		return fmt.Errorf("store: marshal test cases: %w", err)
	}

	_, err = s.insertRunStmt.ExecContext(
		ctx,
		id,
		run.Name,
		run.Model,
		run.SystemPrompt,
		run.Status,
		run.Error,
		run.CreatedAt.UTC().UnixMilli(),
		casesJSON,
	)
	if err != nil {
		return fmt.Errorf("store: insert run: %w", err)
	}
	return nil
}

// UpdateRunStatus atomically moves a run between lifecycle statuses.
func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, id string, from, to string) error {
	if s == nil {
		return errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return errors.New("store: nil context")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("store: empty run id")
	}
	if strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "" {
		return errors.New("store: empty run status")
	}

	res, err := s.updateStatusStmt.ExecContext(ctx, to, id, from)
	if err != nil {
		return fmt.Errorf("store: update run status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: update run status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("store: run %q: %s -> %s: %w", id, from, to, ErrStatusConflict)
	}
	return nil
}

// MarkRunFailed moves a non-terminal run to failed with a top-level reason.
// Already-terminal runs are left untouched.
func (s *SQLiteStore) MarkRunFailed(ctx context.Context, id string, reason string) error {
	if s == nil {
		return errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return errors.New("store: nil context")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("store: empty run id")
	}

	if _, err := s.markFailedStmt.ExecContext(ctx, reason, id); err != nil {
		return fmt.Errorf("store: mark run failed: %w", err)
	}
	return nil
}

// SaveResult persists a single per-case result at its fixed index.
func (s *SQLiteStore) SaveResult(ctx context.Context, runID string, result *ResultRecord) error {
	if s == nil {
		return errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return errors.New("store: nil context")
	}
	if result == nil {
		return errors.New("store: nil result")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return errors.New("store: empty run id")
	}
	if result.CaseIndex < 0 {
		return fmt.Errorf("store: negative case index %d", result.CaseIndex)
	}

	createdAt := result.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.insertResultStmt.ExecContext(
		ctx,
		runID,
		result.CaseIndex,
		result.ActualOutput,
		result.Score,
		boolToInt(result.Passed),
		result.Reasoning,
		result.LatencyMs,
		result.Error,
		createdAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("store: insert result: %w", err)
	}
	return nil
}

// SetRunSummary records derived statistics on a run.
func (s *SQLiteStore) SetRunSummary(ctx context.Context, id string, summary *SummaryRecord) error {
	if s == nil {
		return errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return errors.New("store: nil context")
	}
	if summary == nil {
		return errors.New("store: nil summary")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("store: empty run id")
	}

	res, err := s.setSummaryStmt.ExecContext(ctx, summary.PassCount, summary.AvgScore, summary.AvgLatencyMs, id)
	if err != nil {
		return fmt.Errorf("store: set run summary: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: set run summary: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("store: run %q: %w", id, ErrNotFound)
	}
	return nil
}

// GetRun loads a run with its ordered results.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	if s == nil {
		return nil, errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return nil, errors.New("store: nil context")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("store: empty run id")
	}

	row := s.getRunStmt.QueryRowContext(ctx, id)
	var (
		rec         RunRecord
		createdAtMS int64
		casesJSON   []byte
		passCount   sql.NullInt64
		avgScore    sql.NullFloat64
		avgLatency  sql.NullFloat64
	)
	err := row.Scan(
		&rec.ID,
		&rec.Name,
		&rec.Model,
		&rec.SystemPrompt,
		&rec.Status,
		&rec.Error,
		&createdAtMS,
		&casesJSON,
		&passCount,
		&avgScore,
		&avgLatency,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("store: run %q: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("store: get run: %w", err)
	}

	rec.CreatedAt = time.UnixMilli(createdAtMS).UTC()
	if len(casesJSON) > 0 {
		var cases []suite.TestCase
		if err := json.Unmarshal(casesJSON, &cases); err != nil {
			return nil, fmt.Errorf("store: unmarshal test cases: %w", err)
		}
		rec.TestCases = cases
	}
	if passCount.Valid && avgScore.Valid && avgLatency.Valid {
		rec.Summary = &SummaryRecord{
			PassCount:    int(passCount.Int64),
			AvgScore:     avgScore.Float64,
			AvgLatencyMs: avgLatency.Float64,
		}
	}

	results, err := s.resultsForRun(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	rec.Results = results

	return &rec, nil
}

func (s *SQLiteStore) resultsForRun(ctx context.Context, runID string) ([]ResultRecord, error) {
	rows, err := s.resultsByRunStmt.QueryContext(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("store: query results: %w", err)
	}
	defer rows.Close()

	var out []ResultRecord
	for rows.Next() {
		var (
			rec         ResultRecord
			passed      int
			createdAtMS int64
		)
		err := rows.Scan(
			&rec.CaseIndex,
			&rec.ActualOutput,
			&rec.Score,
			&passed,
			&rec.Reasoning,
			&rec.LatencyMs,
			&rec.Error,
			&createdAtMS,
		)
		if err != nil {
			return nil, fmt.Errorf("store: scan result: %w", err)
		}
		rec.Passed = passed != 0
		rec.CreatedAt = time.UnixMilli(createdAtMS).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate results: %w", err)
	}
	return out, nil
}

// ListRuns returns run listings ordered newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*RunListing, error) {
	if s == nil {
		return nil, errors.New("store: nil sqlite store")
	}
	if ctx == nil {
		return nil, errors.New("store: nil context")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := s.listRunsStmt.QueryContext(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var out []*RunListing
	for rows.Next() {
		var (
			listing     RunListing
			createdAtMS int64
			avgScore    sql.NullFloat64
		)
		if err := rows.Scan(&listing.ID, &listing.Name, &listing.Status, &createdAtMS, &listing.ResultCount, &avgScore); err != nil {
			return nil, fmt.Errorf("store: scan run listing: %w", err)
		}
		listing.CreatedAt = time.UnixMilli(createdAtMS).UTC()
		if avgScore.Valid {
			v := avgScore.Float64
			listing.AvgScore = &v
		}
		out = append(out, &listing)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate run listings: %w", err)
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
