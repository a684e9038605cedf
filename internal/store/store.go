// Package store persists comparison runs and LLM call records in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/jackzampolin/outline/internal/llmcall"
	"github.com/jackzampolin/outline/internal/mapping"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// DefaultListLimit caps list queries that do not set a limit.
const DefaultListLimit = 50

// Run is a persisted comparison.
type Run struct {
	ID                string         `json:"id" db:"id"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
	TemplateSource    string         `json:"template_source" db:"template_source"`
	TargetSource      string         `json:"target_source" db:"target_source"`
	Oracle            string         `json:"oracle" db:"oracle"`
	OverallConfidence float64        `json:"overall_confidence" db:"overall_confidence"`
	Degraded          bool           `json:"degraded" db:"degraded"`
	SummaryJSON       string         `json:"-" db:"summary_json"`
	ResultJSON        string         `json:"-" db:"result_json"`
	Summary           map[string]int `json:"summary" db:"-"`

	// Result is only populated by GetRun.
	Result *mapping.MappingResult `json:"result,omitempty" db:"-"`
}

// NewRun builds a Run for a finished comparison. The ID may be set in
// advance so LLM calls can be attributed to it.
func NewRun(id, templateSource, targetSource, oracle string, res mapping.MappingResult) *Run {
	if id == "" {
		id = uuid.New().String()
	}
	return &Run{
		ID:                id,
		CreatedAt:         time.Now().UTC(),
		TemplateSource:    templateSource,
		TargetSource:      targetSource,
		Oracle:            oracle,
		OverallConfidence: res.OverallConfidence,
		Degraded:          res.Degraded,
		Summary:           res.Summary,
		Result:            &res,
	}
}

// Store is a SQLite-backed repository.
type Store struct {
	db *sqlx.DB
}

// Open connects to the SQLite database at path and creates the schema.
func Open(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	// SQLite allows one writer; a single connection also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			created_at DATETIME NOT NULL,
			template_source TEXT NOT NULL,
			target_source TEXT NOT NULL,
			oracle TEXT NOT NULL,
			overall_confidence REAL NOT NULL,
			degraded BOOLEAN NOT NULL DEFAULT 0,
			summary_json TEXT NOT NULL,
			result_json TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at)`,

		`CREATE TABLE IF NOT EXISTS llm_calls (
			id TEXT PRIMARY KEY,
			timestamp DATETIME NOT NULL,
			latency_ms INTEGER NOT NULL,
			run_id TEXT NOT NULL DEFAULT '',
			prompt_key TEXT NOT NULL,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			temperature REAL,
			attempts INTEGER NOT NULL DEFAULT 0,
			input_tokens INTEGER NOT NULL,
			output_tokens INTEGER NOT NULL,
			response TEXT NOT NULL,
			success BOOLEAN NOT NULL,
			error TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_llm_calls_run ON llm_calls(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_llm_calls_timestamp ON llm_calls(timestamp)`,
	}
	for _, stmt := range tables {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// SaveRun inserts or replaces a run.
func (s *Store) SaveRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	summary, err := json.Marshal(run.Summary)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	run.SummaryJSON = string(summary)

	result := []byte("null")
	if run.Result != nil {
		if result, err = json.Marshal(run.Result); err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
	}
	run.ResultJSON = string(result)

	_, err = s.db.NamedExecContext(ctx, `INSERT OR REPLACE INTO runs
		(id, created_at, template_source, target_source, oracle, overall_confidence, degraded, summary_json, result_json)
		VALUES (:id, :created_at, :template_source, :target_source, :oracle, :overall_confidence, :degraded, :summary_json, :result_json)`,
		run)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun returns a run including its full mapping result.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	var run Run
	err := s.db.GetContext(ctx, &run, `SELECT * FROM runs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	if err := run.decode(true); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns the most recent runs, newest first, without their results.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	runs := []Run{}
	err := s.db.SelectContext(ctx, &runs, `SELECT id, created_at, template_source, target_source, oracle,
		overall_confidence, degraded, summary_json, '' AS result_json
		FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	for i := range runs {
		if err := runs[i].decode(false); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

func (r *Run) decode(withResult bool) error {
	if r.SummaryJSON != "" {
		if err := json.Unmarshal([]byte(r.SummaryJSON), &r.Summary); err != nil {
			return fmt.Errorf("failed to decode summary of run %s: %w", r.ID, err)
		}
	}
	if withResult && r.ResultJSON != "" && r.ResultJSON != "null" {
		var res mapping.MappingResult
		if err := json.Unmarshal([]byte(r.ResultJSON), &res); err != nil {
			return fmt.Errorf("failed to decode result of run %s: %w", r.ID, err)
		}
		r.Result = &res
	}
	return nil
}

// InsertCalls writes LLM call records in one transaction.
func (s *Store) InsertCalls(ctx context.Context, calls []llmcall.Call) error {
	if len(calls) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, c := range calls {
		if _, err := tx.NamedExecContext(ctx, `INSERT OR REPLACE INTO llm_calls
			(id, timestamp, latency_ms, run_id, prompt_key, provider, model, temperature, attempts,
			 input_tokens, output_tokens, response, success, error)
			VALUES (:id, :timestamp, :latency_ms, :run_id, :prompt_key, :provider, :model, :temperature, :attempts,
			 :input_tokens, :output_tokens, :response, :success, :error)`, c); err != nil {
			return fmt.Errorf("failed to insert llm call %s: %w", c.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit llm calls: %w", err)
	}
	return nil
}

// GetCall returns a single LLM call by ID.
func (s *Store) GetCall(ctx context.Context, id string) (*llmcall.Call, error) {
	var c llmcall.Call
	err := s.db.GetContext(ctx, &c, `SELECT * FROM llm_calls WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("llm call %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get llm call %s: %w", id, err)
	}
	return &c, nil
}

// ListCalls returns LLM calls matching filter, newest first.
func (s *Store) ListCalls(ctx context.Context, filter llmcall.QueryFilter) ([]llmcall.Call, error) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		conds = append(conds, cond)
		args = append(args, arg)
	}
	if filter.RunID != "" {
		add("run_id = ?", filter.RunID)
	}
	if filter.PromptKey != "" {
		add("prompt_key = ?", filter.PromptKey)
	}
	if filter.Provider != "" {
		add("provider = ?", filter.Provider)
	}
	if filter.Model != "" {
		add("model = ?", filter.Model)
	}
	if filter.Success != nil {
		add("success = ?", *filter.Success)
	}
	if filter.After != nil {
		add("timestamp > ?", filter.After.UTC())
	}
	if filter.Before != nil {
		add("timestamp < ?", filter.Before.UTC())
	}

	query := `SELECT * FROM llm_calls`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	query += ` ORDER BY timestamp DESC, id LIMIT ? OFFSET ?`
	args = append(args, limit, max(filter.Offset, 0))

	calls := []llmcall.Call{}
	if err := s.db.SelectContext(ctx, &calls, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list llm calls: %w", err)
	}
	return calls, nil
}

// CountByPromptKey returns call counts grouped by prompt key, optionally for one run.
func (s *Store) CountByPromptKey(ctx context.Context, runID string) (map[string]int, error) {
	query := `SELECT prompt_key, COUNT(*) AS n FROM llm_calls`
	var args []any
	if runID != "" {
		query += ` WHERE run_id = ?`
		args = append(args, runID)
	}
	query += ` GROUP BY prompt_key`

	var rows []struct {
		PromptKey string `db:"prompt_key"`
		N         int    `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to count llm calls: %w", err)
	}
	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.PromptKey] = r.N
	}
	return counts, nil
}

var _ llmcall.Writer = (*Store)(nil)
