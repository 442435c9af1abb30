package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"safetycopilot/internal/eval"
	"safetycopilot/internal/logging"
)

// ErrRunNotFound is returned by GetRun for an unknown id.
var ErrRunNotFound = errors.New("evaluation run not found")

// Run is one persisted evaluation batch.
type Run struct {
	ID        string        `json:"id"`
	Standard  string        `json:"standard"`
	Provider  string        `json:"provider"`
	Model     string        `json:"model"`
	CreatedAt time.Time     `json:"created_at"`
	Reports   []eval.Report `json:"reports"`
}

// Summary aggregates the run's reports.
func (r *Run) Summary() eval.Stats { return eval.Summary(r.Reports) }

// SaveEvaluation stores a batch of reports and returns the new run id.
func (s *LocalStore) SaveEvaluation(ctx context.Context, standard, provider, model string, reports []eval.Report) (string, error) {
	if reports == nil {
		reports = []eval.Report{}
	}
	data, err := json.Marshal(reports)
	if err != nil {
		return "", fmt.Errorf("failed to encode reports: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO eval_runs (id, standard, provider, model, created_at, reports_json)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, standard, provider, model, formatTime(s.now()), string(data),
	)
	if err != nil {
		logging.StoreError("Failed to save evaluation run: %v", err)
		return "", fmt.Errorf("failed to save evaluation run: %w", err)
	}

	logging.Store("Saved evaluation run %s: %d reports, standard=%s", id, len(reports), standard)
	return id, nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (s *LocalStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, standard, provider, model, created_at, reports_json
		FROM eval_runs ORDER BY created_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list evaluation runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetRun loads one run.
func (s *LocalStore) GetRun(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, standard, provider, model, created_at, reports_json
		 FROM eval_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrRunNotFound)
	}
	return run, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run       Run
		createdAt string
		data      string
	)
	if err := row.Scan(&run.ID, &run.Standard, &run.Provider, &run.Model, &createdAt, &data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan evaluation run: %w", err)
	}
	run.CreatedAt = parseTime(createdAt)
	if err := json.Unmarshal([]byte(data), &run.Reports); err != nil {
		return nil, fmt.Errorf("failed to decode reports of run %s: %w", run.ID, err)
	}
	return &run, nil
}
