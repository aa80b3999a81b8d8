package contextstore

import (
	"context"
	"database/sql"
	"fmt"
)

// BeginRun records a new run and returns its ID.
func (s *SQLiteStore) BeginRun(ctx context.Context, goal string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (goal, outcome)
		VALUES (?, 'running')
	`, goal)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get run ID: %w", err)
	}
	return id, nil
}

// FinishRun records the final outcome and iteration count for a run.
func (s *SQLiteStore) FinishRun(ctx context.Context, runID int64, outcome string, iterations int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET outcome = ?, iterations = ?, finished_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, outcome, iterations, runID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found: %d", runID)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, goal, outcome, iterations, started_at, COALESCE(finished_at, started_at)
		FROM runs
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.ID, &r.Goal, &r.Outcome, &r.Iterations, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// SaveTask saves or updates the record of one task within a run.
// Uses ON CONFLICT to make saves idempotent.
func (s *SQLiteStore) SaveTask(ctx context.Context, rec TaskRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_tasks (run_id, task_id, name, category, status, attempts, result, fail_reason, skip_reason, error_context, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(run_id, task_id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			status = excluded.status,
			attempts = excluded.attempts,
			result = excluded.result,
			fail_reason = excluded.fail_reason,
			skip_reason = excluded.skip_reason,
			error_context = excluded.error_context,
			updated_at = CURRENT_TIMESTAMP
	`, rec.RunID, rec.TaskID, rec.Name, rec.Category, rec.Status, rec.Attempts, rec.Result, rec.FailReason, rec.SkipReason, rec.ErrorContext)
	if err != nil {
		return fmt.Errorf("failed to upsert task record: %w", err)
	}
	return nil
}

// ListRunTasks returns all task records for a run in task-ID order.
func (s *SQLiteStore) ListRunTasks(ctx context.Context, runID int64) ([]TaskRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, task_id, name, category, status, attempts, result, fail_reason, skip_reason, error_context
		FROM run_tasks
		WHERE run_id = ?
		ORDER BY task_id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query task records: %w", err)
	}
	defer rows.Close()

	var recs []TaskRecord
	for rows.Next() {
		var rec TaskRecord
		err := rows.Scan(&rec.RunID, &rec.TaskID, &rec.Name, &rec.Category, &rec.Status,
			&rec.Attempts, &rec.Result, &rec.FailReason, &rec.SkipReason, &rec.ErrorContext)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task record: %w", err)
		}
		recs = append(recs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task records: %w", err)
	}
	return recs, nil
}

// CachedSearch looks up a previously formatted search result by query.
func (s *SQLiteStore) CachedSearch(ctx context.Context, query string) (string, bool, error) {
	var formatted string
	err := s.db.QueryRowContext(ctx, `
		SELECT formatted FROM search_cache WHERE query = ?
	`, query).Scan(&formatted)

	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query search cache: %w", err)
	}
	return formatted, true, nil
}

// SaveSearch caches a formatted search result for a query.
func (s *SQLiteStore) SaveSearch(ctx context.Context, query, formatted string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO search_cache (query, formatted)
		VALUES (?, ?)
		ON CONFLICT(query) DO UPDATE SET
			formatted = excluded.formatted,
			created_at = CURRENT_TIMESTAMP
	`, query, formatted)
	if err != nil {
		return fmt.Errorf("failed to save search result: %w", err)
	}
	return nil
}
