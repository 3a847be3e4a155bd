package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/p-blackswan/impactlens/internal/syncer"
)

// SaveSyncRun records a finished sync run.
func (s *Store) SaveSyncRun(ctx context.Context, r *syncer.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := r.FailedKeys
	if keys == nil {
		keys = []string{}
	}
	failedJSON, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("failed to marshal failed keys: %w", err)
	}

	var errMsg sql.NullString
	if r.ErrorMessage != "" {
		errMsg = sql.NullString{String: r.ErrorMessage, Valid: true}
	}
	var endedAt sql.NullInt64
	if r.EndTime != nil {
		endedAt = sql.NullInt64{Int64: r.EndTime.UnixMilli(), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
	INSERT INTO sync_runs (id, jql, status, total_fetched, new_added, existing_updated,
		failed_count, failed_keys, error, started_at, ended_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		status = excluded.status,
		total_fetched = excluded.total_fetched,
		new_added = excluded.new_added,
		existing_updated = excluded.existing_updated,
		failed_count = excluded.failed_count,
		failed_keys = excluded.failed_keys,
		error = excluded.error,
		ended_at = excluded.ended_at
	`,
		r.RunID, r.Query, string(r.Status), r.TotalFetched, r.NewAdded, r.ExistingUpdated,
		r.FailedCount, string(failedJSON), errMsg, r.StartTime.UnixMilli(), endedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save sync run %s: %w", r.RunID, err)
	}
	return nil
}

// ListSyncRuns returns recorded runs, newest first.
func (s *Store) ListSyncRuns(ctx context.Context, limit int) ([]syncer.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, jql, status, total_fetched, new_added, existing_updated,
		failed_count, failed_keys, error, started_at, ended_at
	FROM sync_runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	defer rows.Close()

	var runs []syncer.Result
	for rows.Next() {
		var r syncer.Result
		var status, failedJSON string
		var errMsg sql.NullString
		var startedAt int64
		var endedAt sql.NullInt64
		if err := rows.Scan(
			&r.RunID, &r.Query, &status, &r.TotalFetched, &r.NewAdded, &r.ExistingUpdated,
			&r.FailedCount, &failedJSON, &errMsg, &startedAt, &endedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		r.Status = syncer.Status(status)
		if err := json.Unmarshal([]byte(failedJSON), &r.FailedKeys); err != nil {
			return nil, fmt.Errorf("failed to decode failed keys of run %s: %w", r.RunID, err)
		}
		r.ErrorMessage = errMsg.String
		r.StartTime = time.UnixMilli(startedAt).UTC()
		if endedAt.Valid {
			end := time.UnixMilli(endedAt.Int64).UTC()
			r.EndTime = &end
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync runs: %w", err)
	}
	return runs, nil
}
