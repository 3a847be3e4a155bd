package store

import (
	"context"
	"fmt"
	"time"
)

// PurgeExpired deletes tickets whose TTL has passed. Tickets without a TTL
// are kept forever.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM tickets WHERE ttl_expires_at IS NOT NULL AND ttl_expires_at <= ?",
		now.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tickets: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info().Int64("deleted", n).Msg("purged expired tickets")
	}
	return n, nil
}

// PruneSyncRuns keeps the most recent keep sync runs and deletes the rest.
func (s *Store) PruneSyncRuns(ctx context.Context, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
	DELETE FROM sync_runs WHERE id NOT IN (
		SELECT id FROM sync_runs ORDER BY started_at DESC, id LIMIT ?
	)`, keep)
	if err != nil {
		return fmt.Errorf("failed to prune sync runs: %w", err)
	}
	return nil
}

// RunRetention applies every retention policy once.
func (s *Store) RunRetention(ctx context.Context, now time.Time, keepRuns int) error {
	if _, err := s.PurgeExpired(ctx, now); err != nil {
		return err
	}
	if keepRuns > 0 {
		return s.PruneSyncRuns(ctx, keepRuns)
	}
	return nil
}

// DBSizeBytes returns the database size in bytes
func (s *Store) DBSizeBytes() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pageCount int64
	var pageSize int64

	err := s.db.QueryRow("PRAGMA page_count").Scan(&pageCount)
	if err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}

	err = s.db.QueryRow("PRAGMA page_size").Scan(&pageSize)
	if err != nil {
		return 0, fmt.Errorf("failed to get page size: %w", err)
	}

	return pageCount * pageSize, nil
}
