package store

import (
	"fmt"
	"strconv"
)

// migrations are applied in order; schema_version in meta counts how many
// have run.
var migrations = []string{
	// 1: tickets
	`
	CREATE TABLE IF NOT EXISTS tickets (
		ticket_key      TEXT PRIMARY KEY,
		ticket_id       TEXT NOT NULL,
		summary         TEXT NOT NULL DEFAULT '',
		description     TEXT NOT NULL DEFAULT '',
		status          TEXT NOT NULL DEFAULT '',
		priority        TEXT NOT NULL DEFAULT '',
		assignee        TEXT NOT NULL DEFAULT '',
		reporter        TEXT NOT NULL DEFAULT '',
		created_at      TEXT NOT NULL DEFAULT '',
		updated_at      TEXT NOT NULL DEFAULT '',
		raw_data        TEXT NOT NULL DEFAULT '{}',
		last_synced_at  INTEGER NOT NULL,
		ttl_expires_at  INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_tickets_synced ON tickets(last_synced_at);
	CREATE INDEX IF NOT EXISTS idx_tickets_ttl ON tickets(ttl_expires_at) WHERE ttl_expires_at IS NOT NULL;
	`,
	// 2: sync run history
	`
	CREATE TABLE IF NOT EXISTS sync_runs (
		id                TEXT PRIMARY KEY,
		jql               TEXT NOT NULL,
		status            TEXT NOT NULL,
		total_fetched     INTEGER NOT NULL DEFAULT 0,
		new_added         INTEGER NOT NULL DEFAULT 0,
		existing_updated  INTEGER NOT NULL DEFAULT 0,
		failed_count      INTEGER NOT NULL DEFAULT 0,
		failed_keys       TEXT NOT NULL DEFAULT '[]',
		error             TEXT,
		started_at        INTEGER NOT NULL,
		ended_at          INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_sync_runs_started ON sync_runs(started_at);
	`,
}

func (s *Store) schemaVersion() (int, error) {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		return 0, fmt.Errorf("create meta: %w", err)
	}
	var raw string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&raw)
	if err != nil {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("schema_version %q: %w", raw, err)
	}
	return v, nil
}

// migrate runs every pending migration, each in its own transaction together
// with the version bump.
func (s *Store) migrate() error {
	current, err := s.schemaVersion()
	if err != nil {
		return err
	}

	for i := current; i < len(migrations); i++ {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key, value) VALUES ('schema_version', ?)`, strconv.Itoa(i+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: record version: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: commit: %w", i+1, err)
		}
		s.logger.Debug().Int("version", i+1).Msg("migration applied")
	}
	return nil
}
