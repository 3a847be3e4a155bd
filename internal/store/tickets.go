package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/p-blackswan/impactlens/internal/ticket"
)

const ticketColumns = `
	ticket_key, ticket_id, summary, description, status, priority,
	assignee, reporter, created_at, updated_at, raw_data, last_synced_at, ttl_expires_at`

// ListAllKeys returns every stored ticket key.
func (s *Store) ListAllKeys(ctx context.Context) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT ticket_key FROM tickets`)
	if err != nil {
		return nil, fmt.Errorf("failed to list ticket keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan ticket key: %w", err)
		}
		keys[k] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ticket keys: %w", err)
	}
	return keys, nil
}

// FindByKey retrieves a ticket by key. Returns (nil, nil) when absent.
func (s *Store) FindByKey(ctx context.Context, key string) (*ticket.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE ticket_key = ?`, key)
	t, err := scanTicket(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket %s: %w", key, err)
	}
	return t, nil
}

// SaveAll upserts tickets in a single transaction. Either every ticket is
// written or none is.
func (s *Store) SaveAll(ctx context.Context, tickets []ticket.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO tickets (`+ticketColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(ticket_key) DO UPDATE SET
		ticket_id = excluded.ticket_id,
		summary = excluded.summary,
		description = excluded.description,
		status = excluded.status,
		priority = excluded.priority,
		assignee = excluded.assignee,
		reporter = excluded.reporter,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at,
		raw_data = excluded.raw_data,
		last_synced_at = excluded.last_synced_at,
		ttl_expires_at = excluded.ttl_expires_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare ticket upsert: %w", err)
	}
	defer stmt.Close()

	for i := range tickets {
		t := &tickets[i]
		raw := t.RawPayload
		if raw == "" {
			raw = "{}"
		}
		var ttl sql.NullInt64
		if t.TTLExpiresAt != nil {
			ttl = sql.NullInt64{Int64: t.TTLExpiresAt.UnixMilli(), Valid: true}
		}
		_, err := stmt.ExecContext(ctx,
			t.Key, t.ID, t.Summary, t.Description, t.Status, t.Priority,
			t.Assignee, t.Reporter, t.Created, t.Updated, raw,
			t.LastSyncedAt.UnixMilli(), ttl,
		)
		if err != nil {
			return fmt.Errorf("failed to save ticket %s: %w", t.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tickets: %w", err)
	}
	return nil
}

// ListTickets returns stored tickets, most recently synced first.
func (s *Store) ListTickets(ctx context.Context, limit int) ([]ticket.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + ticketColumns + ` FROM tickets ORDER BY last_synced_at DESC, ticket_key`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	defer rows.Close()
	return collectTickets(rows)
}

// SearchLocal returns stored tickets whose summary or description contains
// any of terms (case-insensitive), ranked by how many terms match.
// The ticket named by exclude is never returned.
func (s *Store) SearchLocal(ctx context.Context, terms []string, exclude string, limit int) ([]ticket.Ticket, error) {
	var clauses []string
	var args []interface{}
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		clauses = append(clauses,
			`CASE WHEN lower(summary || ' ' || description) LIKE ? ESCAPE '\' THEN 1 ELSE 0 END`)
		args = append(args, "%"+escapeLike(term)+"%")
	}
	if len(clauses) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	args = append(args, exclude, limit)

	query := `
	SELECT ` + ticketColumns + ` FROM (
		SELECT *, (` + strings.Join(clauses, " + ") + `) AS hits
		FROM tickets WHERE ticket_key <> ?
	) WHERE hits > 0
	ORDER BY hits DESC, last_synced_at DESC, ticket_key
	LIMIT ?`

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search tickets: %w", err)
	}
	defer rows.Close()
	return collectTickets(rows)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTicket(row rowScanner) (*ticket.Ticket, error) {
	t := &ticket.Ticket{}
	var syncedAt int64
	var ttl sql.NullInt64
	err := row.Scan(
		&t.Key, &t.ID, &t.Summary, &t.Description, &t.Status, &t.Priority,
		&t.Assignee, &t.Reporter, &t.Created, &t.Updated, &t.RawPayload,
		&syncedAt, &ttl,
	)
	if err != nil {
		return nil, err
	}
	t.LastSyncedAt = time.UnixMilli(syncedAt).UTC()
	if ttl.Valid {
		exp := time.UnixMilli(ttl.Int64).UTC()
		t.TTLExpiresAt = &exp
	}
	return t, nil
}

func collectTickets(rows *sql.Rows) ([]ticket.Ticket, error) {
	var tickets []ticket.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		tickets = append(tickets, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tickets: %w", err)
	}
	return tickets, nil
}
