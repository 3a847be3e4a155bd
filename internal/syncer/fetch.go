package syncer

import (
	"context"
	"fmt"

	"github.com/p-blackswan/impactlens/internal/jira"
	"github.com/p-blackswan/impactlens/internal/ticket"
)

// SearchLimit bounds free-text searches.
const SearchLimit = 20

// FetchTicket fetches and normalizes one issue without persisting it.
// An issue the tracker reports as not found yields (nil, nil).
func (e *Engine) FetchTicket(ctx context.Context, key string) (*ticket.Ticket, error) {
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}
	issue, err := e.tracker.GetIssue(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", key, err)
	}
	if issue == nil {
		return nil, nil
	}
	t := e.normalizer.Normalize(issue)
	return &t, nil
}

// RefreshTicket fetches one issue and upserts it into the store.
func (e *Engine) RefreshTicket(ctx context.Context, key string) (*ticket.Ticket, error) {
	fresh, err := e.FetchTicket(ctx, key)
	if err != nil || fresh == nil {
		return fresh, err
	}

	existing, err := e.store.FindByKey(ctx, fresh.Key)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", fresh.Key, err)
	}
	saved := *fresh
	if existing != nil {
		existing.Overwrite(*fresh)
		saved = *existing
	}
	if err := e.store.SaveAll(ctx, []ticket.Ticket{saved}); err != nil {
		return nil, fmt.Errorf("save %s: %w", fresh.Key, err)
	}

	e.logger.Info().Str("ticket", saved.Key).Bool("new", existing == nil).Msg("ticket refreshed")
	return &saved, nil
}

// SearchTickets runs a free-text search against the tracker. Results are
// normalized but not persisted.
func (e *Engine) SearchTickets(ctx context.Context, text string) ([]ticket.Ticket, error) {
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}
	page, err := e.tracker.SearchIssues(ctx, jira.TextSearchJQL(text), SearchLimit)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", text, err)
	}
	out := make([]ticket.Ticket, 0)
	if page == nil {
		return out, nil
	}
	for i := range page.Issues {
		out = append(out, e.normalizer.Normalize(&page.Issues[i]))
	}
	return out, nil
}

// TicketComments returns the comment bodies of one issue, each followed by a
// newline.
func (e *Engine) TicketComments(ctx context.Context, key string) (string, error) {
	if err := e.cfg.Validate(); err != nil {
		return "", err
	}
	comments, err := e.tracker.GetComments(ctx, key)
	if err != nil {
		return "", fmt.Errorf("comments %s: %w", key, err)
	}
	return jira.JoinComments(comments), nil
}
