package api

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/impactlens/internal/analysis"
	"github.com/p-blackswan/impactlens/internal/jira"
	"github.com/p-blackswan/impactlens/internal/requestid"
	"github.com/p-blackswan/impactlens/internal/syncer"
	"github.com/p-blackswan/impactlens/internal/ticket"
)

// Syncer is the sync engine surface the API exposes.
type Syncer interface {
	Sync(ctx context.Context, query string, maxResults int) syncer.Result
	FetchTicket(ctx context.Context, key string) (*ticket.Ticket, error)
	RefreshTicket(ctx context.Context, key string) (*ticket.Ticket, error)
	SearchTickets(ctx context.Context, text string) ([]ticket.Ticket, error)
	TicketComments(ctx context.Context, key string) (string, error)
}

// TicketStore reads stored tickets and sync history.
type TicketStore interface {
	FindByKey(ctx context.Context, key string) (*ticket.Ticket, error)
	ListTickets(ctx context.Context, limit int) ([]ticket.Ticket, error)
	ListSyncRuns(ctx context.Context, limit int) ([]syncer.Result, error)
}

// Analyzer produces impact reports.
type Analyzer interface {
	Analyze(ctx context.Context, t ticket.Ticket) analysis.Result
}

// SyncDefaults are the query parameters used when a request omits them.
type SyncDefaults struct {
	JQL        string
	MaxResults int
	RecentDays int
}

// Handlers implements the API endpoints.
type Handlers struct {
	syncer   Syncer
	store    TicketStore
	analyzer Analyzer
	defaults SyncDefaults
	logger   zerolog.Logger
}

// NewHandlers creates handlers over the given dependencies.
func NewHandlers(s Syncer, st TicketStore, a Analyzer, defaults SyncDefaults, logger zerolog.Logger) *Handlers {
	if defaults.JQL == "" {
		defaults.JQL = "ORDER BY updated DESC"
	}
	if defaults.MaxResults <= 0 {
		defaults.MaxResults = 100
	}
	if defaults.RecentDays <= 0 {
		defaults.RecentDays = 30
	}
	return &Handlers{
		syncer:   s,
		store:    st,
		analyzer: a,
		defaults: defaults,
		logger:   logger.With().Str("component", "api").Logger(),
	}
}

// GetTicket fetches a ticket from Jira without storing it.
func (h *Handlers) GetTicket(c *fiber.Ctx) error {
	key := c.Params("key")
	t, err := h.syncer.FetchTicket(c.UserContext(), key)
	if err != nil {
		return upstreamProblem(c, err)
	}
	if t == nil {
		return notFound(c, "ticket "+key+" not found")
	}
	return c.JSON(t)
}

// RefreshTicket fetches a ticket from Jira and stores it.
func (h *Handlers) RefreshTicket(c *fiber.Ctx) error {
	key := c.Params("key")
	t, err := h.syncer.RefreshTicket(c.UserContext(), key)
	if err != nil {
		return upstreamProblem(c, err)
	}
	if t == nil {
		return notFound(c, "ticket "+key+" not found")
	}
	return c.JSON(t)
}

// SearchTickets runs a free-text Jira search.
func (h *Handlers) SearchTickets(c *fiber.Ctx) error {
	query := strings.TrimSpace(c.Query("query"))
	if query == "" {
		return badRequest(c, "query parameter is required")
	}
	tickets, err := h.syncer.SearchTickets(c.UserContext(), query)
	if err != nil {
		return upstreamProblem(c, err)
	}
	if tickets == nil {
		tickets = []ticket.Ticket{}
	}
	return c.JSON(tickets)
}

// TicketComments returns comment bodies as plain text.
func (h *Handlers) TicketComments(c *fiber.Ctx) error {
	text, err := h.syncer.TicketComments(c.UserContext(), c.Params("key"))
	if err != nil {
		return upstreamProblem(c, err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.SendString(text)
}

// ListTickets returns stored tickets.
func (h *Handlers) ListTickets(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	tickets, err := h.store.ListTickets(c.UserContext(), limit)
	if err != nil {
		return err
	}
	if tickets == nil {
		tickets = []ticket.Ticket{}
	}
	return c.JSON(tickets)
}

// Sync runs a sync with the given jql and maxResults.
func (h *Handlers) Sync(c *fiber.Ctx) error {
	jql := c.Query("jql", h.defaults.JQL)
	maxResults := c.QueryInt("maxResults", h.defaults.MaxResults)
	if maxResults <= 0 {
		return badRequest(c, "maxResults must be positive")
	}
	return h.runSync(c, jql, maxResults)
}

// SyncAll runs a sync with the default query.
func (h *Handlers) SyncAll(c *fiber.Ctx) error {
	return h.runSync(c, h.defaults.JQL, h.defaults.MaxResults)
}

// SyncRecent syncs issues updated in the last days days.
func (h *Handlers) SyncRecent(c *fiber.Ctx) error {
	days := c.QueryInt("days", h.defaults.RecentDays)
	if days <= 0 {
		return badRequest(c, "days must be positive")
	}
	return h.runSync(c, jira.RecentJQL(days), h.defaults.MaxResults)
}

func (h *Handlers) runSync(c *fiber.Ctx, jql string, maxResults int) error {
	log := requestid.Logger(c.UserContext(), h.logger)
	log.Info().
		Str("jql", jql).
		Int("max_results", maxResults).
		Msg("starting jira sync")

	res := h.syncer.Sync(c.UserContext(), jql, maxResults)
	if res.Status == syncer.StatusFailed {
		return c.Status(fiber.StatusInternalServerError).JSON(res)
	}
	return c.JSON(res)
}

// ListSyncRuns returns recent sync runs.
func (h *Handlers) ListSyncRuns(c *fiber.Ctx) error {
	runs, err := h.store.ListSyncRuns(c.UserContext(), c.QueryInt("limit", 20))
	if err != nil {
		return err
	}
	if runs == nil {
		runs = []syncer.Result{}
	}
	return c.JSON(runs)
}

type analyzeRequest struct {
	TicketKey string `json:"ticketKey"`
	TicketID  string `json:"ticketId"`
}

// Analyze runs impact analysis for the ticket named in the path.
func (h *Handlers) Analyze(c *fiber.Ctx) error {
	return h.analyze(c, c.Params("key"))
}

// AnalyzeBody runs impact analysis for the ticket named in the JSON body.
func (h *Handlers) AnalyzeBody(c *fiber.Ctx) error {
	var req analyzeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	key := req.TicketKey
	if key == "" {
		key = req.TicketID
	}
	if key == "" {
		return badRequest(c, "ticketKey is required")
	}
	return h.analyze(c, key)
}

// analyze uses the stored ticket, pulling it from Jira first when unknown.
func (h *Handlers) analyze(c *fiber.Ctx, key string) error {
	ctx := c.UserContext()
	t, err := h.store.FindByKey(ctx, key)
	if err != nil {
		return err
	}
	if t == nil {
		t, err = h.syncer.RefreshTicket(ctx, key)
		if err != nil {
			return upstreamProblem(c, err)
		}
		if t == nil {
			return notFound(c, "ticket "+key+" not found")
		}
	}
	return c.JSON(h.analyzer.Analyze(ctx, *t))
}
