// Package syncer mirrors Jira issues into the local ticket store.
package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/impactlens/internal/config"
	"github.com/p-blackswan/impactlens/internal/jira"
	"github.com/p-blackswan/impactlens/internal/metrics"
	"github.com/p-blackswan/impactlens/internal/ticket"
)

// Tracker is the subset of the Jira client the engine depends on.
type Tracker interface {
	SearchIssues(ctx context.Context, jql string, maxResults int) (*jira.SearchResult, error)
	GetIssue(ctx context.Context, issueKey string) (*jira.Issue, error)
	GetComments(ctx context.Context, issueKey string) ([]jira.Comment, error)
}

// TicketStore persists tickets. SaveAll must be atomic.
type TicketStore interface {
	ListAllKeys(ctx context.Context) (map[string]struct{}, error)
	FindByKey(ctx context.Context, key string) (*ticket.Ticket, error)
	SaveAll(ctx context.Context, tickets []ticket.Ticket) error
}

// RunRecorder keeps a history of finished runs.
type RunRecorder interface {
	SaveSyncRun(ctx context.Context, r *Result) error
}

// Notifier is told about every finished run.
type Notifier interface {
	NotifySync(ctx context.Context, r Result) error
}

// Engine reconciles a page of tracker issues against the ticket store.
// Concurrent Sync calls are not serialized; overlapping keys are last write wins.
type Engine struct {
	cfg        config.JiraConfig
	tracker    Tracker
	store      TicketStore
	normalizer ticket.Normalizer
	logger     zerolog.Logger

	metrics  *metrics.Metrics
	recorder RunRecorder
	notifier Notifier
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics records run outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithRecorder persists every finished run.
func WithRecorder(r RunRecorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithNotifier sends a notification for every finished run.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a sync engine. cfg is validated on every call rather than
// here so a misconfigured service still starts and reports FAILED runs.
func NewEngine(cfg config.JiraConfig, tracker Tracker, store TicketStore, normalizer ticket.Normalizer, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		cfg:        cfg,
		tracker:    tracker,
		store:      store,
		normalizer: normalizer,
		logger:     logger.With().Str("component", "syncer").Logger(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.normalizer.Now == nil {
		e.normalizer.Now = e.now
	}
	return e
}

// Sync fetches up to maxResults issues matching query and upserts them. It
// never returns an error: failures are reported through the Result.
func (e *Engine) Sync(ctx context.Context, query string, maxResults int) (result Result) {
	result = Result{
		RunID:      uuid.New().String(),
		Query:      query,
		Status:     StatusInProgress,
		FailedKeys: []string{},
		StartTime:  e.now().UTC(),
	}
	log := e.logger.With().Str("run_id", result.RunID).Str("jql", query).Logger()

	defer func() {
		if r := recover(); r != nil {
			result.fail(fmt.Sprintf("sync aborted: %v", r))
		}
		result.finish(e.now().UTC())
		e.afterRun(ctx, log, result)
	}()

	if err := e.cfg.Validate(); err != nil {
		result.fail(err.Error())
		return result
	}

	known, err := e.store.ListAllKeys(ctx)
	if err != nil {
		result.fail(fmt.Sprintf("failed to load known tickets: %v", err))
		return result
	}

	page, err := e.tracker.SearchIssues(ctx, query, maxResults)
	if err != nil {
		result.fail(fmt.Sprintf("failed to search issues: %v", err))
		return result
	}

	if page == nil {
		page = &jira.SearchResult{}
	}

	staged := newBatch()
	for i := range page.Issues {
		issue := &page.Issues[i]
		result.TotalFetched++

		t, err := e.reconcile(ctx, issue, known, staged)
		if err != nil {
			log.Warn().Err(err).Str("ticket", issue.Key).Msg("skipping ticket")
			result.FailedCount++
			result.FailedKeys = append(result.FailedKeys, issue.Key)
			continue
		}
		if t.isNew {
			result.NewAdded++
		} else {
			result.ExistingUpdated++
		}
	}

	if err := e.store.SaveAll(ctx, staged.tickets()); err != nil {
		result.fail(fmt.Sprintf("failed to save tickets: %v", err))
		return result
	}
	return result
}

type reconciled struct {
	isNew bool
}

// reconcile normalizes one issue and stages it as an insert or an update.
// A panic inside normalization is converted to an error for this item only.
func (e *Engine) reconcile(ctx context.Context, issue *jira.Issue, known map[string]struct{}, staged *batch) (res reconciled, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("normalize %s: %v", issue.Key, r)
		}
	}()

	if issue.Key == "" {
		return res, fmt.Errorf("issue %q has no key", issue.ID)
	}

	fresh := e.normalizer.Normalize(issue)

	if prev, ok := staged.get(fresh.Key); ok {
		prev.Overwrite(fresh)
		return reconciled{isNew: false}, nil
	}

	if _, ok := known[fresh.Key]; !ok {
		staged.put(fresh)
		return reconciled{isNew: true}, nil
	}

	existing, err := e.store.FindByKey(ctx, fresh.Key)
	if err != nil {
		return res, fmt.Errorf("load %s: %w", fresh.Key, err)
	}
	if existing == nil {
		// Deleted between ListAllKeys and now.
		staged.put(fresh)
		return reconciled{isNew: true}, nil
	}
	existing.Overwrite(fresh)
	staged.put(*existing)
	return reconciled{isNew: false}, nil
}

func (e *Engine) afterRun(ctx context.Context, log zerolog.Logger, r Result) {
	ev := log.Info()
	if r.Status == StatusFailed {
		ev = log.Error().Str("error", r.ErrorMessage)
	}
	ev.Str("status", string(r.Status)).
		Int("fetched", r.TotalFetched).
		Int("added", r.NewAdded).
		Int("updated", r.ExistingUpdated).
		Int("failed", r.FailedCount).
		Dur("duration", r.Duration()).
		Msg("sync finished")

	e.metrics.RecordSync(string(r.Status), r.NewAdded, r.ExistingUpdated, r.FailedCount, r.Duration().Seconds())

	if e.recorder != nil {
		if err := e.recorder.SaveSyncRun(ctx, &r); err != nil {
			log.Warn().Err(err).Msg("failed to record sync run")
		}
	}
	if e.notifier != nil {
		if err := e.notifier.NotifySync(ctx, r); err != nil {
			log.Warn().Err(err).Msg("failed to send sync notification")
		}
	}
}

// batch keeps staged tickets in first-seen order.
type batch struct {
	order []string
	byKey map[string]*ticket.Ticket
}

func newBatch() *batch {
	return &batch{byKey: make(map[string]*ticket.Ticket)}
}

func (b *batch) get(key string) (*ticket.Ticket, bool) {
	t, ok := b.byKey[key]
	return t, ok
}

func (b *batch) put(t ticket.Ticket) {
	if _, ok := b.byKey[t.Key]; !ok {
		b.order = append(b.order, t.Key)
	}
	b.byKey[t.Key] = &t
}

func (b *batch) tickets() []ticket.Ticket {
	out := make([]ticket.Ticket, 0, len(b.order))
	for _, k := range b.order {
		out = append(out, *b.byKey[k])
	}
	return out
}
