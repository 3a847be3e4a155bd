package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/impactlens/internal/cache"
	"github.com/p-blackswan/impactlens/internal/ticket"
)

// StatusCompleted is the only status an analysis result carries; failures
// degrade the content instead.
const StatusCompleted = "COMPLETED"

// DefaultMaxRelated bounds how many related tickets a report covers.
const DefaultMaxRelated = 5

// RelatedTicket is a stored ticket found to be related to the analysed one.
type RelatedTicket struct {
	Key               string  `json:"ticketKey"`
	Summary           string  `json:"summary"`
	Status            string  `json:"status"`
	Priority          string  `json:"priority"`
	RelevanceScore    float64 `json:"relevanceScore"`
	RelationshipType  string  `json:"relationshipType"`
	ImpactDescription string  `json:"impactDescription"`
}

// Report is the body of an impact analysis.
type Report struct {
	Summary         string           `json:"summary"`
	GapsIdentified  []GapAnalysis    `json:"gapsIdentified"`
	RelatedTickets  []RelatedTicket  `json:"relatedTickets"`
	RegressionAreas []RegressionArea `json:"regressionAreas"`
	Recommendations []string         `json:"recommendations"`
}

// Metadata describes how a report was produced.
type Metadata struct {
	ProcessingTime  int64  `json:"processingTime"`
	TicketsAnalyzed int    `json:"ticketsAnalyzed"`
	CacheHit        bool   `json:"cacheHit"`
	CompletedAt     string `json:"completedAt"`
	ModelUsed       string `json:"modelUsed"`
}

// Result is one impact analysis of a ticket.
type Result struct {
	AnalysisID string   `json:"analysisId"`
	TicketKey  string   `json:"ticketKey"`
	Status     string   `json:"status"`
	Report     Report   `json:"report"`
	Metadata   Metadata `json:"metadata"`
}

// TicketSearcher finds stored tickets by keyword.
type TicketSearcher interface {
	SearchLocal(ctx context.Context, terms []string, exclude string, limit int) ([]ticket.Ticket, error)
}

// Analyzer builds impact reports from the pipeline operations and caches them
// per ticket revision.
type Analyzer struct {
	pipeline   *Pipeline
	searcher   TicketSearcher
	cache      *cache.Cache[string, Result]
	model      string
	maxRelated int
	logger     zerolog.Logger
	now        func() time.Time
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithCache caches reports keyed by ticket key and updated timestamp.
func WithCache(c *cache.Cache[string, Result]) AnalyzerOption {
	return func(a *Analyzer) { a.cache = c }
}

// WithMaxRelated overrides DefaultMaxRelated.
func WithMaxRelated(n int) AnalyzerOption {
	return func(a *Analyzer) {
		if n > 0 {
			a.maxRelated = n
		}
	}
}

// WithAnalyzerClock overrides the time source.
func WithAnalyzerClock(now func() time.Time) AnalyzerOption {
	return func(a *Analyzer) { a.now = now }
}

// NewAnalyzer creates an Analyzer. model is reported in result metadata.
func NewAnalyzer(p *Pipeline, searcher TicketSearcher, model string, logger zerolog.Logger, opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		pipeline:   p,
		searcher:   searcher,
		model:      model,
		maxRelated: DefaultMaxRelated,
		logger:     logger.With().Str("component", "analyzer").Logger(),
		now:        time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func cacheKey(t ticket.Ticket) string {
	return t.Key + "@" + t.Updated
}

// Analyze produces an impact report for t. It never fails: a failing
// operation contributes its fallback, and a failing related-ticket search
// yields a report without related tickets.
func (a *Analyzer) Analyze(ctx context.Context, t ticket.Ticket) Result {
	start := a.now()

	if a.cache != nil {
		if cached, ok := a.cache.Get(cacheKey(t)); ok {
			cached.Metadata.CacheHit = true
			a.logger.Debug().Str("ticket", t.Key).Msg("analysis cache hit")
			return cached
		}
	}

	keywords := a.pipeline.ExtractKeywords(ctx, t)

	related, err := a.searcher.SearchLocal(ctx, keywords, t.Key, a.maxRelated)
	if err != nil {
		a.logger.Warn().Err(err).Str("ticket", t.Key).Msg("related ticket search failed")
		related = nil
	}

	relatedOut := make([]RelatedTicket, 0, len(related))
	for _, r := range related {
		score := a.pipeline.RelevanceScore(ctx, t, r)
		kind, impact := describeRelationship(t.Key, r.Key, score)
		relatedOut = append(relatedOut, RelatedTicket{
			Key:               r.Key,
			Summary:           r.Summary,
			Status:            r.Status,
			Priority:          r.Priority,
			RelevanceScore:    score,
			RelationshipType:  kind,
			ImpactDescription: impact,
		})
	}

	gap := a.pipeline.GapAnalysis(ctx, t, related)
	regressions := a.pipeline.RegressionAreas(ctx, t, related)
	summary := a.pipeline.Summarize(ctx, t, related)

	recommendations := make([]string, len(gap.Suggestions))
	copy(recommendations, gap.Suggestions)

	end := a.now()
	res := Result{
		AnalysisID: uuid.New().String(),
		TicketKey:  t.Key,
		Status:     StatusCompleted,
		Report: Report{
			Summary:         summary,
			GapsIdentified:  []GapAnalysis{gap},
			RelatedTickets:  relatedOut,
			RegressionAreas: regressions,
			Recommendations: recommendations,
		},
		Metadata: Metadata{
			ProcessingTime:  end.Sub(start).Milliseconds(),
			TicketsAnalyzed: 1 + len(related),
			CompletedAt:     end.UTC().Format(time.RFC3339),
			ModelUsed:       a.model,
		},
	}

	if a.cache != nil {
		a.cache.Put(cacheKey(t), res)
	}

	a.logger.Info().
		Str("ticket", t.Key).
		Int("related", len(related)).
		Int64("processing_ms", res.Metadata.ProcessingTime).
		Msg("analysis completed")
	return res
}

// describeRelationship labels a related ticket by its relevance score.
func describeRelationship(source, related string, score float64) (string, string) {
	switch {
	case score >= 0.7:
		return "Direct", fmt.Sprintf("Changes in %s are likely to affect %s", source, related)
	case score >= 0.4:
		return "Functional overlap", fmt.Sprintf("%s covers related functionality and should be retested", related)
	default:
		return "Peripheral", fmt.Sprintf("%s is loosely related to %s", related, source)
	}
}
