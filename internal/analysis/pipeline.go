// Package analysis turns completion backend output into typed impact
// analysis artifacts. Every operation returns a usable value: decode or
// transport failures are replaced by a fixed fallback.
package analysis

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/impactlens/internal/llm"
	"github.com/p-blackswan/impactlens/internal/metrics"
)

// Operation names, used in logs and metrics.
const (
	OpKeywords   = "keywords"
	OpRelevance  = "relevance"
	OpGaps       = "gap_analysis"
	OpRegression = "regression_areas"
	OpSummary    = "summary"
)

// Pipeline runs the structured completion operations.
type Pipeline struct {
	completer llm.Completer
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMetrics records decode outcomes per operation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// NewPipeline creates a pipeline backed by completer.
func NewPipeline(completer llm.Completer, logger zerolog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		completer: completer,
		logger:    logger.With().Str("component", "analysis").Logger(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// run sends prompt, decodes the reply and falls back on any failure.
func run[T any](ctx context.Context, p *Pipeline, op, prompt string, decode func(string) (T, error), fallback func() T) T {
	raw, err := p.completer.Complete(ctx, prompt)
	if err != nil {
		p.logger.Error().Err(err).Str("operation", op).Msg("completion failed, using fallback")
		p.metrics.RecordAnalysis(op, true)
		return fallback()
	}

	v, err := decode(raw)
	if err != nil {
		p.logger.Warn().Err(err).Str("operation", op).Msg("could not decode completion, using fallback")
		p.metrics.RecordAnalysis(op, true)
		return fallback()
	}

	p.metrics.RecordAnalysis(op, false)
	return v
}
