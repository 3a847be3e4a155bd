package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/p-blackswan/impactlens/internal/ticket"
)

// ExtractKeywords returns technical keywords for finding related tickets.
func (p *Pipeline) ExtractKeywords(ctx context.Context, t ticket.Ticket) []string {
	prompt := fmt.Sprintf(
		"Extract 5-8 key technical keywords from this Jira ticket that would be useful for finding related tickets. "+
			"Focus on technical terms, technologies, features, and business concepts. "+
			"Return only a JSON array of strings, no other text.\n\n"+
			"Ticket Summary: %s\n"+
			"Ticket Description: %s",
		t.Summary, t.Description,
	)
	return run(ctx, p, OpKeywords, prompt, decodeKeywords, DefaultKeywords)
}

// RelevanceScore rates how related two tickets are, from 0.0 to 1.0.
func (p *Pipeline) RelevanceScore(ctx context.Context, source, related ticket.Ticket) float64 {
	prompt := fmt.Sprintf(
		"Calculate a relevance score between 0.0 and 1.0 for how related these two Jira tickets are. "+
			"Consider technical similarity, business impact, and functional overlap. "+
			"Return only a number between 0.0 and 1.0, no other text.\n\n"+
			"Source Ticket:\nSummary: %s\nDescription: %s\n\n"+
			"Related Ticket:\nSummary: %s\nDescription: %s",
		source.Summary, source.Description, related.Summary, related.Description,
	)
	return run(ctx, p, OpRelevance, prompt, decodeScore, func() float64 { return DefaultRelevance })
}

// GapAnalysis looks for missing requirements by comparing a ticket with its
// relatives.
func (p *Pipeline) GapAnalysis(ctx context.Context, source ticket.Ticket, related []ticket.Ticket) GapAnalysis {
	prompt := fmt.Sprintf(
		"Perform a gap analysis for this Jira ticket by comparing it with related tickets. "+
			"Identify potential missing requirements, edge cases, or considerations. "+
			"Return a JSON object with the following structure:\n"+
			"{\n"+
			"  \"category\": \"string\",\n"+
			"  \"description\": \"string\",\n"+
			"  \"severity\": \"Low|Medium|High\",\n"+
			"  \"impact\": \"string\",\n"+
			"  \"suggestions\": [\"string1\", \"string2\", \"string3\"]\n"+
			"}\n\n"+
			"Source Ticket:\nSummary: %s\nDescription: %s\n\n"+
			"Related Tickets:\n%s",
		source.Summary, source.Description, relatedList(related),
	)
	return run(ctx, p, OpGaps, prompt, decodeGap, DefaultGapAnalysis)
}

// RegressionAreas lists areas that may be affected by a ticket's changes.
func (p *Pipeline) RegressionAreas(ctx context.Context, source ticket.Ticket, related []ticket.Ticket) []RegressionArea {
	prompt := fmt.Sprintf(
		"Generate regression testing areas for this Jira ticket based on the related tickets. "+
			"Identify areas that might be affected by the changes. "+
			"Return a JSON array of objects with the following structure:\n"+
			"[\n"+
			"  {\n"+
			"    \"area\": \"string\",\n"+
			"    \"description\": \"string\",\n"+
			"    \"riskLevel\": \"Low|Medium|High\",\n"+
			"    \"testCases\": [\"string1\", \"string2\", \"string3\"],\n"+
			"    \"rationale\": \"string\"\n"+
			"  }\n"+
			"]\n\n"+
			"Source Ticket:\nSummary: %s\nDescription: %s\n\n"+
			"Related Tickets:\n%s",
		source.Summary, source.Description, relatedList(related),
	)
	return run(ctx, p, OpRegression, prompt, decodeRegressionAreas, DefaultRegressionAreas)
}

// Summarize writes a short narrative of the analysis. The reply is used as
// is; only a failed completion falls back to a templated sentence.
func (p *Pipeline) Summarize(ctx context.Context, t ticket.Ticket, related []ticket.Ticket) string {
	prompt := fmt.Sprintf(
		"Generate a concise summary of the impact analysis for this Jira ticket. "+
			"Include the number of related tickets found and key areas of concern. "+
			"Keep it under 200 words.\n\n"+
			"Ticket: %s\nSummary: %s\nDescription: %s\n\n"+
			"Related Tickets Found:\n%s",
		t.Key, t.Summary, t.Description, relatedList(related),
	)
	identity := func(s string) (string, error) { return s, nil }
	fallback := func() string { return DefaultSummary(t.Key, len(related)) }
	return run(ctx, p, OpSummary, prompt, identity, fallback)
}

// DefaultSummary is the summary used when the completion backend fails.
func DefaultSummary(key string, relatedCount int) string {
	return fmt.Sprintf(
		"Analysis of ticket %s identified %d related tickets. "+
			"Recommend thorough regression testing in affected areas.",
		key, relatedCount,
	)
}

// relatedList renders tickets as "- KEY: summary" lines.
func relatedList(tickets []ticket.Ticket) string {
	var b strings.Builder
	for _, t := range tickets {
		fmt.Fprintf(&b, "- %s: %s\n", t.Key, t.Summary)
	}
	return b.String()
}
