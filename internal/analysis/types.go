package analysis

import "strings"

// Risk levels used for gap severity and regression risk.
const (
	RiskLow    = "Low"
	RiskMedium = "Medium"
	RiskHigh   = "High"
)

// GapAnalysis describes missing requirements or edge cases for a ticket.
type GapAnalysis struct {
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Severity    string   `json:"severity"`
	Impact      string   `json:"impact"`
	Suggestions []string `json:"suggestions"`
}

// RegressionArea is one area that should be retested.
type RegressionArea struct {
	Area        string   `json:"area"`
	Description string   `json:"description"`
	RiskLevel   string   `json:"riskLevel"`
	TestCases   []string `json:"testCases"`
	Rationale   string   `json:"rationale"`
}

// DefaultKeywords is returned when keyword extraction fails.
func DefaultKeywords() []string {
	return []string{"feature", "development", "bug", "enhancement", "testing"}
}

// DefaultRelevance is returned when relevance scoring fails.
const DefaultRelevance = 0.5

// DefaultGapAnalysis is returned when gap analysis fails.
func DefaultGapAnalysis() GapAnalysis {
	return GapAnalysis{
		Category:    "Requirements",
		Description: "Unable to perform gap analysis due to API error",
		Severity:    RiskMedium,
		Impact:      "Manual review recommended",
		Suggestions: []string{
			"Review requirements manually",
			"Check for edge cases",
			"Verify acceptance criteria",
		},
	}
}

// DefaultRegressionAreas is returned when regression area generation fails.
func DefaultRegressionAreas() []RegressionArea {
	return []RegressionArea{{
		Area:        "General Testing",
		Description: "Unable to generate specific regression areas due to API error",
		RiskLevel:   RiskMedium,
		TestCases: []string{
			"Perform general regression testing",
			"Test core functionality",
			"Verify data integrity",
		},
		Rationale: "Manual regression testing recommended",
	}}
}

// normalizeRisk maps a case-insensitive Low/Medium/High to its canonical
// spelling.
func normalizeRisk(s string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return RiskLow, true
	case "medium":
		return RiskMedium, true
	case "high":
		return RiskHigh, true
	}
	return "", false
}
