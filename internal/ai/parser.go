package ai

import (
	"encoding/json"
	"strings"

	"github.com/wenjiaqi8255/context-me/internal/models"
	"github.com/wenjiaqi8255/context-me/internal/observability"
)

// Fallback relevance scores for the two degradation paths
const (
	// relevanceNoJSON is used when the response contains no JSON block
	relevanceNoJSON = 0.5

	// relevanceParseError is used when a JSON block was found but did
	// not decode
	relevanceParseError = 0.3
)

// ParsedInsights is the structured view of a model response
type ParsedInsights struct {
	Insights   []ParsedInsight `json:"insights"`
	Summary    string          `json:"summary"`
	Structured bool            `json:"-"`
}

// ParsedInsight is one per-section insight from the model
type ParsedInsight struct {
	SectionID   string                 `json:"sectionId"`
	SectionType string                 `json:"sectionType"`
	Insight     string                 `json:"insight"`
	Relevance   float64                `json:"relevance"`
	Category    models.InsightCategory `json:"category"`
	ActionItems []string               `json:"actionItems"`
}

// ParseInsightResponse extracts the structured insight list from model
// output. Models wrap JSON in prose or markdown fences often enough that
// we scan for the outermost brace pair instead of decoding the whole text.
// This function never fails: unparseable output degrades to a single
// generic insight wrapping the raw text.
func ParseInsightResponse(content string, logger observability.Logger) *ParsedInsights {
	jsonBlock := extractJSONBlock(content)
	if jsonBlock == "" {
		logger.Debug("No JSON block in model response, using fallback wrap", nil)
		return fallbackInsights(content, content, relevanceNoJSON)
	}

	var parsed ParsedInsights
	if err := json.Unmarshal([]byte(jsonBlock), &parsed); err != nil {
		logger.Warn("Failed to parse model response", map[string]interface{}{
			"error": err.Error(),
		})
		return fallbackInsights(content, "Could not parse the generated insight; showing raw output.", relevanceParseError)
	}

	if len(parsed.Insights) == 0 {
		return fallbackInsights(content, content, relevanceNoJSON)
	}

	for i := range parsed.Insights {
		parsed.Insights[i].Relevance = clamp(parsed.Insights[i].Relevance)
		if !validCategory(parsed.Insights[i].Category) {
			parsed.Insights[i].Category = models.CategoryInformation
		}
	}

	parsed.Structured = true
	return &parsed
}

// extractJSONBlock returns the substring from the first '{' to the last
// '}', or "" when no such pair exists
func extractJSONBlock(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return ""
	}
	return content[start : end+1]
}

func fallbackInsights(content, summary string, relevance float64) *ParsedInsights {
	return &ParsedInsights{
		Insights: []ParsedInsight{
			{
				SectionID:   "fallback",
				SectionType: "general",
				Insight:     content,
				Relevance:   relevance,
				Category:    models.CategoryInformation,
				ActionItems: []string{},
			},
		},
		Summary:    summary,
		Structured: false,
	}
}

func validCategory(c models.InsightCategory) bool {
	switch c {
	case models.CategoryOpportunity, models.CategoryRecommendation,
		models.CategoryWarning, models.CategoryInformation:
		return true
	}
	return false
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
