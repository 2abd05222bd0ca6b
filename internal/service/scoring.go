package service

import (
	"strings"

	"github.com/wenjiaqi8255/context-me/internal/models"
)

// ScoringConfig tunes the fallback relevance heuristic. Any monotonic,
// bounded function works here; more keyword overlap must never lower
// the score.
type ScoringConfig struct {
	Baseline       float64 `mapstructure:"baseline"`
	InterestWeight float64 `mapstructure:"interest_weight"`
	GoalWeight     float64 `mapstructure:"goal_weight"`
}

// DefaultScoringConfig returns the historical weights
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		Baseline:       0.5,
		InterestWeight: 0.10,
		GoalWeight:     0.15,
	}
}

// relevanceScore computes the fallback relevance of content for a user:
// baseline plus a fixed increment per interest found in the content tags
// and a larger increment per goal found in the summary, clamped to [0, 1].
func relevanceScore(cfg ScoringConfig, profile *models.UserProfile, analysis *models.ContentAnalysis) float64 {
	score := cfg.Baseline

	summary := strings.ToLower(analysis.ExtractedData.Summary)
	tags := make([]string, 0, len(analysis.ExtractedData.Tags))
	for _, tag := range analysis.ExtractedData.Tags {
		tags = append(tags, strings.ToLower(tag))
	}

	for _, interest := range profile.ProfileData.Interests {
		needle := strings.ToLower(interest)
		for _, tag := range tags {
			if strings.Contains(tag, needle) {
				score += cfg.InterestWeight
				break
			}
		}
	}

	for _, goal := range profile.ProfileData.Goals {
		if goal != "" && strings.Contains(summary, strings.ToLower(goal)) {
			score += cfg.GoalWeight
		}
	}

	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

// CategorizerConfig holds the keyword families mapping insight text to a
// category. Keyword sets are configuration, not logic: deployments tune
// them per language and audience.
type CategorizerConfig struct {
	Recommendation []string `mapstructure:"recommendation"`
	Opportunity    []string `mapstructure:"opportunity"`
	Warning        []string `mapstructure:"warning"`
}

// DefaultCategorizerConfig returns the built-in keyword families
func DefaultCategorizerConfig() CategorizerConfig {
	return CategorizerConfig{
		Recommendation: []string{"should", "recommend", "suggest", "建议", "推荐"},
		Opportunity:    []string{"opportunity", "chance", "potential", "机会", "可能"},
		Warning:        []string{"warning", "risk", "caution", "careful", "注意", "风险"},
	}
}

// categorize assigns exactly one category to an insight text, with
// information as the default when no stronger signal is found.
func categorize(cfg CategorizerConfig, text string) models.InsightCategory {
	lower := strings.ToLower(text)

	if containsAny(lower, cfg.Recommendation) {
		return models.CategoryRecommendation
	}
	if containsAny(lower, cfg.Opportunity) {
		return models.CategoryOpportunity
	}
	if containsAny(lower, cfg.Warning) {
		return models.CategoryWarning
	}
	return models.CategoryInformation
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
