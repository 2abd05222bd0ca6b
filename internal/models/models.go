// Package models defines the domain types shared across the insight service.
package models

import (
	"time"

	"github.com/google/uuid"
)

// ContentType classifies the kind of page the extension captured
type ContentType string

// Supported content types
const (
	ContentTypeCourse  ContentType = "course"
	ContentTypeJob     ContentType = "job"
	ContentTypeProduct ContentType = "product"
	ContentTypeArticle ContentType = "article"
	ContentTypeOther   ContentType = "other"
)

// Difficulty estimates how advanced a piece of content is
type Difficulty string

// Difficulty levels
const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// InsightCategory classifies a generated insight
type InsightCategory string

// Insight categories
const (
	CategoryOpportunity    InsightCategory = "opportunity"
	CategoryRecommendation InsightCategory = "recommendation"
	CategoryWarning        InsightCategory = "warning"
	CategoryInformation    InsightCategory = "information"
)

// ExtractedData holds the distilled view of a page's content
type ExtractedData struct {
	Summary    string     `json:"summary,omitempty"`
	KeyPoints  []string   `json:"key_points,omitempty"`
	Tags       []string   `json:"tags,omitempty"`
	Difficulty Difficulty `json:"difficulty,omitempty"`
}

// ContentSection is one extracted block of page text, as sent by the
// extension content script
type ContentSection struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Content string `json:"content"`
}

// ContentFingerprint is the append-only record identifying a piece of
// content by its hash. Immutable once created; keyed uniquely by ContentHash.
type ContentFingerprint struct {
	ID            uuid.UUID     `json:"id" db:"id"`
	ContentHash   string        `json:"content_hash" db:"content_hash"`
	URL           string        `json:"url,omitempty" db:"url"`
	Title         string        `json:"title,omitempty" db:"title"`
	ContentType   ContentType   `json:"content_type" db:"content_type"`
	ExtractedData ExtractedData `json:"extracted_data" db:"-"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
}

// ContentAnalysis is the analyzed view of a page passed into insight
// generation. Sections are optional; insights can attach to them.
type ContentAnalysis struct {
	ContentHash   string           `json:"content_hash"`
	URL           string           `json:"url,omitempty"`
	Title         string           `json:"title,omitempty"`
	ContentType   ContentType      `json:"content_type"`
	Sections      []ContentSection `json:"sections,omitempty"`
	ExtractedData ExtractedData    `json:"extracted_data"`
}

// ProfileData is the user-authored profile content used for personalization
type ProfileData struct {
	Name        string       `json:"name,omitempty"`
	Background  string       `json:"background,omitempty"`
	Interests   []string     `json:"interests"`
	Goals       []string     `json:"goals"`
	Skills      []string     `json:"skills"`
	Preferences *Preferences `json:"preferences,omitempty"`
}

// Preferences holds per-user generation preferences
type Preferences struct {
	Language     string `json:"language,omitempty"`
	InsightStyle string `json:"insight_style,omitempty"`
}

// UserProfile is read-only input to insight generation; it is owned and
// mutated by the profile service, never by this core.
type UserProfile struct {
	UserID      string      `json:"user_id"`
	ProfileData ProfileData `json:"profile_data"`
	Version     int         `json:"version,omitempty"`
}

// Insight is one generated, personalized annotation for a
// (user, content[, section]) tuple. Regeneration creates a new entity
// with a new ID; entries are never updated in place.
type Insight struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	ContentHash    string          `json:"content_hash"`
	SectionID      string          `json:"section_id,omitempty"`
	SectionType    string          `json:"section_type,omitempty"`
	Insight        string          `json:"insight"`
	RelevanceScore float64         `json:"relevance_score"`
	Category       InsightCategory `json:"category"`
	ActionItems    []string        `json:"action_items,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// InsightBundle is the orchestrator's result: the generated (or cached)
// insights plus an overall summary. Cached distinguishes a cache hit from
// a fresh generation; Structured reports whether the provider output was
// parsed as multi-section JSON or wrapped by the fallback path.
type InsightBundle struct {
	Insights   []Insight `json:"insights"`
	Summary    string    `json:"summary"`
	Structured bool      `json:"structured"`
	Cached     bool      `json:"cached"`
}

// UsageAction enumerates audit log action types
type UsageAction string

// Usage log actions
const (
	ActionGenerateInsight UsageAction = "generate_insight"
	ActionAnalyzeContent  UsageAction = "analyze_content"
)

// UsageLogEntry is one append-only audit record of billable work
type UsageLogEntry struct {
	ID          uuid.UUID              `json:"id" db:"id"`
	UserID      string                 `json:"user_id" db:"user_id"`
	ActionType  UsageAction            `json:"action_type" db:"action_type"`
	ContentHash string                 `json:"content_hash,omitempty" db:"content_hash"`
	TokensUsed  int                    `json:"tokens_used,omitempty" db:"tokens_used"`
	CostCents   int                    `json:"cost_cents,omitempty" db:"cost_cents"`
	Metadata    map[string]interface{} `json:"metadata,omitempty" db:"-"`
	CreatedAt   time.Time              `json:"created_at" db:"created_at"`
}

// UsageSummary aggregates a day's usage for reporting
type UsageSummary struct {
	Day        time.Time `json:"day" db:"day"`
	Requests   int       `json:"requests" db:"requests"`
	TokensUsed int       `json:"tokens_used" db:"tokens_used"`
	CostCents  int       `json:"cost_cents" db:"cost_cents"`
}
