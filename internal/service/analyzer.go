package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wenjiaqi8255/context-me/internal/cache"
	"github.com/wenjiaqi8255/context-me/internal/fingerprint"
	"github.com/wenjiaqi8255/context-me/internal/models"
	"github.com/wenjiaqi8255/context-me/internal/repository"
)

// AnalyzerConfig tunes the heuristic content analysis. The keyword lists
// are configuration so deployments can localize them.
type AnalyzerConfig struct {
	// MaxContentLength bounds the text that participates in analysis
	// and fingerprinting
	MaxContentLength int `mapstructure:"max_content_length"`

	// TagKeywords are matched against title+content to produce tags
	TagKeywords []string `mapstructure:"tag_keywords"`

	// AdvancedTerms and BeginnerTerms drive the difficulty estimate
	AdvancedTerms []string `mapstructure:"advanced_terms"`
	BeginnerTerms []string `mapstructure:"beginner_terms"`
}

// DefaultAnalyzerConfig returns the built-in keyword sets
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		MaxContentLength: fingerprint.MaxContentLength,
		TagKeywords: []string{
			"ai", "machine learning", "programming", "design",
			"management", "data", "technology", "product",
		},
		AdvancedTerms: []string{"advanced", "expert", "architecture", "optimization", "深度学习", "架构"},
		BeginnerTerms: []string{"beginner", "intro", "tutorial", "basics", "入门", "基础"},
	}
}

// AnalysisSource reports where an analysis result came from
type AnalysisSource string

// Analysis sources
const (
	SourceCache AnalysisSource = "cache"
	SourceStore AnalysisSource = "store"
	SourceFresh AnalysisSource = "fresh"
)

// AnalyzeRequest is the input for content analysis
type AnalyzeRequest struct {
	URL     string
	Title   string
	Content string
}

// AnalyzeContent fingerprints the page text and returns its analysis,
// serving from cache, then from the durable store, then by analyzing
// fresh. Fresh results write through to both tiers.
func (s *InsightService) AnalyzeContent(ctx context.Context, req AnalyzeRequest) (*models.ContentFingerprint, AnalysisSource, error) {
	if req.URL == "" {
		return nil, "", fmt.Errorf("%w: url is required", ErrValidation)
	}
	if req.Content == "" {
		return nil, "", fmt.Errorf("%w: content is required", ErrValidation)
	}

	// The fingerprint hashes normalized text so whitespace variants of a
	// page dedup to one key; extraction keeps the raw text so its line
	// structure survives
	normalized := fingerprint.Normalize(req.Content, s.config.Analyzer.MaxContentLength)
	hash := fingerprint.Hash(normalized)
	key := cache.ContentKey(hash)

	var cached models.ContentFingerprint
	if s.store.GetJSON(ctx, key, &cached) {
		return &cached, SourceCache, nil
	}

	existing, err := s.fingerprints.Find(ctx, hash)
	if err == nil {
		s.store.SetJSON(ctx, key, existing, s.config.ContentTTL)
		return existing, SourceStore, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, "", fmt.Errorf("failed to look up fingerprint: %w", err)
	}

	fp := &models.ContentFingerprint{
		ContentHash:   hash,
		URL:           req.URL,
		Title:         req.Title,
		ContentType:   classifyContent(req.URL, req.Title),
		ExtractedData: s.extractData(req.Title, req.Content),
	}

	stored, err := s.fingerprints.Upsert(ctx, fp)
	if err != nil {
		return nil, "", fmt.Errorf("failed to store fingerprint: %w", err)
	}

	s.store.SetJSON(ctx, key, stored, s.config.ContentTTL)

	return stored, SourceFresh, nil
}

// classifyContent infers the content type from URL and title markers
func classifyContent(url, title string) models.ContentType {
	u := strings.ToLower(url)
	t := strings.ToLower(title)

	switch {
	case strings.Contains(u, "course") || strings.Contains(t, "course") || strings.Contains(t, "课程"):
		return models.ContentTypeCourse
	case strings.Contains(u, "job") || strings.Contains(u, "career") || strings.Contains(t, "job") || strings.Contains(t, "职位"):
		return models.ContentTypeJob
	case strings.Contains(u, "product") || strings.Contains(t, "product") || strings.Contains(t, "产品"):
		return models.ContentTypeProduct
	case strings.Contains(u, "article") || strings.Contains(u, "blog") || strings.Contains(t, "article") || strings.Contains(t, "文章"):
		return models.ContentTypeArticle
	default:
		return models.ContentTypeOther
	}
}

// extractData produces the heuristic summary, key points, tags and
// difficulty estimate for a page
func (s *InsightService) extractData(title, content string) models.ExtractedData {
	return models.ExtractedData{
		Summary:    summarize(content),
		KeyPoints:  keyPoints(content),
		Tags:       s.extractTags(title, content),
		Difficulty: s.estimateDifficulty(content),
	}
}

// summarize takes the first three sentences as a summary
func summarize(content string) string {
	sentences := splitSentences(content)
	if len(sentences) == 0 {
		// Truncate by runes so CJK text is never cut mid-character
		runes := []rune(content)
		if len(runes) > 200 {
			return string(runes[:200]) + "..."
		}
		return content
	}

	if len(sentences) > 3 {
		sentences = sentences[:3]
	}
	return strings.Join(sentences, ". ") + "."
}

func splitSentences(content string) []string {
	raw := strings.FieldsFunc(content, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})

	sentences := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if len(s) > 10 {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

// keyPoints takes the first five substantial lines
func keyPoints(content string) []string {
	points := make([]string, 0, 5)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		points = append(points, line)
		if len(points) == 5 {
			break
		}
	}
	return points
}

func (s *InsightService) extractTags(title, content string) []string {
	text := strings.ToLower(title + " " + content)

	tags := make([]string, 0)
	for _, kw := range s.config.Analyzer.TagKeywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			tags = append(tags, kw)
		}
	}
	return tags
}

func (s *InsightService) estimateDifficulty(content string) models.Difficulty {
	text := strings.ToLower(content)

	if containsAny(text, s.config.Analyzer.AdvancedTerms) {
		return models.DifficultyAdvanced
	}
	if containsAny(text, s.config.Analyzer.BeginnerTerms) {
		return models.DifficultyBeginner
	}
	return models.DifficultyIntermediate
}
