// Package sections splits raw page text into the content sections that
// insights attach to. The extension's content script usually ships its own
// sections; the splitter covers captures that arrive as one flat text blob.
package sections

import (
	"fmt"
	"strings"

	"github.com/wenjiaqi8255/context-me/internal/models"
)

// Splitter produces bounded content sections from raw page text
type Splitter struct {
	// MaxSectionChars caps one section's length. Oversized paragraphs
	// are split on word boundaries.
	MaxSectionChars int

	// MaxSections caps the section count so a huge page cannot blow up
	// the prompt
	MaxSections int
}

// NewSplitter creates a splitter with the given bounds
func NewSplitter(maxSectionChars, maxSections int) *Splitter {
	if maxSectionChars <= 0 {
		maxSectionChars = 1200
	}
	if maxSections <= 0 {
		maxSections = 10
	}
	return &Splitter{
		MaxSectionChars: maxSectionChars,
		MaxSections:     maxSections,
	}
}

// Split breaks page text into sections on paragraph boundaries. Section IDs
// are "section-N", matching the IDs the model echoes back in its insights.
func (s *Splitter) Split(content string) []models.ContentSection {
	paragraphs := splitParagraphs(content)

	sections := make([]models.ContentSection, 0, len(paragraphs))
	for _, p := range paragraphs {
		if len(p) <= s.MaxSectionChars {
			sections = append(sections, models.ContentSection{
				Type:    "p",
				Content: p,
			})
			continue
		}
		for _, part := range splitOnWords(p, s.MaxSectionChars) {
			sections = append(sections, models.ContentSection{
				Type:    "p",
				Content: part,
			})
		}
	}

	if len(sections) > s.MaxSections {
		sections = sections[:s.MaxSections]
	}
	for i := range sections {
		sections[i].ID = fmt.Sprintf("section-%d", i)
	}
	return sections
}

// splitParagraphs splits on blank lines and drops trivial fragments
func splitParagraphs(content string) []string {
	blocks := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n\n")

	paragraphs := make([]string, 0, len(blocks))
	for _, block := range blocks {
		block = strings.TrimSpace(block)
		if len(block) < 20 {
			continue
		}
		paragraphs = append(paragraphs, block)
	}

	// A page with no blank lines still needs at least one section
	if len(paragraphs) == 0 {
		if trimmed := strings.TrimSpace(content); trimmed != "" {
			paragraphs = append(paragraphs, trimmed)
		}
	}
	return paragraphs
}

// splitOnWords packs words into parts no longer than maxChars. A single
// word longer than maxChars becomes its own part.
func splitOnWords(text string, maxChars int) []string {
	words := strings.Fields(text)

	var parts []string
	var current strings.Builder
	for _, word := range words {
		if current.Len() > 0 && current.Len()+1+len(word) > maxChars {
			parts = append(parts, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}
