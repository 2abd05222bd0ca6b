package sections

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wenjiaqi8255/context-me/internal/models"
)

func TestSplit_ParagraphBoundaries(t *testing.T) {
	s := NewSplitter(1200, 10)

	content := "The first paragraph talks about Go.\n\nThe second paragraph talks about testing.\n\nThe third paragraph talks about deployment."
	sections := s.Split(content)

	require.Len(t, sections, 3)
	assert.Equal(t, "section-0", sections[0].ID)
	assert.Equal(t, "section-1", sections[1].ID)
	assert.Equal(t, "p", sections[0].Type)
	assert.Equal(t, "The first paragraph talks about Go.", sections[0].Content)
}

func TestSplit_DropsTrivialFragments(t *testing.T) {
	s := NewSplitter(1200, 10)

	content := "Menu\n\nA real paragraph with enough text to keep.\n\nOK"
	sections := s.Split(content)

	require.Len(t, sections, 1)
	assert.Equal(t, "A real paragraph with enough text to keep.", sections[0].Content)
}

func TestSplit_OversizedParagraphSplitsOnWords(t *testing.T) {
	s := NewSplitter(50, 10)

	long := strings.TrimSpace(strings.Repeat("lorem ipsum dolor sit amet ", 10))
	sections := s.Split(long)

	require.Greater(t, len(sections), 1)
	for i, section := range sections {
		assert.LessOrEqual(t, len(section.Content), 50)
		assert.Equal(t, fmt.Sprintf("section-%d", i), section.ID)
	}
	// No words lost in the split
	assert.Equal(t, long, strings.Join(sectionContents(sections), " "))
}

func TestSplit_CapsSectionCount(t *testing.T) {
	s := NewSplitter(1200, 3)

	var b strings.Builder
	for i := 0; i < 8; i++ {
		fmt.Fprintf(&b, "Paragraph number %d with enough text in it.\n\n", i)
	}

	sections := s.Split(b.String())
	assert.Len(t, sections, 3)
}

func TestSplit_FlatTextBecomesOneSection(t *testing.T) {
	s := NewSplitter(1200, 10)

	sections := s.Split("A single line of text without any blank lines in it at all.")
	require.Len(t, sections, 1)
	assert.Equal(t, "section-0", sections[0].ID)
}

func TestSplit_EmptyContent(t *testing.T) {
	s := NewSplitter(1200, 10)
	assert.Empty(t, s.Split(""))
	assert.Empty(t, s.Split("   \n\n  "))
}

func sectionContents(sections []models.ContentSection) []string {
	out := make([]string, 0, len(sections))
	for _, s := range sections {
		out = append(out, s.Content)
	}
	return out
}
