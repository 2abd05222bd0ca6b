package ai

import (
	"fmt"
	"strings"

	"github.com/wenjiaqi8255/context-me/internal/models"
)

const systemPrompt = `You are a professional personalized content analyst.
Your task is to provide personalized, practical content analysis and
suggestions based on the user's background and goals. Stay objective and
professional while focusing on the user's actual needs and growth.`

// BuildInsightPrompt renders the user prompt sent to the model: the user's
// profile, the analyzed content, and the required JSON response shape.
func BuildInsightPrompt(profile *models.UserProfile, analysis *models.ContentAnalysis) string {
	var b strings.Builder

	data := profile.ProfileData

	b.WriteString("Based on the following user profile and content analysis, generate personalized insights for each content section.\n\n")

	b.WriteString("[User Profile]\n")
	fmt.Fprintf(&b, "Background: %s\n", orUnknown(data.Background))
	fmt.Fprintf(&b, "Interests: %s\n", orUnknown(strings.Join(data.Interests, ", ")))
	fmt.Fprintf(&b, "Goals: %s\n", orUnknown(strings.Join(data.Goals, ", ")))
	fmt.Fprintf(&b, "Skills: %s\n\n", orUnknown(strings.Join(data.Skills, ", ")))

	b.WriteString("[Content]\n")
	fmt.Fprintf(&b, "Title: %s\n", orUnknown(analysis.Title))
	fmt.Fprintf(&b, "Type: %s\n\n", analysis.ContentType)

	b.WriteString("[Sections]\n")
	if len(analysis.Sections) == 0 {
		b.WriteString("No sections available.\n")
	}
	for i, section := range analysis.Sections {
		sectionType := section.Type
		if sectionType == "" {
			sectionType = "text"
		}
		fmt.Fprintf(&b, "Section %d (%s):\n%s\n\n", i+1, sectionType, section.Content)
	}

	b.WriteString(`Respond with JSON only, in this exact shape:
{
  "insights": [
    {
      "sectionId": "section-0",
      "sectionType": "p",
      "insight": "specific insight for this section",
      "relevance": 0.8,
      "category": "recommendation",
      "actionItems": ["concrete action 1", "concrete action 2"]
    }
  ],
  "summary": "overall relevance analysis and recommendation"
}

Rules:
1. Only generate insights for sections relevant to the user's interests, goals, or skills
2. Each insight must be specific and practical for its section
3. Relevance is 0-1, where 1 is highly relevant
4. Category is one of: recommendation, opportunity, warning, information`)

	language := "English"
	if data.Preferences != nil && data.Preferences.Language == "zh" {
		language = "Chinese"
	}
	fmt.Fprintf(&b, "\n5. Answer in %s", language)

	return b.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "not provided"
	}
	return s
}
