package api

// The request types mirror the browser extension's wire format, which is
// camelCase. They are converted to the internal snake_case models at the
// boundary.

// ContentPayload is the raw page the extension captured. Sections are
// optional; when absent the server derives them from the flat text.
type ContentPayload struct {
	URL      string           `json:"url" validate:"required,url"`
	Title    string           `json:"title"`
	Content  string           `json:"content" validate:"required"`
	Sections []SectionPayload `json:"sections"`
}

// SectionPayload is one extracted block of page text
type SectionPayload struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Content string `json:"content" validate:"required"`
}

// ProfilePayload is the user profile as the extension sends it
type ProfilePayload struct {
	Name       string   `json:"name"`
	Background string   `json:"background"`
	Interests  []string `json:"interests"`
	Goals      []string `json:"goals"`
	Skills     []string `json:"skills"`
	Language   string   `json:"language"`
}

// GenerateInsightsRequest asks for personalized insights on a page
type GenerateInsightsRequest struct {
	UserID      string          `json:"userId" validate:"required"`
	Content     ContentPayload  `json:"content" validate:"required"`
	UserProfile *ProfilePayload `json:"userProfile" validate:"required"`
}

// AnalyzeContentRequest asks for the content fingerprint of a page
type AnalyzeContentRequest struct {
	URL     string `json:"url" validate:"required,url"`
	Title   string `json:"title"`
	Content string `json:"content" validate:"required"`
}

// ResetUsageRequest clears a user's daily quota counter
type ResetUsageRequest struct {
	UserID string `json:"userId" validate:"required"`
}

// Response is the uniform envelope for all endpoints
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}
