// Package api implements the REST API consumed by the browser extension.
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"github.com/wenjiaqi8255/context-me/internal/ai"
	"github.com/wenjiaqi8255/context-me/internal/cache"
	"github.com/wenjiaqi8255/context-me/internal/middleware"
	"github.com/wenjiaqi8255/context-me/internal/models"
	"github.com/wenjiaqi8255/context-me/internal/observability"
	"github.com/wenjiaqi8255/context-me/internal/resilience"
	"github.com/wenjiaqi8255/context-me/internal/sections"
	"github.com/wenjiaqi8255/context-me/internal/service"
)

// Handler handles API requests from the extension
type Handler struct {
	service   *service.InsightService
	store     *cache.Store
	db        *sqlx.DB
	splitter  *sections.Splitter
	validator *validator.Validate
	logger    observability.Logger
}

// NewHandler creates a new API handler
func NewHandler(svc *service.InsightService, store *cache.Store, db *sqlx.DB, logger observability.Logger) *Handler {
	return &Handler{
		service:   svc,
		store:     store,
		db:        db,
		splitter:  sections.NewSplitter(0, 0),
		validator: validator.New(),
		logger:    logger.WithPrefix("api"),
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(router *gin.Engine, authMW *middleware.AuthMiddleware) {
	router.GET("/health", h.health)

	api := router.Group("/api/v1")
	api.Use(authMW.RequireUser())

	api.POST("/insights/generate", h.generateInsights)
	api.POST("/content/analyze", h.analyzeContent)
	api.POST("/debug/reset-usage", h.resetUsage)
}

// generateInsights analyzes the submitted page and returns personalized
// insights for it, served from cache when possible
func (h *Handler) generateInsights(c *gin.Context) {
	var req GenerateInsightsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.respondError(c, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	// A token identity always wins over the body, so one user cannot
	// spend another's quota
	if authedUser := middleware.AuthenticatedUser(c); authedUser != "" {
		req.UserID = authedUser
	}

	fp, _, err := h.service.AnalyzeContent(c.Request.Context(), service.AnalyzeRequest{
		URL:     req.Content.URL,
		Title:   req.Content.Title,
		Content: req.Content.Content,
	})
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	analysis := analysisFromFingerprint(fp)
	analysis.Sections = h.contentSections(req.Content)

	bundle, err := h.service.GetOrGenerate(c.Request.Context(), service.GenerateRequest{
		UserID:      req.UserID,
		ContentHash: fp.ContentHash,
		Profile:     profileFromPayload(req.UserID, req.UserProfile),
		Analysis:    analysis,
	})
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: gin.H{
			"insights":    bundle.Insights,
			"summary":     bundle.Summary,
			"structured":  bundle.Structured,
			"cached":      bundle.Cached,
			"contentHash": fp.ContentHash,
		},
	})
}

// analyzeContent returns the content fingerprint for a page without
// generating insights
func (h *Handler) analyzeContent(c *gin.Context) {
	var req AnalyzeContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.respondError(c, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	fp, source, err := h.service.AnalyzeContent(c.Request.Context(), service.AnalyzeRequest{
		URL:     req.URL,
		Title:   req.Title,
		Content: req.Content,
	})
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: gin.H{
			"analysis": fp,
			"source":   source,
		},
	})
}

// resetUsage clears the caller's daily quota counter. Development
// affordance; deployments gate it behind auth.
func (h *Handler) resetUsage(c *gin.Context) {
	var req ResetUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.respondError(c, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	if authedUser := middleware.AuthenticatedUser(c); authedUser != "" {
		req.UserID = authedUser
	}

	if err := h.service.ResetUsage(c.Request.Context(), req.UserID); err != nil {
		h.respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Message: "usage counter reset",
	})
}

// health reports dependency liveness. The cache is optional, so a Redis
// outage degrades the status without failing the check.
func (h *Handler) health(c *gin.Context) {
	ctx := c.Request.Context()
	status := "healthy"
	checks := gin.H{}

	if err := h.db.PingContext(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, Response{
			Success: false,
			Error:   "unhealthy",
			Data:    gin.H{"database": err.Error()},
		})
		return
	}
	checks["database"] = "ok"

	if err := h.store.Ping(ctx); err != nil {
		status = "degraded"
		checks["cache"] = err.Error()
	} else {
		checks["cache"] = "ok"
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: gin.H{
			"status": status,
			"checks": checks,
		},
	})
}

func (h *Handler) respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		h.respondError(c, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, resilience.ErrDailyLimitExceeded):
		h.respondError(c, http.StatusTooManyRequests, "daily_limit_exceeded", "daily usage limit reached, try again tomorrow")
	case errors.Is(err, ai.ErrProviderTimeout):
		h.respondError(c, http.StatusGatewayTimeout, "provider_timeout", "insight generation timed out")
	case errors.Is(err, ai.ErrProviderUnavailable):
		h.respondError(c, http.StatusServiceUnavailable, "provider_unavailable", "insight generation temporarily unavailable")
	case errors.Is(err, ai.ErrProvider):
		h.respondError(c, http.StatusBadGateway, "provider_error", "insight generation failed")
	default:
		h.logger.Error("Request failed", map[string]interface{}{
			"path":  c.FullPath(),
			"error": err.Error(),
		})
		h.respondError(c, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func (h *Handler) respondError(c *gin.Context, status int, kind, message string) {
	c.JSON(status, Response{
		Success: false,
		Error:   kind,
		Message: message,
	})
}

// contentSections uses the extension's own sections when it sent them and
// derives sections from the flat text otherwise
func (h *Handler) contentSections(content ContentPayload) []models.ContentSection {
	if len(content.Sections) > 0 {
		out := make([]models.ContentSection, 0, len(content.Sections))
		for i, s := range content.Sections {
			id := s.ID
			if id == "" {
				id = fmt.Sprintf("section-%d", i)
			}
			out = append(out, models.ContentSection{
				ID:      id,
				Type:    s.Type,
				Content: s.Content,
			})
		}
		return out
	}
	return h.splitter.Split(content.Content)
}

func profileFromPayload(userID string, p *ProfilePayload) *models.UserProfile {
	profile := &models.UserProfile{
		UserID: userID,
		ProfileData: models.ProfileData{
			Name:       p.Name,
			Background: p.Background,
			Interests:  p.Interests,
			Goals:      p.Goals,
			Skills:     p.Skills,
		},
	}
	if p.Language != "" {
		profile.ProfileData.Preferences = &models.Preferences{Language: p.Language}
	}
	return profile
}

func analysisFromFingerprint(fp *models.ContentFingerprint) *models.ContentAnalysis {
	return &models.ContentAnalysis{
		ContentHash:   fp.ContentHash,
		URL:           fp.URL,
		Title:         fp.Title,
		ContentType:   fp.ContentType,
		ExtractedData: fp.ExtractedData,
	}
}
