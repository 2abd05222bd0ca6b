package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/wenjiaqi8255/context-me/internal/models"
)

// UsageLogRepository handles the append-only usage audit log
type UsageLogRepository struct {
	db *sqlx.DB
}

// NewUsageLogRepository creates a new usage log repository
func NewUsageLogRepository(db *sqlx.DB) *UsageLogRepository {
	return &UsageLogRepository{db: db}
}

// Append writes one usage record. The log is append-only; there are no
// update or delete paths.
func (r *UsageLogRepository) Append(ctx context.Context, entry *models.UsageLogEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	metadataJSON, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO usage_logs (
			id, user_id, action_type, content_hash, tokens_used, cost_cents, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = r.db.ExecContext(ctx, query,
		entry.ID, entry.UserID, string(entry.ActionType), entry.ContentHash,
		entry.TokensUsed, entry.CostCents, metadataJSON, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append usage log: %w", err)
	}

	return nil
}

// DailySummary aggregates usage for one UTC calendar day
func (r *UsageLogRepository) DailySummary(ctx context.Context, day time.Time) (*models.UsageSummary, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	var summary models.UsageSummary
	query := `
		SELECT COUNT(*) AS requests,
		       COALESCE(SUM(tokens_used), 0) AS tokens_used,
		       COALESCE(SUM(cost_cents), 0) AS cost_cents
		FROM usage_logs
		WHERE created_at >= $1 AND created_at < $2`

	err := r.db.GetContext(ctx, &summary, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize usage: %w", err)
	}

	summary.Day = start
	return &summary, nil
}
