package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wenjiaqi8255/context-me/internal/models"
)

func TestUsageLogRepository_Append(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUsageLogRepository(db)

	entry := &models.UsageLogEntry{
		UserID:      "u1",
		ActionType:  models.ActionGenerateInsight,
		ContentHash: "abc123",
		TokensUsed:  850,
		CostCents:   17,
		Metadata: map[string]interface{}{
			"category": "recommendation",
		},
	}

	metadataJSON, err := json.Marshal(entry.Metadata)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO usage_logs").
		WithArgs(
			sqlmock.AnyArg(), "u1", "generate_insight", "abc123",
			850, 17, metadataJSON, sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.Append(context.Background(), entry)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageLogRepository_DailySummary(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUsageLogRepository(db)

	day := time.Date(2025, 6, 15, 13, 45, 0, 0, time.UTC)
	start := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	rows := sqlmock.NewRows([]string{"requests", "tokens_used", "cost_cents"}).
		AddRow(42, 35000, 700)

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(start, end).
		WillReturnRows(rows)

	summary, err := repo.DailySummary(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, start, summary.Day)
	assert.Equal(t, 42, summary.Requests)
	assert.Equal(t, 35000, summary.TokensUsed)
	assert.Equal(t, 700, summary.CostCents)
}
