package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wenjiaqi8255/context-me/internal/models"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})

	return sqlx.NewDb(db, "sqlmock"), mock
}

func TestFingerprintRepository_Find(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewFingerprintRepository(db)

	extracted, err := json.Marshal(models.ExtractedData{
		Summary: "Go course intro",
		Tags:    []string{"go", "programming"},
	})
	require.NoError(t, err)

	id := uuid.New()
	created := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"id", "content_hash", "url", "title", "content_type", "extracted_data", "created_at",
	}).AddRow(id, "abc123", "https://example.com/go", "Learn Go", "course", extracted, created)

	mock.ExpectQuery("SELECT id, content_hash").
		WithArgs("abc123").
		WillReturnRows(rows)

	fp, err := repo.Find(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123", fp.ContentHash)
	assert.Equal(t, models.ContentTypeCourse, fp.ContentType)
	assert.Equal(t, "Go course intro", fp.ExtractedData.Summary)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFingerprintRepository_Find_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewFingerprintRepository(db)

	mock.ExpectQuery("SELECT id, content_hash").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.Find(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFingerprintRepository_Upsert(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewFingerprintRepository(db)

	fp := &models.ContentFingerprint{
		ContentHash: "abc123",
		URL:         "https://example.com/go",
		Title:       "Learn Go",
		ContentType: models.ContentTypeCourse,
		ExtractedData: models.ExtractedData{
			Summary:    "Go course intro",
			Difficulty: models.DifficultyBeginner,
		},
	}

	extracted, err := json.Marshal(fp.ExtractedData)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO content_fingerprints").
		WithArgs(
			sqlmock.AnyArg(), fp.ContentHash, fp.URL, fp.Title,
			"course", extracted, sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rows := sqlmock.NewRows([]string{
		"id", "content_hash", "url", "title", "content_type", "extracted_data", "created_at",
	}).AddRow(uuid.New(), fp.ContentHash, fp.URL, fp.Title, "course", extracted, time.Now().UTC())

	mock.ExpectQuery("SELECT id, content_hash").
		WithArgs(fp.ContentHash).
		WillReturnRows(rows)

	stored, err := repo.Upsert(context.Background(), fp)
	require.NoError(t, err)
	assert.Equal(t, fp.ContentHash, stored.ContentHash)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFingerprintRepository_Upsert_LosingRaceReturnsWinner(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewFingerprintRepository(db)

	winnerID := uuid.New()
	extracted, err := json.Marshal(models.ExtractedData{Summary: "first writer's analysis"})
	require.NoError(t, err)

	// ON CONFLICT DO NOTHING: zero rows affected for the loser
	mock.ExpectExec("INSERT INTO content_fingerprints").
		WillReturnResult(sqlmock.NewResult(0, 0))

	rows := sqlmock.NewRows([]string{
		"id", "content_hash", "url", "title", "content_type", "extracted_data", "created_at",
	}).AddRow(winnerID, "abc123", "", "", "article", extracted, time.Now().UTC())

	mock.ExpectQuery("SELECT id, content_hash").
		WithArgs("abc123").
		WillReturnRows(rows)

	stored, err := repo.Upsert(context.Background(), &models.ContentFingerprint{
		ContentHash: "abc123",
		ContentType: models.ContentTypeArticle,
	})
	require.NoError(t, err)

	// The loser gets back the row the winner persisted
	assert.Equal(t, winnerID, stored.ID)
	assert.Equal(t, "first writer's analysis", stored.ExtractedData.Summary)
}
