// Package repository implements Postgres data access for the insight service
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/wenjiaqi8255/context-me/internal/models"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("record not found")

// FingerprintRepository handles content fingerprint data access.
// Fingerprints are append-only: created on first analysis, never mutated,
// never deleted.
type FingerprintRepository struct {
	db *sqlx.DB
}

// NewFingerprintRepository creates a new fingerprint repository
func NewFingerprintRepository(db *sqlx.DB) *FingerprintRepository {
	return &FingerprintRepository{db: db}
}

// fingerprintRow maps the content_fingerprints table
type fingerprintRow struct {
	ID            uuid.UUID       `db:"id"`
	ContentHash   string          `db:"content_hash"`
	URL           sql.NullString  `db:"url"`
	Title         sql.NullString  `db:"title"`
	ContentType   string          `db:"content_type"`
	ExtractedData json.RawMessage `db:"extracted_data"`
	CreatedAt     time.Time       `db:"created_at"`
}

func (r fingerprintRow) toModel() (*models.ContentFingerprint, error) {
	fp := &models.ContentFingerprint{
		ID:          r.ID,
		ContentHash: r.ContentHash,
		URL:         r.URL.String,
		Title:       r.Title.String,
		ContentType: models.ContentType(r.ContentType),
		CreatedAt:   r.CreatedAt,
	}

	if len(r.ExtractedData) > 0 {
		if err := json.Unmarshal(r.ExtractedData, &fp.ExtractedData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal extracted data: %w", err)
		}
	}

	return fp, nil
}

// Find retrieves a fingerprint by content hash
func (r *FingerprintRepository) Find(ctx context.Context, contentHash string) (*models.ContentFingerprint, error) {
	var row fingerprintRow
	query := `
		SELECT id, content_hash, url, title, content_type, extracted_data, created_at
		FROM content_fingerprints
		WHERE content_hash = $1`

	err := r.db.GetContext(ctx, &row, query, contentHash)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find fingerprint: %w", err)
	}

	return row.toModel()
}

// Upsert stores a fingerprint, deduplicating on content hash. Concurrent
// first-time analyses of the same content race on the insert; the unique
// constraint plus ON CONFLICT DO NOTHING guarantees exactly one row, and
// every caller gets the persisted one back.
func (r *FingerprintRepository) Upsert(ctx context.Context, fp *models.ContentFingerprint) (*models.ContentFingerprint, error) {
	if fp.ID == uuid.Nil {
		fp.ID = uuid.New()
	}
	if fp.CreatedAt.IsZero() {
		fp.CreatedAt = time.Now().UTC()
	}

	extractedJSON, err := json.Marshal(fp.ExtractedData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal extracted data: %w", err)
	}

	query := `
		INSERT INTO content_fingerprints (
			id, content_hash, url, title, content_type, extracted_data, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (content_hash) DO NOTHING`

	_, err = r.db.ExecContext(ctx, query,
		fp.ID, fp.ContentHash, fp.URL, fp.Title,
		string(fp.ContentType), extractedJSON, fp.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert fingerprint: %w", err)
	}

	// Read back so a loser of the insert race still returns the row that won
	return r.Find(ctx, fp.ContentHash)
}
