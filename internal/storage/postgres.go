/**
 * PostgreSQL client for the OCR worker
 *
 * Persists job status, per-page recognition results, and extracted document
 * structure. The worker owns its schema under "ocr".
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/docuflow/ocr-worker/internal/ocr"
	"github.com/docuflow/ocr-worker/internal/structure"
)

// PostgresClient handles database operations
type PostgresClient struct {
	db *sql.DB
}

// JobUpdate represents a job status update
type JobUpdate struct {
	JobID    string
	Status   string
	Metadata map[string]interface{}
}

// sanitizeConfidence clamps confidence to [0,100] and rounds to 2 decimals
// so float artifacts like 96.32000000000001 never reach NUMERIC columns.
func sanitizeConfidence(confidence float64) float64 {
	if confidence < 0 {
		return 0
	}
	if confidence > 100 {
		return 100
	}
	return float64(int(confidence*100+0.5)) / 100
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// UpdateJobStatus upserts job status so the worker can create the job
// record even when the API tier has not yet.
func (p *PostgresClient) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if update.JobID == "" {
		return fmt.Errorf("job ID is required")
	}
	if update.Status == "" {
		return fmt.Errorf("status is required")
	}

	metadataJSON, err := json.Marshal(update.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO ocr.processing_jobs (
			id, status, metadata, created_at, updated_at
		) VALUES (
			$1::uuid, $2, COALESCE($3::jsonb, '{}'::jsonb), NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			metadata = COALESCE(EXCLUDED.metadata, ocr.processing_jobs.metadata),
			updated_at = NOW()
		RETURNING id
	`

	var returnedID string
	err = p.db.QueryRowContext(ctx, query, update.JobID, update.Status, metadataJSON).Scan(&returnedID)
	if err != nil {
		return fmt.Errorf("failed to update job status (job=%s, status=%s): %w",
			update.JobID, update.Status, err)
	}

	return nil
}

// SaveResult stores one page's recognition result and returns the row ID.
func (p *PostgresClient) SaveResult(ctx context.Context, jobID string, pageNumber int, result *ocr.OCRResult) (string, error) {
	if jobID == "" {
		return "", fmt.Errorf("job ID is required")
	}
	if result == nil {
		return "", fmt.Errorf("result is required")
	}

	blocksJSON, err := json.Marshal(result.Blocks)
	if err != nil {
		return "", fmt.Errorf("failed to marshal blocks: %w", err)
	}
	pagesJSON, err := json.Marshal(result.Pages)
	if err != nil {
		return "", fmt.Errorf("failed to marshal pages: %w", err)
	}

	query := `
		INSERT INTO ocr.page_results (
			id, job_id, page_number, text, confidence,
			blocks, pages, processing_time_ms, created_at
		) VALUES ($1::uuid, $2::uuid, $3, $4, $5::NUMERIC(5,2), $6::jsonb, $7::jsonb, $8, NOW())
		RETURNING id
	`

	var resultID string
	err = p.db.QueryRowContext(
		ctx,
		query,
		uuid.NewString(),
		jobID,
		pageNumber,
		result.Text,
		sanitizeConfidence(result.Confidence),
		blocksJSON,
		pagesJSON,
		result.ProcessingTimeMs,
	).Scan(&resultID)

	if err != nil {
		return "", fmt.Errorf("failed to store page result (job=%s, page=%d): %w", jobID, pageNumber, err)
	}

	return resultID, nil
}

// SaveDocument stores the extracted document structure for a job.
func (p *PostgresClient) SaveDocument(ctx context.Context, jobID string, doc *structure.StructuredDocument) (string, error) {
	if jobID == "" {
		return "", fmt.Errorf("job ID is required")
	}
	if doc == nil {
		return "", fmt.Errorf("document is required")
	}

	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	tocJSON, err := json.Marshal(doc.TOC)
	if err != nil {
		return "", fmt.Errorf("failed to marshal TOC: %w", err)
	}
	sectionsJSON, err := json.Marshal(doc.Sections)
	if err != nil {
		return "", fmt.Errorf("failed to marshal sections: %w", err)
	}

	query := `
		INSERT INTO ocr.documents (
			id, job_id, title, metadata, toc, sections, created_at
		) VALUES ($1::uuid, $2::uuid, NULLIF($3, ''), $4::jsonb, $5::jsonb, $6::jsonb, NOW())
		RETURNING id
	`

	var docID string
	err = p.db.QueryRowContext(
		ctx,
		query,
		uuid.NewString(),
		jobID,
		doc.Title,
		metadataJSON,
		tocJSON,
		sectionsJSON,
	).Scan(&docID)

	if err != nil {
		return "", fmt.Errorf("failed to store document (job=%s): %w", jobID, err)
	}

	return docID, nil
}

// GetJobByID retrieves a job by ID.
func (p *PostgresClient) GetJobByID(ctx context.Context, jobID string) (map[string]interface{}, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}

	query := `
		SELECT id, status, metadata, created_at, updated_at
		FROM ocr.processing_jobs
		WHERE id = $1::uuid
	`

	var (
		id                   string
		status               sql.NullString
		metadataJSON         []byte
		createdAt, updatedAt time.Time
	)

	err := p.db.QueryRowContext(ctx, query, jobID).Scan(&id, &status, &metadataJSON, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	var metadata map[string]interface{}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return map[string]interface{}{
		"id":        id,
		"status":    status.String,
		"metadata":  metadata,
		"createdAt": createdAt,
		"updatedAt": updatedAt,
	}, nil
}

// Ping checks database connectivity
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics
func (p *PostgresClient) GetStats() sql.DBStats {
	return p.db.Stats()
}
