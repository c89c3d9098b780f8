package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/mirzemehdi/ArchGee-All/internal/domain"
)

// AttemptRepository appends enrichment attempt audit rows. Rows are written
// only by the orchestrator and never updated.
type AttemptRepository struct {
	db *sql.DB
}

// NewAttemptRepository creates a repository over db.
func NewAttemptRepository(db *sql.DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

// Record appends one attempt row.
func (r *AttemptRepository) Record(ctx context.Context, attempt *domain.EnrichmentAttempt) error {
	query := `
		INSERT INTO enrichment_attempts (job_id, stage, attempt, provider, raw_response, last_error)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	scanErr := r.db.QueryRowContext(ctx, query,
		attempt.JobID,
		string(attempt.Stage),
		attempt.Attempt,
		attempt.Provider,
		attempt.RawResponse,
		attempt.LastError,
	).Scan(&attempt.ID, &attempt.CreatedAt)
	if scanErr != nil {
		return fmt.Errorf("record attempt: %w", scanErr)
	}

	return nil
}

// ListByJob returns a job's attempt history in insertion order.
func (r *AttemptRepository) ListByJob(ctx context.Context, jobID uuid.UUID) ([]domain.EnrichmentAttempt, error) {
	query := `
		SELECT id, job_id, stage, attempt, provider, raw_response, last_error, created_at
		FROM enrichment_attempts
		WHERE job_id = $1
		ORDER BY id ASC
	`

	rows, queryErr := r.db.QueryContext(ctx, query, jobID)
	if queryErr != nil {
		return nil, fmt.Errorf("list attempts: %w", queryErr)
	}
	defer rows.Close()

	var attempts []domain.EnrichmentAttempt
	for rows.Next() {
		var (
			attempt   domain.EnrichmentAttempt
			stage     string
			raw       sql.NullString
			lastError sql.NullString
		)

		scanErr := rows.Scan(
			&attempt.ID, &attempt.JobID, &stage, &attempt.Attempt,
			&attempt.Provider, &raw, &lastError, &attempt.CreatedAt,
		)
		if scanErr != nil {
			return nil, fmt.Errorf("scan attempt: %w", scanErr)
		}

		attempt.Stage = domain.Stage(stage)
		if raw.Valid {
			attempt.RawResponse = raw.String
		}
		if lastError.Valid {
			attempt.LastError = lastError.String
		}

		attempts = append(attempts, attempt)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("attempt rows: %w", rowsErr)
	}

	return attempts, nil
}
