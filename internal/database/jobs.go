package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mirzemehdi/ArchGee-All/internal/domain"
)

// jobSelectList is the column list for SELECT on jobs (single source for
// schema changes).
const jobSelectList = `id, source, source_record_id, original_url, apply_url, apply_email,
			title, description, company_name, company_website, location_text, country, city,
			employment_type, salary_text, slug, fingerprint,
			category, relevance_score, category_confidence,
			salary_min, salary_max, salary_currency, salary_period,
			remote_type, seniority_level,
			status, enrich_stage, review_flagged,
			created_at, posted_at, enriched_at, expires_at`

// JobRepository handles database operations on job records.
type JobRepository struct {
	db *sql.DB
}

// NewJobRepository creates a repository over db.
func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Ping checks database connectivity.
func (r *JobRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// InsertNew inserts a normalized record in pending state. The storage-level
// unique constraints on (source, source_record_id) and (source, fingerprint)
// are the dedup correctness backstop under concurrent ingestion: when either
// fires, no row is written and inserted is false.
func (r *JobRepository) InsertNew(ctx context.Context, job *domain.JobRecord) (bool, error) {
	query := `
		INSERT INTO jobs
			(id, source, source_record_id, original_url, apply_url, apply_email,
			 title, description, company_name, company_website, location_text, country, city,
			 employment_type, salary_text, slug, fingerprint, status, enrich_stage, posted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT DO NOTHING
		RETURNING id, created_at
	`

	scanErr := r.db.QueryRowContext(ctx, query,
		job.ID,
		job.Source,
		job.SourceRecordID,
		job.OriginalURL,
		job.ApplyURL,
		job.ApplyEmail,
		job.Title,
		job.Description,
		job.CompanyName,
		job.CompanyWebsite,
		job.LocationText,
		job.Country,
		job.City,
		job.EmploymentType,
		job.SalaryText,
		job.Slug,
		job.Fingerprint,
		string(domain.StatusPending),
		string(job.EnrichStage),
		job.PostedAt,
	).Scan(&job.ID, &job.CreatedAt)

	if errors.Is(scanErr, sql.ErrNoRows) {
		// A uniqueness constraint fired; the caller resolves the existing row.
		return false, nil
	}
	if scanErr != nil {
		return false, fmt.Errorf("insert job: %w", scanErr)
	}

	job.Status = domain.StatusPending
	return true, nil
}

// FindBySourceRecordID returns the live job matching (source, sourceRecordID).
func (r *JobRepository) FindBySourceRecordID(ctx context.Context, source, sourceRecordID string) (*domain.JobRecord, error) {
	query := `
		SELECT ` + jobSelectList + `
		FROM jobs
		WHERE source = $1 AND source_record_id = $2 AND deleted_at IS NULL
	`

	return r.queryOne(ctx, query, source, sourceRecordID)
}

// FindByFingerprint returns the live job matching (source, fingerprint).
func (r *JobRepository) FindByFingerprint(ctx context.Context, source, fingerprint string) (*domain.JobRecord, error) {
	query := `
		SELECT ` + jobSelectList + `
		FROM jobs
		WHERE source = $1 AND fingerprint = $2 AND deleted_at IS NULL
	`

	return r.queryOne(ctx, query, source, fingerprint)
}

// GetByID returns a live job by identifier. Soft-deleted rows report
// domain.ErrNotFound so in-flight enrichment tasks no-op.
func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.JobRecord, error) {
	query := `
		SELECT ` + jobSelectList + `
		FROM jobs
		WHERE id = $1 AND deleted_at IS NULL
	`

	return r.queryOne(ctx, query, id)
}

// RefreshContent overwrites the content fields of an existing record with a
// re-ingested version, clears every enrichment field and returns the job to
// the start of the chain.
func (r *JobRepository) RefreshContent(ctx context.Context, id uuid.UUID, job *domain.JobRecord) error {
	query := `
		UPDATE jobs
		SET title = $2, description = $3, company_name = $4, company_website = $5,
		    location_text = $6, country = $7, city = $8,
		    employment_type = $9, salary_text = $10, slug = $11, fingerprint = $12,
		    original_url = $13, apply_url = $14, apply_email = $15, posted_at = $16,
		    category = NULL, relevance_score = NULL, category_confidence = NULL,
		    salary_min = NULL, salary_max = NULL, salary_currency = NULL, salary_period = NULL,
		    remote_type = NULL, seniority_level = NULL,
		    status = 'pending', enrich_stage = '', review_flagged = FALSE,
		    enriched_at = NULL, expires_at = NULL
		WHERE id = $1 AND deleted_at IS NULL
	`

	return r.execExpectOneRow(ctx, domain.ErrNotFound, query,
		id,
		job.Title,
		job.Description,
		job.CompanyName,
		job.CompanyWebsite,
		job.LocationText,
		job.Country,
		job.City,
		job.EmploymentType,
		job.SalaryText,
		job.Slug,
		job.Fingerprint,
		job.OriginalURL,
		job.ApplyURL,
		job.ApplyEmail,
		job.PostedAt,
	)
}

// ApplyRelevance records the relevance stage result. The WHERE clause is the
// compare-and-set guard: only an untouched pending job accepts the write.
func (r *JobRepository) ApplyRelevance(ctx context.Context, id uuid.UUID, res *domain.RelevanceResult, flagged bool) error {
	query := `
		UPDATE jobs
		SET category = $2, relevance_score = $3, category_confidence = $4,
		    review_flagged = $5, enrich_stage = 'relevance'
		WHERE id = $1 AND status = 'pending' AND enrich_stage = '' AND deleted_at IS NULL
	`

	return r.execExpectOneRow(ctx, domain.ErrStaleWrite, query,
		id, res.Category, res.Confidence, res.Confidence, flagged)
}

// RejectByRelevance terminates a job the relevance stage classified as not
// relevant. Later stages never run.
func (r *JobRepository) RejectByRelevance(ctx context.Context, id uuid.UUID, res *domain.RelevanceResult) error {
	query := `
		UPDATE jobs
		SET status = 'rejected', relevance_score = $2, enrich_stage = 'relevance'
		WHERE id = $1 AND status = 'pending' AND enrich_stage = '' AND deleted_at IS NULL
	`

	return r.execExpectOneRow(ctx, domain.ErrStaleWrite, query, id, res.Confidence)
}

// ApplySalary records the salary stage result, already annualized by the
// orchestrator. An empty result still advances the stage marker.
func (r *JobRepository) ApplySalary(ctx context.Context, id uuid.UUID, res *domain.SalaryResult) error {
	query := `
		UPDATE jobs
		SET salary_min = $2, salary_max = $3, salary_currency = $4, salary_period = $5,
		    enrich_stage = 'salary'
		WHERE id = $1 AND status = 'pending' AND enrich_stage = 'relevance' AND deleted_at IS NULL
	`

	return r.execExpectOneRow(ctx, domain.ErrStaleWrite, query,
		id, res.Min, res.Max, res.Currency, res.Period)
}

// ApplyWorkType records the work type stage result.
func (r *JobRepository) ApplyWorkType(ctx context.Context, id uuid.UUID, res *domain.WorkTypeResult) error {
	query := `
		UPDATE jobs
		SET remote_type = $2, enrich_stage = 'worktype'
		WHERE id = $1 AND status = 'pending' AND enrich_stage = 'salary' AND deleted_at IS NULL
	`

	return r.execExpectOneRow(ctx, domain.ErrStaleWrite, query, id, res.RemoteType)
}

// ApplySeniority records the final stage result and stamps the job fully
// enriched with its publication expiry window. A low-confidence flag from an
// earlier stage escalates to needs_review; otherwise the job stays pending
// for the moderation collaborator, which alone grants approved.
func (r *JobRepository) ApplySeniority(ctx context.Context, id uuid.UUID, res *domain.SeniorityResult, enrichedAt, expiresAt time.Time) error {
	query := `
		UPDATE jobs
		SET seniority_level = $2, enrich_stage = 'seniority', enriched_at = $3, expires_at = $4,
		    status = CASE WHEN review_flagged THEN 'needs_review' ELSE status END
		WHERE id = $1 AND status = 'pending' AND enrich_stage = 'worktype' AND deleted_at IS NULL
	`

	return r.execExpectOneRow(ctx, domain.ErrStaleWrite, query, id, res.Level, enrichedAt, expiresAt)
}

// MarkNeedsReview escalates a pending job to manual review after retries were
// exhausted. The stage marker is left where the chain halted.
func (r *JobRepository) MarkNeedsReview(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE jobs
		SET status = 'needs_review'
		WHERE id = $1 AND status = 'pending' AND deleted_at IS NULL
	`

	return r.execExpectOneRow(ctx, domain.ErrStaleWrite, query, id)
}

// SweepExpired transitions approved jobs past their expiry to expired and
// returns how many rows changed. Running it twice in the same window changes
// nothing the second time.
func (r *JobRepository) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE jobs
		SET status = 'expired'
		WHERE status = 'approved' AND expires_at IS NOT NULL AND expires_at <= $1 AND deleted_at IS NULL
	`

	result, execErr := r.db.ExecContext(ctx, query, now)
	if execErr != nil {
		return 0, fmt.Errorf("sweep expired: %w", execErr)
	}

	swept, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		return 0, fmt.Errorf("sweep expired rows: %w", rowsErr)
	}

	return swept, nil
}

// SoftDelete tombstones a job. Click and view aggregates keyed by the job
// identifier survive deletion.
func (r *JobRepository) SoftDelete(ctx context.Context, id uuid.UUID, now time.Time) error {
	query := `
		UPDATE jobs
		SET deleted_at = $2
		WHERE id = $1 AND deleted_at IS NULL
	`

	return r.execExpectOneRow(ctx, domain.ErrNotFound, query, id, now)
}

// execExpectOneRow runs an update and returns sentinel when no row matched.
func (r *JobRepository) execExpectOneRow(ctx context.Context, sentinel error, query string, args ...any) error {
	result, execErr := r.db.ExecContext(ctx, query, args...)
	if execErr != nil {
		return execErr
	}

	rows, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		return fmt.Errorf("get affected rows: %w", rowsErr)
	}

	if rows == 0 {
		return sentinel
	}

	return nil
}

func (r *JobRepository) queryOne(ctx context.Context, query string, args ...any) (*domain.JobRecord, error) {
	row := r.db.QueryRowContext(ctx, query, args...)

	job, scanErr := scanJob(row)
	if errors.Is(scanErr, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if scanErr != nil {
		return nil, fmt.Errorf("scan job: %w", scanErr)
	}

	return job, nil
}

// scanJob maps one row in jobSelectList order onto a JobRecord.
func scanJob(row *sql.Row) (*domain.JobRecord, error) {
	var (
		job            domain.JobRecord
		sourceRecordID sql.NullString
		category       sql.NullString
		relevance      sql.NullFloat64
		confidence     sql.NullFloat64
		salaryMin      sql.NullInt64
		salaryMax      sql.NullInt64
		salaryCurrency sql.NullString
		salaryPeriod   sql.NullString
		remoteType     sql.NullString
		seniority      sql.NullString
		status         string
		enrichStage    string
		postedAt       sql.NullTime
		enrichedAt     sql.NullTime
		expiresAt      sql.NullTime
	)

	scanErr := row.Scan(
		&job.ID, &job.Source, &sourceRecordID, &job.OriginalURL, &job.ApplyURL, &job.ApplyEmail,
		&job.Title, &job.Description, &job.CompanyName, &job.CompanyWebsite, &job.LocationText,
		&job.Country, &job.City,
		&job.EmploymentType, &job.SalaryText, &job.Slug, &job.Fingerprint,
		&category, &relevance, &confidence,
		&salaryMin, &salaryMax, &salaryCurrency, &salaryPeriod,
		&remoteType, &seniority,
		&status, &enrichStage, &job.ReviewFlagged,
		&job.CreatedAt, &postedAt, &enrichedAt, &expiresAt,
	)
	if scanErr != nil {
		return nil, scanErr
	}

	job.Status = domain.Status(status)
	job.EnrichStage = domain.Stage(enrichStage)

	if sourceRecordID.Valid {
		job.SourceRecordID = &sourceRecordID.String
	}
	if category.Valid {
		job.Category = &category.String
	}
	if relevance.Valid {
		job.RelevanceScore = &relevance.Float64
	}
	if confidence.Valid {
		job.CategoryConfidence = &confidence.Float64
	}
	if salaryMin.Valid {
		job.SalaryMin = &salaryMin.Int64
	}
	if salaryMax.Valid {
		job.SalaryMax = &salaryMax.Int64
	}
	if salaryCurrency.Valid {
		job.SalaryCurrency = &salaryCurrency.String
	}
	if salaryPeriod.Valid {
		job.SalaryPeriod = &salaryPeriod.String
	}
	if remoteType.Valid {
		job.RemoteType = &remoteType.String
	}
	if seniority.Valid {
		job.SeniorityLevel = &seniority.String
	}
	if postedAt.Valid {
		job.PostedAt = &postedAt.Time
	}
	if enrichedAt.Valid {
		job.EnrichedAt = &enrichedAt.Time
	}
	if expiresAt.Valid {
		job.ExpiresAt = &expiresAt.Time
	}

	return &job, nil
}
