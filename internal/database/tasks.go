package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mirzemehdi/ArchGee-All/internal/domain"
)

// taskSelectList is the column list for SELECT/RETURNING on enrichment_tasks.
const taskSelectList = `id, job_id, stage, status, attempts, next_run_at, last_error, created_at, updated_at`

// TaskRepository manages the DB-backed enrichment queue.
type TaskRepository struct {
	db *sql.DB
}

// NewTaskRepository creates a repository over db.
func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Enqueue schedules a job for enrichment from the first stage. Re-enqueueing
// a job that already has a task row (a content refresh) resets the row.
func (r *TaskRepository) Enqueue(ctx context.Context, jobID uuid.UUID) error {
	query := `
		INSERT INTO enrichment_tasks (job_id, stage, status, attempts, next_run_at)
		VALUES ($1, $2, 'pending', 0, NOW())
		ON CONFLICT (job_id) DO UPDATE
		SET stage = EXCLUDED.stage, status = 'pending', attempts = 0,
		    next_run_at = NOW(), last_error = NULL, updated_at = NOW()
	`

	if _, execErr := r.db.ExecContext(ctx, query, jobID, string(domain.FirstStage)); execErr != nil {
		return fmt.Errorf("enqueue task: %w", execErr)
	}

	return nil
}

// Claim atomically takes up to limit due tasks for processing. FOR UPDATE
// SKIP LOCKED keeps concurrent workers from claiming the same row.
func (r *TaskRepository) Claim(ctx context.Context, limit int) ([]domain.EnrichmentTask, error) {
	query := `
		UPDATE enrichment_tasks
		SET status = 'running', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM enrichment_tasks
			WHERE status = 'pending' AND next_run_at <= NOW()
			ORDER BY next_run_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + taskSelectList + `
	`

	rows, queryErr := r.db.QueryContext(ctx, query, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("claim tasks: %w", queryErr)
	}
	defer rows.Close()

	return scanTasks(rows)
}

// Advance moves a claimed task to the next stage with a fresh attempt budget.
func (r *TaskRepository) Advance(ctx context.Context, id int64, next domain.Stage) error {
	query := `
		UPDATE enrichment_tasks
		SET stage = $2, status = 'pending', attempts = 0, next_run_at = NOW(),
		    last_error = NULL, updated_at = NOW()
		WHERE id = $1
	`

	if _, execErr := r.db.ExecContext(ctx, query, id, string(next)); execErr != nil {
		return fmt.Errorf("advance task: %w", execErr)
	}

	return nil
}

// ScheduleRetry re-offers a claimed task after a transient stage failure.
func (r *TaskRepository) ScheduleRetry(ctx context.Context, id int64, attempts int, nextRunAt time.Time, lastError string) error {
	query := `
		UPDATE enrichment_tasks
		SET status = 'pending', attempts = $2, next_run_at = $3, last_error = $4, updated_at = NOW()
		WHERE id = $1
	`

	if _, execErr := r.db.ExecContext(ctx, query, id, attempts, nextRunAt, lastError); execErr != nil {
		return fmt.Errorf("schedule retry: %w", execErr)
	}

	return nil
}

// Complete finishes a task whose chain reached a terminal outcome.
func (r *TaskRepository) Complete(ctx context.Context, id int64) error {
	query := `
		UPDATE enrichment_tasks
		SET status = 'done', last_error = NULL, updated_at = NOW()
		WHERE id = $1
	`

	if _, execErr := r.db.ExecContext(ctx, query, id); execErr != nil {
		return fmt.Errorf("complete task: %w", execErr)
	}

	return nil
}

// Fail marks a task whose stage exhausted its retries.
func (r *TaskRepository) Fail(ctx context.Context, id int64, lastError string) error {
	query := `
		UPDATE enrichment_tasks
		SET status = 'failed', last_error = $2, updated_at = NOW()
		WHERE id = $1
	`

	if _, execErr := r.db.ExecContext(ctx, query, id, lastError); execErr != nil {
		return fmt.Errorf("fail task: %w", execErr)
	}

	return nil
}

// RecoverStale re-offers tasks stuck running longer than age, covering worker
// crashes between claim and completion. The job-side compare-and-set guard
// makes re-running a completed stage harmless.
func (r *TaskRepository) RecoverStale(ctx context.Context, age time.Duration) (int64, error) {
	query := `
		UPDATE enrichment_tasks
		SET status = 'pending', updated_at = NOW()
		WHERE status = 'running' AND updated_at < NOW() - $1::interval
	`

	result, execErr := r.db.ExecContext(ctx, query, interval(age))
	if execErr != nil {
		return 0, fmt.Errorf("recover stale tasks: %w", execErr)
	}

	recovered, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		return 0, fmt.Errorf("recover stale rows: %w", rowsErr)
	}

	return recovered, nil
}

// interval renders a duration as a PostgreSQL interval literal.
func interval(d time.Duration) string {
	return fmt.Sprintf("%d seconds", int64(d.Seconds()))
}

func scanTasks(rows *sql.Rows) ([]domain.EnrichmentTask, error) {
	var tasks []domain.EnrichmentTask

	for rows.Next() {
		var (
			task      domain.EnrichmentTask
			stage     string
			status    string
			lastError sql.NullString
		)

		scanErr := rows.Scan(
			&task.ID, &task.JobID, &stage, &status, &task.Attempts,
			&task.NextRunAt, &lastError, &task.CreatedAt, &task.UpdatedAt,
		)
		if scanErr != nil {
			return nil, fmt.Errorf("scan task: %w", scanErr)
		}

		task.Stage = domain.Stage(stage)
		task.Status = domain.TaskStatus(status)
		if lastError.Valid {
			task.LastError = lastError.String
		}

		tasks = append(tasks, task)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("task rows: %w", rowsErr)
	}

	return tasks, nil
}
