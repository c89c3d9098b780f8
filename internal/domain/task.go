package domain

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the queue status of an enrichment task.
type TaskStatus string

const (
	// TaskPending marks a task ready to be claimed once next_run_at passes.
	TaskPending TaskStatus = "pending"
	// TaskRunning marks a task claimed by a worker.
	TaskRunning TaskStatus = "running"
	// TaskDone marks a chain that finished (enriched, rejected or no-oped).
	TaskDone TaskStatus = "done"
	// TaskFailed marks a chain halted after exhausting retries.
	TaskFailed TaskStatus = "failed"
)

// EnrichmentTask is one job's position in the enrichment queue. The persisted
// row, not queue ordering, is the source of truth: a worker crash leaves the
// row behind and recovery re-offers it.
type EnrichmentTask struct {
	ID        int64      `json:"id"`
	JobID     uuid.UUID  `json:"job_id"`
	Stage     Stage      `json:"stage"`
	Status    TaskStatus `json:"status"`
	Attempts  int        `json:"attempts"`
	NextRunAt time.Time  `json:"next_run_at"`
	LastError string     `json:"last_error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
