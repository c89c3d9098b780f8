package enrich

import (
	"context"

	"github.com/google/uuid"

	"github.com/mirzemehdi/ArchGee-All/internal/logger"
)

// Enqueuer starts the enrichment chain for a freshly ingested or refreshed
// job. Ingestion depends on this seam only, not on the execution mode.
type Enqueuer interface {
	EnqueueJob(ctx context.Context, jobID uuid.UUID) error
}

// TaskQueue is the queue surface the async enqueuer needs.
type TaskQueue interface {
	Enqueue(ctx context.Context, jobID uuid.UUID) error
}

// TaskEnqueuer is the async mode: it writes a queue row for the first stage
// and lets the polling worker pick it up.
type TaskEnqueuer struct {
	tasks TaskQueue
}

// NewTaskEnqueuer returns the async-mode enqueuer backed by the task queue.
func NewTaskEnqueuer(tasks TaskQueue) *TaskEnqueuer {
	return &TaskEnqueuer{tasks: tasks}
}

// EnqueueJob schedules the chain; it returns once the task row is durable.
func (e *TaskEnqueuer) EnqueueJob(ctx context.Context, jobID uuid.UUID) error {
	return e.tasks.Enqueue(ctx, jobID)
}

// InlineEnqueuer is the single-process mode: it runs the whole chain in a
// background goroutine, detached from the request context so an early client
// disconnect cannot abort enrichment mid-stage.
type InlineEnqueuer struct {
	orch *Orchestrator
	log  logger.Logger
}

// NewInlineEnqueuer returns the inline-mode enqueuer.
func NewInlineEnqueuer(orch *Orchestrator, log logger.Logger) *InlineEnqueuer {
	return &InlineEnqueuer{orch: orch, log: log}
}

// EnqueueJob starts the chain immediately. Failures surface in logs and in
// the job row, never to the ingest caller.
func (e *InlineEnqueuer) EnqueueJob(_ context.Context, jobID uuid.UUID) error {
	go func() {
		if err := e.orch.RunChain(context.Background(), jobID); err != nil {
			e.log.Error("inline enrichment failed",
				logger.String("job_id", jobID.String()),
				logger.Error(err))
		}
	}()

	return nil
}
