package enrich

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mirzemehdi/ArchGee-All/internal/domain"
	"github.com/mirzemehdi/ArchGee-All/internal/logger"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultBatchSize    = 20
	defaultWorkers      = 4
	defaultStaleAge     = 10 * time.Minute

	// recoveryInterval is how often stale running tasks are returned to
	// pending after a crashed worker left them claimed.
	recoveryInterval = time.Minute
)

// TaskStore is the queue persistence surface the worker depends on.
type TaskStore interface {
	Claim(ctx context.Context, limit int) ([]domain.EnrichmentTask, error)
	Advance(ctx context.Context, id int64, next domain.Stage) error
	ScheduleRetry(ctx context.Context, id int64, attempts int, nextRunAt time.Time, lastError string) error
	Complete(ctx context.Context, id int64) error
	Fail(ctx context.Context, id int64, lastError string) error
	RecoverStale(ctx context.Context, age time.Duration) (int64, error)
}

// Stepper runs one stage of the chain; satisfied by Orchestrator.
type Stepper interface {
	Step(ctx context.Context, jobID uuid.UUID, stage domain.Stage, attempt int) (Outcome, error)
}

// WorkerConfig holds the polling pool settings.
type WorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	Workers      int
	StaleAge     time.Duration
}

// Worker polls the task queue and drives claimed tasks through the
// orchestrator with a bounded pool of goroutines. Task rows only schedule
// work; correctness lives in the job rows' compare-and-set guards, so a task
// processed twice after a crash is harmless.
type Worker struct {
	tasks TaskStore
	orch  Stepper
	log   logger.Logger

	pollInterval time.Duration
	batchSize    int
	workers      int
	staleAge     time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
	mu       sync.Mutex
}

// NewWorker creates a queue worker. Zero config fields fall back to defaults.
func NewWorker(tasks TaskStore, orch Stepper, cfg WorkerConfig, log logger.Logger) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.StaleAge <= 0 {
		cfg.StaleAge = defaultStaleAge
	}

	return &Worker{
		tasks:        tasks,
		orch:         orch,
		log:          log,
		pollInterval: cfg.PollInterval,
		batchSize:    cfg.BatchSize,
		workers:      cfg.Workers,
		staleAge:     cfg.StaleAge,
		stopChan:     make(chan struct{}),
	}
}

// Start begins the polling and recovery loops.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)

	w.wg.Add(1)
	go w.runRecovery(ctx)

	w.log.Info("enrichment worker started",
		logger.Duration("poll_interval", w.pollInterval),
		logger.Int("batch_size", w.batchSize),
		logger.Int("workers", w.workers))
}

// Stop drains in-flight tasks and stops the loops.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	close(w.stopChan)
	w.wg.Wait()
	w.log.Info("enrichment worker stopped")
}

// IsRunning reports whether Start has been called.
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	// Drain any backlog immediately on start.
	w.processOnce(ctx)

	for {
		select {
		case <-ticker.C:
			w.processOnce(ctx)
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// processOnce claims one batch and fans it out over the pool. It returns
// only when the whole batch has been handled, keeping at most one claimed
// batch in flight per worker process.
func (w *Worker) processOnce(ctx context.Context) {
	claimed, err := w.tasks.Claim(ctx, w.batchSize)
	if err != nil {
		w.log.Error("failed to claim enrichment tasks", logger.Error(err))
		return
	}
	if len(claimed) == 0 {
		return
	}

	w.log.Debug("processing enrichment tasks", logger.Int("count", len(claimed)))

	taskCh := make(chan domain.EnrichmentTask)

	var batch sync.WaitGroup
	for i := 0; i < w.workers; i++ {
		batch.Add(1)
		go func() {
			defer batch.Done()
			for task := range taskCh {
				w.processTask(ctx, &task)
			}
		}()
	}

	for i := range claimed {
		taskCh <- claimed[i]
	}
	close(taskCh)
	batch.Wait()
}

// processTask runs one stage step and maps the outcome back onto the task
// row. Storage errors from the step reschedule the task without consuming a
// classification attempt: the stage never ran.
func (w *Worker) processTask(ctx context.Context, task *domain.EnrichmentTask) {
	outcome, err := w.orch.Step(ctx, task.JobID, task.Stage, task.Attempts)
	if err != nil {
		w.log.Error("stage step failed",
			logger.Int64("task_id", task.ID),
			logger.String("job_id", task.JobID.String()),
			logger.String("stage", string(task.Stage)),
			logger.Error(err))

		w.finish(task, w.tasks.ScheduleRetry(ctx, task.ID, task.Attempts, time.Now().Add(w.pollInterval), err.Error()))
		return
	}

	switch outcome.Kind {
	case OutcomeAdvanced:
		w.finish(task, w.tasks.Advance(ctx, task.ID, outcome.NextStage))
	case OutcomeCompleted:
		w.finish(task, w.tasks.Complete(ctx, task.ID))
	case OutcomeRetry:
		nextRun := time.Now().Add(outcome.RetryDelay)
		w.finish(task, w.tasks.ScheduleRetry(ctx, task.ID, task.Attempts+1, nextRun, outcome.Reason))
	case OutcomeHalted:
		if outcome.Exhausted {
			w.finish(task, w.tasks.Fail(ctx, task.ID, outcome.Reason))
		} else {
			w.finish(task, w.tasks.Complete(ctx, task.ID))
		}
	}
}

// finish logs a task bookkeeping failure. The row stays running and the
// recovery loop will return it to pending; the job-side guards make the
// eventual re-run safe.
func (w *Worker) finish(task *domain.EnrichmentTask, err error) {
	if err == nil {
		return
	}

	w.log.Error("failed to update enrichment task",
		logger.Int64("task_id", task.ID),
		logger.String("job_id", task.JobID.String()),
		logger.Error(err))
}

func (w *Worker) runRecovery(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(recoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			recovered, err := w.tasks.RecoverStale(ctx, w.staleAge)
			if err != nil {
				w.log.Error("task recovery failed", logger.Error(err))
			} else if recovered > 0 {
				w.log.Warn("recovered stale enrichment tasks",
					logger.Int64("recovered", recovered))
			}
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}
