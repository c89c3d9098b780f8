// Package enrich runs the staged classification chain that turns an ingested
// job into a moderated, publishable record. Job rows are the source of truth:
// every stage write is guarded by a compare-and-set on the stage marker, so a
// re-delivered task can never apply a stage twice or out of order.
package enrich

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mirzemehdi/ArchGee-All/internal/classify"
	"github.com/mirzemehdi/ArchGee-All/internal/domain"
	"github.com/mirzemehdi/ArchGee-All/internal/events"
	"github.com/mirzemehdi/ArchGee-All/internal/logger"
	"github.com/mirzemehdi/ArchGee-All/internal/metrics"
)

// JobStore is the job persistence surface the orchestrator depends on.
type JobStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.JobRecord, error)
	ApplyRelevance(ctx context.Context, id uuid.UUID, res *domain.RelevanceResult, flagged bool) error
	RejectByRelevance(ctx context.Context, id uuid.UUID, res *domain.RelevanceResult) error
	ApplySalary(ctx context.Context, id uuid.UUID, res *domain.SalaryResult) error
	ApplyWorkType(ctx context.Context, id uuid.UUID, res *domain.WorkTypeResult) error
	ApplySeniority(ctx context.Context, id uuid.UUID, res *domain.SeniorityResult, enrichedAt, expiresAt time.Time) error
	MarkNeedsReview(ctx context.Context, id uuid.UUID) error
}

// AttemptStore records the audit trail of provider calls.
type AttemptStore interface {
	Record(ctx context.Context, attempt *domain.EnrichmentAttempt) error
}

// Classifier produces one stage's typed result for a job snapshot.
type Classifier interface {
	Classify(ctx context.Context, stage domain.Stage, in classify.Snapshot) (*domain.StageResult, error)
}

// Notifier hands lifecycle transitions to the moderation stream.
type Notifier interface {
	PublishAsync(event events.JobEvent)
}

// Config carries the tunables of the stage chain.
type Config struct {
	MaxAttempts     int
	BackoffBase     time.Duration
	BackoffCap      time.Duration
	ReviewThreshold float64
	JobTTL          time.Duration
}

// OutcomeKind classifies what a single stage step did.
type OutcomeKind int

const (
	// OutcomeAdvanced means the stage was applied and a later stage remains.
	OutcomeAdvanced OutcomeKind = iota
	// OutcomeCompleted means the final stage was applied and the chain is done.
	OutcomeCompleted
	// OutcomeHalted means the chain stops without further work: the job was
	// rejected, escalated to review, already handled, or gone.
	OutcomeHalted
	// OutcomeRetry means a transient failure; the same stage should run again
	// after the delay.
	OutcomeRetry
)

// Outcome is the result of one stage step. The worker maps it onto the task
// row; the inline runner maps it onto loop control.
type Outcome struct {
	Kind OutcomeKind
	// NextStage is set when Kind is OutcomeAdvanced.
	NextStage domain.Stage
	// RetryDelay is set when Kind is OutcomeRetry.
	RetryDelay time.Duration
	// Exhausted marks a halt caused by the retry budget running out.
	Exhausted bool
	// Reason is a short operator-facing note persisted on the task row.
	Reason string
}

// Orchestrator drives one job through the classification stages.
type Orchestrator struct {
	jobs       JobStore
	attempts   AttemptStore
	classifier Classifier
	notifier   Notifier
	metrics    *metrics.Metrics
	cfg        Config
	log        logger.Logger

	now func() time.Time
}

// NewOrchestrator wires the stage chain against its stores and providers.
func NewOrchestrator(
	jobs JobStore,
	attempts AttemptStore,
	classifier Classifier,
	notifier Notifier,
	m *metrics.Metrics,
	cfg Config,
	log logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		jobs:       jobs,
		attempts:   attempts,
		classifier: classifier,
		notifier:   notifier,
		metrics:    m,
		cfg:        cfg,
		log:        log,
		now:        time.Now,
	}
}

// Step runs a single stage for a job. attempt is how many times this stage
// has already failed; the call being made is attempt+1. Step never retries
// internally: transient failures come back as OutcomeRetry so the caller
// controls scheduling, and business outcomes (irrelevant, no salary) are
// stage results, never retried.
func (o *Orchestrator) Step(ctx context.Context, jobID uuid.UUID, stage domain.Stage, attempt int) (Outcome, error) {
	job, err := o.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			o.countStage(stage, metrics.StageSkippedGone)

			return Outcome{Kind: OutcomeHalted, Reason: "job gone"}, nil
		}

		return Outcome{}, err
	}

	if job.Status.IsTerminal() {
		o.countStage(stage, metrics.StageSkippedGone)

		return Outcome{Kind: OutcomeHalted, Reason: "job no longer pending"}, nil
	}

	if job.EnrichStage != stage.Prev() {
		// Another run already applied this stage, or the job was refreshed
		// and the chain restarted. Either way this task is obsolete.
		o.countStage(stage, metrics.StageStaleWrite)

		return Outcome{Kind: OutcomeHalted, Reason: "stage marker moved"}, nil
	}

	result, err := o.classifier.Classify(ctx, stage, snapshotOf(job))
	o.recordAttempt(ctx, job.ID, stage, attempt+1, result, err)
	if err != nil {
		return o.handleFailure(ctx, job, stage, attempt, err)
	}

	return o.applyResult(ctx, job, stage, result)
}

// RunChain drives a job through every remaining stage synchronously,
// sleeping out retry delays in place. It is the inline-mode counterpart of
// the task worker.
func (o *Orchestrator) RunChain(ctx context.Context, jobID uuid.UUID) error {
	stage := domain.FirstStage
	attempt := 0

	for {
		outcome, err := o.Step(ctx, jobID, stage, attempt)
		if err != nil {
			return err
		}

		switch outcome.Kind {
		case OutcomeAdvanced:
			stage = outcome.NextStage
			attempt = 0
		case OutcomeRetry:
			attempt++

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(outcome.RetryDelay):
			}
		case OutcomeCompleted, OutcomeHalted:
			return nil
		}
	}
}

// handleFailure turns a classification error into a retry or, once the
// budget is spent or the error cannot heal on its own, an escalation to
// manual review. A provider-supplied retry-after hint replaces the computed
// backoff entirely.
func (o *Orchestrator) handleFailure(ctx context.Context, job *domain.JobRecord, stage domain.Stage, attempt int, err error) (Outcome, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		// Shutdown mid-step. Surface the context error so the task is
		// re-offered without consuming an attempt.
		return Outcome{}, ctxErr
	}

	attemptNo := attempt + 1

	if attemptNo < o.cfg.MaxAttempts && domain.IsTransient(err) {
		delay := o.backoff(attemptNo)
		if hint := domain.RetryAfterHint(err); hint > 0 {
			delay = hint
		}

		o.countStage(stage, metrics.StageRetried)
		o.log.Warn("stage failed, scheduling retry",
			logger.String("job_id", job.ID.String()),
			logger.String("stage", string(stage)),
			logger.Int("attempt", attemptNo),
			logger.Duration("delay", delay),
			logger.Error(err))

		return Outcome{Kind: OutcomeRetry, RetryDelay: delay, Reason: err.Error()}, nil
	}

	o.countStage(stage, metrics.StageExhausted)
	o.log.Error("stage retries exhausted, escalating to review",
		logger.String("job_id", job.ID.String()),
		logger.String("stage", string(stage)),
		logger.Int("attempt", attemptNo),
		logger.Error(err))

	if markErr := o.jobs.MarkNeedsReview(ctx, job.ID); markErr != nil {
		if errors.Is(markErr, domain.ErrStaleWrite) {
			return Outcome{Kind: OutcomeHalted, Exhausted: true, Reason: err.Error()}, nil
		}

		return Outcome{}, markErr
	}

	o.publish(events.JobNeedsReview, job.ID, domain.StatusNeedsReview, job.ReviewFlagged)

	return Outcome{Kind: OutcomeHalted, Exhausted: true, Reason: err.Error()}, nil
}

// applyResult merges a successful stage result into the job row.
func (o *Orchestrator) applyResult(ctx context.Context, job *domain.JobRecord, stage domain.Stage, result *domain.StageResult) (Outcome, error) {
	var (
		err     error
		flagged = job.ReviewFlagged
		done    bool
	)

	switch stage {
	case domain.StageRelevance:
		rel := result.Relevance
		if !rel.Relevant {
			if err = o.jobs.RejectByRelevance(ctx, job.ID, rel); err == nil {
				o.countStage(stage, metrics.StageRejected)
				o.publish(events.JobRejected, job.ID, domain.StatusRejected, false)

				return Outcome{Kind: OutcomeHalted, Reason: "not relevant"}, nil
			}
		} else {
			flagged = rel.Confidence < o.cfg.ReviewThreshold
			err = o.jobs.ApplyRelevance(ctx, job.ID, rel, flagged)
		}
	case domain.StageSalary:
		err = o.jobs.ApplySalary(ctx, job.ID, annualize(result.Salary))
	case domain.StageWorkType:
		err = o.jobs.ApplyWorkType(ctx, job.ID, result.WorkType)
	case domain.StageSeniority:
		enrichedAt := o.now().UTC()
		err = o.jobs.ApplySeniority(ctx, job.ID, result.Seniority, enrichedAt, enrichedAt.Add(o.cfg.JobTTL))
		done = true
	}

	if err != nil {
		if errors.Is(err, domain.ErrStaleWrite) {
			// A concurrent run won the write. Ours is discarded, not retried.
			o.countStage(stage, metrics.StageStaleWrite)
			o.log.Warn("stage write lost compare-and-set race",
				logger.String("job_id", job.ID.String()),
				logger.String("stage", string(stage)))

			return Outcome{Kind: OutcomeHalted, Reason: "stale write"}, nil
		}

		return Outcome{}, err
	}

	o.countStage(stage, metrics.StageAdvanced)

	if done {
		// A fully enriched job stays pending for moderation unless an
		// earlier stage flagged it for review.
		status := domain.StatusPending
		if flagged {
			status = domain.StatusNeedsReview
		}

		o.publish(events.JobEnriched, job.ID, status, flagged)

		return Outcome{Kind: OutcomeCompleted}, nil
	}

	return Outcome{Kind: OutcomeAdvanced, NextStage: stage.Next()}, nil
}

// recordAttempt writes the audit row for one provider call. Audit failures
// are logged, never fatal: losing a trail row must not stall the chain.
func (o *Orchestrator) recordAttempt(ctx context.Context, jobID uuid.UUID, stage domain.Stage, attemptNo int, result *domain.StageResult, callErr error) {
	row := &domain.EnrichmentAttempt{
		JobID:   jobID,
		Stage:   stage,
		Attempt: attemptNo,
	}
	if result != nil {
		row.Provider = result.Provider
		row.RawResponse = result.Raw
	}
	if callErr != nil {
		row.LastError = callErr.Error()
	}

	if err := o.attempts.Record(ctx, row); err != nil {
		o.log.Warn("failed to record enrichment attempt",
			logger.String("job_id", jobID.String()),
			logger.String("stage", string(stage)),
			logger.Error(err))
	}
}

// backoff returns the delay before retry number attemptNo, doubling from the
// base and clamped to the cap.
func (o *Orchestrator) backoff(attemptNo int) time.Duration {
	delay := o.cfg.BackoffBase
	for i := 1; i < attemptNo; i++ {
		delay *= 2
		if delay >= o.cfg.BackoffCap {
			return o.cfg.BackoffCap
		}
	}

	return delay
}

func (o *Orchestrator) publish(eventType events.EventType, jobID uuid.UUID, status domain.Status, flagged bool) {
	if o.notifier == nil {
		return
	}

	o.notifier.PublishAsync(events.JobEvent{
		EventType:     eventType,
		JobID:         jobID,
		Status:        status,
		ReviewFlagged: flagged,
	})
}

func (o *Orchestrator) countStage(stage domain.Stage, outcome string) {
	if o.metrics == nil {
		return
	}

	o.metrics.StageOutcomes.WithLabelValues(string(stage), outcome).Inc()
}

// snapshotOf extracts the classification input from a job row.
func snapshotOf(job *domain.JobRecord) classify.Snapshot {
	return classify.Snapshot{
		Title:        job.Title,
		CompanyName:  job.CompanyName,
		LocationText: job.LocationText,
		Description:  job.Description,
		SalaryText:   job.SalaryText,
	}
}
