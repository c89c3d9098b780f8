// Package service implements the ingestion use cases: normalize one raw
// record, decide new/update/duplicate against storage, and hand accepted
// jobs to the enrichment chain.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mirzemehdi/ArchGee-All/internal/domain"
	"github.com/mirzemehdi/ArchGee-All/internal/enrich"
	"github.com/mirzemehdi/ArchGee-All/internal/logger"
	"github.com/mirzemehdi/ArchGee-All/internal/metrics"
	"github.com/mirzemehdi/ArchGee-All/internal/normalizer"
)

// JobStore is the persistence surface ingestion depends on. The unique
// indexes behind InsertNew are the dedup correctness backstop; the lookups
// only explain a conflict after the fact.
type JobStore interface {
	InsertNew(ctx context.Context, job *domain.JobRecord) (bool, error)
	FindBySourceRecordID(ctx context.Context, source, sourceRecordID string) (*domain.JobRecord, error)
	FindByFingerprint(ctx context.Context, source, fingerprint string) (*domain.JobRecord, error)
	RefreshContent(ctx context.Context, id uuid.UUID, job *domain.JobRecord) error
	SoftDelete(ctx context.Context, id uuid.UUID, now time.Time) error
}

// SingleResult is the outcome of ingesting one record.
type SingleResult struct {
	ID        uuid.UUID     `json:"id"`
	Status    domain.Status `json:"status"`
	Duplicate bool          `json:"duplicate"`
}

// BatchCounts aggregates per-record outcomes of a bulk ingest. There is no
// partial-batch rollback: every record lands or fails on its own.
type BatchCounts struct {
	Accepted   int `json:"accepted"`
	Duplicates int `json:"duplicates"`
	Errors     int `json:"errors"`
}

// IngestService turns raw source records into pending job rows.
type IngestService struct {
	repo     JobStore
	enqueuer enrich.Enqueuer
	metrics  *metrics.Metrics
	log      logger.Logger
}

// NewIngestService creates the ingestion service.
func NewIngestService(repo JobStore, enqueuer enrich.Enqueuer, m *metrics.Metrics, log logger.Logger) *IngestService {
	return &IngestService{
		repo:     repo,
		enqueuer: enqueuer,
		metrics:  m,
		log:      log,
	}
}

// IngestOne normalizes and stores a single record. A duplicate is a normal
// outcome carrying the existing record's identifier. Validation failures
// come back as a domain.ValidationError; any other error is a storage
// failure the caller should surface as a server error.
func (s *IngestService) IngestOne(ctx context.Context, source string, raw *domain.RawRecord) (*SingleResult, error) {
	job, err := normalizer.Normalize(source, raw)
	if err != nil {
		s.countIngest(source, metrics.OutcomeError)

		return nil, err
	}

	job.ID = uuid.New()

	inserted, err := s.repo.InsertNew(ctx, job)
	if err != nil {
		s.countIngest(source, metrics.OutcomeError)

		return nil, fmt.Errorf("insert job: %w", err)
	}

	if inserted {
		s.countIngest(source, metrics.OutcomeAccepted)
		s.enqueue(ctx, job.ID)

		return &SingleResult{ID: job.ID, Status: domain.StatusPending, Duplicate: false}, nil
	}

	return s.resolveConflict(ctx, source, job)
}

// IngestBatch processes records independently and aggregates the outcomes.
// Validation failures are counted, never fatal; a storage failure aborts the
// remainder and fails the request closed.
func (s *IngestService) IngestBatch(ctx context.Context, source string, records []domain.RawRecord) (BatchCounts, error) {
	var counts BatchCounts

	for i := range records {
		result, err := s.IngestOne(ctx, source, &records[i])
		if err != nil {
			var validationErr *domain.ValidationError
			if errors.As(err, &validationErr) {
				counts.Errors++
				s.log.Debug("record failed validation",
					logger.String("source", source),
					logger.Int("index", i),
					logger.String("field", validationErr.Field))
				continue
			}

			return counts, fmt.Errorf("record %d: %w", i, err)
		}

		if result.Duplicate {
			counts.Duplicates++
		} else {
			counts.Accepted++
		}
	}

	return counts, nil
}

// resolveConflict explains a unique-index collision: the same source record
// resubmitted with identical content is a duplicate, with changed content an
// update that re-enters the enrichment chain, and a fingerprint-only match a
// duplicate from a source without stable identifiers.
func (s *IngestService) resolveConflict(ctx context.Context, source string, job *domain.JobRecord) (*SingleResult, error) {
	if job.SourceRecordID != nil {
		existing, err := s.repo.FindBySourceRecordID(ctx, source, *job.SourceRecordID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			s.countIngest(source, metrics.OutcomeError)

			return nil, fmt.Errorf("lookup by source record id: %w", err)
		}

		if existing != nil {
			if existing.Fingerprint == job.Fingerprint {
				s.countIngest(source, metrics.OutcomeDuplicate)

				return &SingleResult{ID: existing.ID, Status: existing.Status, Duplicate: true}, nil
			}

			return s.refresh(ctx, source, existing.ID, job)
		}
	}

	existing, err := s.repo.FindByFingerprint(ctx, source, job.Fingerprint)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// The conflicting row vanished between insert and lookup. Rare
			// enough that failing the record is acceptable; a resubmission
			// will land cleanly.
			s.countIngest(source, metrics.OutcomeError)

			return nil, fmt.Errorf("conflicting record disappeared: %w", err)
		}

		s.countIngest(source, metrics.OutcomeError)

		return nil, fmt.Errorf("lookup by fingerprint: %w", err)
	}

	s.countIngest(source, metrics.OutcomeDuplicate)

	return &SingleResult{ID: existing.ID, Status: existing.Status, Duplicate: true}, nil
}

// refresh replaces an existing record's content and restarts its chain.
func (s *IngestService) refresh(ctx context.Context, source string, id uuid.UUID, job *domain.JobRecord) (*SingleResult, error) {
	if err := s.repo.RefreshContent(ctx, id, job); err != nil {
		s.countIngest(source, metrics.OutcomeError)

		return nil, fmt.Errorf("refresh job content: %w", err)
	}

	s.countIngest(source, metrics.OutcomeUpdated)
	s.enqueue(ctx, id)
	s.log.Info("refreshed existing job from source update",
		logger.String("source", source),
		logger.String("job_id", id.String()))

	return &SingleResult{ID: id, Status: domain.StatusPending, Duplicate: false}, nil
}

// Retract tombstones a job whose source withdrew the posting. Reads and the
// dedup indexes exclude tombstoned rows, so the same posting can be
// resubmitted later as a fresh record.
func (s *IngestService) Retract(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.SoftDelete(ctx, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("retract job: %w", err)
	}

	s.log.Info("retracted job at source request", logger.String("job_id", id.String()))

	return nil
}

// enqueue hands the job to the enrichment chain. The job row is already
// durable, so a scheduling failure is logged and left to operators rather
// than failing an ingest the caller cannot safely retry.
func (s *IngestService) enqueue(ctx context.Context, jobID uuid.UUID) {
	if err := s.enqueuer.EnqueueJob(ctx, jobID); err != nil {
		s.log.Error("failed to enqueue enrichment",
			logger.String("job_id", jobID.String()),
			logger.Error(err))
	}
}

func (s *IngestService) countIngest(source, outcome string) {
	if s.metrics == nil {
		return
	}

	s.metrics.IngestOutcomes.WithLabelValues(source, outcome).Inc()
}
