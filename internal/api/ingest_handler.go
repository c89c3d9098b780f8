// Package api provides the HTTP surface of the ingestion engine.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mirzemehdi/ArchGee-All/internal/domain"
	"github.com/mirzemehdi/ArchGee-All/internal/service"
)

// Ingester defines the ingest operations needed by the handler.
type Ingester interface {
	IngestOne(ctx context.Context, source string, raw *domain.RawRecord) (*service.SingleResult, error)
	IngestBatch(ctx context.Context, source string, records []domain.RawRecord) (service.BatchCounts, error)
	Retract(ctx context.Context, id uuid.UUID) error
}

// JobReader loads stored jobs for the read path.
type JobReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.JobRecord, error)
}

// AttemptReader loads a job's enrichment attempt history for the moderation
// audit trail.
type AttemptReader interface {
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]domain.EnrichmentAttempt, error)
}

// SingleIngestRequest is the body of POST /api/v1/ingest/job.
type SingleIngestRequest struct {
	Source string           `json:"source" binding:"required"`
	Record domain.RawRecord `json:"record" binding:"required"`
}

// BatchIngestRequest is the body of POST /api/v1/ingest/jobs.
type BatchIngestRequest struct {
	Source  string             `json:"source" binding:"required"`
	Records []domain.RawRecord `json:"records" binding:"required"`
}

// IngestHandler handles ingestion HTTP requests.
type IngestHandler struct {
	svc        Ingester
	jobs       JobReader
	attempts   AttemptReader
	batchLimit int
}

// NewIngestHandler creates a new ingest handler.
func NewIngestHandler(svc Ingester, jobs JobReader, attempts AttemptReader, batchLimit int) *IngestHandler {
	return &IngestHandler{svc: svc, jobs: jobs, attempts: attempts, batchLimit: batchLimit}
}

// IngestJob handles POST /api/v1/ingest/job.
func (h *IngestHandler) IngestJob(c *gin.Context) {
	var req SingleIngestRequest
	if bindErr := c.ShouldBindJSON(&req); bindErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": bindErr.Error()})
		return
	}

	result, err := h.svc.IngestOne(c.Request.Context(), req.Source, &req.Record)
	if err != nil {
		var validationErr *domain.ValidationError
		if errors.As(err, &validationErr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": validationErr.Error()})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{"error": "ingestion failed"})
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}

	c.JSON(status, result)
}

// IngestJobs handles POST /api/v1/ingest/jobs. Records are processed
// independently; the response carries aggregate counts, never a partial
// rollback.
func (h *IngestHandler) IngestJobs(c *gin.Context) {
	var req BatchIngestRequest
	if bindErr := c.ShouldBindJSON(&req); bindErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": bindErr.Error()})
		return
	}

	if len(req.Records) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "records must not be empty"})
		return
	}

	if len(req.Records) > h.batchLimit {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": "batch exceeds limit",
			"limit": h.batchLimit,
		})
		return
	}

	counts, err := h.svc.IngestBatch(c.Request.Context(), req.Source, req.Records)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":      "ingestion failed",
			"accepted":   counts.Accepted,
			"duplicates": counts.Duplicates,
			"errors":     counts.Errors,
		})
		return
	}

	c.JSON(http.StatusOK, counts)
}

// RetractJob handles DELETE /api/v1/ingest/jobs/:id. Sources use it to
// withdraw a posting they previously submitted.
func (h *IngestHandler) RetractJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	if err := h.svc.Retract(c.Request.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{"error": "retraction failed"})
		return
	}

	c.Status(http.StatusNoContent)
}

// GetJob handles GET /api/v1/jobs/:id.
func (h *IngestHandler) GetJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	job, err := h.jobs.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}

	c.JSON(http.StatusOK, job)
}

// GetJobAttempts handles GET /api/v1/jobs/:id/attempts. Moderators use the
// attempt history to judge why a job landed in needs_review.
func (h *IngestHandler) GetJobAttempts(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	if _, err := h.jobs.GetByID(c.Request.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}

	attempts, err := h.attempts.ListByJob(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}

	if attempts == nil {
		attempts = []domain.EnrichmentAttempt{}
	}

	c.JSON(http.StatusOK, gin.H{"job_id": id, "attempts": attempts})
}
