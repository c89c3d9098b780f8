// Package events publishes moderation handoff events to a Redis stream. The
// moderation collaborator consumes the stream; the engine never blocks on it.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mirzemehdi/ArchGee-All/internal/domain"
	"github.com/mirzemehdi/ArchGee-All/internal/logger"
)

// EventType names a job lifecycle transition visible to moderation.
type EventType string

const (
	// JobEnriched signals a fully enriched job awaiting moderation.
	JobEnriched EventType = "job.enriched"
	// JobNeedsReview signals automated enrichment could not complete.
	JobNeedsReview EventType = "job.needs_review"
	// JobRejected signals the relevance stage rejected the job.
	JobRejected EventType = "job.rejected"
)

// publishTimeout bounds one XADD round trip.
const publishTimeout = 5 * time.Second

// JobEvent is the payload written to the stream.
type JobEvent struct {
	EventID       uuid.UUID     `json:"event_id"`
	EventType     EventType     `json:"event_type"`
	JobID         uuid.UUID     `json:"job_id"`
	Status        domain.Status `json:"status"`
	ReviewFlagged bool          `json:"review_flagged"`
	OccurredAt    time.Time     `json:"occurred_at"`
}

// Publisher writes job events to a Redis stream. A nil Publisher (Redis not
// configured) is a safe no-op.
type Publisher struct {
	client *redis.Client
	stream string
	log    logger.Logger
}

// NewPublisher creates a publisher over client. Returns nil when client is
// nil so callers can keep a single code path.
func NewPublisher(client *redis.Client, stream string, log logger.Logger) *Publisher {
	if client == nil {
		return nil
	}

	return &Publisher{
		client: client,
		stream: stream,
		log:    log,
	}
}

// Publish appends one event to the stream.
func (p *Publisher) Publish(ctx context.Context, event JobEvent) error {
	if p == nil || p.client == nil {
		return nil
	}

	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	payload, marshalErr := json.Marshal(event)
	if marshalErr != nil {
		return fmt.Errorf("marshal event: %w", marshalErr)
	}

	result := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{"event": string(payload)},
	})
	if addErr := result.Err(); addErr != nil {
		return fmt.Errorf("publish to stream: %w", addErr)
	}

	return nil
}

// PublishAsync publishes without blocking the caller. Failures are logged;
// the moderation handoff is advisory, the job row is the source of truth.
func (p *Publisher) PublishAsync(event JobEvent) {
	if p == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		if publishErr := p.Publish(ctx, event); publishErr != nil {
			p.log.Warn("failed to publish job event",
				logger.String("event_type", string(event.EventType)),
				logger.String("job_id", event.JobID.String()),
				logger.Error(publishErr),
			)
		}
	}()
}
