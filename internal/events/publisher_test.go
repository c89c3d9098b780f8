package events_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mirzemehdi/ArchGee-All/internal/domain"
	"github.com/mirzemehdi/ArchGee-All/internal/events"
	"github.com/mirzemehdi/ArchGee-All/internal/logger"
)

const testStream = "archgee:jobs:moderation"

func newTestPublisher(t *testing.T) (*events.Publisher, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return events.NewPublisher(client, testStream, logger.Nop()), client
}

func TestPublisher_Publish(t *testing.T) {
	pub, client := newTestPublisher(t)
	ctx := context.Background()
	jobID := uuid.New()

	event := events.JobEvent{
		EventType:     events.JobEnriched,
		JobID:         jobID,
		Status:        domain.StatusPending,
		ReviewFlagged: false,
	}

	if err := pub.Publish(ctx, event); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	entries, err := client.XRange(ctx, testStream, "-", "+").Result()
	if err != nil {
		t.Fatalf("failed to read stream: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("stream has %d entries, want 1", len(entries))
	}

	raw, ok := entries[0].Values["event"].(string)
	if !ok {
		t.Fatalf("entry is missing the event field: %v", entries[0].Values)
	}

	var got events.JobEvent
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatalf("failed to decode event payload: %v", err)
	}

	if got.EventType != events.JobEnriched {
		t.Errorf("EventType = %q, want %q", got.EventType, events.JobEnriched)
	}
	if got.JobID != jobID {
		t.Errorf("JobID = %s, want %s", got.JobID, jobID)
	}
	if got.Status != domain.StatusPending {
		t.Errorf("Status = %q, want pending", got.Status)
	}
	if got.EventID == uuid.Nil {
		t.Error("expected a generated event ID")
	}
	if got.OccurredAt.IsZero() {
		t.Error("expected a stamped occurrence time")
	}
}

func TestPublisher_NilIsSafe(t *testing.T) {
	var pub *events.Publisher

	if err := pub.Publish(context.Background(), events.JobEvent{}); err != nil {
		t.Fatalf("nil publisher Publish() error = %v", err)
	}
	pub.PublishAsync(events.JobEvent{})
}

func TestNewPublisher_NilClient(t *testing.T) {
	if pub := events.NewPublisher(nil, testStream, logger.Nop()); pub != nil {
		t.Error("expected nil publisher for nil client")
	}
}
