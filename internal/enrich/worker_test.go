//nolint:testpackage // exercises unexported outcome mapping
package enrich

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mirzemehdi/ArchGee-All/internal/domain"
	"github.com/mirzemehdi/ArchGee-All/internal/logger"
)

type taskCall struct {
	method string
	id     int64
	stage  domain.Stage
	status string
}

type fakeTaskStore struct {
	mu      sync.Mutex
	claimed [][]domain.EnrichmentTask
	calls   []taskCall
	stale   int64
}

func (f *fakeTaskStore) Claim(_ context.Context, _ int) ([]domain.EnrichmentTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.claimed) == 0 {
		return nil, nil
	}

	batch := f.claimed[0]
	f.claimed = f.claimed[1:]
	return batch, nil
}

func (f *fakeTaskStore) record(call taskCall) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeTaskStore) Advance(_ context.Context, id int64, next domain.Stage) error {
	f.record(taskCall{method: "advance", id: id, stage: next})
	return nil
}

func (f *fakeTaskStore) ScheduleRetry(_ context.Context, id int64, _ int, _ time.Time, _ string) error {
	f.record(taskCall{method: "retry", id: id})
	return nil
}

func (f *fakeTaskStore) Complete(_ context.Context, id int64) error {
	f.record(taskCall{method: "complete", id: id})
	return nil
}

func (f *fakeTaskStore) Fail(_ context.Context, id int64, _ string) error {
	f.record(taskCall{method: "fail", id: id})
	return nil
}

func (f *fakeTaskStore) RecoverStale(_ context.Context, _ time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stale, nil
}

type fakeStepper struct {
	err error
}

func (f *fakeStepper) Step(_ context.Context, _ uuid.UUID, _ domain.Stage, _ int) (Outcome, error) {
	return Outcome{}, f.err
}

type stagedStepper struct {
	byStage map[domain.Stage]Outcome
}

func (f *stagedStepper) Step(_ context.Context, _ uuid.UUID, stage domain.Stage, _ int) (Outcome, error) {
	return f.byStage[stage], nil
}

func task(id int64, stage domain.Stage) domain.EnrichmentTask {
	return domain.EnrichmentTask{
		ID:     id,
		JobID:  uuid.New(),
		Stage:  stage,
		Status: domain.TaskRunning,
	}
}

func TestWorker_ProcessTask_MapsOutcomes(t *testing.T) {
	testCases := []struct {
		name       string
		outcome    Outcome
		wantMethod string
	}{
		{
			name:       "advanced moves the task to the next stage",
			outcome:    Outcome{Kind: OutcomeAdvanced, NextStage: domain.StageSalary},
			wantMethod: "advance",
		},
		{
			name:       "completed finishes the task",
			outcome:    Outcome{Kind: OutcomeCompleted},
			wantMethod: "complete",
		},
		{
			name:       "retry reschedules",
			outcome:    Outcome{Kind: OutcomeRetry, RetryDelay: time.Second, Reason: "provider down"},
			wantMethod: "retry",
		},
		{
			name:       "halt without exhaustion completes",
			outcome:    Outcome{Kind: OutcomeHalted, Reason: "not relevant"},
			wantMethod: "complete",
		},
		{
			name:       "exhausted halt fails the task",
			outcome:    Outcome{Kind: OutcomeHalted, Exhausted: true, Reason: "retries exhausted"},
			wantMethod: "fail",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store := &fakeTaskStore{}
			stepper := &stagedStepper{byStage: map[domain.Stage]Outcome{domain.StageRelevance: tc.outcome}}
			w := NewWorker(store, stepper, WorkerConfig{}, logger.Nop())

			claimed := task(7, domain.StageRelevance)
			w.processTask(context.Background(), &claimed)

			if len(store.calls) != 1 || store.calls[0].method != tc.wantMethod {
				t.Fatalf("calls = %+v, want one %q", store.calls, tc.wantMethod)
			}
		})
	}
}

func TestWorker_ProcessTask_StorageErrorReschedules(t *testing.T) {
	store := &fakeTaskStore{}
	stepper := &fakeStepper{err: errors.New("connection refused")}
	w := NewWorker(store, stepper, WorkerConfig{}, logger.Nop())

	claimed := task(3, domain.StageSalary)
	w.processTask(context.Background(), &claimed)

	if len(store.calls) != 1 || store.calls[0].method != "retry" {
		t.Fatalf("calls = %+v, want one retry", store.calls)
	}
}

func TestWorker_ProcessOnce_DrainsBatch(t *testing.T) {
	store := &fakeTaskStore{
		claimed: [][]domain.EnrichmentTask{{
			task(1, domain.StageRelevance),
			task(2, domain.StageRelevance),
			task(3, domain.StageRelevance),
		}},
	}
	stepper := &stagedStepper{byStage: map[domain.Stage]Outcome{
		domain.StageRelevance: {Kind: OutcomeCompleted},
	}}
	w := NewWorker(store, stepper, WorkerConfig{Workers: 2}, logger.Nop())

	w.processOnce(context.Background())

	if len(store.calls) != 3 {
		t.Fatalf("calls = %d, want every claimed task handled", len(store.calls))
	}
}

func TestWorker_StartStop(t *testing.T) {
	store := &fakeTaskStore{stale: 2}
	stepper := &stagedStepper{byStage: map[domain.Stage]Outcome{}}
	w := NewWorker(store, stepper, WorkerConfig{PollInterval: 10 * time.Millisecond}, logger.Nop())

	w.Start(context.Background())
	if !w.IsRunning() {
		t.Error("expected worker to report running")
	}

	time.Sleep(30 * time.Millisecond)
	w.Stop()
}
