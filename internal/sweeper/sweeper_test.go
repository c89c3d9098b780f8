package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mirzemehdi/ArchGee-All/internal/logger"
)

type fakeExpirer struct {
	mu      sync.Mutex
	calls   int
	expired int64
	err     error
	lastNow time.Time
}

func (f *fakeExpirer) SweepExpired(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	f.lastNow = now
	return f.expired, f.err
}

func (f *fakeExpirer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestSweeper_SweepOnce(t *testing.T) {
	expirer := &fakeExpirer{expired: 4}
	s := New(expirer, time.Hour, nil, logger.Nop())

	s.SweepOnce(context.Background())

	if expirer.callCount() != 1 {
		t.Fatalf("SweepExpired calls = %d, want 1", expirer.callCount())
	}
	if expirer.lastNow.Location() != time.UTC {
		t.Error("sweep cutoff should be UTC")
	}
}

func TestSweeper_SweepOnce_ErrorDoesNotPanic(t *testing.T) {
	expirer := &fakeExpirer{err: errors.New("connection lost")}
	s := New(expirer, time.Hour, nil, logger.Nop())

	s.SweepOnce(context.Background())

	if expirer.callCount() != 1 {
		t.Fatalf("SweepExpired calls = %d, want 1", expirer.callCount())
	}
}

func TestSweeper_StartSweepsImmediately(t *testing.T) {
	expirer := &fakeExpirer{}
	s := New(expirer, time.Hour, nil, logger.Nop())

	s.Start(context.Background())
	defer s.Stop()

	deadline := time.After(time.Second)
	for expirer.callCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("expected an initial sweep on start")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestSweeper_StopIsIdempotentBeforeStart(t *testing.T) {
	s := New(&fakeExpirer{}, time.Hour, nil, logger.Nop())
	s.Stop()
}
