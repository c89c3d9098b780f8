// Package sweeper expires published jobs whose listing window has lapsed.
package sweeper

import (
	"context"
	"sync"
	"time"

	"github.com/mirzemehdi/ArchGee-All/internal/logger"
	"github.com/mirzemehdi/ArchGee-All/internal/metrics"
)

const defaultInterval = time.Hour

// JobExpirer is the storage surface the sweeper depends on.
type JobExpirer interface {
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper periodically transitions approved jobs past their expiry to
// expired. The transition is a single guarded UPDATE, so overlapping runs
// change nothing twice.
type Sweeper struct {
	jobs     JobExpirer
	interval time.Duration
	metrics  *metrics.Metrics
	log      logger.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
	mu       sync.Mutex
}

// New creates a sweeper. A zero interval falls back to hourly.
func New(jobs JobExpirer, interval time.Duration, m *metrics.Metrics, log logger.Logger) *Sweeper {
	if interval <= 0 {
		interval = defaultInterval
	}

	return &Sweeper{
		jobs:     jobs,
		interval: interval,
		metrics:  m,
		log:      log,
		stopChan: make(chan struct{}),
	}
}

// Start begins the sweep loop.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx)

	s.log.Info("expiry sweeper started", logger.Duration("interval", s.interval))
}

// Stop halts the loop after any in-flight sweep completes.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	close(s.stopChan)
	s.wg.Wait()
	s.log.Info("expiry sweeper stopped")
}

func (s *Sweeper) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.SweepOnce(ctx)

	for {
		select {
		case <-ticker.C:
			s.SweepOnce(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// SweepOnce runs a single sweep pass.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	expired, err := s.jobs.SweepExpired(ctx, time.Now().UTC())
	if err != nil {
		s.log.Error("expiry sweep failed", logger.Error(err))
		return
	}

	if expired > 0 {
		if s.metrics != nil {
			s.metrics.SweptJobs.Add(float64(expired))
		}

		s.log.Info("expired listed jobs", logger.Int64("expired", expired))
	}
}
