package bills

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/bosocmputer/bill_analyzer_gemini/internal/storage"
)

// SweepResult describes one retention sweep.
type SweepResult struct {
	Deleted  int64
	Cutoff   time.Time
	Duration time.Duration
	Err      error
}

// Sweeper deletes bill records older than the retention window.
type Sweeper struct {
	store     storage.BillStore
	retention time.Duration
	interval  time.Duration
	onDeleted func()
	now       func() time.Time

	mu     sync.Mutex // serializes RunOnce
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper builds a sweeper. onDeleted, when set, runs after a sweep that
// removed at least one record.
func NewSweeper(store storage.BillStore, retention, interval time.Duration, onDeleted func()) *Sweeper {
	return &Sweeper{
		store:     store,
		retention: retention,
		interval:  interval,
		onDeleted: onDeleted,
		now:       time.Now,
	}
}

// SweepExpired deletes every record created before now minus the retention
// window. Running it twice in a row deletes nothing the second time.
func (s *Sweeper) SweepExpired(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.retention)
	return s.store.DeleteCreatedBefore(ctx, cutoff)
}

// RunOnce performs one sweep and records its metrics. Safe for concurrent use.
func (s *Sweeper) RunOnce(ctx context.Context) *SweepResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	result := &SweepResult{Cutoff: s.now().Add(-s.retention)}

	result.Deleted, result.Err = s.SweepExpired(ctx)
	result.Duration = time.Since(start)

	sweepRunsTotal.Inc()
	sweepDurationSeconds.Observe(result.Duration.Seconds())

	if result.Err != nil {
		sweepErrorsTotal.Inc()
		log.Printf("[sweeper] ERROR sweep failed: %v", result.Err)
		return result
	}

	if result.Deleted > 0 {
		sweepDeletedTotal.Add(float64(result.Deleted))
		if s.onDeleted != nil {
			s.onDeleted()
		}
	}
	log.Printf("[sweeper] deleted %d records older than %s (%.2fs)",
		result.Deleted, result.Cutoff.Format(time.RFC3339), result.Duration.Seconds())
	return result
}

// Start runs RunOnce every interval until ctx is cancelled or Stop is called.
// The startup sweep is the caller's job.
func (s *Sweeper) Start(ctx context.Context) {
	sweepCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(sweepCtx)

	log.Printf("[sweeper] started, interval %s, retention %s", s.interval, s.retention)
}

// Stop cancels the loop and waits for an in-progress sweep to finish.
func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	log.Println("[sweeper] stopped")
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}
