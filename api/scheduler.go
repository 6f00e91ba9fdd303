/*
scheduler.go - Trip completion scheduler

PURPOSE:
  Periodically moves approved trips whose last day has passed to
  "completed". Completed trips still count toward the annual balance;
  the status only tells reviewers the trip actually happened.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on Start
  - Each request is completed in its own transaction; conflicts with a
    concurrent edit are skipped and retried on the next tick
  - Records the last run for the admin console

USAGE:
  scheduler := NewCompletionScheduler(service, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - sirw/service.go: CompleteFinished
  - sirw/workflow.go: Complete transition
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/sirw-engine/generic"
	"github.com/warp/sirw-engine/sirw"
)

// CompletionRun describes one scheduler pass.
type CompletionRun struct {
	StartedAt time.Time
	Completed int
	Err       error
}

// CompletionScheduler handles automated trip completion.
type CompletionScheduler struct {
	Service       *sirw.Service
	CheckInterval time.Duration
	Enabled       bool
	Logger        *zap.Logger

	// Today is overridable in tests.
	Today func() generic.TimePoint

	ticker  *time.Ticker
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	lastRun *CompletionRun
}

// NewCompletionScheduler creates a new scheduler.
func NewCompletionScheduler(svc *sirw.Service, logger *zap.Logger) *CompletionScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompletionScheduler{
		Service:       svc,
		CheckInterval: time.Hour,
		Enabled:       true,
		Logger:        logger.Named("scheduler"),
		Today:         generic.Today,
	}
}

// Start begins the scheduler.
func (cs *CompletionScheduler) Start() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if !cs.Enabled {
		cs.Logger.Info("disabled, not starting")
		return
	}
	if cs.ticker != nil {
		return
	}

	cs.ticker = time.NewTicker(cs.CheckInterval)
	cs.stop = make(chan struct{})
	cs.wg.Add(1)
	go cs.run(cs.ticker, cs.stop)

	cs.Logger.Info("started", zap.Duration("interval", cs.CheckInterval))
}

// Stop stops the scheduler and waits for a pass in progress.
func (cs *CompletionScheduler) Stop() {
	cs.mu.Lock()
	if cs.ticker == nil {
		cs.mu.Unlock()
		return
	}
	cs.ticker.Stop()
	close(cs.stop)
	cs.ticker = nil
	cs.mu.Unlock()

	cs.wg.Wait()
	cs.Logger.Info("stopped")
}

func (cs *CompletionScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer cs.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	cs.RunOnce(ctx)
	for {
		select {
		case <-ticker.C:
			cs.RunOnce(ctx)
		case <-stop:
			return
		}
	}
}

// RunOnce completes every finished trip and records the run.
func (cs *CompletionScheduler) RunOnce(ctx context.Context) CompletionRun {
	run := CompletionRun{StartedAt: time.Now().UTC()}
	run.Completed, run.Err = cs.Service.CompleteFinished(ctx, cs.Today())

	if run.Err != nil {
		cs.Logger.Error("completion pass failed", zap.Int("completed", run.Completed), zap.Error(run.Err))
	} else if run.Completed > 0 {
		cs.Logger.Info("trips completed", zap.Int("count", run.Completed))
	} else {
		cs.Logger.Debug("nothing to complete")
	}

	cs.mu.Lock()
	cs.lastRun = &run
	cs.mu.Unlock()
	return run
}

// LastRun returns the most recent pass, or nil before the first one.
func (cs *CompletionScheduler) LastRun() *CompletionRun {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.lastRun == nil {
		return nil
	}
	r := *cs.lastRun
	return &r
}
