package sync

import (
	"context"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/moss/internal/appctx"
	"github.com/Ramsey-B/moss/internal/tracing"
	"github.com/pkg/errors"
)

// ErrRunnerAlreadyRunning is returned when trying to start a running runner
var ErrRunnerAlreadyRunning = errors.New("runner already running")

// DefaultSleepPeriod is the default interval between polling cycles
const DefaultSleepPeriod = 2 * time.Minute

// Runner drives the orchestrator on a fixed interval. A cycle error is
// logged and left for the next tick: the checkpoint did not advance, so the
// producer rediscovers the same backlog.
type Runner struct {
	orchestrator *Orchestrator
	sleepPeriod  time.Duration
	logger       ectologger.Logger

	stopCh    chan struct{}
	stoppedC  chan struct{}
	triggerCh chan struct{}
	running   bool
	mu        sync.RWMutex
}

// NewRunner creates a new Runner
func NewRunner(orchestrator *Orchestrator, sleepPeriod time.Duration, logger ectologger.Logger) *Runner {
	if sleepPeriod <= 0 {
		sleepPeriod = DefaultSleepPeriod
	}

	return &Runner{
		orchestrator: orchestrator,
		sleepPeriod:  sleepPeriod,
		logger:       logger,
		triggerCh:    make(chan struct{}, 1),
	}
}

// Start checks the checkpoint and launches the polling loop. It fails with
// ErrSyncInProgress when a previous process left the checkpoint in START.
// The channels are recreated each call so a stopped runner can be started
// again.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrRunnerAlreadyRunning
	}
	r.running = true
	stopCh := make(chan struct{})
	stoppedC := make(chan struct{})
	r.stopCh = stopCh
	r.stoppedC = stoppedC
	r.mu.Unlock()

	ctx, span := tracing.StartSpan(ctx, "sync.Runner.Start")
	defer span.End()

	if err := r.orchestrator.GuardStartup(ctx); err != nil {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		return err
	}

	r.logger.WithContext(ctx).Infof("Starting synchronization runner: sleep_period=%s", r.sleepPeriod)

	go r.pollLoop(ctx, stopCh, stoppedC)

	return nil
}

// Stop stops the runner gracefully, waiting for an in-flight cycle.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	stopCh := r.stopCh
	stoppedC := r.stoppedC
	r.mu.Unlock()

	r.logger.WithContext(ctx).Info("Stopping synchronization runner...")

	close(stopCh)

	select {
	case <-stoppedC:
		r.logger.WithContext(ctx).Info("Synchronization runner stopped gracefully")
	case <-ctx.Done():
		r.logger.WithContext(ctx).Warn("Synchronization runner shutdown timed out")
		return ctx.Err()
	}

	return nil
}

// IsRunning returns whether the runner is running
func (r *Runner) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// Trigger requests an immediate cycle. Returns false when a trigger is
// already pending or the runner is stopped.
func (r *Runner) Trigger() bool {
	if !r.IsRunning() {
		return false
	}
	select {
	case r.triggerCh <- struct{}{}:
		return true
	default:
		return false
	}
}

func (r *Runner) pollLoop(ctx context.Context, stopCh <-chan struct{}, stoppedC chan<- struct{}) {
	defer close(stoppedC)

	ticker := time.NewTicker(r.sleepPeriod)
	defer ticker.Stop()

	// Run immediately on start
	r.runCycle(ctx)

	for {
		select {
		case <-stopCh:
			r.logger.WithContext(ctx).Debug("Synchronization poll loop stopping")
			return
		case <-ticker.C:
			r.runCycle(ctx)
		case <-r.triggerCh:
			r.runCycle(ctx)
		}
	}
}

func (r *Runner) runCycle(ctx context.Context) {
	ctx = appctx.SetRunID(ctx, uuid.New().String())

	ctx, span := tracing.StartSpan(ctx, "sync.Runner.runCycle")
	defer span.End()

	start := time.Now()
	r.logger.WithContext(ctx).Debug("Running synchronization cycle")

	if err := r.orchestrator.RunCycle(ctx); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Synchronization cycle failed, retrying next interval")
		return
	}

	r.logger.WithContext(ctx).Infof("Synchronization cycle completed in %s", time.Since(start))
}
