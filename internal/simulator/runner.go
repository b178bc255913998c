package simulator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultStartupDelay = time.Second
	DefaultInterval     = 30 * time.Second
	DefaultLockTTL      = 25 * time.Second
)

// TickLocker is a lock shared by every process running the simulator.
type TickLocker interface {
	AcquireTickLock(ctx context.Context, ttl time.Duration) (bool, error)
	ReleaseTickLock(ctx context.Context) error
}

type Ticker interface {
	Tick(ctx context.Context) (TickReport, error)
}

// Runner calls Tick on a fixed schedule and never lets two ticks overlap.
type Runner struct {
	sim      Ticker
	delay    time.Duration
	interval time.Duration
	locker   TickLocker
	lockTTL  time.Duration
	log      *zap.Logger

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type RunnerOption func(*Runner)

func WithSchedule(delay, interval time.Duration) RunnerOption {
	return func(r *Runner) {
		if delay >= 0 {
			r.delay = delay
		}
		if interval > 0 {
			r.interval = interval
		}
	}
}

func WithLocker(l TickLocker, ttl time.Duration) RunnerOption {
	return func(r *Runner) {
		r.locker = l
		if ttl > 0 {
			r.lockTTL = ttl
		}
	}
}

func WithRunnerLogger(l *zap.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

func NewRunner(sim Ticker, opts ...RunnerOption) *Runner {
	r := &Runner{
		sim:      sim,
		delay:    DefaultStartupDelay,
		interval: DefaultInterval,
		lockTTL:  DefaultLockTTL,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the schedule in the background. Calling Start on a running
// Runner does nothing.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.loop(ctx, r.done)
	r.log.Info("market simulator started", zap.Duration("interval", r.interval))
}

// Stop cancels the schedule and waits for an in-flight tick to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	r.log.Info("market simulator stopped")
}

func (r *Runner) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(r.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		r.RunOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce runs a single tick unless one is already running here or in
// another process. It reports whether a tick ran and succeeded.
func (r *Runner) RunOnce(ctx context.Context) bool {
	if !r.running.CompareAndSwap(false, true) {
		r.log.Info("market tick skipped, previous tick still running")
		return false
	}
	defer r.running.Store(false)

	if r.locker != nil {
		ok, err := r.locker.AcquireTickLock(ctx, r.lockTTL)
		if err != nil {
			r.log.Warn("market tick lock", zap.Error(err))
			return false
		}
		if !ok {
			r.log.Info("market tick skipped, held by another process")
			return false
		}
		defer func() {
			if err := r.locker.ReleaseTickLock(context.WithoutCancel(ctx)); err != nil {
				r.log.Warn("release market tick lock", zap.Error(err))
			}
		}()
	}

	start := time.Now()
	report, err := r.sim.Tick(ctx)
	if err != nil {
		r.log.Error("market tick failed", zap.Error(err))
		return false
	}
	r.log.Info("market tick",
		zap.Int("flights", report.Flights),
		zap.Int("changed", report.Changed),
		zap.Int("failed", report.Failed),
		zap.Int("samples", report.Samples),
		zap.Duration("took", time.Since(start)),
	)
	return true
}
