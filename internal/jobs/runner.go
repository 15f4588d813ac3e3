package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Spok95/campus-maintenance/internal/ctxutil"
	"github.com/Spok95/campus-maintenance/internal/observability"
)

type Job func(ctx context.Context) error

// Locker guards a job across replicas. Acquire reports false when another
// holder owns the lock; release is then nil.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(), ok bool, err error)
}

type Runner struct {
	ctx  context.Context
	log  *zap.Logger
	lock Locker
	wg   sync.WaitGroup
}

func New(ctx context.Context, log *zap.Logger) *Runner { return &Runner{ctx: ctx, log: log} }

// WithLock makes every job take a named lock before running.
func (r *Runner) WithLock(l Locker) *Runner {
	r.lock = l
	return r
}

// Every runs fn on each tick until the runner's context is done.
// A tick arriving while fn still runs is dropped by the ticker.
func (r *Runner) Every(interval time.Duration, name string, fn Job) {
	r.EveryWithLease(interval, 0, name, fn)
}

// EveryWithLease is Every for jobs that may outlive their interval. The
// lock is held for the longer of lease and two intervals, so another
// replica cannot start the job while this run is still inside fn.
func (r *Runner) EveryWithLease(interval, lease time.Duration, name string, fn Job) {
	ttl := max(2*interval, lease)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-r.ctx.Done():
				return
			case <-t.C:
				r.run(ttl, name, fn)
			}
		}
	}()
}

// Wait blocks until every loop has returned after cancellation.
func (r *Runner) Wait() { r.wg.Wait() }

func (r *Runner) run(ttl time.Duration, name string, fn Job) {
	if r.lock != nil {
		release, ok, err := r.lock.Acquire(r.ctx, name, ttl)
		if err != nil {
			// No lock backend: run anyway, the store-level compare-and-set still holds.
			r.log.Warn("job lock unavailable", zap.String("job", name), zap.Error(err))
		} else if !ok {
			jobSkips.WithLabelValues(name).Inc()
			return
		} else {
			defer release()
		}
	}

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			jobErrors.WithLabelValues(name).Inc()
			err := fmt.Errorf("panic in job %s: %v", name, p)
			observability.CaptureErr(err)
			r.log.Error("job panicked", zap.String("job", name), zap.Error(err))
		}
		jobRuns.WithLabelValues(name).Inc()
		jobDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()

	if err := fn(ctxutil.WithOp(r.ctx, name)); err != nil {
		jobErrors.WithLabelValues(name).Inc()
	}
}
