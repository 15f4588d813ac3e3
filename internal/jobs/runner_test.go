package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Spok95/campus-maintenance/internal/ctxutil"
)

// fakeLock behaves like a TTL lock shared by replicas: a holder that
// outlives its ttl loses the lock to the next caller.
type fakeLock struct {
	mu       sync.Mutex
	held     bool
	err      error
	acquired int
	released int
	ttls     []time.Duration
	owned    bool
	until    time.Time
}

func (f *fakeLock) Acquire(_ context.Context, _ string, ttl time.Duration) (func(), bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ttls = append(f.ttls, ttl)
	if f.err != nil {
		return nil, false, f.err
	}
	if f.held || (f.owned && time.Now().Before(f.until)) {
		return nil, false, nil
	}
	f.owned = true
	f.until = time.Now().Add(ttl)
	f.acquired++
	return func() {
		f.mu.Lock()
		f.released++
		f.owned = false
		f.mu.Unlock()
	}, true, nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEveryRunsUntilCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := New(ctx, zap.NewNop())
	var n atomic.Int32
	r.Every(10*time.Millisecond, "count", func(context.Context) error {
		n.Add(1)
		return nil
	})
	waitFor(t, func() bool { return n.Load() >= 3 })
	cancel()
	r.Wait()

	after := n.Load()
	time.Sleep(30 * time.Millisecond)
	if n.Load() != after {
		t.Fatal("job kept running after Wait returned")
	}
}

func TestPanicDoesNotStopLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := New(ctx, zap.NewNop())
	var n atomic.Int32
	r.Every(10*time.Millisecond, "panicky", func(context.Context) error {
		if n.Add(1) == 1 {
			panic("boom")
		}
		return errors.New("plain failure")
	})
	waitFor(t, func() bool { return n.Load() >= 3 })
	cancel()
	r.Wait()
}

func TestLockHeldElsewhereSkips(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	lock := &fakeLock{held: true}
	r := New(ctx, zap.NewNop()).WithLock(lock)
	var n atomic.Int32
	r.Every(5*time.Millisecond, "dispatch", func(context.Context) error {
		n.Add(1)
		return nil
	})
	time.Sleep(40 * time.Millisecond)
	cancel()
	r.Wait()
	if n.Load() != 0 {
		t.Fatalf("job ran %d times while lock was held elsewhere", n.Load())
	}
}

func TestLockAcquiredAndReleased(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	lock := &fakeLock{}
	r := New(ctx, zap.NewNop()).WithLock(lock)
	var n atomic.Int32
	r.Every(5*time.Millisecond, "dispatch", func(context.Context) error {
		n.Add(1)
		return nil
	})
	waitFor(t, func() bool { return n.Load() >= 2 })
	cancel()
	r.Wait()

	lock.mu.Lock()
	defer lock.mu.Unlock()
	if lock.acquired == 0 || lock.acquired != lock.released {
		t.Fatalf("acquired %d released %d", lock.acquired, lock.released)
	}
}

func TestLockBackendErrorStillRuns(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := New(ctx, zap.NewNop()).WithLock(&fakeLock{err: errors.New("dial tcp: refused")})
	var n atomic.Int32
	r.Every(5*time.Millisecond, "dispatch", func(context.Context) error {
		n.Add(1)
		return nil
	})
	waitFor(t, func() bool { return n.Load() >= 1 })
	cancel()
	r.Wait()
}

func TestLockTTLIsTwoIntervalsByDefault(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	lock := &fakeLock{}
	r := New(ctx, zap.NewNop()).WithLock(lock)
	var n atomic.Int32
	r.Every(5*time.Millisecond, "dispatch", func(context.Context) error {
		n.Add(1)
		return nil
	})
	waitFor(t, func() bool { return n.Load() >= 1 })
	cancel()
	r.Wait()

	lock.mu.Lock()
	defer lock.mu.Unlock()
	if lock.ttls[0] != 10*time.Millisecond {
		t.Fatalf("ttl %v, want 10ms", lock.ttls[0])
	}
}

func TestLeaseOutlastsSlowRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	lock := &fakeLock{}
	var running, overlaps, runs atomic.Int32
	job := func(context.Context) error {
		if running.Add(1) > 1 {
			overlaps.Add(1)
		}
		// Longer than two intervals: a ttl derived from the interval alone
		// would expire mid-run.
		time.Sleep(30 * time.Millisecond)
		running.Add(-1)
		runs.Add(1)
		return nil
	}

	a := New(ctx, zap.NewNop()).WithLock(lock)
	b := New(ctx, zap.NewNop()).WithLock(lock)
	a.EveryWithLease(5*time.Millisecond, time.Second, "dispatch", job)
	b.EveryWithLease(5*time.Millisecond, time.Second, "dispatch", job)
	waitFor(t, func() bool { return runs.Load() >= 3 })
	cancel()
	a.Wait()
	b.Wait()

	if overlaps.Load() != 0 {
		t.Fatalf("%d runs overlapped across replicas", overlaps.Load())
	}
	lock.mu.Lock()
	defer lock.mu.Unlock()
	for _, ttl := range lock.ttls {
		if ttl != time.Second {
			t.Fatalf("ttl %v, want the 1s lease", ttl)
		}
	}
}

func TestJobContextCarriesName(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := New(ctx, zap.NewNop())
	got := make(chan string, 1)
	r.Every(5*time.Millisecond, "dispatch", func(ctx context.Context) error {
		op, _ := ctxutil.Op(ctx)
		select {
		case got <- op:
		default:
		}
		return nil
	})
	if op := <-got; op != "dispatch" {
		t.Fatalf("op %q, want dispatch", op)
	}
	cancel()
	r.Wait()
}
