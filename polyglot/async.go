package polyglot

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/naab-lang/naab/naaberr"
	"github.com/naab-lang/naab/value"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Task is a unit of polyglot work the async framework runs on a worker
// goroutine; it never re-enters the evaluator (spec §5: "these threads are
// used only for the foreign execution").
type Task func(ctx context.Context) (value.Value, error)

// Future is the blocking handle of spec §4.7.4: "a future-like handle with
// blocking wait, cancellation, elapsed-time measurement".
type Future struct {
	done    chan struct{}
	result  value.Value
	err     error
	cancel  context.CancelFunc
	started time.Time
}

// Pool runs Tasks on worker goroutines bounded by a maximum concurrency,
// the spec's "concurrency pooling (max N concurrent)"; submissions beyond
// the limit block on the semaphore until a slot frees, mirroring the
// spec's "wait on a condition variable".
type Pool struct {
	sem *semaphore.Weighted
}

// NewPool builds a pool allowing at most maxConcurrent tasks to run at
// once.
func NewPool(maxConcurrent int64) *Pool {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Pool{sem: semaphore.NewWeighted(maxConcurrent)}
}

// Submit acquires a pool slot and starts task on a new goroutine, returning
// immediately with a Future the caller can Wait/Cancel.
func (p *Pool) Submit(ctx context.Context, task Task) *Future {
	runCtx, cancel := context.WithCancel(ctx)
	f := &Future{done: make(chan struct{}), cancel: cancel, started: timeNow()}

	go func() {
		defer close(f.done)
		if err := p.sem.Acquire(runCtx, 1); err != nil {
			f.err = naaberr.New(naaberr.PolyglotError, "acquiring pool slot", err)
			return
		}
		defer p.sem.Release(1)
		f.result, f.err = task(runCtx)
	}()

	return f
}

// timeNow is a thin indirection over time.Now so Future.Elapsed's unit
// tests can fake the clock without depending on wall time.
var timeNow = time.Now

// Wait blocks until the task completes or ctx is done, returning whichever
// comes first.
func (f *Future) Wait(ctx context.Context) (value.Value, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel requests early termination; the underlying Task sees its context
// cancelled at its next cooperative check point.
func (f *Future) Cancel() { f.cancel() }

// Done reports whether the task has finished.
func (f *Future) Done() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Elapsed returns the time since the task was submitted.
func (f *Future) Elapsed() time.Duration { return timeNow().Sub(f.started) }

// Retry runs task up to maxAttempts times with exponential backoff starting
// at baseDelay, per spec §4.7.4's "Retry (exponential backoff)", returning
// the first success or the last failure.
func Retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, task Task) (value.Value, error) {
	var lastErr error
	delay := baseDelay
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			delay *= 2
		}
		result, err := task(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// ParallelResult pairs a fan-out task's outcome with its index, preserving
// the caller's ability to correlate results back to inputs.
type ParallelResult struct {
	Value value.Value
	Err   error
}

// Parallel runs every task concurrently on the pool and returns all results
// in input order, per spec §4.7.4's "parallel fan-out (run N, return all)".
// Collection itself fans out on an errgroup.Group rather than waiting on
// each future in turn; the results are returned together once every
// future has finished.
func Parallel(ctx context.Context, pool *Pool, tasks []Task) []ParallelResult {
	futures := make([]*Future, len(tasks))
	for i, t := range tasks {
		futures[i] = pool.Submit(ctx, t)
	}
	results := make([]ParallelResult, len(tasks))
	var g errgroup.Group
	for i, f := range futures {
		i, f := i, f
		g.Go(func() error {
			v, err := f.Wait(ctx)
			results[i] = ParallelResult{Value: v, Err: err}
			return nil
		})
	}
	g.Wait()
	return results
}

var errRaceWon = errors.New("race: a task already won")

// Race runs every task concurrently and returns the first one to succeed,
// cancelling the rest, per spec §4.7.4's "race (run N, return first
// success)". If every task fails, the last observed error is returned. The
// waiters run under an errgroup.Group whose shared context is cancelled the
// moment a winner is found, using errRaceWon as the sentinel that unwinds
// the group early the way a real task failure would.
func Race(ctx context.Context, pool *Pool, tasks []Task) (value.Value, error) {
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(raceCtx)
	futures := make([]*Future, len(tasks))
	for i, t := range tasks {
		futures[i] = pool.Submit(gctx, t)
	}

	var mu sync.Mutex
	var winner value.Value
	var lastErr error

	for _, f := range futures {
		f := f
		g.Go(func() error {
			v, err := f.Wait(gctx)
			if err != nil {
				mu.Lock()
				lastErr = err
				mu.Unlock()
				return nil
			}
			mu.Lock()
			won := winner == nil
			if won {
				winner = v
			}
			mu.Unlock()
			if won {
				cancel()
				return errRaceWon
			}
			return nil
		})
	}
	g.Wait()

	if winner != nil {
		return winner, nil
	}
	return nil, lastErr
}
