package httputil

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	errs "github.com/matzehuels/optisource/pkg/errors"
	"github.com/matzehuels/optisource/pkg/observability"
)

// DefaultConcurrency is the number of requests a [Limiter] admits at once
// when no explicit limit is configured.
const DefaultConcurrency = 20

// LimiterOptions configures a [Limiter].
type LimiterOptions struct {
	Concurrency      int           // Maximum requests in flight (default: 20)
	ThrottleInterval time.Duration // Minimum spacing between admissions (0: none)
	DebounceInterval time.Duration // Trailing delay before a released slot is reusable (0: none)
	Logger           *log.Logger   // Receives THROTTLED events (default: log.Default())
}

// Limiter bounds the number of requests in flight and smooths bursts.
//
// Admission is FIFO by arrival: a caller that finds no free slot waits
// behind earlier callers and is admitted as soon as one of them releases.
// The pending counter is the only mutable shared state and is updated
// atomically. A Limiter is safe for concurrent use.
type Limiter struct {
	sem      *semaphore.Weighted
	throttle *rate.Limiter
	debounce time.Duration
	capacity int
	pending  atomic.Int64
	logger   *log.Logger
}

// NewLimiter creates a Limiter from opts, applying defaults for zero values.
func NewLimiter(opts LimiterOptions) *Limiter {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	l := &Limiter{
		sem:      semaphore.NewWeighted(int64(opts.Concurrency)),
		debounce: opts.DebounceInterval,
		capacity: opts.Concurrency,
		logger:   opts.Logger,
	}
	if opts.ThrottleInterval > 0 {
		l.throttle = rate.NewLimiter(rate.Every(opts.ThrottleInterval), 1)
	}
	return l
}

// Capacity returns the configured concurrency limit.
func (l *Limiter) Capacity() int { return l.capacity }

// Pending returns the number of admitted requests not yet released.
func (l *Limiter) Pending() int { return int(l.pending.Load()) }

// Acquire suspends the caller until a slot is free and the throttle
// interval has elapsed since the previous admission. label identifies the
// request in log events.
//
// The returned release function must be called exactly once the request
// completes; extra calls are ignored. Acquire only fails when ctx is done,
// with a CANCELLED error, and never holds a slot in that case.
func (l *Limiter) Acquire(ctx context.Context, label string) (release func(), err error) {
	if !l.sem.TryAcquire(1) {
		pending := l.Pending()
		l.logger.Warn("THROTTLED", "request", label, "pending", pending)
		observability.HTTP().OnThrottle(ctx, label, pending)

		if err := l.sem.Acquire(ctx, 1); err != nil {
			return nil, errs.Wrap(errs.ErrCodeCancelled, err, "waiting for a request slot: %s", label)
		}
	}

	if l.throttle != nil {
		if err := l.throttle.Wait(ctx); err != nil {
			l.sem.Release(1)
			return nil, errs.Wrap(errs.ErrCodeCancelled, err, "waiting for throttle interval: %s", label)
		}
	}

	l.pending.Add(1)

	var once sync.Once
	return func() { once.Do(l.release) }, nil
}

func (l *Limiter) release() {
	if l.debounce <= 0 {
		l.free()
		return
	}
	time.AfterFunc(l.debounce, l.free)
}

func (l *Limiter) free() {
	l.pending.Add(-1)
	l.sem.Release(1)
}
