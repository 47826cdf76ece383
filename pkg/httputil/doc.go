// Package httputil provides request plumbing shared by the CMS client.
//
// # Overview
//
// This package provides the infrastructure every outbound call goes through:
//
//   - [Limiter]: bounded concurrency with throttle and debounce intervals
//   - [Retry]: automatic retry with exponential backoff
//
// # Limiter
//
// [Limiter] caps the number of requests in flight. A caller that finds no
// free slot is logged as THROTTLED and waits, FIFO by arrival, until an
// earlier request releases its slot:
//
//	l := httputil.NewLimiter(httputil.LimiterOptions{Concurrency: 10})
//	release, err := l.Acquire(ctx, "GET /api/episerver/v2.0/content/5")
//	if err != nil {
//	    return err // CANCELLED
//	}
//	defer release()
//
// A throttle interval spaces every admission apart, whether or not the
// caller had to wait for a slot; a debounce interval delays
// the moment a released slot becomes reusable.
//
// # Retry
//
// [Retry] wraps an operation with bounded retry for transient failures.
// Only errors wrapped with [RetryableError] are retried; everything else is
// returned immediately:
//
//	err := httputil.Retry(ctx, 4, 500*time.Millisecond, func() error {
//	    return doRequest()
//	})
//
// There is no unbounded retry: exhaustion returns the last error.
package httputil
