// Package optimizely provides the HTTP transport and authenticator for the
// Optimizely (Episerver) content delivery API.
//
// # Overview
//
// A [Client] dispatches every request through a shared [httputil.Limiter],
// so the concurrency cap holds across all endpoints and link expansions of
// a run. Each attempt runs under its own timeout; transient failures are
// retried with backoff:
//
//	client, err := optimizely.NewClient(siteURL, optimizely.Options{
//	    Limiter: httputil.NewLimiter(httputil.LimiterOptions{Concurrency: 10}),
//	    Timeout: 30 * time.Second,
//	    Retries: 3,
//	})
//	token, err := optimizely.NewAuthenticator(client, creds).Authenticate(ctx)
//	authed := client.WithHeaders(map[string]string{"Authorization": token.Header()})
//	resp, err := authed.Get(ctx, optimizely.ContentPath(42), nil)
//
// # Failure classification
//
//   - parent context done: CANCELLED, never retried
//   - attempt timeout: TIMEOUT, retried
//   - connection failure: NETWORK_ERROR, retried
//   - status >= 400: [errors.HTTPError], not retried
//   - invalid JSON body: DECODE_ERROR
//
// Every request emits SENT and then RECEIVED or ERROR log events carrying
// the number of pending requests, calls the [observability.HTTPHooks] and
// records one OpenTelemetry span.
//
// [httputil.Limiter]: github.com/matzehuels/optisource/pkg/httputil.Limiter
// [errors.HTTPError]: github.com/matzehuels/optisource/pkg/errors.HTTPError
// [observability.HTTPHooks]: github.com/matzehuels/optisource/pkg/observability.HTTPHooks
package optimizely
