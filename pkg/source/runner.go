// Package source drives sourcing runs against a content delivery API.
//
// A [Runner] authenticates once, fetches every configured endpoint
// concurrently, expands the content links of each payload and hands the
// resulting records to a [sink.Sink]:
//
//	cfg, _ := config.Load("optisource.toml")
//	runner, err := source.NewRunner(cfg, source.Options{
//	    Cache: cache.NewNullCache(),
//	    Sink:  sink.NewWriter(os.Stdout),
//	})
//	if err != nil {
//	    return err
//	}
//	result, err := runner.Run(ctx)
//
// Endpoints fail independently: a rejected endpoint is reported in the
// [Result] while the others complete. Only an authentication failure, a
// cancelled context or, with require_all, a rejected endpoint fails the
// run as a whole.
//
// Expanded endpoint payloads and single content items are cached under
// keys scoped by the configuration hash, so any configuration change
// invalidates earlier entries.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/optisource/pkg/buildinfo"
	"github.com/matzehuels/optisource/pkg/cache"
	"github.com/matzehuels/optisource/pkg/config"
	errs "github.com/matzehuels/optisource/pkg/errors"
	"github.com/matzehuels/optisource/pkg/expand"
	"github.com/matzehuels/optisource/pkg/httputil"
	"github.com/matzehuels/optisource/pkg/observability"
	"github.com/matzehuels/optisource/pkg/optimizely"
	"github.com/matzehuels/optisource/pkg/sink"
)

const tracerName = "github.com/matzehuels/optisource/pkg/source"

// Options holds the collaborators of a [Runner]. Every field is optional.
type Options struct {
	Cache          cache.Cache            // Default: NullCache
	Keyer          cache.Keyer            // Default: DefaultKeyer
	Sink           sink.Sink              // Default: Discard
	Logger         *log.Logger            // Default: stderr at the configured log level
	HTTPClient     *http.Client           // Default: a new http.Client
	TracerProvider trace.TracerProvider   // Default: the global provider
	Hooks          observability.RunHooks // Default: the registered run hooks
}

// Runner executes sourcing runs for one configuration. Runs started on
// the same Runner share its request limiter. A Runner is safe for
// concurrent use.
type Runner struct {
	cfg     config.Config
	scope   string
	cache   cache.Cache
	keyer   cache.Keyer
	sink    sink.Sink
	logger  *log.Logger
	http    *http.Client
	tp      trace.TracerProvider
	tracer  trace.Tracer
	hooks   observability.RunHooks
	limiter *httputil.Limiter
	now     func() time.Time
}

// NewRunner validates cfg, fills in its defaults and creates a Runner.
func NewRunner(cfg config.Config, opts Options) (*Runner, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if opts.Cache == nil {
		opts.Cache = cache.NewNullCache()
	}
	if opts.Keyer == nil {
		opts.Keyer = cache.NewDefaultKeyer()
	}
	if opts.Sink == nil {
		opts.Sink = sink.Discard
	}
	if opts.Logger == nil {
		opts.Logger = newLogger(cfg.LogLevel)
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}
	if opts.Hooks == nil {
		opts.Hooks = observability.Run()
	}

	return &Runner{
		cfg:    cfg,
		scope:  cfg.Hash(),
		cache:  opts.Cache,
		keyer:  opts.Keyer,
		sink:   opts.Sink,
		logger: opts.Logger,
		http:   opts.HTTPClient,
		tp:     opts.TracerProvider,
		tracer: opts.TracerProvider.Tracer(tracerName),
		hooks:  opts.Hooks,
		limiter: httputil.NewLimiter(httputil.LimiterOptions{
			Concurrency:      cfg.RequestConcurrency,
			ThrottleInterval: cfg.ThrottleInterval(),
			DebounceInterval: cfg.DebounceInterval(),
			Logger:           opts.Logger,
		}),
		now: time.Now,
	}, nil
}

func newLogger(level string) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		Prefix:          buildinfo.Name,
		ReportTimestamp: true,
	})
	if lvl, err := log.ParseLevel(level); err == nil {
		logger.SetLevel(lvl)
	}
	return logger
}

// Config returns the effective configuration, defaults applied.
func (r *Runner) Config() config.Config { return r.cfg }

// Run performs one sourcing run. The returned Result is never nil, even
// when err is not nil.
//
// Records are emitted to the sink only after every endpoint has settled,
// and not at all when the run fails.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	runID := uuid.NewString()
	logger := r.logger.With("run", runID)

	ctx, span := r.tracer.Start(ctx, "source.Run", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.Int("run.endpoints", len(r.cfg.Endpoints)),
	))
	defer span.End()

	x := &run{
		Runner: r,
		logger: logger,
		states: newMachine(runID, logger, r.hooks),
		result: &Result{RunID: runID},
	}

	err := x.execute(ctx)

	res := x.result
	res.State = x.states.current()
	res.summarize(start)
	span.SetAttributes(
		attribute.Int("run.succeeded", res.Summary.Succeeded),
		attribute.Int("run.failed", res.Summary.Failed),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("sourcing failed", "state", res.State, "error", err)
	}
	logger.Info("sourcing complete",
		"succeeded", res.Summary.Succeeded,
		"failed", res.Summary.Failed,
		"unresolved", res.Summary.Unresolved,
		"cached", res.Summary.CacheHits,
		"records", res.Summary.Records,
		"duration", res.Summary.Duration.Round(time.Millisecond))
	r.hooks.OnRunComplete(ctx, runID, res.Summary.Succeeded, res.Summary.Failed, res.Summary.Duration)

	return res, err
}

// run is the state of one Run call.
type run struct {
	*Runner
	logger *log.Logger
	states *machine
	result *Result

	// raw holds fetched payloads awaiting expansion, by endpoint index.
	raw     []any
	pending []bool
	started []time.Time
}

func (x *run) execute(ctx context.Context) error {
	client, err := optimizely.NewClient(x.cfg.Auth.SiteURL, optimizely.Options{
		HTTPClient:     x.http,
		Limiter:        x.limiter,
		Headers:        x.cfg.Auth.Headers,
		Timeout:        x.cfg.Timeout(),
		Retries:        x.cfg.RequestRetries,
		RetryBackoff:   x.cfg.RetryBackoff(),
		Logger:         x.logger,
		TracerProvider: x.tp,
	})
	if err != nil {
		return err
	}

	x.states.to(ctx, StateAuthenticating)
	auth := optimizely.NewAuthenticator(client, optimizely.Credentials{
		Username:  x.cfg.Auth.Username,
		Password:  x.cfg.Auth.Password,
		GrantType: x.cfg.Auth.GrantType,
		ClientID:  x.cfg.Auth.ClientID,
	})
	token, err := auth.Authenticate(ctx)
	if err != nil {
		if ctx.Err() != nil {
			x.states.to(ctx, StateCancelled)
		} else {
			x.states.to(ctx, StateAuthFailed)
		}
		return err
	}
	x.states.to(ctx, StateAuthenticated)
	x.logger.Info("authenticated", "user", x.cfg.Auth.Username)

	authed := client.WithHeaders(map[string]string{"Authorization": token.Header()})

	x.states.to(ctx, StateFetching)
	x.fetchAll(ctx, authed)
	if ctx.Err() != nil {
		err := errs.Wrap(errs.ErrCodeCancelled, ctx.Err(), "run cancelled while fetching")
		x.rejectPending(ctx, err)
		x.states.to(ctx, StateCancelled)
		return err
	}

	if token.Expired(x.now()) {
		x.logger.Info("token expired, re-authenticating", "issued", token.IssuedAt, "expires_in", token.ExpiresIn)
		renewed, err := auth.Authenticate(ctx)
		if err != nil {
			x.rejectPending(ctx, err)
		} else {
			authed = client.WithHeaders(map[string]string{"Authorization": renewed.Header()})
		}
	}

	x.states.to(ctx, StateExpanding)
	x.expandAll(ctx, authed)
	if ctx.Err() != nil {
		x.states.to(ctx, StateCancelled)
		return errs.Wrap(errs.ErrCodeCancelled, ctx.Err(), "run cancelled while expanding")
	}
	x.states.to(ctx, StateCompleted)

	if x.cfg.RequireAll {
		if failed := x.result.Failed(); len(failed) > 0 {
			causes := make([]error, len(failed))
			for i, fr := range failed {
				causes[i] = fr.Err
			}
			return errs.Wrap(errs.ErrCodeEndpointFailed, errors.Join(causes...),
				"%d of %d endpoints failed", len(failed), len(x.result.Results))
		}
	}

	records := x.result.Records()
	if err := x.sink.Emit(ctx, records); err != nil {
		return errs.Wrap(errs.ErrCodeInternal, err, "emit %d records", len(records))
	}
	x.result.Summary.Records = len(records)
	return nil
}

// fetchAll settles every endpoint that can be served from the cache and
// fetches the payload of all others concurrently.
func (x *run) fetchAll(ctx context.Context, client *optimizely.Client) {
	n := len(x.cfg.Endpoints)
	x.raw = make([]any, n)
	x.pending = make([]bool, n)
	x.started = make([]time.Time, n)
	x.result.Results = make([]FetchResult, n)

	var g errgroup.Group
	for i, ep := range x.cfg.Endpoints {
		x.started[i] = time.Now()
		x.result.Results[i] = FetchResult{NodeName: ep.NodeName, Endpoint: ep.Endpoint}

		g.Go(func() error {
			if data, ok := x.cached(ctx, ep); ok {
				x.settle(ctx, i, data, &expand.Report{}, true, nil)
				return nil
			}
			resp, err := client.Get(ctx, ep.Endpoint, nil)
			if err != nil {
				x.settle(ctx, i, nil, nil, false, err)
				return nil
			}
			x.raw[i] = resp.Data
			x.pending[i] = true
			return nil
		})
	}
	_ = g.Wait()
}

// expandAll expands every fetched payload concurrently. One expander
// serves the whole run, so a content id is fetched once per node name.
func (x *run) expandAll(ctx context.Context, client *optimizely.Client) {
	exp := expand.New(&contentResolver{
		client:  client,
		cache:   x.cache,
		keyer:   x.keyer,
		scope:   x.scope,
		ttl:     x.cfg.TTL(),
		refresh: x.cfg.Refresh,
	}, expand.Options{
		MaxDepth: x.cfg.ExpandMaxDepth,
		Logger:   x.logger,
		Hooks:    x.hooks,
	})

	var g errgroup.Group
	for i, ep := range x.cfg.Endpoints {
		if !x.pending[i] {
			continue
		}
		g.Go(func() error {
			data, report := exp.Expand(ctx, ep.NodeName, x.raw[i])
			if len(report.Unresolved()) == 0 {
				x.store(ctx, ep, data)
			}
			x.settle(ctx, i, data, report, false, nil)
			return nil
		})
	}
	_ = g.Wait()
}

// rejectPending settles every fetched endpoint that was not expanded.
func (x *run) rejectPending(ctx context.Context, err error) {
	for i, pending := range x.pending {
		if pending {
			x.pending[i] = false
			x.raw[i] = nil
			x.settle(ctx, i, nil, nil, false, err)
		}
	}
}

// settle records the final outcome of endpoint i.
func (x *run) settle(ctx context.Context, i int, data any, report *expand.Report, hit bool, err error) {
	fr := &x.result.Results[i]
	fr.Duration = time.Since(x.started[i])
	fr.CacheHit = hit
	if err != nil {
		fr.Status = Rejected
		fr.Err = err
		x.logger.Error("endpoint failed", "node", fr.NodeName, "endpoint", fr.Endpoint, "error", err)
	} else {
		fr.Status = Fulfilled
		fr.Data = data
		fr.Report = report
		x.logger.Info("endpoint sourced", "node", fr.NodeName, "endpoint", fr.Endpoint,
			"cached", hit, "unresolved", len(report.Unresolved()), "duration", fr.Duration.Round(time.Millisecond))
	}
	x.hooks.OnEndpointComplete(ctx, fr.NodeName, fr.Endpoint, fr.Duration, err)
}

func (x *run) cached(ctx context.Context, ep config.Endpoint) (any, bool) {
	if x.cfg.Refresh {
		return nil, false
	}
	key := x.keyer.EndpointKey(x.scope, ep.NodeName, ep.Endpoint)
	data, hit, err := x.cache.Get(ctx, key)
	if err != nil || !hit {
		observability.Cache().OnCacheMiss(ctx, "endpoint")
		return nil, false
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		observability.Cache().OnCacheMiss(ctx, "endpoint")
		return nil, false
	}
	observability.Cache().OnCacheHit(ctx, "endpoint")
	return v, true
}

func (x *run) store(ctx context.Context, ep config.Endpoint, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	key := x.keyer.EndpointKey(x.scope, ep.NodeName, ep.Endpoint)
	if err := x.cache.Set(ctx, key, data, x.cfg.TTL()); err != nil {
		x.logger.Warn("cache write failed", "node", ep.NodeName, "error", err)
		return
	}
	observability.Cache().OnCacheSet(ctx, "endpoint", len(data))
}
