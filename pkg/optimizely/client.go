package optimizely

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"maps"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/matzehuels/optisource/pkg/buildinfo"
	errs "github.com/matzehuels/optisource/pkg/errors"
	"github.com/matzehuels/optisource/pkg/httputil"
	"github.com/matzehuels/optisource/pkg/observability"
)

const tracerName = "github.com/matzehuels/optisource/pkg/optimizely"

// Defaults applied by [NewClient].
const (
	DefaultTimeout      = 30 * time.Second
	DefaultRetryBackoff = 500 * time.Millisecond
)

// Options configures a [Client].
type Options struct {
	HTTPClient     *http.Client         // Round tripper (default: a new http.Client)
	Limiter        *httputil.Limiter    // Shared admission control (default: NewLimiter with defaults)
	Headers        map[string]string    // Sent with every request, over the defaults
	Timeout        time.Duration        // Per-attempt timeout (default: 30s)
	Retries        int                  // Extra attempts after a transient failure
	RetryBackoff   time.Duration        // Delay before the first retry, doubling (default: 500ms)
	Logger         *log.Logger          // Request events (default: log.Default())
	TracerProvider trace.TracerProvider // Span source (default: the global provider)
}

// Request describes one API call. URL may be absolute or relative to the
// site URL; Headers override the client's headers for this call only.
type Request struct {
	Method  string
	URL     string
	Body    []byte
	Headers map[string]string
}

// Response is a decoded API response. Data holds the JSON body as
// map[string]any, []any or a scalar, and nil for an empty body.
type Response struct {
	Status     int
	StatusText string
	Data       any
	Headers    http.Header
}

// Client sends requests to one site. Clients derived with WithHeaders
// share the HTTP client, limiter and tracer of their parent.
type Client struct {
	base    *url.URL
	http    *http.Client
	limiter *httputil.Limiter
	headers map[string]string
	timeout time.Duration
	retries int
	backoff time.Duration
	logger  *log.Logger
	tracer  trace.Tracer
}

// NewClient creates a Client for the site at siteURL.
func NewClient(siteURL string, opts Options) (*Client, error) {
	if err := errs.ValidateSiteURL(siteURL); err != nil {
		return nil, err
	}
	base, err := url.Parse(strings.TrimRight(siteURL, "/"))
	if err != nil {
		return nil, errs.Wrap(errs.ErrCodeInvalidConfig, err, "parse site url")
	}

	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Limiter == nil {
		opts.Limiter = httputil.NewLimiter(httputil.LimiterOptions{Logger: opts.Logger})
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = DefaultRetryBackoff
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}

	return &Client{
		base:    base,
		http:    opts.HTTPClient,
		limiter: opts.Limiter,
		headers: maps.Clone(opts.Headers),
		timeout: opts.Timeout,
		retries: max(opts.Retries, 0),
		backoff: opts.RetryBackoff,
		logger:  opts.Logger,
		tracer:  opts.TracerProvider.Tracer(tracerName),
	}, nil
}

// WithHeaders returns a client that also sends headers. Keys already set
// on c are overridden.
func (c *Client) WithHeaders(headers map[string]string) *Client {
	derived := *c
	derived.headers = mergeHeaders(c.headers, headers)
	return &derived
}

// Limiter returns the limiter requests are admitted through.
func (c *Client) Limiter() *httputil.Limiter { return c.limiter }

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, rawURL string, headers map[string]string) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, URL: rawURL, Headers: headers})
}

// Post performs a POST request with the given body.
func (c *Client) Post(ctx context.Context, rawURL string, body []byte, headers map[string]string) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPost, URL: rawURL, Body: body, Headers: headers})
}

// Do performs req with retries. Only GET and POST are supported; any other
// method fails with UNSUPPORTED_METHOD without being sent.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	method := strings.ToUpper(req.Method)
	if method != http.MethodGet && method != http.MethodPost {
		return nil, errs.New(errs.ErrCodeUnsupportedMethod, "unsupported request method %q", req.Method)
	}

	target, err := c.resolve(req.URL)
	if err != nil {
		return nil, err
	}

	ctx, span := c.tracer.Start(ctx, "optimizely.Do",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.full", target.String()),
		))
	defer span.End()

	var resp *Response
	err = httputil.RetryNotify(ctx, c.retries+1, c.backoff, func() error {
		r, err := c.attempt(ctx, method, target, req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	}, func(attempt int, err error, wait time.Duration) {
		c.logger.Warn("RETRY", "method", method, "url", target, "attempt", attempt, "wait", wait, "error", err)
		observability.HTTP().OnRetry(ctx, method, target.Host, target.Path, attempt, err)
	})

	if err != nil {
		err = httputil.Unretryable(err)
		if errs.GetCode(err) == "" && ctx.Err() != nil {
			err = errs.Wrap(errs.ErrCodeCancelled, err, "%s %s", method, target)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.Status))
	return resp, nil
}

// attempt sends one request through the limiter.
func (c *Client) attempt(ctx context.Context, method string, target *url.URL, req Request) (*Response, error) {
	label := method + " " + target.String()
	release, err := c.limiter.Acquire(ctx, label)
	if err != nil {
		return nil, err
	}
	defer release()

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, method, target.String(), bytes.NewReader(req.Body))
	if err != nil {
		return nil, errs.Wrap(errs.ErrCodeInternal, err, "build request")
	}
	for k, v := range mergeHeaders(defaultHeaders(), c.headers, req.Headers) {
		httpReq.Header.Set(k, v)
	}

	c.logger.Info("SENT", "method", method, "url", target, "pending", c.limiter.Pending())
	observability.HTTP().OnRequest(ctx, method, target.Host, target.Path)
	start := time.Now()

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, c.fail(ctx, method, target, c.classify(ctx, attemptCtx, method, target, err))
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, c.fail(ctx, method, target, c.classify(ctx, attemptCtx, method, target, err))
	}

	status := httpResp.StatusCode
	statusText := http.StatusText(status)
	c.logger.Info("RECEIVED", "method", method, "url", target, "status", status, "statusText", statusText,
		"pending", c.limiter.Pending(), "duration", time.Since(start).Round(time.Millisecond))
	observability.HTTP().OnResponse(ctx, method, target.Host, target.Path, status, time.Since(start))

	if status >= http.StatusBadRequest {
		return nil, &errs.HTTPError{Status: status, StatusText: statusText, URL: target.String(), Body: body}
	}

	resp := &Response{Status: status, StatusText: statusText, Headers: httpResp.Header}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &resp.Data); err != nil {
			return nil, errs.Wrap(errs.ErrCodeDecode, err, "decode %s", target)
		}
	}
	return resp, nil
}

// classify maps a transport failure onto the error taxonomy. Only timeouts
// and connection failures are retryable.
func (c *Client) classify(ctx, attemptCtx context.Context, method string, target *url.URL, err error) error {
	if ctx.Err() != nil {
		return errs.Wrap(errs.ErrCodeCancelled, ctx.Err(), "%s %s", method, target)
	}
	var netErr net.Error
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return httputil.Retryable(errs.Wrap(errs.ErrCodeTimeout, err, "%s %s timed out after %s", method, target, c.timeout))
	}
	return httputil.Retryable(errs.Wrap(errs.ErrCodeNetwork, err, "%s %s", method, target))
}

func (c *Client) fail(ctx context.Context, method string, target *url.URL, err error) error {
	c.logger.Error("ERROR", "method", method, "url", target, "pending", c.limiter.Pending(), "error", httputil.Unretryable(err))
	observability.HTTP().OnError(ctx, method, target.Host, target.Path, err)
	return err
}

// resolve turns a relative path into a URL on the site. Absolute URLs are
// used unchanged.
func (c *Client) resolve(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errs.Wrap(errs.ErrCodeInvalidConfig, err, "parse request url %q", rawURL)
	}
	if u.IsAbs() {
		return u, nil
	}
	resolved := *c.base
	resolved.Path = c.base.Path + "/" + strings.TrimLeft(u.Path, "/")
	resolved.RawPath = ""
	resolved.RawQuery = u.RawQuery
	return &resolved, nil
}

func defaultHeaders() map[string]string {
	return map[string]string{
		"Accept":       AcceptJSON,
		"Content-Type": AcceptJSON,
		"User-Agent":   buildinfo.UserAgent(),
	}
}

// mergeHeaders combines header sets; later sets win, compared
// case-insensitively.
func mergeHeaders(sets ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, set := range sets {
		for k, v := range set {
			out[http.CanonicalHeaderKey(k)] = v
		}
	}
	return out
}
