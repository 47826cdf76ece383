// Package config holds the options of a sourcing run.
//
// A [Config] is usually built by the host from its plugin options with
// [FromMap], or read from disk with [Load]. Durations are expressed in
// milliseconds to match the options accepted by the content API plugin.
//
//	cfg, err := config.Load("optisource.toml")
//	if err != nil {
//	    return err
//	}
//	runner, err := source.NewRunner(cfg, source.Options{})
package config

import (
	"sort"
	"time"

	"github.com/matzehuels/optisource/pkg/cache"
	errs "github.com/matzehuels/optisource/pkg/errors"
)

// Defaults applied by [Config.WithDefaults].
const (
	DefaultGrantType           = "password"
	DefaultClientID            = "Default"
	DefaultRequestTimeout      = 30_000
	DefaultRequestConcurrency  = 20
	DefaultRequestRetries      = 3
	DefaultRequestRetryBackoff = 500
	DefaultExpandMaxDepth      = 8
	DefaultCacheTTL            = int(cache.DefaultTTL / time.Millisecond)
	DefaultLogLevel            = "info"
)

// Auth holds the credentials exchanged for a bearer token.
type Auth struct {
	SiteURL   string            `mapstructure:"site_url" json:"site_url"`
	Username  string            `mapstructure:"username" json:"username"`
	Password  string            `mapstructure:"password" json:"-"`
	GrantType string            `mapstructure:"grant_type" json:"grant_type"`
	ClientID  string            `mapstructure:"client_id" json:"client_id"`
	Headers   map[string]string `mapstructure:"headers" json:"headers,omitempty"`
}

// Endpoint describes one path to fetch and the node name its results carry.
type Endpoint struct {
	NodeName string `mapstructure:"nodeName" json:"nodeName"`
	Endpoint string `mapstructure:"endpoint" json:"endpoint"`
	Schema   string `mapstructure:"schema" json:"schema,omitempty"`
}

// Config is the complete set of run options.
type Config struct {
	Auth      Auth       `mapstructure:"auth" json:"auth"`
	Endpoints []Endpoint `mapstructure:"endpoints" json:"endpoints"`

	RequestTimeout          int `mapstructure:"request_timeout" json:"request_timeout"`
	RequestThrottleInterval int `mapstructure:"request_throttle_interval" json:"request_throttle_interval"`
	RequestDebounceInterval int `mapstructure:"request_debounce_interval" json:"request_debounce_interval"`
	RequestConcurrency      int `mapstructure:"request_concurrency" json:"request_concurrency"`
	RequestRetries          int `mapstructure:"request_retries" json:"request_retries"`
	RequestRetryBackoff     int `mapstructure:"request_retry_backoff" json:"request_retry_backoff"`

	ExpandMaxDepth int `mapstructure:"expand_max_depth" json:"expand_max_depth"`

	CacheTTL   int    `mapstructure:"cache_ttl" json:"cache_ttl"`
	RequireAll bool   `mapstructure:"require_all" json:"require_all"`
	Refresh    bool   `mapstructure:"refresh" json:"-"`
	LogLevel   string `mapstructure:"log_level" json:"-"`

	// retriesSet records an explicit request_retries of 0.
	retriesSet bool
}

// WithDefaults returns a copy of c with every unset option filled in.
func (c Config) WithDefaults() Config {
	if c.Auth.GrantType == "" {
		c.Auth.GrantType = DefaultGrantType
	}
	if c.Auth.ClientID == "" {
		c.Auth.ClientID = DefaultClientID
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.RequestConcurrency <= 0 {
		c.RequestConcurrency = DefaultRequestConcurrency
	}
	if c.RequestRetries == 0 && !c.retriesSet {
		c.RequestRetries = DefaultRequestRetries
	}
	if c.RequestRetryBackoff <= 0 {
		c.RequestRetryBackoff = DefaultRequestRetryBackoff
	}
	if c.ExpandMaxDepth <= 0 {
		c.ExpandMaxDepth = DefaultExpandMaxDepth
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	return c
}

// Validate reports the first problem that would prevent a run.
func (c Config) Validate() error {
	if c.Auth.SiteURL == "" {
		return errs.New(errs.ErrCodeInvalidConfig, "the `auth.site_url` is required")
	}
	if err := errs.ValidateSiteURL(c.Auth.SiteURL); err != nil {
		return err
	}
	if c.Auth.Username == "" {
		return errs.New(errs.ErrCodeInvalidConfig, "the `auth.username` is required")
	}
	if c.Auth.Password == "" {
		return errs.New(errs.ErrCodeInvalidConfig, "the `auth.password` is required")
	}
	if len(c.Endpoints) == 0 {
		return errs.New(errs.ErrCodeInvalidConfig, "the `endpoints` object is required")
	}

	seen := make(map[string]bool, len(c.Endpoints))
	for _, ep := range c.Endpoints {
		if err := errs.ValidateNodeName(ep.NodeName); err != nil {
			return err
		}
		if err := errs.ValidateEndpointPath(ep.Endpoint); err != nil {
			return errs.Wrap(errs.ErrCodeInvalidConfig, err, "endpoint %s", ep.NodeName)
		}
		if seen[ep.NodeName] {
			return errs.New(errs.ErrCodeInvalidConfig, "duplicate node name %q", ep.NodeName)
		}
		seen[ep.NodeName] = true
	}

	for name, v := range map[string]int{
		"request_timeout":           c.RequestTimeout,
		"request_throttle_interval": c.RequestThrottleInterval,
		"request_debounce_interval": c.RequestDebounceInterval,
		"request_concurrency":       c.RequestConcurrency,
		"request_retries":           c.RequestRetries,
		"request_retry_backoff":     c.RequestRetryBackoff,
		"expand_max_depth":          c.ExpandMaxDepth,
		"cache_ttl":                 c.CacheTTL,
	} {
		if v < 0 {
			return errs.New(errs.ErrCodeInvalidConfig, "the `%s` option cannot be negative", name)
		}
	}
	return nil
}

// Hash returns a stable digest of everything that influences fetched data.
// The password and run-local switches are excluded, so rotating credentials
// keeps cached content valid.
func (c Config) Hash() string {
	eps := append([]Endpoint(nil), c.Endpoints...)
	sort.Slice(eps, func(i, j int) bool { return eps[i].NodeName < eps[j].NodeName })

	h, _ := cache.HashValue(struct {
		Auth           Auth       `json:"auth"`
		Endpoints      []Endpoint `json:"endpoints"`
		ExpandMaxDepth int        `json:"expand_max_depth"`
	}{c.Auth, eps, c.ExpandMaxDepth})
	return h
}

// Timeout is the per-attempt request timeout.
func (c Config) Timeout() time.Duration { return ms(c.RequestTimeout) }

// ThrottleInterval is the minimum spacing between two request admissions.
// It applies to every request, contended or not.
func (c Config) ThrottleInterval() time.Duration { return ms(c.RequestThrottleInterval) }

// DebounceInterval delays freeing a concurrency slot after a request completes.
func (c Config) DebounceInterval() time.Duration { return ms(c.RequestDebounceInterval) }

// RetryBackoff is the delay before the first retry.
func (c Config) RetryBackoff() time.Duration { return ms(c.RequestRetryBackoff) }

// TTL is how long fetched content stays cached.
func (c Config) TTL() time.Duration { return ms(c.CacheTTL) }

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}
