// Package pkg provides the libraries of optisource, a content sourcing
// engine for the Optimizely (Episerver) content delivery API.
//
// # Overview
//
// A sourcing run authenticates against a site, fetches a set of configured
// endpoints concurrently, resolves the content links inside every payload
// and hands the expanded items to a node-creation collaborator. The pkg
// directory is organized into four areas:
//
//  1. Orchestration: [source] drives runs, [expand] resolves content links
//  2. Transport: [optimizely] talks to the API, [httputil] bounds and retries requests
//  3. Collaborators: [cache] stores fetched content, [sink] receives records
//  4. Support: [config], [errors], [observability], [buildinfo]
//
// # Architecture
//
// The data flow of one run:
//
//	config.Config
//	     ↓
//	[source] Runner (Idle → Authenticating → Authenticated)
//	     ↓
//	[optimizely] Authenticator (password grant → bearer token)
//	     ↓
//	[optimizely] Client GET per endpoint (through the [httputil] Limiter)
//	     ↓
//	[expand] Expander (content/{id}?expand=* per link stub)
//	     ↓
//	[sink] Sink (JSON lines, MongoDB, NATS)
//
// # Quick Start
//
//	cfg, err := config.Load("optisource.toml")
//	if err != nil {
//	    return err
//	}
//	fc, _ := cache.NewFileCache(".cache/optisource")
//	runner, err := source.NewRunner(cfg, source.Options{
//	    Cache: fc,
//	    Sink:  sink.NewWriter(os.Stdout),
//	})
//	if err != nil {
//	    return err
//	}
//	result, err := runner.Run(ctx)
//	if err != nil {
//	    return err
//	}
//	for _, fr := range result.Failed() {
//	    fmt.Printf("%s failed: %v\n", fr.NodeName, fr.Err)
//	}
//
// # Main Packages
//
// [source] - Sourcing runs. Authenticates once, fans out over the
// configured endpoints, isolates per-endpoint failures and emits records
// after every endpoint has settled.
//
// [expand] - Content link expansion driven by a static field table. Every
// link ends up Resolved or Unresolved in a Report; ids are fetched once per
// node name; cycles and excessive depth are refused.
//
// [optimizely] - Content delivery API client: header merging, bounded
// retries of timeouts and network errors, token exchange.
//
// [httputil] - Admission control (concurrency cap, throttle, debounce) and
// retry helpers.
//
// [cache] - Key/value stores for fetched content: zstd-compressed files,
// Redis, or none. Keys are scoped by the configuration hash.
//
// [sink] - Record collaborators: JSON lines, MongoDB upserts, NATS messages.
//
// [config] - Run options from plugin maps or TOML, YAML and JSONC files.
//
// [errors] - Coded errors shared by all packages.
//
// [observability] - Hooks for run, cache and HTTP events with a Prometheus
// implementation.
//
// # Testing
//
//	go test ./...                # All tests
//	go test ./pkg/expand/...     # Specific package
//	go test -run Example ./...   # Examples only
//
// [source]: https://pkg.go.dev/github.com/matzehuels/optisource/pkg/source
// [expand]: https://pkg.go.dev/github.com/matzehuels/optisource/pkg/expand
// [optimizely]: https://pkg.go.dev/github.com/matzehuels/optisource/pkg/optimizely
// [httputil]: https://pkg.go.dev/github.com/matzehuels/optisource/pkg/httputil
// [cache]: https://pkg.go.dev/github.com/matzehuels/optisource/pkg/cache
// [sink]: https://pkg.go.dev/github.com/matzehuels/optisource/pkg/sink
// [config]: https://pkg.go.dev/github.com/matzehuels/optisource/pkg/config
// [errors]: https://pkg.go.dev/github.com/matzehuels/optisource/pkg/errors
// [observability]: https://pkg.go.dev/github.com/matzehuels/optisource/pkg/observability
// [buildinfo]: https://pkg.go.dev/github.com/matzehuels/optisource/pkg/buildinfo
package pkg
