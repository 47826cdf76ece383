package source

import (
	"time"

	"github.com/matzehuels/optisource/pkg/expand"
)

// Status is the settlement of one endpoint.
type Status string

const (
	Fulfilled Status = "fulfilled"
	Rejected  Status = "rejected"
)

// FetchResult is the settled outcome of one configured endpoint.
type FetchResult struct {
	NodeName string
	Endpoint string
	Status   Status
	Data     any            // Expanded endpoint payload, nil when rejected
	Err      error          // Fetch failure when rejected
	Report   *expand.Report // Link outcomes; empty on a cache hit
	CacheHit bool
	Duration time.Duration
}

// OK reports whether the endpoint was fetched.
func (r FetchResult) OK() bool {
	return r.Status == Fulfilled
}

// Summary counts the outcome of a run.
type Summary struct {
	Succeeded  int           // Fulfilled endpoints
	Failed     int           // Rejected endpoints
	Unresolved int           // Links left as stubs across all endpoints
	CacheHits  int           // Endpoints served from the cache
	Records    int           // Records handed to the sink
	Duration   time.Duration // Wall time of the run
}

// Result is the outcome of [Runner.Run].
type Result struct {
	RunID   string
	State   State
	Results []FetchResult // One per configured endpoint, in configuration order
	Summary Summary
}

// Failed returns the rejected endpoints.
func (r *Result) Failed() []FetchResult {
	var out []FetchResult
	for _, fr := range r.Results {
		if !fr.OK() {
			out = append(out, fr)
		}
	}
	return out
}

// Lookup returns the result for nodeName.
func (r *Result) Lookup(nodeName string) (FetchResult, bool) {
	for _, fr := range r.Results {
		if fr.NodeName == nodeName {
			return fr, true
		}
	}
	return FetchResult{}, false
}

func (r *Result) summarize(start time.Time) {
	s := Summary{Duration: time.Since(start), Records: r.Summary.Records}
	for _, fr := range r.Results {
		if fr.OK() {
			s.Succeeded++
		} else {
			s.Failed++
		}
		if fr.CacheHit {
			s.CacheHits++
		}
		if fr.Report != nil {
			s.Unresolved += len(fr.Report.Unresolved())
		}
	}
	r.Summary = s
}
