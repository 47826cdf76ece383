// Package expand resolves content links in content delivery API responses.
//
// Content returned by an endpoint references other content through link
// stubs such as {"contentLink": {"id": 5}}. An [Expander] walks the fields
// listed in the field table (see [Lookup]), fetches every unresolved stub
// through a [Resolver] and merges the fetched content into the tree:
//
//   - block containers (contentBlocks, contentBlocksTop, contentBlocksBottom)
//     receive fetched content under contentLink.expanded
//   - link lists and single links are shallow-merged, fetched fields winning
//
// Merged content is walked again, so links resolve to any depth. A link whose
// id already appears among its ancestors is a cycle, and nesting deeper than
// Options.MaxDepth is refused; both leave the stub in place as Unresolved.
//
// Siblings expand concurrently and fail independently. Every link ends up
// either Resolved or Unresolved in the returned [Report]. The same id is
// fetched at most once per node name for the lifetime of an Expander.
package expand

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	errs "github.com/matzehuels/optisource/pkg/errors"
	"github.com/matzehuels/optisource/pkg/observability"
)

// DefaultMaxDepth bounds how many links deep expansion follows.
const DefaultMaxDepth = 8

// Resolver fetches one content item by its content link id.
type Resolver interface {
	Resolve(ctx context.Context, id int) (any, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, id int) (any, error)

// Resolve calls f(ctx, id).
func (f ResolverFunc) Resolve(ctx context.Context, id int) (any, error) {
	return f(ctx, id)
}

// Options configures an [Expander].
type Options struct {
	MaxDepth int                    // Maximum nested link depth (default: 8)
	Logger   *log.Logger            // EXPANDED / UNRESOLVED events (default: log.Default())
	Hooks    observability.RunHooks // Link events (default: the registered run hooks)
}

// Expander resolves content links. It is safe for concurrent use and
// remembers every fetched id, including failures, until discarded.
type Expander struct {
	resolver Resolver
	maxDepth int
	logger   *log.Logger
	hooks    observability.RunHooks

	group singleflight.Group
	mu    sync.Mutex
	memo  map[memoKey]fetched
}

type memoKey struct {
	nodeName string
	id       int
}

type fetched struct {
	data any
	err  error
}

// New creates an Expander that fetches through resolver.
func New(resolver Resolver, opts Options) *Expander {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Expander{
		resolver: resolver,
		maxDepth: opts.MaxDepth,
		logger:   opts.Logger,
		hooks:    opts.Hooks,
		memo:     make(map[memoKey]fetched),
	}
}

// Expand returns a copy of data with every reachable content link resolved.
// data is not modified. Top-level arrays are treated like a link list:
// elements that are bare stubs are fetched and merged.
func (e *Expander) Expand(ctx context.Context, nodeName string, data any) (any, *Report) {
	w := &walk{Expander: e, nodeName: nodeName, report: &Report{}}

	out := deepCopy(data)
	switch v := out.(type) {
	case []any:
		var g errgroup.Group
		for i := range v {
			g.Go(func() error {
				v[i] = w.link(ctx, "", v[i], "["+strconv.Itoa(i)+"]", nil, 0)
				return nil
			})
		}
		_ = g.Wait()
	case map[string]any:
		w.item(ctx, v, "", nil, 0)
	}

	w.report.sort()
	return out, w.report
}

// walk is the state of one Expand call.
type walk struct {
	*Expander
	nodeName string

	reportMu sync.Mutex
	report   *Report
}

// item expands the known fields of obj and the content under its
// contentLink.expanded. Each goroutine owns the element it expands; map
// assignments on obj happen after the group is joined.
func (w *walk) item(ctx context.Context, obj map[string]any, path string, ancestors []int, depth int) {
	var g errgroup.Group

	names := make([]string, 0, len(obj))
	for name := range obj {
		if _, ok := Lookup(name); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	kinds := make([]Kind, len(names))
	singles := make([]any, len(names))
	for n, name := range names {
		kind, _ := Lookup(name)
		kind = shape(kind, obj[name])
		kinds[n] = kind
		fieldPath := join(path, name)

		switch kind {
		case ArrayOfItems:
			arr, _ := obj[name].([]any)
			for i, el := range arr {
				block, ok := el.(map[string]any)
				if !ok {
					continue
				}
				g.Go(func() error {
					w.block(ctx, name, block, index(fieldPath, i), ancestors, depth)
					return nil
				})
			}
		case ArrayOfLinks:
			arr, _ := obj[name].([]any)
			for i := range arr {
				g.Go(func() error {
					arr[i] = w.link(ctx, name, arr[i], index(fieldPath, i), ancestors, depth)
					return nil
				})
			}
		case Single:
			if _, ok := obj[name].(map[string]any); !ok {
				singles[n] = obj[name]
				continue
			}
			el := obj[name]
			g.Go(func() error {
				singles[n] = w.link(ctx, name, el, fieldPath, ancestors, depth)
				return nil
			})
		}
	}

	if expanded := expandedOf(obj); expanded != nil {
		g.Go(func() error {
			w.item(ctx, expanded, join(path, "contentLink.expanded"), ancestors, depth)
			return nil
		})
	}

	_ = g.Wait()

	for n, name := range names {
		if kinds[n] == Single {
			obj[name] = singles[n]
		}
	}
}

// shape reconciles the table kind of a field with the value it holds. A
// lone object is merged as a single link, and an array under a single-link
// field is treated as a link list.
func shape(kind Kind, v any) Kind {
	switch v.(type) {
	case map[string]any:
		return Single
	case []any:
		if kind == Single {
			return ArrayOfLinks
		}
	}
	return kind
}

// block resolves a content block. A block is resolved once it carries
// contentLink.expanded; otherwise its link is fetched into that slot.
func (w *walk) block(ctx context.Context, field string, block map[string]any, path string, ancestors []int, depth int) {
	if expandedOf(block) != nil {
		w.item(ctx, block, path, ancestors, depth)
		return
	}
	id, ok := linkID(block)
	if !ok {
		return
	}

	content, err := w.resolve(ctx, id, ancestors, depth)
	if err != nil {
		w.unresolved(ctx, field, id, path, block, err)
		return
	}

	link := block["contentLink"].(map[string]any)
	link["expanded"] = content
	w.resolved(ctx, field, id, path, block)
	w.item(ctx, block, path, withAncestor(ancestors, id), depth+1)
}

// link resolves one element of a link list or a single link field and
// returns the value to store in its place.
func (w *walk) link(ctx context.Context, field string, el any, path string, ancestors []int, depth int) any {
	stub, ok := el.(map[string]any)
	if !ok {
		return el
	}
	id, hasID := linkID(stub)
	if !isStub(stub) || !hasID {
		w.item(ctx, stub, path, ancestors, depth)
		return stub
	}

	content, err := w.resolve(ctx, id, ancestors, depth)
	if err != nil {
		w.unresolved(ctx, field, id, path, stub, err)
		return stub
	}

	merged := make(map[string]any, len(stub)+len(content))
	for k, v := range stub {
		merged[k] = v
	}
	for k, v := range content {
		merged[k] = v
	}
	w.resolved(ctx, field, id, path, merged)
	w.item(ctx, merged, path, withAncestor(ancestors, id), depth+1)
	return merged
}

// resolve fetches link id and returns a private copy of its content object.
func (w *walk) resolve(ctx context.Context, id int, ancestors []int, depth int) (map[string]any, error) {
	if slices.Contains(ancestors, id) {
		return nil, fmt.Errorf("content %d links back to itself", id)
	}
	if depth >= w.maxDepth {
		return nil, fmt.Errorf("maximum expansion depth %d reached", w.maxDepth)
	}

	data, err := w.fetch(ctx, w.nodeName, id)
	if err != nil {
		return nil, err
	}
	obj := firstObject(data)
	if obj == nil {
		return nil, errs.New(errs.ErrCodeDecode, "content %d: response holds no content item", id)
	}
	return deepCopy(obj).(map[string]any), nil
}

// fetch returns the memoized response for (nodeName, id), calling the
// resolver at most once per key.
func (e *Expander) fetch(ctx context.Context, nodeName string, id int) (any, error) {
	key := memoKey{nodeName: nodeName, id: id}
	if f, ok := e.lookup(key); ok {
		return f.data, f.err
	}

	v, err, _ := e.group.Do(nodeName+"/"+strconv.Itoa(id), func() (any, error) {
		if f, ok := e.lookup(key); ok {
			return f.data, f.err
		}
		data, err := e.resolver.Resolve(ctx, id)
		e.mu.Lock()
		e.memo[key] = fetched{data: data, err: err}
		e.mu.Unlock()
		return data, err
	})
	return v, err
}

func (e *Expander) lookup(key memoKey) (fetched, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, ok := e.memo[key]
	return f, ok
}

func (e *Expander) runHooks() observability.RunHooks {
	if e.hooks != nil {
		return e.hooks
	}
	return observability.Run()
}

func (w *walk) resolved(ctx context.Context, field string, id int, path string, item map[string]any) {
	w.logger.Info("EXPANDED", "node", w.nodeName, "field", field, "id", id, "url", linkURL(item))
	w.runHooks().OnLinkExpanded(ctx, w.nodeName, field, nil)
	w.record(Outcome{Path: path, Field: field, LinkID: id, Status: Resolved, Item: item})
}

func (w *walk) unresolved(ctx context.Context, field string, id int, path string, stub map[string]any, cause error) {
	err := &errs.ExpansionError{Field: field, LinkID: id, Err: cause}
	w.logger.Warn("UNRESOLVED", "node", w.nodeName, "field", field, "id", id, "error", cause)
	w.runHooks().OnLinkExpanded(ctx, w.nodeName, field, err)
	w.record(Outcome{Path: path, Field: field, LinkID: id, Status: Unresolved, Item: stub, Err: err})
}

func (w *walk) record(o Outcome) {
	w.reportMu.Lock()
	defer w.reportMu.Unlock()
	w.report.Outcomes = append(w.report.Outcomes, o)
}

// isStub reports whether m carries nothing but link bookkeeping.
func isStub(m map[string]any) bool {
	for k := range m {
		if !stubKeys[k] {
			return false
		}
	}
	return true
}

// linkID extracts an integral contentLink.id.
func linkID(m map[string]any) (int, bool) {
	link, ok := m["contentLink"].(map[string]any)
	if !ok {
		return 0, false
	}
	switch id := link["id"].(type) {
	case float64:
		if id != math.Trunc(id) {
			return 0, false
		}
		return int(id), true
	case int:
		return id, true
	case int64:
		return int(id), true
	case json.Number:
		n, err := id.Int64()
		return int(n), err == nil
	}
	return 0, false
}

func linkURL(m map[string]any) string {
	link, _ := m["contentLink"].(map[string]any)
	url, _ := link["url"].(string)
	return url
}

func expandedOf(m map[string]any) map[string]any {
	link, _ := m["contentLink"].(map[string]any)
	expanded, _ := link["expanded"].(map[string]any)
	return expanded
}

// firstObject returns data itself when it is an object, or the first
// element of an array response.
func firstObject(data any) map[string]any {
	switch v := data.(type) {
	case map[string]any:
		return v
	case []any:
		if len(v) > 0 {
			obj, _ := v[0].(map[string]any)
			return obj
		}
	}
	return nil
}

func withAncestor(ancestors []int, id int) []int {
	return append(ancestors[:len(ancestors):len(ancestors)], id)
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func index(path string, i int) string {
	return path + "[" + strconv.Itoa(i) + "]"
}

// deepCopy copies decoded JSON so merged content never aliases a memoized
// response or the caller's input.
func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[k] = deepCopy(x)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = deepCopy(x)
		}
		return out
	default:
		return v
	}
}
