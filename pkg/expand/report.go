package expand

import (
	"errors"
	"sort"
)

// Status is the result variant of one link resolution.
type Status int

const (
	Resolved Status = iota
	Unresolved
)

func (s Status) String() string {
	if s == Resolved {
		return "resolved"
	}
	return "unresolved"
}

// Outcome records what happened to one content link.
type Outcome struct {
	Path   string         // Location in the tree, e.g. "contentBlocks[0].contentLink.expanded.images[2]"
	Field  string         // Known field holding the link ("" for top-level items)
	LinkID int            // contentLink.id
	Status Status         // Resolved or Unresolved
	Item   map[string]any // Merged item, or the untouched stub when unresolved
	Err    error          // *errors.ExpansionError when unresolved
}

// Report collects the outcomes of one Expand call, ordered by path.
type Report struct {
	Outcomes []Outcome
}

// Resolved returns the outcomes whose link was merged.
func (r *Report) Resolved() []Outcome {
	return r.filter(Resolved)
}

// Unresolved returns the outcomes whose link was left as a stub.
func (r *Report) Unresolved() []Outcome {
	return r.filter(Unresolved)
}

// Err joins the errors of all unresolved links, or returns nil.
func (r *Report) Err() error {
	var all []error
	for _, o := range r.Outcomes {
		if o.Err != nil {
			all = append(all, o.Err)
		}
	}
	return errors.Join(all...)
}

func (r *Report) filter(s Status) []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Status == s {
			out = append(out, o)
		}
	}
	return out
}

func (r *Report) sort() {
	sort.SliceStable(r.Outcomes, func(i, j int) bool {
		return r.Outcomes[i].Path < r.Outcomes[j].Path
	})
}
