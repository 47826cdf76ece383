// Package sink hands sourced content to node-creation collaborators.
//
// A run emits one [Record] per content item once every endpoint has
// settled. What happens to a record afterwards (id assignment, digests,
// persistence) belongs to the collaborator:
//
//   - [Writer]: JSON lines on any io.Writer
//   - [Mongo]: one upserted document per record
//   - [NATS]: one message per record on <prefix>.<nodeName>
//   - [Multi]: fan-out to several sinks
package sink

import (
	"context"
	"errors"
)

// Record is one content item ready for node creation.
type Record struct {
	Key      string         `json:"key" bson:"_id"`                     // Stable identity within a site
	NodeName string         `json:"nodeName" bson:"nodeName"`           // Node type the item belongs to
	Endpoint string         `json:"endpoint" bson:"endpoint"`           // Endpoint path the item came from
	URL      string         `json:"url,omitempty" bson:"url,omitempty"` // Lower-cased contentLink.url
	Data     map[string]any `json:"data" bson:"data"`                   // Fully expanded content
}

// Sink receives the records of a run.
type Sink interface {
	Emit(ctx context.Context, records []Record) error
}

// Func adapts a function to the Sink interface.
type Func func(ctx context.Context, records []Record) error

// Emit calls f(ctx, records).
func (f Func) Emit(ctx context.Context, records []Record) error {
	return f(ctx, records)
}

// Discard drops every record.
var Discard Sink = Func(func(context.Context, []Record) error { return nil })

type multi []Sink

// Multi returns a Sink that emits to every sink in order. All sinks are
// called even when one fails; the errors are joined.
func Multi(sinks ...Sink) Sink {
	return multi(sinks)
}

func (m multi) Emit(ctx context.Context, records []Record) error {
	var all []error
	for _, s := range m {
		if err := s.Emit(ctx, records); err != nil {
			all = append(all, err)
		}
	}
	return errors.Join(all...)
}
