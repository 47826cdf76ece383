package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix prefixes the subjects NATS publishes on.
const DefaultSubjectPrefix = "optisource"

// Publisher is the subset of *nats.Conn used by NATS.
type Publisher interface {
	Publish(subject string, data []byte) error
}

var _ Publisher = (*nats.Conn)(nil)

// NATS publishes every record as JSON on <prefix>.<nodeName>.
type NATS struct {
	pub    Publisher
	prefix string
	conn   *nats.Conn
}

// NewNATS creates a sink publishing through pub. An empty prefix uses
// DefaultSubjectPrefix.
func NewNATS(pub Publisher, prefix string) *NATS {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATS{pub: pub, prefix: prefix}
}

// ConnectNATS connects to the server at url. Close drains the connection.
func ConnectNATS(url, prefix string, opts ...nats.Option) (*NATS, error) {
	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	s := NewNATS(conn, prefix)
	s.conn = conn
	return s, nil
}

// Subject returns the subject records of nodeName are published on.
func (n *NATS) Subject(nodeName string) string {
	return n.prefix + "." + nodeName
}

// Emit publishes one message per record.
func (n *NATS) Emit(ctx context.Context, records []Record) error {
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode %s: %w", r.Key, err)
		}
		if err := n.pub.Publish(n.Subject(r.NodeName), data); err != nil {
			return fmt.Errorf("publish %s: %w", r.Key, err)
		}
	}
	return nil
}

// Close drains a connection created by ConnectNATS.
func (n *NATS) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Drain()
}
