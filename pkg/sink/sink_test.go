package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func sampleRecords() []Record {
	return []Record{
		{Key: "Page:/en/", NodeName: "Page", Endpoint: "/api/site", URL: "/en/", Data: map[string]any{"name": "Start"}},
		{Key: "Page:/en/about/", NodeName: "Page", Endpoint: "/api/site", URL: "/en/about/", Data: map[string]any{"name": "About"}},
	}
}

func TestWriter(t *testing.T) {
	var buf bytes.Buffer
	if err := NewWriter(&buf).Emit(context.Background(), sampleRecords()); err != nil {
		t.Fatalf("Emit() error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("wrote %d lines, want 2", len(lines))
	}
	var r Record
	if err := json.Unmarshal([]byte(lines[1]), &r); err != nil {
		t.Fatal(err)
	}
	if r.NodeName != "Page" || r.URL != "/en/about/" || r.Data["name"] != "About" {
		t.Errorf("decoded record = %+v", r)
	}
}

func TestWriterCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var buf bytes.Buffer
	if err := NewWriter(&buf).Emit(ctx, sampleRecords()); !errors.Is(err, context.Canceled) {
		t.Errorf("Emit() error = %v, want context.Canceled", err)
	}
	if buf.Len() != 0 {
		t.Error("cancelled emit should write nothing")
	}
}

type fakeCollection struct {
	filters []any
	docs    []any
	upsert  bool
	err     error
}

func (c *fakeCollection) ReplaceOne(_ context.Context, filter any, doc any, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.filters = append(c.filters, filter)
	c.docs = append(c.docs, doc)
	for _, o := range opts {
		if o.Upsert != nil {
			c.upsert = *o.Upsert
		}
	}
	return &mongo.UpdateResult{UpsertedCount: 1}, nil
}

func TestMongoUpsertsByKey(t *testing.T) {
	coll := &fakeCollection{}
	if err := NewMongo(coll).Emit(context.Background(), sampleRecords()); err != nil {
		t.Fatalf("Emit() error: %v", err)
	}

	if len(coll.docs) != 2 || !coll.upsert {
		t.Fatalf("docs = %d upsert = %v", len(coll.docs), coll.upsert)
	}
	filter, ok := coll.filters[0].(bson.D)
	if !ok || filter[0].Key != "_id" || filter[0].Value != "Page:/en/" {
		t.Errorf("filter = %#v", coll.filters[0])
	}

	raw, err := bson.Marshal(coll.docs[0])
	if err != nil {
		t.Fatalf("bson.Marshal() error: %v", err)
	}
	var doc bson.M
	_ = bson.Unmarshal(raw, &doc)
	if doc["_id"] != "Page:/en/" || doc["nodeName"] != "Page" {
		t.Errorf("document = %v", doc)
	}
}

func TestMongoError(t *testing.T) {
	coll := &fakeCollection{err: errors.New("write concern")}
	if err := NewMongo(coll).Emit(context.Background(), sampleRecords()); err == nil {
		t.Error("Emit() should fail")
	}
	if err := NewMongo(coll).Close(context.Background()); err != nil {
		t.Errorf("Close() without client = %v", err)
	}
}

type fakePublisher struct {
	subjects []string
	payloads [][]byte
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return nil
}

func TestNATSPublishesPerNode(t *testing.T) {
	pub := &fakePublisher{}
	s := NewNATS(pub, "")

	records := append(sampleRecords(), Record{Key: "Menu:0", NodeName: "Menu", Data: map[string]any{}})
	if err := s.Emit(context.Background(), records); err != nil {
		t.Fatalf("Emit() error: %v", err)
	}

	want := []string{"optisource.Page", "optisource.Page", "optisource.Menu"}
	for i, subj := range want {
		if pub.subjects[i] != subj {
			t.Errorf("subject[%d] = %s, want %s", i, pub.subjects[i], subj)
		}
	}
	var r Record
	if err := json.Unmarshal(pub.payloads[0], &r); err != nil || r.Key != "Page:/en/" {
		t.Errorf("payload = %s (%v)", pub.payloads[0], err)
	}
	if NewNATS(pub, "cms").Subject("Page") != "cms.Page" {
		t.Error("custom prefix not applied")
	}
}

func TestMulti(t *testing.T) {
	var got []int
	first := Func(func(_ context.Context, r []Record) error { got = append(got, len(r)); return errors.New("first") })
	second := Func(func(_ context.Context, r []Record) error { got = append(got, len(r)); return nil })

	err := Multi(first, Discard, second).Emit(context.Background(), sampleRecords())
	if err == nil || !strings.Contains(err.Error(), "first") {
		t.Errorf("Emit() error = %v", err)
	}
	if len(got) != 2 || got[1] != 2 {
		t.Errorf("sinks called = %v, want both", got)
	}
}
