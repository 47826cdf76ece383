package sink

import (
	"context"
	"encoding/json"
	"io"
	"sync"
)

// Writer emits records as JSON lines.
type Writer struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewWriter creates a Writer on w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: json.NewEncoder(w)}
}

// Emit writes one line per record.
func (w *Writer) Emit(ctx context.Context, records []Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}
