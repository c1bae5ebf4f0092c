package stream

import (
	"context"
	"fmt"
	"net/http"
	"sync"
)

// Writer serializes events onto an SSE response body. Writes are mutex
// guarded so the pipeline goroutine and the handler can share one writer.
type Writer struct {
	w  http.ResponseWriter
	mu sync.Mutex
}

func NewWriter(w http.ResponseWriter) *Writer {
	return &Writer{w: w}
}

// Send writes one event as a "data: <json>" line and flushes it to the
// client. It refuses to write once ctx is done so a disconnected client
// stops the stream promptly.
func (sw *Writer) Send(ctx context.Context, e Event) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	payload, err := EncodeEvent(e)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(sw.w, "data: %s\n\n", payload); err != nil {
		return err
	}

	if flusher, ok := sw.w.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}
