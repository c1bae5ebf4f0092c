package stream

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriterSendFormatsFrames(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewWriter(rec)
	ctx := context.Background()

	if err := w.Send(ctx, ConversationIDEvent{ConversationID: "c1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.Send(ctx, ChunkEvent{Content: "Hello"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	body := rec.Body.String()
	wantLines := []string{
		`data: {"type":"conversation_id","conversation_id":"c1"}`,
		`data: {"type":"chunk","content":"Hello"}`,
	}
	for _, line := range wantLines {
		if !strings.Contains(body, line+"\n\n") {
			t.Errorf("body %q missing frame %q", body, line)
		}
	}
	if !rec.Flushed {
		t.Error("writer must flush after each event")
	}
}

func TestWriterRefusesAfterCancel(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewWriter(rec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := w.Send(ctx, ChunkEvent{Content: "late"}); err == nil {
		t.Error("expected an error after context cancellation")
	}
	if rec.Body.Len() != 0 {
		t.Errorf("nothing should be written after cancel, got %q", rec.Body.String())
	}
}
