package llmclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"knowledge-agent/config"
	"knowledge-agent/web/types"

	"go.uber.org/zap"
)

func testConfig() *config.Config {
	return &config.Config{
		MaxRetries:            2,
		RetryDelaySeconds:     time.Millisecond,
		LLMRequestTimeout:     5 * time.Second,
		LLMBackoffMaxSeconds:  5 * time.Millisecond,
		LLMBackoffJitterRatio: 0.1,
	}
}

func chatMessages() []types.LLMMessage {
	return []types.LLMMessage{
		{Role: "system", Content: "You are helpful."},
		{Role: "user", Content: "hello"},
	}
}

func TestChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req struct {
			Model    string             `json:"model"`
			Messages []types.LLMMessage `json:"messages"`
			Stream   bool               `json:"stream"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request: %v", err)
		}
		if req.Stream {
			t.Error("non-streaming call must not set stream")
		}
		if req.Model != "default" {
			t.Errorf("model = %q", req.Model)
		}
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"hi there"}}]}`)
	}))
	defer server.Close()

	c := New(testConfig(), zap.NewNop())
	got, err := c.Chat(context.Background(), server.URL, "default", chatMessages(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "hi there" {
		t.Errorf("content = %q", got)
	}
}

func TestChatContextWindowExceeded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "the request exceeds the available context size", http.StatusBadRequest)
	}))
	defer server.Close()

	c := New(testConfig(), zap.NewNop())
	_, err := c.Chat(context.Background(), server.URL, "default", chatMessages(), nil)
	if !errors.Is(err, ErrContextWindowExceeded) {
		t.Errorf("err = %v, want ErrContextWindowExceeded", err)
	}
}

func TestChatRetriesOnUnavailable(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			http.Error(w, "loading model", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"ready now"}}]}`)
	}))
	defer server.Close()

	c := New(testConfig(), zap.NewNop())
	got, err := c.Chat(context.Background(), server.URL, "default", chatMessages(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ready now" {
		t.Errorf("content = %q", got)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestChatStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, delta := range []string{"Hel", "lo ", "world"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q},\"index\":0}]}\n", delta)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n")
	}))
	defer server.Close()

	c := New(testConfig(), zap.NewNop())
	deltas, err := c.ChatStream(context.Background(), server.URL, "default", chatMessages(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var answer string
	for delta := range deltas {
		answer += delta
	}
	if answer != "Hello world" {
		t.Errorf("answer = %q", answer)
	}
}

func TestChatStreamSkipsMalformedLines(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {not json\n")
		fmt.Fprint(w, ": keep-alive\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"ok\"},\"index\":0}]}\n")
		fmt.Fprint(w, "data: [DONE]\n")
	}))
	defer server.Close()

	c := New(testConfig(), zap.NewNop())
	deltas, err := c.ChatStream(context.Background(), server.URL, "default", chatMessages(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var answer string
	for delta := range deltas {
		answer += delta
	}
	if answer != "ok" {
		t.Errorf("answer = %q", answer)
	}
}

func TestEmbed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("path = %s", r.URL.Path)
		}
		fmt.Fprint(w, `[{"embedding":[[0.1,0.2,0.3]]}]`)
	}))
	defer server.Close()

	c := New(testConfig(), zap.NewNop())
	embedding, err := c.Embed(context.Background(), server.URL, "some chunk text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(embedding) != 3 || embedding[0] != 0.1 {
		t.Errorf("embedding = %v", embedding)
	}
}

func TestEmbedEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	}))
	defer server.Close()

	c := New(testConfig(), zap.NewNop())
	if _, err := c.Embed(context.Background(), server.URL, "text"); err == nil {
		t.Error("expected an error for an empty embedding response")
	}
}
