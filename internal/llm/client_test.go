package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{APIKey: "sk-test", BaseURL: srv.URL, Model: "test-model"})
}

func TestComplete_ReturnsContent(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","created":1,"model":"test-model",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"hello"}}]}`)
	})

	out, err := c.Complete(context.Background(), Prompt{System: "sys", User: "usr", MaxTokens: 50})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "hello" {
		t.Fatalf("out = %q", out)
	}
	if body["model"] != "test-model" {
		t.Fatalf("model = %v", body["model"])
	}
	msgs, _ := body["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %v", body["messages"])
	}
	if body["max_completion_tokens"] != float64(50) {
		t.Fatalf("max tokens = %v", body["max_completion_tokens"])
	}
}

func TestComplete_EmptyAndUpstreamErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","created":1,"model":"m","choices":[]}`)
	})
	if _, err := c.Complete(context.Background(), Prompt{User: "x"}); !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("expected ErrEmptyCompletion, got %v", err)
	}

	calls := 0
	c = newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":{"message":"boom"}}`)
	})
	if _, err := c.Complete(context.Background(), Prompt{User: "x"}); err == nil {
		t.Fatalf("expected upstream error")
	}
	if calls != 1 {
		t.Fatalf("upstream called %d times; retries must be off", calls)
	}
}

func sseChunk(content string) string {
	return `data: {"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"content":` +
		jsonString(content) + `},"finish_reason":null}]}` + "\n\n"
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestStream_DeliversDeltas(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"{\"title\":", "\"Week\"", "}"} {
			_, _ = io.WriteString(w, sseChunk(part))
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	})

	var got []string
	out, err := c.Stream(context.Background(), Prompt{User: "x"}, func(d string) error {
		got = append(got, d)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if out != `{"title":"Week"}` || strings.Join(got, "") != out || len(got) != 3 {
		t.Fatalf("out=%q deltas=%v", out, got)
	}
}

func TestStream_CallbackErrorStops(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, sseChunk("a"))
		_, _ = io.WriteString(w, sseChunk("b"))
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	})
	stop := errors.New("client gone")
	n := 0
	_, err := c.Stream(context.Background(), Prompt{User: "x"}, func(string) error {
		n++
		return stop
	})
	if !errors.Is(err, stop) || n != 1 {
		t.Fatalf("err=%v n=%d", err, n)
	}
}

func TestStream_Empty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	})
	if _, err := c.Stream(context.Background(), Prompt{User: "x"}, nil); !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("expected ErrEmptyCompletion, got %v", err)
	}
}
