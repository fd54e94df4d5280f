package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient("test-key", server.URL)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestComplete_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"  {\"title\":\"ok\"}  "}}]}`))
	})

	got, err := client.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "hello"},
	}, Options{Model: "gpt-4o-mini", MaxTokens: 100})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != `{"title":"ok"}` {
		t.Errorf("content = %q, want trimmed body", got)
	}
}

func TestComplete_RetriesRateLimit(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	})

	got, err := client.Complete(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, Options{Model: "m"})
	if err != nil {
		t.Fatalf("Complete after 429: %v", err)
	}
	if got != "ok" {
		t.Errorf("content = %q", got)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("calls = %d, want 2 (one retry)", n)
	}
}

func TestComplete_ClientErrorNotRetried(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key"}}`))
	})

	_, err := client.Complete(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, Options{Model: "m"})
	if err == nil {
		t.Fatal("expected error for 401")
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("calls = %d, want 1 (no retry on client error)", n)
	}
}

func TestNewClient_RequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewClient("", ""); err == nil {
		t.Error("expected error when no API key is available")
	}
}
