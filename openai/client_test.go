package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/chrysoljq/mc-translator/config"
)

func newTestClient(baseURL string, maxRetries, retryDelaySecs int) *Client {
	cfg := config.Default()
	cfg.APIKey = "test-key"
	cfg.BaseURL = baseURL
	cfg.MaxRetries = maxRetries
	cfg.RetryDelaySeconds = retryDelaySecs
	cfg.TimeoutSeconds = 10
	return New(cfg, zerolog.Nop())
}

// chatReply wraps content into the chat/completions response shape.
func chatReply(content string) string {
	resp := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func TestTranslateTextList_Success(t *testing.T) {
	var gotSystem string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotSystem = req.Messages[0].Content
		fmt.Fprint(w, chatReply(`["你好", "世界"]`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 0, 1)
	out, err := c.TranslateTextList(context.Background(), []string{"Hello", "World"}, "mymod")
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	if out[0] != "你好" || out[1] != "世界" {
		t.Errorf("got %v", out)
	}
	if !strings.Contains(gotSystem, "mymod") {
		t.Errorf("system prompt missing mod id: %q", gotSystem)
	}
}

func TestTranslateTextList_StripsMarkdownFence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chatReply("```json\n[\"привет\"]\n```"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 0, 1)
	out, err := c.TranslateTextList(context.Background(), []string{"hello"}, "m")
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	if out[0] != "привет" {
		t.Errorf("got %v", out)
	}
}

func TestTranslateTextList_LengthMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chatReply(`["only one"]`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 0, 1)
	_, err := c.TranslateTextList(context.Background(), []string{"a", "b"}, "m")
	if !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("err = %v, want ErrLengthMismatch", err)
	}
}

func TestTranslateTextList_UnparseableContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chatReply("Sure! Here are the translations you asked for."))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 0, 1)
	_, err := c.TranslateTextList(context.Background(), []string{"a"}, "m")
	if err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSendWithRetry_AuthAndBadRequestFailFast(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusBadRequest} {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			http.Error(w, "denied", status)
		}))

		c := newTestClient(srv.URL, 5, 1)
		_, err := c.TranslateTextList(context.Background(), []string{"a"}, "m")
		srv.Close()

		if err == nil {
			t.Fatalf("status %d: expected error", status)
		}
		if errors.Is(err, ErrRetriesExhausted) {
			t.Errorf("status %d should not be retried: %v", status, err)
		}
		if got := hits.Load(); got != 1 {
			t.Errorf("status %d: %d requests, want 1", status, got)
		}
	}
}

func TestSendWithRetry_RateLimitHonorsRetryAfter(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, chatReply(`["ok"]`))
	}))
	defer srv.Close()

	// retryDelay of 30s would be the exponential fallback; if the test
	// finishes in ~1s the Retry-After header won.
	c := newTestClient(srv.URL, 3, 30)

	start := time.Now()
	out, err := c.TranslateTextList(context.Background(), []string{"a"}, "m")
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("error: %v", err)
	}
	if out[0] != "ok" {
		t.Errorf("got %v", out)
	}
	if hits.Load() != 2 {
		t.Errorf("%d requests, want 2", hits.Load())
	}
	if elapsed < time.Second || elapsed > 5*time.Second {
		t.Errorf("elapsed %v, want ≈1s from Retry-After", elapsed)
	}
}

func TestSendWithRetry_ServerErrorRetriesFlatDelay(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			http.Error(w, "overloaded", http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, chatReply(`["ok"]`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 5, 0) // zero delay keeps the test fast
	out, err := c.TranslateTextList(context.Background(), []string{"a"}, "m")
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	if out[0] != "ok" {
		t.Errorf("got %v", out)
	}
	if hits.Load() != 3 {
		t.Errorf("%d requests, want 3", hits.Load())
	}
}

func TestSendWithRetry_RetriesExhausted(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "still broken", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 1, 0)
	_, err := c.TranslateTextList(context.Background(), []string{"a"}, "m")
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("err = %v, want ErrRetriesExhausted", err)
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error should carry last status: %v", err)
	}
	if hits.Load() != 2 {
		t.Errorf("%d requests, want 2 (initial + 1 retry)", hits.Load())
	}
}

func TestSendWithRetry_UnexpectedStatusIsPermanent(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "teapot", http.StatusTeapot)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 5, 0)
	_, err := c.TranslateTextList(context.Background(), []string{"a"}, "m")
	if err == nil || errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("err = %v, want immediate permanent failure", err)
	}
	if hits.Load() != 1 {
		t.Errorf("%d requests, want 1", hits.Load())
	}
}

func TestSendWithRetry_NetworkErrorExhaustsImmediatelyAtZeroBudget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	c := newTestClient(srv.URL, 0, 0)
	start := time.Now()
	_, err := c.TranslateTextList(context.Background(), []string{"a"}, "m")
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("err = %v, want ErrRetriesExhausted", err)
	}
	if time.Since(start) > time.Second {
		t.Error("zero retry budget should fail without backoff")
	}
}

func TestSendWithRetry_CancellationAbortsInFlightCall(t *testing.T) {
	blocked := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	defer srv.Close()
	defer close(blocked)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	c := newTestClient(srv.URL, 3, 1)
	start := time.Now()
	_, err := c.TranslateTextList(ctx, []string{"a"}, "m")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("cancellation should abort the in-flight call promptly")
	}
}

func TestFetchModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		fmt.Fprint(w, `{"data":[{"id":"gpt-4o"},{"id":"gpt-4o-mini"},{"id":"deepseek-chat"}]}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 0, 1)
	models, err := c.FetchModels(context.Background())
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	want := []string{"deepseek-chat", "gpt-4o", "gpt-4o-mini"}
	if len(models) != len(want) {
		t.Fatalf("got %v", models)
	}
	for i := range want {
		if models[i] != want[i] {
			t.Errorf("models[%d] = %q, want %q (sorted)", i, models[i], want[i])
		}
	}
}

func TestParseTextList(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
		wantErr bool
	}{
		{"plain array", `["a", "b"]`, []string{"a", "b"}, false},
		{"fenced json", "```json\n[\"a\"]\n```", []string{"a"}, false},
		{"fenced bare", "```\n[\"a\"]\n```", []string{"a"}, false},
		{"surrounding whitespace", "  [\"a\"]\n", []string{"a"}, false},
		{"not an array", `{"a": "b"}`, nil, true},
		{"prose", "here you go", nil, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseTextList(tc.content)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("error: %v", err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
			for i := range tc.want {
				if got[i] != tc.want[i] {
					t.Errorf("[%d] = %q, want %q", i, got[i], tc.want[i])
				}
			}
		})
	}
}
