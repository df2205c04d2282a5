package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"groundbot/internal/boterr"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func newTestGemini(apiBase string) *Gemini {
	return NewGemini(GeminiConfig{
		APIKey:      "test-key",
		APIBase:     apiBase,
		Model:       "gemini-2.0-flash",
		MaxAttempts: 3,
		BackoffBase: time.Millisecond,
		Logger:      testLogger(),
	})
}

func completionJSON(text string) string {
	resp := genResponse{
		Candidates: []genCandidate{{
			Content:      genContent{Parts: []genPart{{Text: text}}},
			FinishReason: "STOP",
		}},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func TestGenerate_Success(t *testing.T) {
	var gotPrompt string
	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-goog-api-key")
		body, _ := io.ReadAll(r.Body)
		var req genRequest
		json.Unmarshal(body, &req)
		gotPrompt = req.Contents[0].Parts[0].Text
		io.WriteString(w, completionJSON("Refunds: 30 days."))
	}))
	defer server.Close()

	g := newTestGemini(server.URL)
	out, err := g.Generate(context.Background(), "the prompt")
	if err != nil {
		t.Fatal(err)
	}
	if out != "Refunds: 30 days." {
		t.Errorf("completion = %q", out)
	}
	if gotPrompt != "the prompt" {
		t.Errorf("prompt sent = %q", gotPrompt)
	}
	if gotKey != "test-key" {
		t.Errorf("api key header = %q", gotKey)
	}
}

func TestGenerate_RetriesTransientThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			http.Error(w, "upstream busy", http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, completionJSON("ok"))
	}))
	defer server.Close()

	g := newTestGemini(server.URL)
	out, err := g.Generate(context.Background(), "p")
	if err != nil {
		t.Fatal(err)
	}
	if out != "ok" {
		t.Errorf("completion = %q", out)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestGenerate_ExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	g := newTestGemini(server.URL)
	_, err := g.Generate(context.Background(), "p")
	if !errors.Is(err, boterr.ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected exactly maxAttempts=3 calls, got %d", got)
	}
}

func TestGenerate_QuotaIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	g := newTestGemini(server.URL)
	_, err := g.Generate(context.Background(), "p")
	if !errors.Is(err, boterr.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("quota failure must not be retried, got %d calls", got)
	}
}

func TestGenerate_InvalidRequestIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	g := newTestGemini(server.URL)
	_, err := g.Generate(context.Background(), "p")
	if !errors.Is(err, boterr.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("invalid request must not be retried, got %d calls", got)
	}
}

func TestGenerate_BlockedPrompt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"candidates":[],"promptFeedback":{"blockReason":"SAFETY"}}`)
	}))
	defer server.Close()

	g := newTestGemini(server.URL)
	_, err := g.Generate(context.Background(), "p")
	if !errors.Is(err, boterr.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for blocked prompt, got %v", err)
	}
}

func TestGenerate_EmptyCompletion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, completionJSON("   "))
	}))
	defer server.Close()

	g := newTestGemini(server.URL)
	_, err := g.Generate(context.Background(), "p")
	if !errors.Is(err, boterr.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for empty completion, got %v", err)
	}
}

func TestHealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1beta/models/gemini-2.0-flash" {
			io.WriteString(w, `{"name":"models/gemini-2.0-flash"}`)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	g := newTestGemini(server.URL)
	if err := g.Healthy(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestHealthy_BadKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusForbidden)
	}))
	defer server.Close()

	g := newTestGemini(server.URL)
	if err := g.Healthy(context.Background()); err == nil {
		t.Fatal("expected error for rejected key")
	}
}
