package docstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"groundbot/internal/boterr"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func newTestClient(apiBase string) *Client {
	return NewClient(ClientConfig{
		APIBase:     apiBase,
		AccessToken: "drive-token",
		Logger:      testLogger(),
	})
}

func TestFetch(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/drive/v3/files/doc-1" {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Query().Get("alt") == "media" {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			io.WriteString(w, "Refunds are issued within 30 days.")
			return
		}
		// Metadata lookup for the revision marker.
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"md5Checksum":"abc123","modifiedTime":"2026-08-01T00:00:00Z"}`)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	data, mimeType, revision, err := c.Fetch(context.Background(), "doc-1")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "Refunds are issued within 30 days." {
		t.Errorf("data = %q", data)
	}
	if mimeType != "text/plain" {
		t.Errorf("mime = %q, charset parameter should be stripped", mimeType)
	}
	if revision != "abc123" {
		t.Errorf("revision = %q", revision)
	}
	if gotAuth != "Bearer drive-token" {
		t.Errorf("auth header = %q", gotAuth)
	}
}

func TestFetch_RevisionFallsBackToModifiedTime(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("alt") == "media" {
			io.WriteString(w, "body")
			return
		}
		io.WriteString(w, `{"modifiedTime":"2026-08-01T00:00:00Z"}`)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	_, _, revision, err := c.Fetch(context.Background(), "doc-1")
	if err != nil {
		t.Fatal(err)
	}
	if revision != "2026-08-01T00:00:00Z" {
		t.Errorf("revision = %q", revision)
	}
}

func TestFetch_MetadataFailureIsNotFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("alt") == "media" {
			io.WriteString(w, "body")
			return
		}
		http.Error(w, "no metadata", http.StatusInternalServerError)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	data, _, revision, err := c.Fetch(context.Background(), "doc-1")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "body" || revision != "" {
		t.Errorf("data = %q, revision = %q", data, revision)
	}
}

func TestFetch_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":404}}`, http.StatusNotFound)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	_, _, _, err := c.Fetch(context.Background(), "gone")
	if !errors.Is(err, boterr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFetch_PermissionDeniedIsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	_, _, _, err := c.Fetch(context.Background(), "doc-1")
	if !errors.Is(err, boterr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFetch_ServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal", http.StatusInternalServerError)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	_, _, _, err := c.Fetch(context.Background(), "doc-1")
	if !errors.Is(err, boterr.ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
}

func TestProbe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"id":"doc-1"}`)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	if err := c.Probe(context.Background(), "doc-1"); err != nil {
		t.Fatal(err)
	}
}
