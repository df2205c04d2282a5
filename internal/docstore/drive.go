// Package docstore downloads the grounding document from Google Drive and
// extracts its text. Downloading and extraction are deliberately separate:
// extraction is a pure function that can be tested offline.
package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"time"

	"groundbot/internal/boterr"
)

const (
	defaultAPIBase   = "https://www.googleapis.com"
	maxDocumentBytes = 20 << 20 // 20MB
)

// Client fetches one file's bytes from the Drive REST API. It does no
// retrying; retry policy belongs to the document cache.
type Client struct {
	apiBase string
	token   string
	client  *http.Client
	logger  *slog.Logger
}

type ClientConfig struct {
	APIBase     string // override for tests
	AccessToken string // service credential with read access to the document
	Timeout     time.Duration
	Logger      *slog.Logger
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.APIBase == "" {
		cfg.APIBase = defaultAPIBase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		apiBase: cfg.APIBase,
		token:   cfg.AccessToken,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  cfg.Logger,
	}
}

// Fetch downloads the document's bytes. It returns the MIME type reported by
// the store and a best-effort revision marker; a missing marker is not an
// error. Failures are classified as boterr.ErrNotFound (document or
// permission missing) or boterr.ErrTransient (network or service failure).
func (c *Client) Fetch(ctx context.Context, documentID string) ([]byte, string, string, error) {
	u := fmt.Sprintf("%s/drive/v3/files/%s?alt=media&supportsAllDrives=true",
		c.apiBase, url.PathEscape(documentID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "", "", fmt.Errorf("build drive request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", "", fmt.Errorf("drive fetch %s: %v: %w", documentID, err, boterr.ErrTransient)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, "", "", classifyStatus(resp.StatusCode, documentID, body)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, "", "", fmt.Errorf("drive read %s: %v: %w", documentID, err, boterr.ErrTransient)
	}

	mimeType := resp.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(mimeType); err == nil {
		mimeType = mt
	}

	revision := c.revision(ctx, documentID)
	c.logger.Debug("document fetched", "doc", documentID, "bytes", len(data), "mime", mimeType, "revision", revision)

	return data, mimeType, revision, nil
}

// Probe checks that the document is visible to the configured credential.
// Used by the doctor command.
func (c *Client) Probe(ctx context.Context, documentID string) error {
	u := fmt.Sprintf("%s/drive/v3/files/%s?fields=id&supportsAllDrives=true",
		c.apiBase, url.PathEscape(documentID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("drive not reachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("drive returned %d for document %s", resp.StatusCode, documentID)
	}
	return nil
}

// revision reads a change marker from the file metadata. Metadata failures
// degrade to an empty marker, never to a failed fetch.
func (c *Client) revision(ctx context.Context, documentID string) string {
	u := fmt.Sprintf("%s/drive/v3/files/%s?fields=md5Checksum%%2CmodifiedTime&supportsAllDrives=true",
		c.apiBase, url.PathEscape(documentID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("revision lookup failed", "doc", documentID, "error", err)
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}

	var meta struct {
		MD5Checksum  string `json:"md5Checksum"`
		ModifiedTime string `json:"modifiedTime"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return ""
	}
	if meta.MD5Checksum != "" {
		return meta.MD5Checksum
	}
	return meta.ModifiedTime
}

func classifyStatus(status int, documentID string, body []byte) error {
	switch {
	case status == http.StatusNotFound, status == http.StatusForbidden, status == http.StatusUnauthorized:
		return fmt.Errorf("drive %d for %s: %s: %w", status, documentID, body, boterr.ErrNotFound)
	default:
		return fmt.Errorf("drive %d for %s: %s: %w", status, documentID, body, boterr.ErrTransient)
	}
}
