// Package provider implements the hosted LLM completion client.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"groundbot/internal/boterr"
	"groundbot/internal/metrics"
)

const (
	defaultAPIBase     = "https://generativelanguage.googleapis.com"
	defaultModel       = "gemini-2.0-flash"
	defaultMaxAttempts = 3
)

// Gemini calls the generateContent API. Transient failures are retried with
// exponential backoff up to a bounded number of attempts; quota and invalid-
// request failures propagate immediately.
type Gemini struct {
	apiKey      string
	apiBase     string
	model       string
	maxAttempts int
	backoffBase time.Duration
	client      *http.Client
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

type GeminiConfig struct {
	APIKey      string
	APIBase     string // override for tests
	Model       string
	MaxAttempts int
	Timeout     time.Duration
	BackoffBase time.Duration // shortened in tests
	Logger      *slog.Logger
	Metrics     *metrics.Metrics // optional
}

func NewGemini(cfg GeminiConfig) *Gemini {
	if cfg.APIBase == "" {
		cfg.APIBase = defaultAPIBase
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	return &Gemini{
		apiKey:      cfg.APIKey,
		apiBase:     cfg.APIBase,
		model:       cfg.Model,
		maxAttempts: cfg.MaxAttempts,
		backoffBase: cfg.BackoffBase,
		client:      sharedHTTPClient(cfg.Timeout),
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}
}

type genRequest struct {
	Contents []genContent `json:"contents"`
}

type genContent struct {
	Parts []genPart `json:"parts"`
}

type genPart struct {
	Text string `json:"text"`
}

type genResponse struct {
	Candidates     []genCandidate     `json:"candidates"`
	PromptFeedback *genPromptFeedback `json:"promptFeedback,omitempty"`
}

type genCandidate struct {
	Content      genContent `json:"content"`
	FinishReason string     `json:"finishReason"`
}

type genPromptFeedback struct {
	BlockReason string `json:"blockReason"`
}

// Generate produces the completion for an assembled prompt. Only transient
// failures are retried; on exhaustion the last transient error surfaces to
// the caller.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		if attempt > 1 {
			// Exponential backoff with jitter to avoid hammering a
			// recovering upstream.
			base := time.Duration((attempt-1)*(attempt-1)) * g.backoffBase
			backoff := base + time.Duration(rand.Int63n(int64(base/2+1)))
			g.logger.Warn("retrying generation", "attempt", attempt, "backoff", backoff)
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("generation cancelled: %v: %w", ctx.Err(), boterr.ErrTransient)
			case <-time.After(backoff):
			}
		}

		text, err := g.call(ctx, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !boterr.Retryable(err) {
			return "", err
		}
		g.logger.Warn("generation failed", "attempt", attempt, "error", err)
	}
	return "", fmt.Errorf("generation failed after %d attempts: %w", g.maxAttempts, lastErr)
}

// Healthy checks that the model is visible with the configured API key.
// Used by the doctor command.
func (g *Gemini) Healthy(ctx context.Context) error {
	u := fmt.Sprintf("%s/v1beta/models/%s", g.apiBase, url.PathEscape(g.model))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("gemini not reachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("gemini: invalid API key")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gemini returned %d", resp.StatusCode)
	}
	return nil
}

func (g *Gemini) call(ctx context.Context, prompt string) (string, error) {
	g.metrics.GenerationAttempt()

	body, err := json.Marshal(genRequest{
		Contents: []genContent{{Parts: []genPart{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	u := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.apiBase, url.PathEscape(g.model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		// Network failures and timeouts are transient by definition.
		return "", fmt.Errorf("gemini request: %v: %w", err, boterr.ErrTransient)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", classifyStatus(resp.StatusCode, respBody)
	}

	var genResp genResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("decode: %v: %w", err, boterr.ErrTransient)
	}

	if genResp.PromptFeedback != nil && genResp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("gemini blocked prompt (%s): %w",
			genResp.PromptFeedback.BlockReason, boterr.ErrInvalidRequest)
	}
	if len(genResp.Candidates) == 0 {
		return "", fmt.Errorf("gemini returned no candidates: %w", boterr.ErrInvalidRequest)
	}

	var sb strings.Builder
	for _, part := range genResp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("gemini returned an empty completion: %w", boterr.ErrInvalidRequest)
	}
	return text, nil
}

func classifyStatus(status int, body []byte) error {
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("gemini %d: %s: %w", status, body, boterr.ErrQuotaExceeded)
	case status == http.StatusBadRequest, status == http.StatusNotFound,
		status == http.StatusUnauthorized, status == http.StatusForbidden:
		return fmt.Errorf("gemini %d: %s: %w", status, body, boterr.ErrInvalidRequest)
	default:
		return fmt.Errorf("gemini %d: %s: %w", status, body, boterr.ErrTransient)
	}
}
