// Package cache memoizes the extracted grounding document text. Concurrent
// misses for the document coalesce into a single underlying fetch, and a
// failed refresh never evicts a previously valid record.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"groundbot/internal/boterr"
	"groundbot/internal/docstore"
	"groundbot/internal/domain"
	"groundbot/internal/metrics"

	"golang.org/x/sync/singleflight"
)

// Cache holds at most one DocumentRecord, replaced whole on refresh.
// Readers go through an atomic pointer and never observe a partial record.
type Cache struct {
	fetcher         domain.Fetcher
	docID           string
	mimeOverride    string
	refreshInterval time.Duration // 0 = refresh only on explicit invalidation
	logger          *slog.Logger
	metrics         *metrics.Metrics

	rec    atomic.Pointer[domain.DocumentRecord]
	forced atomic.Bool // set by Invalidate, cleared on successful refresh
	group  singleflight.Group
}

type Config struct {
	Fetcher         domain.Fetcher
	DocumentID      string
	MimeOverride    string // overrides the MIME type reported by the store
	RefreshInterval time.Duration
	Logger          *slog.Logger
	Metrics         *metrics.Metrics // optional
}

func New(cfg Config) *Cache {
	return &Cache{
		fetcher:         cfg.Fetcher,
		docID:           cfg.DocumentID,
		mimeOverride:    cfg.MimeOverride,
		refreshInterval: cfg.RefreshInterval,
		logger:          cfg.Logger,
		metrics:         cfg.Metrics,
	}
}

// Text returns the grounding document text. A fresh record is served without
// network I/O. On a miss or a stale record the refresh is coalesced across
// concurrent callers; all of them receive the same text or the same failure.
// When a refresh fails but a previously valid record exists, that record is
// served and the failure only logged; boterr.ErrGroundingUnavailable is
// returned only when no valid record has ever existed.
func (c *Cache) Text(ctx context.Context) (string, error) {
	if rec := c.rec.Load(); rec != nil && !c.stale(rec) {
		c.metrics.CacheHit()
		return rec.Text, nil
	}
	c.metrics.CacheMiss()

	v, err, _ := c.group.Do(c.docID, func() (any, error) {
		// Another caller may have completed the refresh while this one
		// waited to join the flight.
		if rec := c.rec.Load(); rec != nil && !c.stale(rec) {
			return rec.Text, nil
		}
		return c.refresh(ctx)
	})
	if err != nil {
		if rec := c.rec.Load(); rec != nil {
			c.logger.Error("document refresh failed, serving cached copy",
				"doc", c.docID, "fetched_at", rec.FetchedAt, "error", err)
			return rec.Text, nil
		}
		return "", fmt.Errorf("%w: %v", boterr.ErrGroundingUnavailable, err)
	}
	return v.(string), nil
}

// Invalidate marks the current record stale; the next Text call refreshes.
// The record itself is retained so a failed refresh can still serve it.
func (c *Cache) Invalidate() {
	c.forced.Store(true)
	c.logger.Info("document cache invalidated", "doc", c.docID)
}

// Record returns the current record, or nil before the first successful
// fetch. Used by the doctor and status commands.
func (c *Cache) Record() *domain.DocumentRecord {
	return c.rec.Load()
}

func (c *Cache) refresh(ctx context.Context) (string, error) {
	data, mimeType, revision, err := c.fetcher.Fetch(ctx, c.docID)
	if err != nil {
		c.metrics.RefreshFailure()
		return "", err
	}
	if c.mimeOverride != "" {
		mimeType = c.mimeOverride
	}

	text, err := docstore.ExtractText(data, mimeType)
	if err != nil {
		c.metrics.RefreshFailure()
		return "", fmt.Errorf("extract %s: %w", c.docID, err)
	}

	c.rec.Store(&domain.DocumentRecord{
		DocumentID: c.docID,
		Text:       text,
		Revision:   revision,
		FetchedAt:  time.Now(),
	})
	c.forced.Store(false)

	c.logger.Info("document cached", "doc", c.docID, "chars", len(text), "revision", revision)
	return text, nil
}

func (c *Cache) stale(rec *domain.DocumentRecord) bool {
	if c.forced.Load() {
		return true
	}
	if c.refreshInterval <= 0 {
		return false
	}
	return time.Since(rec.FetchedAt) >= c.refreshInterval
}
