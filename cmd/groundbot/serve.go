package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"groundbot/internal/audit"
	"groundbot/internal/cache"
	"groundbot/internal/channel"
	"groundbot/internal/config"
	"groundbot/internal/docstore"
	"groundbot/internal/domain"
	"groundbot/internal/metrics"
	"groundbot/internal/pipeline"
	"groundbot/internal/prompt"
	"groundbot/internal/provider"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return err
	}

	logger, closeLog, err := buildLogger(cfg.General)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		shutdown := metrics.StartServer(cfg.Metrics.Port, m, logger)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdown(sctx)
		}()
	}

	var auditStore domain.AuditStore
	if cfg.Audit.Enabled {
		store, err := audit.NewStore(cfg.Audit.DBPath, logger)
		if err != nil {
			return err
		}
		defer store.Close()
		auditStore = store
	}

	replies := config.DefaultReplies()
	if cfg.Replies.File != "" {
		replies, err = config.LoadReplies(cfg.Replies.File)
		if err != nil {
			return err
		}
	}

	fetcher := docstore.NewClient(docstore.ClientConfig{
		APIBase:     cfg.Document.APIBase,
		AccessToken: cfg.Document.AccessToken,
		Timeout:     time.Duration(cfg.Document.FetchTimeoutSeconds) * time.Second,
		Logger:      logger,
	})

	docCache := cache.New(cache.Config{
		Fetcher:         fetcher,
		DocumentID:      cfg.Document.ID,
		MimeOverride:    cfg.Document.MimeType,
		RefreshInterval: time.Duration(cfg.Cache.RefreshIntervalMinutes) * time.Minute,
		Logger:          logger,
		Metrics:         m,
	})

	orch := pipeline.New(pipeline.Config{
		Grounding: docCache,
		Builder:   prompt.NewBuilder(cfg.Prompt.MaxBytes, cfg.Prompt.Preamble),
		Generator: provider.NewGemini(provider.GeminiConfig{
			APIKey:      cfg.Gemini.APIKey,
			APIBase:     cfg.Gemini.APIBase,
			Model:       cfg.Gemini.Model,
			MaxAttempts: cfg.Gemini.MaxAttempts,
			Timeout:     time.Duration(cfg.Gemini.TimeoutSeconds) * time.Second,
			Logger:      logger,
			Metrics:     m,
		}),
		Replies: replies,
		Audit:   auditStore,
		Metrics: m,
		Logger:  logger,
	})

	line := channel.NewLINE(channel.LINEConfig{
		Port:          cfg.Line.Port,
		WebhookPath:   cfg.Line.WebhookPath,
		ChannelSecret: cfg.Line.ChannelSecret,
		AccessToken:   cfg.Line.ChannelAccessToken,
		APIBase:       cfg.Line.APIBase,
		AdminToken:    cfg.Line.AdminToken,
		SendTimeout:   time.Duration(cfg.Line.SendTimeoutSeconds) * time.Second,
		MaxConcurrent: cfg.General.MaxConcurrentRequests,
		Handler:       orch,
		Invalidate:    docCache.Invalidate,
		Logger:        logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return line.Start(gctx) })

	if cfg.Telegram.Enabled {
		tg := channel.NewTelegram(channel.TelegramConfig{
			Token:         cfg.Telegram.Token,
			AllowFrom:     cfg.Telegram.AllowFrom,
			SendTimeout:   time.Duration(cfg.Telegram.SendTimeoutSeconds) * time.Second,
			MaxConcurrent: cfg.General.MaxConcurrentRequests,
			Handler:       orch,
			Logger:        logger,
		})
		g.Go(func() error { return tg.Start(gctx) })
	}

	logger.Info("groundbot serving", "version", version, "document", cfg.Document.ID)
	return g.Wait()
}

func newLogger(level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(level)}))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func buildLogger(cfg config.GeneralConfig) (*slog.Logger, func(), error) {
	var w io.Writer = os.Stderr
	closeFn := func() {}

	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
			return nil, nil, err
		}
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, err
		}
		w = io.MultiWriter(os.Stderr, f)
		closeFn = func() { f.Close() }
	}

	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	return logger, closeFn, nil
}
