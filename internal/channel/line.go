// Package channel contains the messaging-platform adapters: the LINE webhook
// gateway with its reply client, and an optional Telegram poller. Channels
// normalize platform events into domain.InboundEvent and hand each one to a
// domain.Handler together with their own reply path.
package channel

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"groundbot/internal/boterr"
	"groundbot/internal/domain"
)

const (
	lineDefaultAPIBase      = "https://api.line.me"
	lineMaxMessageLen       = 5000 // platform cap per text message
	lineMaxMessagesPerReply = 5    // platform cap per reply token
	maxBodyBytes            = 1 << 20
)

// LINE implements the webhook gateway: it verifies inbound request
// authenticity, parses events, and dispatches replies through the platform
// send API. The gateway itself is stateless beyond network I/O.
type LINE struct {
	port        int
	path        string
	secret      string
	token       string
	apiBase     string
	adminToken  string
	sendTimeout time.Duration
	handler     domain.Handler
	invalidate  func() // manual cache-invalidation signal, optional
	sem         chan struct{}
	client      *http.Client
	logger      *slog.Logger
	server      *http.Server
	baseCtx     context.Context
}

type LINEConfig struct {
	Port          int
	WebhookPath   string
	ChannelSecret string
	AccessToken   string
	APIBase       string // override for tests
	AdminToken    string // enables POST /admin/refresh when set
	SendTimeout   time.Duration
	MaxConcurrent int
	Handler       domain.Handler
	Invalidate    func()
	Logger        *slog.Logger
}

func NewLINE(cfg LINEConfig) *LINE {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.WebhookPath == "" {
		cfg.WebhookPath = "/callback"
	}
	if cfg.APIBase == "" {
		cfg.APIBase = lineDefaultAPIBase
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 5
	}
	return &LINE{
		port:        cfg.Port,
		path:        cfg.WebhookPath,
		secret:      cfg.ChannelSecret,
		token:       cfg.AccessToken,
		apiBase:     cfg.APIBase,
		adminToken:  cfg.AdminToken,
		sendTimeout: cfg.SendTimeout,
		handler:     cfg.Handler,
		invalidate:  cfg.Invalidate,
		sem:         make(chan struct{}, cfg.MaxConcurrent),
		client:      &http.Client{Timeout: cfg.SendTimeout},
		logger:      cfg.Logger,
		baseCtx:     context.Background(),
	}
}

func (l *LINE) Name() string { return "line" }

// Start runs the webhook HTTP server until ctx is cancelled.
func (l *LINE) Start(ctx context.Context) error {
	l.baseCtx = ctx

	mux := http.NewServeMux()
	mux.HandleFunc(l.path, l.handleWebhook)
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
		io.WriteString(rw, "ok")
	})
	if l.adminToken != "" && l.invalidate != nil {
		mux.HandleFunc("/admin/refresh", l.handleRefresh)
	}

	l.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", l.port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	l.logger.Info("line webhook server starting", "port", l.port, "path", l.path)

	errCh := make(chan error, 1)
	go func() {
		if err := l.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		l.logger.Info("line webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return l.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("line webhook server: %w", err)
	}
}

func (l *LINE) handleWebhook(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(rw, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(rw, "Bad Request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	// An unauthenticated request terminates here with no side effect.
	if !VerifySignature(l.secret, body, r.Header.Get("X-Line-Signature")) {
		l.logger.Warn("webhook signature mismatch", "remote", r.RemoteAddr)
		http.Error(rw, "Unauthorized", http.StatusUnauthorized)
		return
	}

	events, err := ParseEvents(body)
	if err != nil {
		http.Error(rw, "Bad Request", http.StatusBadRequest)
		return
	}

	// Each event is an independent request flow. The platform gets its 200
	// once the events are accepted; a flow that later fails still answers
	// the user with a fallback reply. The concurrency slot is taken inside
	// the goroutine so a saturated pool queues events without delaying the
	// acknowledgement.
	for _, ev := range events {
		go func(ev domain.InboundEvent) {
			l.sem <- struct{}{}
			defer func() { <-l.sem }()
			l.handler.Handle(l.baseCtx, ev, l)
		}(ev)
	}

	rw.WriteHeader(http.StatusOK)
	io.WriteString(rw, "OK")
}

func (l *LINE) handleRefresh(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(rw, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	auth := r.Header.Get("Authorization")
	if !hmac.Equal([]byte(auth), []byte("Bearer "+l.adminToken)) {
		http.Error(rw, "Unauthorized", http.StatusUnauthorized)
		return
	}
	l.invalidate()
	rw.WriteHeader(http.StatusNoContent)
}

// VerifySignature reports whether sig is the base64-encoded HMAC-SHA256 of
// body under the channel secret. The comparison is constant-time.
func VerifySignature(secret string, body []byte, sig string) bool {
	if secret == "" || sig == "" {
		return false
	}
	provided, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), provided)
}

// Sign computes the signature header value for a body. Primarily for tests
// and local tooling.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

type lineEnvelope struct {
	Destination string      `json:"destination"`
	Events      []lineEvent `json:"events"`
}

type lineEvent struct {
	Type       string      `json:"type"`
	ReplyToken string      `json:"replyToken"`
	Timestamp  int64       `json:"timestamp"` // milliseconds
	Source     lineSource  `json:"source"`
	Message    lineMessage `json:"message"`
}

type lineSource struct {
	Type    string `json:"type"`
	UserID  string `json:"userId"`
	GroupID string `json:"groupId"`
	RoomID  string `json:"roomId"`
}

type lineMessage struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Text string `json:"text"`
}

// ParseEvents turns a verified webhook body into zero or more normalized
// inbound events. Unsupported event and message types are dropped silently;
// only a malformed envelope is an error.
func ParseEvents(body []byte) ([]domain.InboundEvent, error) {
	var envelope lineEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("parse webhook body: %w", err)
	}

	var events []domain.InboundEvent
	for _, ev := range envelope.Events {
		if ev.Type != "message" || ev.Message.Type != "text" {
			continue
		}
		if ev.ReplyToken == "" || strings.TrimSpace(ev.Message.Text) == "" {
			continue
		}

		receivedAt := time.Now()
		if ev.Timestamp > 0 {
			receivedAt = time.UnixMilli(ev.Timestamp)
		}

		events = append(events, domain.InboundEvent{
			Channel:        "line",
			ConversationID: conversationID(ev.Source),
			Text:           ev.Message.Text,
			ReplyToken:     ev.ReplyToken,
			EventID:        ev.Message.ID,
			ReceivedAt:     receivedAt,
		})
	}
	return events, nil
}

func conversationID(src lineSource) string {
	switch {
	case src.GroupID != "":
		return src.GroupID
	case src.RoomID != "":
		return src.RoomID
	default:
		return src.UserID
	}
}

type lineReplyRequest struct {
	ReplyToken string         `json:"replyToken"`
	Messages   []lineTextNode `json:"messages"`
}

type lineTextNode struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Reply delivers one reply through the platform send API, keyed by the reply
// token of the triggering event. One attempt only; any failure is
// boterr.ErrDelivery (delivery is at-most-once per reply).
func (l *LINE) Reply(ctx context.Context, msg domain.ReplyMessage) error {
	chunks := splitMessage(msg.Text, lineMaxMessageLen)
	if len(chunks) > lineMaxMessagesPerReply {
		l.logger.Warn("reply truncated to platform message cap",
			"chunks", len(chunks), "cap", lineMaxMessagesPerReply)
		chunks = chunks[:lineMaxMessagesPerReply]
	}

	payload := lineReplyRequest{ReplyToken: msg.ReplyToken}
	for _, chunk := range chunks {
		payload.Messages = append(payload.Messages, lineTextNode{Type: "text", Text: chunk})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal reply: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, l.sendTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		l.apiBase+"/v2/bot/message/reply", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build reply request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+l.token)

	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("line reply: %v: %w", err, boterr.ErrDelivery)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("line reply %d: %s: %w", resp.StatusCode, respBody, boterr.ErrDelivery)
	}
	return nil
}
