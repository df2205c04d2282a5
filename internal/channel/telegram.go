package channel

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"groundbot/internal/boterr"
	"groundbot/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const telegramMaxMsgLen = 4000

// Telegram is an optional secondary channel that feeds the same pipeline via
// long polling. Telegram has no reply tokens; the chat ID serves as both
// conversation ID and reply target.
type Telegram struct {
	token     string
	allowFrom []int64 // allowed user IDs (empty = allow all)
	handler   domain.Handler
	sem       chan struct{}
	client    *http.Client
	bot       *tgbotapi.BotAPI
	logger    *slog.Logger
}

type TelegramConfig struct {
	Token         string
	AllowFrom     []string // user IDs as strings
	SendTimeout   time.Duration
	MaxConcurrent int
	Handler       domain.Handler
	Logger        *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	var allowed []int64
	for _, s := range cfg.AllowFrom {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			allowed = append(allowed, id)
		}
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 5
	}
	return &Telegram{
		token:     cfg.Token,
		allowFrom: allowed,
		handler:   cfg.Handler,
		sem:       make(chan struct{}, cfg.MaxConcurrent),
		client:    &http.Client{Timeout: cfg.SendTimeout},
		logger:    cfg.Logger,
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Start connects to Telegram and begins polling for updates.
func (t *Telegram) Start(ctx context.Context) error {
	// The bounded client covers sends and polls alike, so no API call can
	// hang past the configured timeout.
	bot, err := tgbotapi.NewBotAPIWithClient(t.token, tgbotapi.APIEndpoint, t.client)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram bot connected", "username", bot.Self.UserName, "id", bot.Self.ID)

	u := tgbotapi.NewUpdate(0)
	// The long-poll hold must stay under the client timeout or every idle
	// poll would be cut off as an error.
	u.Timeout = int(t.client.Timeout.Seconds() / 2)
	if u.Timeout < 1 {
		u.Timeout = 1
	}
	updates := bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(ctx, update)
		}
	}
}

func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || strings.TrimSpace(msg.Text) == "" {
		return
	}
	if !t.allowed(msg.From) {
		t.logger.Warn("telegram message from disallowed user", "user", msg.From.ID)
		return
	}

	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	ev := domain.InboundEvent{
		Channel:        "telegram",
		ConversationID: chatID,
		Text:           msg.Text,
		ReplyToken:     chatID,
		EventID:        strconv.Itoa(msg.MessageID),
		ReceivedAt:     time.Unix(int64(msg.Date), 0),
	}

	t.sem <- struct{}{}
	go func() {
		defer func() { <-t.sem }()
		t.handler.Handle(ctx, ev, t)
	}()
}

func (t *Telegram) allowed(from *tgbotapi.User) bool {
	if len(t.allowFrom) == 0 {
		return true
	}
	if from == nil {
		return false
	}
	for _, id := range t.allowFrom {
		if id == from.ID {
			return true
		}
	}
	return false
}

// Reply sends the reply text to the chat named by the reply token. The bot
// API takes no per-request context; the client's send timeout bounds each
// call instead.
func (t *Telegram) Reply(_ context.Context, msg domain.ReplyMessage) error {
	chatID, err := strconv.ParseInt(msg.ReplyToken, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat ID %q: %w", msg.ReplyToken, boterr.ErrDelivery)
	}
	for _, chunk := range splitMessage(msg.Text, telegramMaxMsgLen) {
		if _, err := t.bot.Send(tgbotapi.NewMessage(chatID, chunk)); err != nil {
			return fmt.Errorf("telegram send: %v: %w", err, boterr.ErrDelivery)
		}
	}
	return nil
}
