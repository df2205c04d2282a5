package channel

import (
	"context"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func TestNewTelegram_BoundedSendTimeout(t *testing.T) {
	tg := NewTelegram(TelegramConfig{
		Token:   "token",
		Handler: newStubHandler(),
		Logger:  testLogger(),
	})
	if tg.client.Timeout != 10*time.Second {
		t.Errorf("default client timeout = %v, want 10s", tg.client.Timeout)
	}

	tg = NewTelegram(TelegramConfig{
		Token:       "token",
		SendTimeout: 3 * time.Second,
		Handler:     newStubHandler(),
		Logger:      testLogger(),
	})
	if tg.client.Timeout != 3*time.Second {
		t.Errorf("client timeout = %v, want 3s", tg.client.Timeout)
	}
}

func TestTelegram_Allowed(t *testing.T) {
	open := NewTelegram(TelegramConfig{Token: "t", Handler: newStubHandler(), Logger: testLogger()})
	if !open.allowed(&tgbotapi.User{ID: 42}) {
		t.Error("empty allow list must allow everyone")
	}

	restricted := NewTelegram(TelegramConfig{
		Token:     "t",
		AllowFrom: []string{"42", " 77 "},
		Handler:   newStubHandler(),
		Logger:    testLogger(),
	})
	if !restricted.allowed(&tgbotapi.User{ID: 42}) || !restricted.allowed(&tgbotapi.User{ID: 77}) {
		t.Error("listed users must be allowed")
	}
	if restricted.allowed(&tgbotapi.User{ID: 99}) {
		t.Error("unlisted user must be denied")
	}
	if restricted.allowed(nil) {
		t.Error("nil sender must be denied when a list is set")
	}
}

func TestTelegram_HandleUpdate(t *testing.T) {
	h := newStubHandler()
	tg := NewTelegram(TelegramConfig{Token: "t", Handler: h, Logger: testLogger()})

	tg.handleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 7,
		From:      &tgbotapi.User{ID: 42},
		Chat:      &tgbotapi.Chat{ID: 1001},
		Text:      "What is the refund policy?",
		Date:      1700000000,
	}})

	events := h.waitForEvents(t, 1)
	ev := events[0]
	if ev.Channel != "telegram" {
		t.Errorf("channel = %q", ev.Channel)
	}
	if ev.ConversationID != "1001" || ev.ReplyToken != "1001" {
		t.Errorf("conversation = %q, reply token = %q", ev.ConversationID, ev.ReplyToken)
	}
	if ev.Text != "What is the refund policy?" {
		t.Errorf("text = %q", ev.Text)
	}
	if ev.EventID != "7" {
		t.Errorf("event id = %q", ev.EventID)
	}
}

func TestTelegram_HandleUpdate_Dropped(t *testing.T) {
	h := newStubHandler()
	tg := NewTelegram(TelegramConfig{
		Token:     "t",
		AllowFrom: []string{"42"},
		Handler:   h,
		Logger:    testLogger(),
	})

	// No message, empty text, and disallowed sender are all ignored.
	tg.handleUpdate(context.Background(), tgbotapi.Update{})
	tg.handleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: 42}, Chat: &tgbotapi.Chat{ID: 1}, Text: "   ",
	}})
	tg.handleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: 99}, Chat: &tgbotapi.Chat{ID: 1}, Text: "hi",
	}})

	time.Sleep(50 * time.Millisecond)
	if len(h.seen) != 0 {
		t.Errorf("expected no dispatched events, got %d", len(h.seen))
	}
}
