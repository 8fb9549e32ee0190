package channels

import (
	"context"
	"sync"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/neoclaw-ai/repcoach/internal/coach"
	"github.com/neoclaw-ai/repcoach/internal/config"
)

type outboundMessages struct {
	mu       sync.Mutex
	chatIDs    []any
	messages   []string
	parseModes []models.ParseMode
}

func configureTelegramSendCapture(t *Telegram, out *outboundMessages) {
	t.sendMessage = func(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
		out.mu.Lock()
		defer out.mu.Unlock()
		out.chatIDs = append(out.chatIDs, params.ChatID)
		out.messages = append(out.messages, params.Text)
		out.parseModes = append(out.parseModes, params.ParseMode)
		return &models.Message{ID: len(out.messages)}, nil
	}
}

func newTestTelegram(t *testing.T) *Telegram {
	t.Helper()
	tg, err := NewTelegram(config.TelegramConfig{Token: "token", ChatID: 42})
	if err != nil {
		t.Fatalf("new telegram: %v", err)
	}
	return tg
}

func TestNewTelegramRequiresChatID(t *testing.T) {
	t.Parallel()

	if _, err := NewTelegram(config.TelegramConfig{Token: "token"}); err == nil {
		t.Fatal("expected missing chat_id error")
	}
}

func TestTelegramSendUsesConfiguredChat(t *testing.T) {
	t.Parallel()

	tg := newTestTelegram(t)
	out := &outboundMessages{}
	configureTelegramSendCapture(tg, out)

	if err := tg.Send(context.Background(), "Push-up Coach Day 1"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(out.messages) != 1 || out.messages[0] != "Push-up Coach Day 1" {
		t.Fatalf("unexpected messages %#v", out.messages)
	}
	if out.chatIDs[0] != int64(42) {
		t.Fatalf("unexpected chat id %#v", out.chatIDs[0])
	}
	if out.parseModes[0] != models.ParseModeHTML {
		t.Fatalf("expected ParseModeHTML, got %q", out.parseModes[0])
	}
}

func TestTelegramSendRendersHTMLAndKeepsLines(t *testing.T) {
	t.Parallel()

	tg := newTestTelegram(t)
	out := &outboundMessages{}
	configureTelegramSendCapture(tg, out)

	body := "Push-up Coach Day 2\n3 sets of 5 *slow* push-ups & rest\nReply to log."
	if err := tg.Send(context.Background(), body); err != nil {
		t.Fatalf("send: %v", err)
	}
	want := "Push-up Coach Day 2\n3 sets of 5 <i>slow</i> push-ups &amp; rest\nReply to log."
	if len(out.messages) != 1 || out.messages[0] != want {
		t.Fatalf("unexpected formatted message %#v", out.messages)
	}
}

func TestTelegramSendFallsBackToPlainWhenFormattingFails(t *testing.T) {
	original := telegramMarkdown
	telegramMarkdown = nil
	defer func() {
		telegramMarkdown = original
	}()

	tg := newTestTelegram(t)
	out := &outboundMessages{}
	configureTelegramSendCapture(tg, out)

	if err := tg.Send(context.Background(), "**ok**"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if out.messages[0] != "**ok**" || out.parseModes[0] != "" {
		t.Fatalf("expected plain fallback, got %q mode %q", out.messages[0], out.parseModes[0])
	}
}

func TestTelegramInboundReplyIsAcknowledged(t *testing.T) {
	t.Parallel()

	tg := newTestTelegram(t)
	out := &outboundMessages{}
	configureTelegramSendCapture(tg, out)
	replier := &fakeReplier{result: coach.ReplyResult{Outcome: coach.OutcomeAnswered, Ack: "Nice work!"}}

	tg.handleInboundMessage(context.Background(), replier, &models.Message{
		Chat: models.Chat{ID: 42},
		Text: " Done 15 ",
	})

	if len(replier.calls) != 1 || replier.calls[0] != "42|Done 15|2024-01-01" {
		t.Fatalf("unexpected replier calls %#v", replier.calls)
	}
	if len(out.messages) != 1 || out.messages[0] != "Nice work!" {
		t.Fatalf("unexpected ack messages %#v", out.messages)
	}
	if out.parseModes[0] != "" {
		t.Fatalf("expected plain ack, got parse mode %q", out.parseModes[0])
	}
}

func TestTelegramUnauthorizedChatIsDropped(t *testing.T) {
	t.Parallel()

	tg := newTestTelegram(t)
	out := &outboundMessages{}
	configureTelegramSendCapture(tg, out)
	replier := &fakeReplier{err: coach.ErrUnauthorized}

	tg.handleInboundMessage(context.Background(), replier, &models.Message{
		Chat: models.Chat{ID: 7},
		Text: "Done 15",
	})

	if len(out.messages) != 0 {
		t.Fatalf("expected no outbound messages, got %#v", out.messages)
	}
}

func TestTelegramHelpCommand(t *testing.T) {
	t.Parallel()

	tg := newTestTelegram(t)
	out := &outboundMessages{}
	configureTelegramSendCapture(tg, out)
	replier := &fakeReplier{}

	tg.handleInboundMessage(context.Background(), replier, &models.Message{
		Chat: models.Chat{ID: 42},
		Text: "/start@RepCoachBot",
	})

	if len(replier.calls) != 0 {
		t.Fatalf("expected command to bypass replier, got %#v", replier.calls)
	}
	if len(out.messages) != 1 || out.messages[0] != telegramHelpText {
		t.Fatalf("unexpected help response %#v", out.messages)
	}
}
