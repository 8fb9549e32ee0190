package channels

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/neoclaw-ai/repcoach/internal/coach"
	"github.com/neoclaw-ai/repcoach/internal/config"
	"github.com/neoclaw-ai/repcoach/internal/logging"
)

const telegramHelpText = "I send one task a day. Reply with what you did, e.g. 'Done 15'."

type telegramSendMessageFunc func(context.Context, *bot.SendMessageParams) (*models.Message, error)

var _ coach.Sender = (*Telegram)(nil)

// Telegram delivers tasks to one chat and forwards that chat's replies to
// the coach.
type Telegram struct {
	token  string
	chatID int64

	mu          sync.Mutex
	sendMessage telegramSendMessageFunc
}

// NewTelegram connects a bot client for the configured chat.
func NewTelegram(cfg config.TelegramConfig) (*Telegram, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t := &Telegram{token: strings.TrimSpace(cfg.Token), chatID: cfg.ChatID}
	return t, nil
}

// Send delivers body to the configured chat, rendered as Telegram HTML.
func (t *Telegram) Send(ctx context.Context, body string) error {
	t.mu.Lock()
	if t.sendMessage == nil {
		b, err := t.createBot(nil)
		if err != nil {
			t.mu.Unlock()
			return fmt.Errorf("create telegram bot: %w", err)
		}
		t.sendMessage = b.SendMessage
	}
	t.mu.Unlock()

	formatted, ok := formatTelegram(body)
	if !ok || strings.TrimSpace(formatted) == "" {
		return t.sendChatMessage(ctx, t.chatID, body)
	}
	return t.send(ctx, &bot.SendMessageParams{
		ChatID:    t.chatID,
		Text:      formatted,
		ParseMode: models.ParseModeHTML,
	})
}

// Listen long-polls Telegram and forwards text messages to replier until ctx
// is cancelled. Each handled reply is acknowledged in the same chat.
func (t *Telegram) Listen(ctx context.Context, replier Replier) error {
	if replier == nil {
		return errors.New("replier is required")
	}

	b, err := t.createBot(func(updateCtx context.Context, _ *bot.Bot, update *models.Update) {
		if update == nil || update.Message == nil {
			return
		}
		t.handleInboundMessage(updateCtx, replier, update.Message)
	})
	if err != nil {
		return fmt.Errorf("create telegram bot: %w", err)
	}

	me, err := b.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("fetch telegram bot profile: %w", err)
	}
	logging.Logger().Info(fmt.Sprintf("Connected to Telegram Bot @%s", strings.TrimSpace(me.Username)))

	t.mu.Lock()
	t.sendMessage = b.SendMessage
	t.mu.Unlock()
	b.Start(ctx)
	return nil
}

func (t *Telegram) handleInboundMessage(ctx context.Context, replier Replier, msg *models.Message) {
	if msg == nil {
		return
	}
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)
	logging.Logger().Info("telegram inbound message", "chat_id", chatID, "text", messagePreview(text, 100))

	if isTelegramCommand(text, "start") || isTelegramCommand(text, "help") {
		if chatID == t.chatID {
			t.reply(ctx, chatID, telegramHelpText)
		}
		return
	}

	res, err := replier.HandleReply(ctx, strconv.FormatInt(chatID, 10), text, replier.Today())
	switch {
	case errors.Is(err, coach.ErrUnauthorized):
		return
	case err != nil:
		logging.Logger().Error("handle telegram reply", "chat_id", chatID, "err", err)
		return
	}
	t.reply(ctx, chatID, res.Ack)
}

func (t *Telegram) reply(ctx context.Context, chatID int64, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if err := t.sendChatMessage(ctx, chatID, text); err != nil {
		logging.Logger().Warn("telegram reply failed", "chat_id", chatID, "err", err)
	}
}

func (t *Telegram) sendChatMessage(ctx context.Context, chatID int64, text string) error {
	return t.send(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
}

func (t *Telegram) send(ctx context.Context, params *bot.SendMessageParams) error {
	t.mu.Lock()
	send := t.sendMessage
	t.mu.Unlock()
	if send == nil {
		return errors.New("telegram bot is not connected")
	}
	_, err := send(ctx, params)
	return err
}

func (t *Telegram) createBot(defaultHandler bot.HandlerFunc) (*bot.Bot, error) {
	var options []bot.Option
	if defaultHandler != nil {
		options = append(options, bot.WithDefaultHandler(defaultHandler))
	}
	return bot.New(t.token, options...)
}

// isTelegramCommand matches "/name" and "/name@botname".
func isTelegramCommand(text, name string) bool {
	first, _, _ := strings.Cut(text, " ")
	first, _, _ = strings.Cut(first, "@")
	return strings.EqualFold(first, "/"+name)
}
