package channel

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Bounds a send, since the bot library ignores contexts.
const telegramTimeout = 15 * time.Second

// Telegram sends the alert to an admin chat through the Bot API.
type Telegram struct {
	bot *tgbotapi.BotAPI
}

func NewTelegram(token string) (*Telegram, error) {
	return NewTelegramWithEndpoint(token, tgbotapi.APIEndpoint)
}

// NewTelegramWithEndpoint points the bot at another API host, e.g. a local
// Bot API server. endpoint is a format string like tgbotapi.APIEndpoint.
func NewTelegramWithEndpoint(token, endpoint string) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: telegramTimeout})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &Telegram{bot: bot}, nil
}

func (t *Telegram) Name() string { return "telegram" }

// Send ignores ctx deadlines beyond telegramTimeout; the library has no
// context-aware send.
func (t *Telegram) Send(ctx context.Context, to, body string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", deliveryErr(t.Name(), err)
	}
	chatID, err := strconv.ParseInt(to, 10, 64)
	if err != nil {
		return "", deliveryErr(t.Name(), fmt.Errorf("bad chat id %q: %w", to, err))
	}
	m, err := t.bot.Send(tgbotapi.NewMessage(chatID, body))
	if err != nil {
		return "", deliveryErr(t.Name(), err)
	}
	return strconv.Itoa(m.MessageID), nil
}
