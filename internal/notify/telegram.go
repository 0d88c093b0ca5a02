package notify

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const telegramTimeout = 10 * time.Second

// Telegram posts messages to one chat through the Bot API.
type Telegram struct {
	bot     *tgbotapi.BotAPI
	chatID  int64
	channel string
}

type TelegramOptions struct {
	// Endpoint overrides tgbotapi.APIEndpoint.
	Endpoint string
	Client   *http.Client
}

// NewTelegram targets chatID, which is either numeric or an @channel
// username. The token is not checked until the first Send, so a Bot API
// outage at startup does not disable the sender.
func NewTelegram(token, chatID string, opts TelegramOptions) (*Telegram, error) {
	t := &Telegram{}
	if id, err := strconv.ParseInt(chatID, 10, 64); err == nil {
		t.chatID = id
	} else if strings.HasPrefix(chatID, "@") {
		t.channel = chatID
	} else {
		return nil, fmt.Errorf("telegram chat id %q is neither numeric nor @channel", chatID)
	}

	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: telegramTimeout}
	}

	bot := &tgbotapi.BotAPI{Token: token, Client: client, Buffer: 100}
	bot.SetAPIEndpoint(endpoint)
	t.bot = bot
	return t, nil
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Send(ctx context.Context, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var msg tgbotapi.MessageConfig
	if t.channel != "" {
		msg = tgbotapi.NewMessageToChannel(t.channel, message)
	} else {
		msg = tgbotapi.NewMessage(t.chatID, message)
	}
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
