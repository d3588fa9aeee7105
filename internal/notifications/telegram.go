package notifications

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// telegramNotifier sends messages to one chat. The bot is authorised on the
// first send so an unreachable Telegram API never delays pipeline start.
type telegramNotifier struct {
	token    string
	chatID   int64
	endpoint string
	client   *http.Client

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

func newTelegramNotifier(token string, chatID int64, endpoint string, timeout time.Duration) *telegramNotifier {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	return &telegramNotifier{
		token:    token,
		chatID:   chatID,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (t *telegramNotifier) botAPI() (*tgbotapi.BotAPI, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bot != nil {
		return t.bot, nil
	}
	bot, err := tgbotapi.NewBotAPIWithClient(t.token, t.endpoint, t.client)
	if err != nil {
		return nil, fmt.Errorf("authorise telegram bot: %w", err)
	}
	t.bot = bot
	return bot, nil
}

func (t *telegramNotifier) send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bot, err := t.botAPI()
	if err != nil {
		return err
	}
	text := msg.Body
	if msg.Title != "" {
		text = msg.Title + "\n" + msg.Body
	}
	out := tgbotapi.NewMessage(t.chatID, text)
	out.DisableNotification = msg.Priority == "low"
	if _, err := bot.Send(out); err != nil {
		return fmt.Errorf("send telegram notification: %w", err)
	}
	return nil
}
