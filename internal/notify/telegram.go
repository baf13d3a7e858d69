package notify

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/obsidianstack/pitchwatch/pkg/types"
)

const (
	telegramMaxRetries = 3
	telegramRetryBase  = time.Second
)

// Telegram sends alerts to a single chat through the Bot API.
type Telegram struct {
	bot        *tgbotapi.BotAPI
	chatID     int64
	maxRetries int
	retryBase  time.Duration
}

// NewTelegram connects to the Bot API with token and targets chatID.
func NewTelegram(token, chatID string) (*Telegram, error) {
	return NewTelegramWithEndpoint(token, chatID, tgbotapi.APIEndpoint, nil)
}

// NewTelegramWithEndpoint is NewTelegram against a custom API endpoint
// format (see tgbotapi.APIEndpoint) and HTTP client.
func NewTelegramWithEndpoint(token, chatID, endpoint string, client tgbotapi.HTTPClient) (*Telegram, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("telegram: invalid chat id: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}
	return &Telegram{
		bot:        bot,
		chatID:     id,
		maxRetries: telegramMaxRetries,
		retryBase:  telegramRetryBase,
	}, nil
}

// Notify implements Notifier. Failed sends are retried with exponential
// backoff until ctx is done or the retries run out.
func (t *Telegram) Notify(ctx context.Context, a types.Alert) error {
	msg := tgbotapi.NewMessage(t.chatID, formatTelegram(a))
	msg.DisableWebPagePreview = true

	var lastErr error
	for attempt := 0; attempt < t.maxRetries; attempt++ {
		if attempt > 0 {
			delay := t.retryBase * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return fmt.Errorf("telegram: %w (last error: %v)", ctx.Err(), lastErr)
			case <-time.After(delay):
			}
		}
		if _, err := t.bot.Send(msg); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("telegram: send failed after %d attempts: %w", t.maxRetries, lastErr)
}

func formatTelegram(a types.Alert) string {
	return fmt.Sprintf("%s %s\n%s\nfixture %d, rule %s",
		severityLabel(a.Severity), a.Signal, a.Message, a.FixtureID, a.RuleID)
}
