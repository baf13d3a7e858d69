package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/obsidianstack/pitchwatch/internal/config"
	"github.com/obsidianstack/pitchwatch/pkg/types"
)

// Notifier delivers one alert to an external destination.
type Notifier interface {
	Notify(ctx context.Context, a types.Alert) error
}

// Multi fans an alert out to every Notifier it holds. Delivery continues
// past individual failures; the errors are joined.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, a types.Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Build assembles the notifiers enabled in cfg. Targets whose secrets are
// missing from the environment are skipped with a warning. The returned
// close function releases any connections opened.
func Build(cfg config.AlertsConfig) (Multi, func(), error) {
	var out Multi
	closers := []func(){}
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	client := &http.Client{Timeout: 10 * time.Second}
	for _, wh := range cfg.Webhooks {
		url := wh.URL()
		if url == "" {
			slog.Warn("notify: webhook url not set, skipping", "type", wh.Type, "env", wh.URLEnv)
			continue
		}
		out = append(out, NewWebhook(wh.Type, url, client))
	}

	if cfg.Telegram.TokenEnv != "" {
		token, chat := cfg.Telegram.Token(), cfg.Telegram.ChatID()
		if token == "" || chat == "" {
			slog.Warn("notify: telegram token or chat id not set, skipping")
		} else {
			tg, err := NewTelegram(token, chat)
			if err != nil {
				closeAll()
				return nil, func() {}, fmt.Errorf("notify: %w", err)
			}
			out = append(out, tg)
		}
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password(),
		})
		closers = append(closers, func() { _ = rdb.Close() })
		out = append(out, NewRedisStream(rdb, cfg.Redis.Stream))
	}

	return out, closeAll, nil
}
