package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/obsidianstack/pitchwatch/pkg/types"
)

const streamMaxLen = 10000

// streamAdder is the subset of *redis.Client used by RedisStream.
type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisStream publishes alerts onto a Redis stream for downstream consumers.
type RedisStream struct {
	client streamAdder
	stream string
}

// NewRedisStream publishes to stream through client.
func NewRedisStream(client streamAdder, stream string) *RedisStream {
	return &RedisStream{client: client, stream: stream}
}

// Notify implements Notifier.
func (r *RedisStream) Notify(ctx context.Context, a types.Alert) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("notify: marshaling alert: %w", err)
	}
	err = r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data":       string(data),
			"alert_id":   a.ID,
			"fixture_id": strconv.FormatInt(a.FixtureID, 10),
			"rule_id":    a.RuleID,
			"severity":   a.Severity,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("notify: xadd %s: %w", r.stream, err)
	}
	return nil
}
