package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/rafflio/platform/internal/domain"
)

// DefaultChannel is the Redis pub/sub channel shared by all API instances.
const DefaultChannel = "rafflio:push"

// RedisRelay fans push events out across API instances. Publish goes to
// Redis only; every instance, including the sender, delivers to its hub when
// the message comes back on the channel.
type RedisRelay struct {
	client  redis.UniversalClient
	hub     *Hub
	channel string
	logger  *slog.Logger
}

// NewRedisRelay creates a relay on DefaultChannel.
func NewRedisRelay(client redis.UniversalClient, hub *Hub, logger *slog.Logger) *RedisRelay {
	return &RedisRelay{client: client, hub: hub, channel: DefaultChannel, logger: logger}
}

// Publish sends evt to every instance subscribed to the relay channel.
func (r *RedisRelay) Publish(ctx context.Context, evt domain.PushEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal push event: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, string(payload)).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Run subscribes to the relay channel and delivers each message to the local
// hub until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %s: %w", r.channel, err)
	}
	r.logger.Info("push relay subscribed", "channel", r.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("push relay stopped")
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(msg.Payload)
		}
	}
}

func (r *RedisRelay) handle(payload string) {
	var evt domain.PushEvent
	if err := json.Unmarshal([]byte(payload), &evt); err != nil {
		r.logger.Warn("push relay: bad payload", "error", err)
		return
	}
	if evt.PurchaseID == "" {
		return
	}
	r.hub.Deliver(evt, SourceRedis)
}
