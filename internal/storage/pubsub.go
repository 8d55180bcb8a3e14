package storage

import (
	"campusskill/backend/internal/models"
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// BroadcastChannel is the Redis channel every hub instance listens on.
const BroadcastChannel = "campusskill:broadcast"

// RedisBus fans hub envelopes out to every instance through Redis Pub/Sub.
type RedisBus struct {
	Redis *redis.Client
	Log   *zap.Logger
}

func NewRedisBus(rdb *redis.Client, log *zap.Logger) *RedisBus {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisBus{Redis: rdb, Log: log}
}

// Publish публікує конверт в Redis Pub/Sub
func (b *RedisBus) Publish(ctx context.Context, env models.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := b.Redis.Publish(ctx, BroadcastChannel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", BroadcastChannel, err)
	}
	return nil
}

// Subscribe returns decoded envelopes until ctx is cancelled. Undecodable
// payloads are logged and skipped.
func (b *RedisBus) Subscribe(ctx context.Context) (<-chan models.Envelope, error) {
	pubsub := b.Redis.Subscribe(ctx, BroadcastChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", BroadcastChannel, err)
	}

	out := make(chan models.Envelope, 256)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env models.Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					b.Log.Warn("dropping undecodable broadcast", zap.Error(err))
					continue
				}
				select {
				case out <- env:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
