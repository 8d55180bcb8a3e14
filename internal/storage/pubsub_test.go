package storage_test

import (
	"campusskill/backend/internal/models"
	"campusskill/backend/internal/storage"
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisBus_RoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := storage.NewRedisBus(rdb, nil)
	deliveries, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	evt, err := models.NewEvent(models.EventChatNewMessage, map[string]string{"content": "hi"})
	require.NoError(t, err)
	sent := models.Envelope{Room: "room:r1", ExcludeConn: "c1", Event: evt}

	// Undecodable payloads are skipped.
	require.NoError(t, rdb.Publish(ctx, storage.BroadcastChannel, "{broken").Err())
	require.NoError(t, bus.Publish(ctx, sent))

	select {
	case got := <-deliveries:
		assert.Equal(t, sent.Room, got.Room)
		assert.Equal(t, sent.ExcludeConn, got.ExcludeConn)
		assert.JSONEq(t, string(sent.Event.Data), string(got.Event.Data))
	case <-time.After(2 * time.Second):
		t.Fatal("no envelope delivered")
	}

	cancel()
	assert.Eventually(t, func() bool {
		_, open := <-deliveries
		return !open
	}, 2*time.Second, 10*time.Millisecond)
}
