package redisstream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testStream = "events_stream"

func setupSource(t *testing.T, consumer string, mutate ...func(*Options)) (*Source, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	opts := Options{
		Stream:     testStream,
		Group:      "main_group",
		Consumer:   consumer,
		GroupStart: "0",
		Count:      10,
		Block:      50 * time.Millisecond,
	}
	for _, m := range mutate {
		m(&opts)
	}
	return NewSource(client, opts, zap.NewNop()), client
}

func publish(t *testing.T, client *redis.Client, message string) string {
	t.Helper()
	id, err := client.XAdd(context.Background(), &redis.XAddArgs{
		Stream: testStream,
		Values: map[string]interface{}{"message": message},
	}).Result()
	require.NoError(t, err)
	return id
}

func TestEnsureGroup_ToleratesExistingGroup(t *testing.T) {
	ctx := context.Background()
	src, _ := setupSource(t, "worker-1")

	require.NoError(t, src.EnsureGroup(ctx))
	assert.NoError(t, src.EnsureGroup(ctx), "BUSYGROUP must not be an error")
}

func TestRead_AckAndDeliveries(t *testing.T) {
	ctx := context.Background()
	src, client := setupSource(t, "worker-1")
	require.NoError(t, src.EnsureGroup(ctx))
	id := publish(t, client, `{"eventType":"order","payload":{}}`)

	msgs, err := src.Read(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, id, msgs[0].ID)
	assert.Equal(t, `{"eventType":"order","payload":{}}`, msgs[0].Fields["message"])

	n, err := src.Deliveries(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, src.Ack(ctx, id))
	n, err = src.Deliveries(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "acked messages leave the pending list")
}

func TestRead_EmptyBatchOnTimeout(t *testing.T) {
	ctx := context.Background()
	src, _ := setupSource(t, "worker-1")
	require.NoError(t, src.EnsureGroup(ctx))

	msgs, err := src.Read(ctx)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestRead_ReclaimsIdlePendingEntries(t *testing.T) {
	ctx := context.Background()
	first, client := setupSource(t, "worker-1")
	require.NoError(t, first.EnsureGroup(ctx))
	id := publish(t, client, "x")

	msgs, err := first.Read(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	// worker-1 "muere" sin confirmar

	second := NewSource(client, Options{
		Stream:          testStream,
		Group:           "main_group",
		Consumer:        "worker-2",
		Block:           50 * time.Millisecond,
		ReclaimMinIdle:  time.Millisecond,
		ReclaimInterval: 0,
	}, zap.NewNop())
	time.Sleep(10 * time.Millisecond)

	msgs, err = second.Read(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, id, msgs[0].ID)

	n, err := second.Deliveries(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestDeadLetter_CopiesFieldsAndCause(t *testing.T) {
	ctx := context.Background()
	src, client := setupSource(t, "worker-1")
	require.NoError(t, src.EnsureGroup(ctx))
	id := publish(t, client, "garbage")

	msgs, err := src.Read(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	require.NoError(t, src.DeadLetter(ctx, msgs[0], errors.New("invalid envelope JSON")))

	dead, err := client.XRange(ctx, testStream+".dead", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "garbage", dead[0].Values["message"])
	assert.Equal(t, id, dead[0].Values["source_id"])
	assert.Equal(t, "invalid envelope JSON", dead[0].Values["error"])
	assert.NotEmpty(t, dead[0].Values["failed_at"])
}

func TestNewSource_GeneratesConsumerName(t *testing.T) {
	src, _ := setupSource(t, "")
	assert.NotEmpty(t, src.Consumer())
}
