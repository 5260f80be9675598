package messaging

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	client *redis.Client
	stream string
}

func setupRedis(t *testing.T) *testEnv {
	t.Helper()

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		t.Skip("REDIS_ADDR is not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("redis unavailable: %v", err)
	}

	env := &testEnv{client: client, stream: "vapay.test." + uuid.NewString()}
	t.Cleanup(func() {
		client.Del(context.Background(), env.stream)
		client.Close()
	})
	return env
}

func (e *testEnv) consumer(claimIdle time.Duration) *Consumer {
	return NewConsumer(e.client, ConsumerOptions{
		Group:     "vapay-test",
		Name:      "worker-1",
		Count:     10,
		Block:     100 * time.Millisecond,
		ClaimIdle: claimIdle,
	}, zerolog.Nop())
}

func (e *testEnv) pending(t *testing.T) int64 {
	t.Helper()
	p, err := e.client.XPending(context.Background(), e.stream, "vapay-test").Result()
	require.NoError(t, err)
	return p.Count
}

func TestPublishThenPollAcks(t *testing.T) {
	env := setupRedis(t)
	ctx := context.Background()
	c := env.consumer(time.Minute)
	require.NoError(t, c.EnsureGroup(ctx, env.stream))
	require.NoError(t, c.EnsureGroup(ctx, env.stream), "existing group must be accepted")

	pub := NewPublisher(env.client, 1000)
	id, err := pub.Publish(ctx, env.stream, map[string]string{"invoiceNumber": "INV-1"})
	require.NoError(t, err)

	var got []Message
	n, err := c.Poll(ctx, env.stream, func(_ context.Context, msg Message) error {
		got = append(got, msg)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)
	assert.JSONEq(t, `{"invoiceNumber":"INV-1"}`, string(got[0].Payload))
	assert.False(t, got[0].Redelivered)

	assert.Equal(t, int64(0), env.pending(t))
}

func TestFailedEntryIsReclaimed(t *testing.T) {
	env := setupRedis(t)
	ctx := context.Background()
	c := env.consumer(20 * time.Millisecond)
	require.NoError(t, c.EnsureGroup(ctx, env.stream))

	_, err := NewPublisher(env.client, 0).Publish(ctx, env.stream, map[string]int{"n": 1})
	require.NoError(t, err)

	_, err = c.Poll(ctx, env.stream, func(context.Context, Message) error {
		return errors.New("database unavailable")
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), env.pending(t))

	time.Sleep(50 * time.Millisecond)

	var redelivered []Message
	require.NoError(t, c.Reclaim(ctx, env.stream, func(_ context.Context, msg Message) error {
		redelivered = append(redelivered, msg)
		return nil
	}))
	require.Len(t, redelivered, 1)
	assert.True(t, redelivered[0].Redelivered)
	assert.Equal(t, int64(0), env.pending(t))
}

func TestRunStopsOnCancel(t *testing.T) {
	env := setupRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	c := env.consumer(time.Minute)

	var mu sync.Mutex
	var seen int
	done := make(chan error, 1)
	go func() {
		done <- c.Run(ctx, env.stream, func(context.Context, Message) error {
			mu.Lock()
			seen++
			mu.Unlock()
			return nil
		})
	}()

	pub := NewPublisher(env.client, 0)
	for i := 0; i < 3; i++ {
		_, err := pub.Publish(context.Background(), env.stream, map[string]int{"n": i})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen == 3
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestToMessage(t *testing.T) {
	msg := toMessage("va.payment", redis.XMessage{ID: "1-0", Values: map[string]any{"payload": `{"a":1}`}}, false)
	assert.Equal(t, "va.payment", msg.Stream)
	assert.Equal(t, "1-0", msg.ID)
	assert.Equal(t, `{"a":1}`, string(msg.Payload))

	msg = toMessage("va.payment", redis.XMessage{ID: "2-0", Values: map[string]any{"other": "x"}}, true)
	assert.Empty(t, msg.Payload)
	assert.True(t, msg.Redelivered)
}
