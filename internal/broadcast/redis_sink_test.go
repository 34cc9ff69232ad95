package broadcast

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSink(t *testing.T, cfg RedisSinkConfig) (*RedisSink, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisSink(client, cfg), mr, client
}

func TestRedisSinkPublishesAndStoresSnapshot(t *testing.T) {
	sink, mr, client := newTestSink(t, RedisSinkConfig{Workers: 1, StateTTL: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := client.Subscribe(ctx, RoomChannel("r1"))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	sink.Start(ctx)
	sink.Publish("r1", "game:tick", map[string]int{"tick": 4})

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &env))
	assert.Equal(t, "game:tick", env.Event)
	assert.Equal(t, "r1", env.RoomID)

	require.Eventually(t, func() bool { return mr.Exists(StateKey("r1")) }, time.Second, 10*time.Millisecond)
	assert.Equal(t, time.Minute, mr.TTL(StateKey("r1")))

	raw, err := sink.LastSnapshot(ctx, "r1")
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"tick":4`)

	sink.CloseRoom("r1")
	require.Eventually(t, func() bool { return !mr.Exists(StateKey("r1")) }, time.Second, 10*time.Millisecond)
	_, err = sink.LastSnapshot(ctx, "r1")
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestRedisSinkSkipsSnapshotForLifecycleEvents(t *testing.T) {
	sink, mr, _ := newTestSink(t, RedisSinkConfig{Workers: 1})
	ctx, cancel := context.WithCancel(context.Background())
	sink.Start(ctx)
	sink.Publish("r2", EventRoomPlayerReady, map[string]string{"agent_id": "a"})
	cancel()
	sink.Wait()
	assert.False(t, mr.Exists(StateKey("r2")))
}

func TestRedisSinkDropsWhenQueueFull(t *testing.T) {
	sink, _, _ := newTestSink(t, RedisSinkConfig{QueueSize: 1, Workers: 1})
	before := metricRedisDroppedTotal.Value()
	sink.Publish("r3", "game:tick", 1)
	sink.Publish("r3", "game:tick", 2)
	sink.Publish("r3", "game:tick", 3)
	assert.Equal(t, before+2, metricRedisDroppedTotal.Value())
}

func TestRedisSinkKeepsRoomOrderAcrossWorkers(t *testing.T) {
	const ticks = 500
	sink, _, client := newTestSink(t, RedisSinkConfig{Workers: 4, QueueSize: 2 * ticks, StateTTL: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rooms := []string{"ra", "rb", "rc"}
	channels := make([]string, len(rooms))
	for i, id := range rooms {
		channels[i] = RoomChannel(id)
	}
	sub := client.Subscribe(ctx, channels...)
	defer sub.Close()
	for range rooms {
		_, err := sub.Receive(ctx)
		require.NoError(t, err)
	}

	for tick := 1; tick <= ticks; tick++ {
		for _, id := range rooms {
			sink.Publish(id, "game:tick", map[string]int{"tick": tick})
		}
	}
	sink.Start(ctx)

	last := map[string]int{}
	for i := 0; i < ticks*len(rooms); i++ {
		msg, err := sub.ReceiveMessage(ctx)
		require.NoError(t, err)
		var env struct {
			RoomID string         `json:"room_id"`
			Data   map[string]int `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &env))
		require.Equal(t, last[env.RoomID]+1, env.Data["tick"], "room %s out of order", env.RoomID)
		last[env.RoomID] = env.Data["tick"]
	}

	for _, id := range rooms {
		require.Eventually(t, func() bool {
			raw, err := sink.LastSnapshot(ctx, id)
			return err == nil && strings.Contains(string(raw), `"tick":500`)
		}, time.Second, 10*time.Millisecond, "room %s snapshot", id)
	}
}
