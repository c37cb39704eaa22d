package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thoughtforge/thoughtsync/internal/cache"
)

func newTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewWithClient(client, "test", nil)
}

type collector struct {
	mu      sync.Mutex
	changes []Change
}

func (c *collector) handle(ch Change) {
	c.mu.Lock()
	c.changes = append(c.changes, ch)
	c.mu.Unlock()
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.changes)
}

func (c *collector) all() []Change {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Change(nil), c.changes...)
}

func TestHubFiltersAndDetaches(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()
	var mine, all collector

	cancelMine, err := hub.Listen(ctx, Spec{Table: "notifications", Filter: Filter{Column: "user_id", Value: "u1"}}, mine.handle)
	require.NoError(t, err)
	cancelAll, err := hub.Listen(ctx, Spec{Table: "notifications"}, all.handle)
	require.NoError(t, err)
	defer cancelAll()

	require.NoError(t, hub.Publish(ctx, Change{Table: "notifications", Type: Insert, Columns: map[string]string{"user_id": "u1"}}))
	require.NoError(t, hub.Publish(ctx, Change{Table: "notifications", Type: Insert, Columns: map[string]string{"user_id": "u2"}}))
	require.NoError(t, hub.Publish(ctx, Change{Table: "thoughts", Type: Insert}))

	assert.Equal(t, 1, mine.len())
	assert.Equal(t, 2, all.len())

	cancelMine()
	assert.Equal(t, 1, hub.Listeners())
}

func TestRedisBrokerRoundTrip(t *testing.T) {
	broker := NewRedisBroker(newTestCache(t), nil)
	ctx := context.Background()
	var got collector

	cancel, err := broker.Listen(ctx, Spec{Table: "thoughts", Events: []EventType{Update}}, got.handle)
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, broker.Publish(ctx, Change{Table: "thoughts", Type: Insert, Record: []byte(`{"id":"a"}`)}))
	require.NoError(t, broker.Publish(ctx, Change{Table: "thoughts", Type: Update, Record: []byte(`{"id":"a"}`)}))

	require.Eventually(t, func() bool { return got.len() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, Update, got.all()[0].Type)
	assert.JSONEq(t, `{"id":"a"}`, string(got.all()[0].Record))
}

func TestRedisBrokerCancelStopsDelivery(t *testing.T) {
	broker := NewRedisBroker(newTestCache(t), nil)
	ctx := context.Background()
	var got collector

	cancel, err := broker.Listen(ctx, Spec{Table: "thoughts"}, got.handle)
	require.NoError(t, err)
	cancel()
	cancel()

	require.NoError(t, broker.Publish(ctx, Change{Table: "thoughts", Type: Insert}))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, got.len())
}
