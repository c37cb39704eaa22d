package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thoughtforge/thoughtsync/pkg/config"
)

func newTestCache(t *testing.T, namespace string) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewWithClient(client, namespace, nil), mr
}

func TestHashKey(t *testing.T) {
	tests := []struct {
		name  string
		parts []string
	}{
		{name: "single part", parts: []string{"test"}},
		{name: "multiple parts", parts: []string{"test", "key", "with", "many", "parts"}},
		{name: "empty parts", parts: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hashed1 := HashKey(tt.parts...)
			hashed2 := HashKey(tt.parts...)

			if hashed1 != hashed2 {
				t.Errorf("HashKey() should be consistent, got %s and %s", hashed1, hashed2)
			}
			if len(hashed1) != 32 {
				t.Errorf("HashKey() should return 32 character hex string, got length %d", len(hashed1))
			}
		})
	}
}

func TestCache_NamespaceKey(t *testing.T) {
	cache := &Cache{}

	tests := []struct {
		name     string
		key      string
		expected string
	}{
		{name: "simple key", key: "test", expected: "thoughts:test"},
		{name: "key with colon", key: "test:key", expected: "thoughts:test:key"},
		{name: "empty key", key: "", expected: "thoughts:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := cache.namespaceKey(tt.key)
			if result != tt.expected {
				t.Errorf("namespaceKey() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestNewDisabled(t *testing.T) {
	c, err := New(&config.RedisConfig{Enabled: false}, nil)
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.ErrorIs(t, c.Publish(context.Background(), "x", nil), ErrCacheDisabled)
	assert.NoError(t, c.Close())
}

func TestNewConnects(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := New(&config.RedisConfig{Enabled: true, URL: "redis://" + mr.Addr(), Namespace: "test"}, nil)
	require.NoError(t, err)
	defer c.Close()
	assert.NoError(t, c.Health(context.Background()))
	assert.Equal(t, "test:k", c.Key("k"))
}

func TestPublishSubscribe(t *testing.T) {
	c, _ := newTestCache(t, "ns")
	ctx := context.Background()

	ps, err := c.Subscribe(ctx, "changes:thoughts")
	require.NoError(t, err)
	defer ps.Close()

	require.NoError(t, c.Publish(ctx, "changes:thoughts", []byte(`{"a":1}`)))

	select {
	case msg := <-ps.Channel():
		assert.Equal(t, "ns:changes:thoughts", msg.Channel)
		assert.Equal(t, `{"a":1}`, msg.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestHashOperations(t *testing.T) {
	c, mr := newTestCache(t, "ns")
	ctx := context.Background()

	require.NoError(t, c.HSet(ctx, "presence", "u1", []byte("one")))
	require.NoError(t, c.HSet(ctx, "presence", "u2", []byte("two")))
	assert.Equal(t, "one", mr.HGet("ns:presence", "u1"))

	all, err := c.HGetAll(ctx, "presence")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"u1": "one", "u2": "two"}, all)

	require.NoError(t, c.HDel(ctx, "presence", "u1"))
	all, err = c.HGetAll(ctx, "presence")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"u2": "two"}, all)
}
