package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisKV(t *testing.T) *RedisKV {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
	})

	return NewRedisKVFromClient(client, "test")
}

func TestRedisKV_RoundTrip(t *testing.T) {
	kv := newTestRedisKV(t)
	ctx := context.Background()

	_, found, err := kv.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, kv.Set(ctx, "key", []byte(`{"temp":21.5}`)))

	value, found, err := kv.Get(ctx, "key")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte(`{"temp":21.5}`), value)

	require.NoError(t, kv.Delete(ctx, "key"))

	_, found, err = kv.Get(ctx, "key")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisKV_KeysStripPrefix(t *testing.T) {
	kv := newTestRedisKV(t)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "fp-1", []byte("a")))
	require.NoError(t, kv.Set(ctx, "fp-2", []byte("b")))

	keys, err := kv.Keys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"fp-1", "fp-2"}, keys)
}

func TestRedisKV_Clear(t *testing.T) {
	kv := newTestRedisKV(t)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "fp-1", []byte("a")))
	require.NoError(t, kv.Set(ctx, "fp-2", []byte("b")))

	require.NoError(t, kv.Clear(ctx))

	keys, err := kv.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestIsRedisOOM(t *testing.T) {
	assert.True(t, isRedisOOM(errors.New("OOM command not allowed when used memory > 'maxmemory'")))
	assert.False(t, isRedisOOM(errors.New("connection refused")))
	assert.False(t, isRedisOOM(nil))
}
