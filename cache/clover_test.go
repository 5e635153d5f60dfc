package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-relay/types"
)

func newTestCloverStore(t *testing.T) *CloverStore {
	t.Helper()

	store, err := NewCloverStore(t.TempDir())
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}

func cloverEntry(fingerprint, endpoint string, ttl time.Duration) *types.CacheEntry {
	now := time.Now()
	return &types.CacheEntry{
		Fingerprint: fingerprint,
		Endpoint:    endpoint,
		Payload:     map[string]interface{}{"value": fingerprint},
		TTL:         ttl,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
}

func TestCloverStore_SaveAndQueryByTag(t *testing.T) {
	store := newTestCloverStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, cloverEntry("fp-w1", "weather.today", time.Hour)))
	require.NoError(t, store.Save(ctx, cloverEntry("fp-w2", "weather.today", time.Hour)))
	require.NoError(t, store.Save(ctx, cloverEntry("fp-n1", "news.feed", time.Hour)))

	entries, err := store.QueryByTag(ctx, []string{"weather.today"}, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, entry := range entries {
		assert.Equal(t, "weather.today", entry.Endpoint)
	}

	entries, err = store.QueryByTag(ctx, []string{"weather.today", "news.feed"}, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	entries, err = store.QueryByTag(ctx, nil, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCloverStore_SaveReplacesExisting(t *testing.T) {
	store := newTestCloverStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, cloverEntry("fp-1", "weather.today", time.Hour)))
	require.NoError(t, store.Save(ctx, cloverEntry("fp-1", "weather.today", time.Hour)))

	entries, err := store.QueryByTag(ctx, []string{"weather.today"}, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCloverStore_QueryByTagExcludesExpired(t *testing.T) {
	store := newTestCloverStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, cloverEntry("fp-old", "news.feed", 10*time.Millisecond)))
	require.NoError(t, store.Save(ctx, cloverEntry("fp-fresh", "news.feed", time.Hour)))

	time.Sleep(30 * time.Millisecond)

	entries, err := store.QueryByTag(ctx, []string{"news.feed"}, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "fp-fresh", entries[0].Fingerprint)
}

func TestCloverStore_QueryByTagHonorsMaxAge(t *testing.T) {
	store := newTestCloverStore(t)
	ctx := context.Background()

	old := cloverEntry("fp-old", "news.feed", time.Hour)
	old.CreatedAt = time.Now().Add(-10 * time.Minute)
	require.NoError(t, store.Save(ctx, old))

	require.NoError(t, store.Save(ctx, cloverEntry("fp-recent", "news.feed", time.Hour)))

	entries, err := store.QueryByTag(ctx, []string{"news.feed"}, time.Minute)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "fp-recent", entries[0].Fingerprint)
}

func TestCloverStore_DeleteByTag(t *testing.T) {
	store := newTestCloverStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, cloverEntry("fp-w1", "weather.today", time.Hour)))
	require.NoError(t, store.Save(ctx, cloverEntry("fp-n1", "news.feed", time.Hour)))

	require.NoError(t, store.DeleteByTag(ctx, "weather.today"))

	entries, err := store.QueryByTag(ctx, []string{"weather.today", "news.feed"}, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "news.feed", entries[0].Endpoint)
}

func TestCloverStore_DeleteExpired(t *testing.T) {
	store := newTestCloverStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, cloverEntry("fp-old", "news.feed", 10*time.Millisecond)))
	require.NoError(t, store.Save(ctx, cloverEntry("fp-fresh", "news.feed", time.Hour)))

	time.Sleep(30 * time.Millisecond)

	purged, err := store.DeleteExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}
