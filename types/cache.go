package types

import (
	"context"
	"time"
)

type CacheStore interface {
	LifecycleManager
	Get(ctx context.Context, fingerprint string) (interface{}, bool)
	Put(ctx context.Context, fingerprint, endpoint string, payload interface{}, ttl time.Duration) error
	Delete(ctx context.Context, fingerprint string) error
	QueryByTag(ctx context.Context, tags []string, maxAge time.Duration) ([]*CacheEntry, error)
	InvalidateTag(ctx context.Context, tag string) error
	ClearAll(ctx context.Context) error
	Cleanup(ctx context.Context) error
	Stats() CacheStats
}

type CacheStoreCreator func(config interface{}) (CacheStore, error)

type CacheEntry struct {
	Fingerprint string        `json:"fingerprint"`
	Endpoint    string        `json:"endpoint"`
	Payload     interface{}   `json:"payload"`
	TTL         time.Duration `json:"ttl"`
	CreatedAt   time.Time     `json:"created_at"`
	ExpiresAt   time.Time     `json:"expires_at"`
}

// Valid reports whether the entry is still fresh at the given instant.
// An entry is valid iff now < ExpiresAt.
func (e *CacheEntry) Valid(now time.Time) bool {
	return e != nil && now.Before(e.ExpiresAt)
}

type CacheStats struct {
	Hits        uint64 `json:"hits"`
	Misses      uint64 `json:"misses"`
	Evictions   uint64 `json:"evictions"`
	DroppedPuts uint64 `json:"dropped_puts"`
	Entries     int    `json:"entries"`
}

// KeyValueStore is the flat persistent tier collaborator. Set must
// return ErrStoreQuotaExceeded (wrapped or verbatim) when the backing
// store is out of capacity so the cache can run its eviction pass.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	Clear(ctx context.Context) error
	Close() error
}

// StructuredStore is the optional queryable tier, keyed by endpoint
// tags for range queries and topic-scoped invalidation.
type StructuredStore interface {
	Save(ctx context.Context, entry *CacheEntry) error
	QueryByTag(ctx context.Context, tags []string, maxAge time.Duration) ([]*CacheEntry, error)
	DeleteByTag(ctx context.Context, tag string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	Clear(ctx context.Context) error
	Close() error
}
