package cache

import (
	"context"
	"time"

	"github.com/saiset-co/sai-relay/types"
)

type KeyValueStoreCreator func(config interface{}) (types.KeyValueStore, error)

var customKVCreators = make(map[string]KeyValueStoreCreator)

func RegisterKeyValueStore(storeName string, creator KeyValueStoreCreator) {
	customKVCreators[storeName] = creator
}

// NewCacheStore assembles the tiers named by the configuration and
// wraps the result in the instrumented decorator.
func NewCacheStore(ctx context.Context, logger types.Logger, metrics types.MetricsManager, config *types.CacheConfig) (types.CacheStore, error) {
	if config == nil || !config.Enabled {
		return nil, types.ErrCacheIsDisabled
	}

	persistent, err := newPersistentTier(config)
	if err != nil {
		return nil, err
	}

	var structured types.StructuredStore
	if config.Structured != nil && config.Structured.Enabled {
		structured, err = NewCloverStore(config.Structured.Path)
		if err != nil {
			persistent.Close()
			return nil, err
		}
	}

	store, err := NewStore(ctx, logger, config, persistent, structured)
	if err != nil {
		return nil, err
	}

	return newInstrumentedStore(logger, metrics, store), nil
}

func newPersistentTier(config *types.CacheConfig) (types.KeyValueStore, error) {
	tierType := "memory"
	var tierConfig interface{}

	if config.Persistent != nil {
		tierType = config.Persistent.Type
		tierConfig = config.Persistent.Config
	}

	switch tierType {
	case "memory":
		return NewMemoryKV(tierConfig)
	case "redis":
		return NewRedisKV(tierConfig)
	default:
		if creator, exists := customKVCreators[tierType]; exists {
			return creator(tierConfig)
		}
		return nil, types.Errorf(types.ErrCacheTypeUnknown, "type: %s", tierType)
	}
}

type instrumentedStore struct {
	impl    types.CacheStore
	logger  types.Logger
	metrics types.MetricsManager
}

func newInstrumentedStore(logger types.Logger, metrics types.MetricsManager, impl types.CacheStore) types.CacheStore {
	return &instrumentedStore{
		impl:    impl,
		logger:  logger,
		metrics: metrics,
	}
}

func (is *instrumentedStore) Get(ctx context.Context, fingerprint string) (interface{}, bool) {
	start := time.Now()
	value, exists := is.impl.Get(ctx, fingerprint)
	duration := time.Since(start)

	result := "miss"
	if exists {
		result = "hit"
	}

	is.recordMetric("get", result, duration)
	return value, exists
}

func (is *instrumentedStore) Put(ctx context.Context, fingerprint, endpoint string, payload interface{}, ttl time.Duration) error {
	start := time.Now()
	err := is.impl.Put(ctx, fingerprint, endpoint, payload, ttl)
	duration := time.Since(start)

	is.recordMetric("put", resultLabel(err), duration)
	return err
}

func (is *instrumentedStore) Delete(ctx context.Context, fingerprint string) error {
	start := time.Now()
	err := is.impl.Delete(ctx, fingerprint)
	duration := time.Since(start)

	is.recordMetric("delete", resultLabel(err), duration)
	return err
}

func (is *instrumentedStore) QueryByTag(ctx context.Context, tags []string, maxAge time.Duration) ([]*types.CacheEntry, error) {
	start := time.Now()
	entries, err := is.impl.QueryByTag(ctx, tags, maxAge)
	duration := time.Since(start)

	is.recordMetric("query_by_tag", resultLabel(err), duration)
	return entries, err
}

func (is *instrumentedStore) InvalidateTag(ctx context.Context, tag string) error {
	start := time.Now()
	err := is.impl.InvalidateTag(ctx, tag)
	duration := time.Since(start)

	is.recordMetric("invalidate_tag", resultLabel(err), duration)
	return err
}

func (is *instrumentedStore) ClearAll(ctx context.Context) error {
	start := time.Now()
	err := is.impl.ClearAll(ctx)
	duration := time.Since(start)

	is.recordMetric("clear_all", resultLabel(err), duration)
	return err
}

func (is *instrumentedStore) Cleanup(ctx context.Context) error {
	return is.impl.Cleanup(ctx)
}

func (is *instrumentedStore) Stats() types.CacheStats {
	return is.impl.Stats()
}

func (is *instrumentedStore) Start() error {
	return is.impl.Start()
}

func (is *instrumentedStore) Stop() error {
	return is.impl.Stop()
}

func (is *instrumentedStore) IsRunning() bool {
	return is.impl.IsRunning()
}

func (is *instrumentedStore) recordMetric(operation, result string, duration time.Duration) {
	opCounter := is.metrics.Counter("cache_operations_total", map[string]string{
		"operation": operation,
		"result":    result,
	})
	opCounter.Inc()

	opDuration := is.metrics.Histogram("cache_operation_duration_seconds",
		[]float64{0.0001, 0.001, 0.01, 0.1, 1.0},
		map[string]string{"operation": operation},
	)
	opDuration.Observe(duration.Seconds())
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
