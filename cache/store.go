package cache

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-relay/types"
	"github.com/saiset-co/sai-relay/utils"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

const (
	// evictionFraction of the persistent tier is dropped, oldest first,
	// when a write hits the quota.
	evictionFraction = 0.25

	defaultCleanupInterval = 5 * time.Minute
)

// Store composes the fast in-memory tier, the flat persistent tier and
// the optional structured tier behind the CacheStore contract. Caching
// is an optimization: a put that cannot be persisted is dropped, never
// surfaced to the caller as a failure.
type Store struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger types.Logger

	memory     *memoryTier
	persistent types.KeyValueStore
	structured types.StructuredStore

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	cleanupDone     chan struct{}
	droppedPuts     uint64
	state           atomic.Value
}

func NewStore(ctx context.Context, logger types.Logger, config *types.CacheConfig, persistent types.KeyValueStore, structured types.StructuredStore) (*Store, error) {
	maxEntries := 10000
	cleanupInterval := defaultCleanupInterval

	if config != nil && config.Memory != nil {
		maxEntries = config.Memory.MaxEntries
		if config.Memory.CleanupInterval != "" {
			parsed, err := time.ParseDuration(config.Memory.CleanupInterval)
			if err != nil {
				logger.Error("Invalid cleanup interval, using default 5m",
					zap.String("interval", config.Memory.CleanupInterval),
					zap.Error(err))
			} else {
				cleanupInterval = parsed
			}
		}
	}

	storeCtx, cancel := context.WithCancel(ctx)

	s := &Store{
		ctx:             storeCtx,
		cancel:          cancel,
		logger:          logger,
		memory:          newMemoryTier(maxEntries),
		persistent:      persistent,
		structured:      structured,
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		cleanupDone:     make(chan struct{}),
	}

	s.state.Store(StateStopped)

	return s, nil
}

func (s *Store) Start() error {
	if !s.transitionState(StateStopped, StateStarting) {
		s.logger.Warn("Cache store is already running")
		return types.ErrServiceAlreadyRunning
	}

	defer func() {
		if s.getState() == StateStarting {
			s.setState(StateRunning)
		}
	}()

	if s.cleanupInterval > 0 {
		go s.cleanupRoutine()
	} else {
		close(s.cleanupDone)
	}

	s.logger.Info("Cache store started",
		zap.Duration("cleanup_interval", s.cleanupInterval),
		zap.Bool("structured_tier", s.structured != nil))
	return nil
}

func (s *Store) Stop() error {
	if !s.transitionState(StateRunning, StateStopping) {
		s.logger.Warn("Cache store is not running")
		return types.ErrServiceNotRunning
	}

	defer func() {
		s.setState(StateStopped)
	}()

	s.cancel()

	select {
	case s.stopCleanup <- struct{}{}:
	default:
	}

	select {
	case <-s.cleanupDone:
	case <-time.After(5 * time.Second):
		s.logger.Warn("Cache cleanup routine stop timeout")
	}

	if err := s.persistent.Close(); err != nil {
		s.logger.Error("Failed to close persistent tier", zap.Error(err))
	}

	if s.structured != nil {
		if err := s.structured.Close(); err != nil {
			s.logger.Error("Failed to close structured tier", zap.Error(err))
		}
	}

	s.logger.Info("Cache store stopped gracefully")
	return nil
}

func (s *Store) IsRunning() bool {
	return s.getState() == StateRunning
}

// Get returns the cached payload only while now < expiresAt. A stale
// entry counts as absent and is removed from whichever tier held it.
func (s *Store) Get(ctx context.Context, fingerprint string) (interface{}, bool) {
	if fingerprint == "" {
		return nil, false
	}

	now := time.Now()

	if entry, ok := s.memory.get(fingerprint, now); ok {
		return entry.Payload, true
	}

	data, found, err := s.persistent.Get(ctx, fingerprint)
	if err != nil {
		s.logger.Error("Persistent tier read failed", zap.String("fingerprint", fingerprint), zap.Error(err))
		return nil, false
	}
	if !found {
		return nil, false
	}

	var entry types.CacheEntry
	if err := utils.Unmarshal(data, &entry); err != nil {
		s.logger.Error("Corrupt persistent entry, dropping", zap.String("fingerprint", fingerprint), zap.Error(err))
		_ = s.persistent.Delete(ctx, fingerprint)
		return nil, false
	}

	if !entry.Valid(now) {
		_ = s.persistent.Delete(ctx, fingerprint)
		return nil, false
	}

	// Promote so the next read stays in-process.
	s.memory.set(&entry)

	return entry.Payload, true
}

// Put writes the entry to every tier. A zero TTL means never cache and
// short-circuits to a no-op; persistence failures after the eviction
// pass are soft because the caller already holds the value.
func (s *Store) Put(ctx context.Context, fingerprint, endpoint string, payload interface{}, ttl time.Duration) error {
	if fingerprint == "" {
		return types.ErrCacheKeyEmpty
	}
	if ttl < 0 {
		return types.ErrCacheTTLNegative
	}
	if ttl == 0 {
		return nil
	}

	now := time.Now()
	entry := &types.CacheEntry{
		Fingerprint: fingerprint,
		Endpoint:    endpoint,
		Payload:     payload,
		TTL:         ttl,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}

	s.memory.set(entry)
	s.persistEntry(ctx, entry)

	if s.structured != nil {
		if err := s.structured.Save(ctx, entry); err != nil {
			s.logger.Warn("Structured tier write failed",
				zap.String("fingerprint", fingerprint),
				zap.Error(err))
		}
	}

	return nil
}

func (s *Store) Delete(ctx context.Context, fingerprint string) error {
	if fingerprint == "" {
		return nil
	}

	s.memory.delete(fingerprint)
	return s.persistent.Delete(ctx, fingerprint)
}

func (s *Store) QueryByTag(ctx context.Context, tags []string, maxAge time.Duration) ([]*types.CacheEntry, error) {
	if s.structured == nil {
		return nil, types.ErrStructuredTierDisabled
	}
	return s.structured.QueryByTag(ctx, tags, maxAge)
}

func (s *Store) InvalidateTag(ctx context.Context, tag string) error {
	if tag == "" {
		return types.ErrEndpointEmpty
	}

	removed := s.memory.deleteByEndpoint(tag)

	keys, err := s.persistent.Keys(ctx)
	if err != nil {
		return types.WrapError(err, "failed to list persistent keys")
	}

	for _, key := range keys {
		data, found, err := s.persistent.Get(ctx, key)
		if err != nil || !found {
			continue
		}

		var entry types.CacheEntry
		if err := utils.Unmarshal(data, &entry); err != nil {
			continue
		}

		if entry.Endpoint == tag {
			_ = s.persistent.Delete(ctx, key)
			removed++
		}
	}

	if s.structured != nil {
		if err := s.structured.DeleteByTag(ctx, tag); err != nil {
			s.logger.Warn("Structured tier invalidation failed", zap.String("tag", tag), zap.Error(err))
		}
	}

	s.logger.Debug("Endpoint invalidated", zap.String("endpoint", tag), zap.Int("removed", removed))
	return nil
}

func (s *Store) ClearAll(ctx context.Context) error {
	s.memory.clear()

	if err := s.persistent.Clear(ctx); err != nil {
		return types.WrapError(err, "failed to clear persistent tier")
	}

	if s.structured != nil {
		if err := s.structured.Clear(ctx); err != nil {
			return types.WrapError(err, "failed to clear structured tier")
		}
	}

	s.logger.Info("Cache cleared")
	return nil
}

// Cleanup proactively purges expired entries from every tier. Wired to
// the cron purge job; the same work happens lazily on reads.
func (s *Store) Cleanup(ctx context.Context) error {
	now := time.Now()

	expired := s.memory.purgeExpired(now)

	keys, err := s.persistent.Keys(ctx)
	if err != nil {
		return types.WrapError(err, "failed to list persistent keys")
	}

	for _, key := range keys {
		data, found, err := s.persistent.Get(ctx, key)
		if err != nil || !found {
			continue
		}

		var entry types.CacheEntry
		if err := utils.Unmarshal(data, &entry); err != nil {
			_ = s.persistent.Delete(ctx, key)
			expired++
			continue
		}

		if !entry.Valid(now) {
			_ = s.persistent.Delete(ctx, key)
			expired++
		}
	}

	if s.structured != nil {
		purged, err := s.structured.DeleteExpired(ctx, now)
		if err != nil {
			s.logger.Warn("Structured tier purge failed", zap.Error(err))
		} else {
			expired += int(purged)
		}
	}

	if expired > 0 {
		s.logger.Debug("Cleanup completed", zap.Int("expired_entries", expired))
	}

	return nil
}

func (s *Store) Stats() types.CacheStats {
	hits, misses, evictions, entries := s.memory.stats()
	return types.CacheStats{
		Hits:        hits,
		Misses:      misses,
		Evictions:   evictions,
		DroppedPuts: atomic.LoadUint64(&s.droppedPuts),
		Entries:     entries,
	}
}

// persistEntry writes to the persistent tier, running one eviction pass
// on quota exhaustion: the oldest quarter of entries by CreatedAt is
// removed and the write retried once.
func (s *Store) persistEntry(ctx context.Context, entry *types.CacheEntry) {
	data, err := utils.Marshal(entry)
	if err != nil {
		s.logger.Error("Failed to marshal cache entry", zap.String("fingerprint", entry.Fingerprint), zap.Error(err))
		return
	}

	err = s.persistent.Set(ctx, entry.Fingerprint, data)
	if err == nil {
		return
	}

	if !types.IsError(err, types.ErrStoreQuotaExceeded) {
		s.logger.Error("Persistent tier write failed",
			zap.String("fingerprint", entry.Fingerprint),
			zap.Error(err))
		return
	}

	evicted, evictErr := s.evictOldestPersistent(ctx)
	if evictErr != nil {
		s.logger.Error("Persistent tier eviction failed", zap.Error(evictErr))
	}

	if err := s.persistent.Set(ctx, entry.Fingerprint, data); err != nil {
		atomic.AddUint64(&s.droppedPuts, 1)
		s.logger.Warn("Dropping uncacheable entry after eviction",
			zap.String("fingerprint", entry.Fingerprint),
			zap.Int("evicted", evicted),
			zap.Error(err))
		return
	}

	s.logger.Debug("Persistent tier write retried after eviction",
		zap.String("fingerprint", entry.Fingerprint),
		zap.Int("evicted", evicted))
}

func (s *Store) evictOldestPersistent(ctx context.Context) (int, error) {
	keys, err := s.persistent.Keys(ctx)
	if err != nil {
		return 0, types.WrapError(err, "failed to list persistent keys")
	}

	if len(keys) == 0 {
		return 0, nil
	}

	type aged struct {
		key       string
		createdAt time.Time
	}

	entries := make([]aged, 0, len(keys))
	for _, key := range keys {
		data, found, err := s.persistent.Get(ctx, key)
		if err != nil || !found {
			continue
		}

		var entry types.CacheEntry
		if err := utils.Unmarshal(data, &entry); err != nil {
			// Unparseable entries are the best eviction candidates.
			entries = append(entries, aged{key: key})
			continue
		}

		entries = append(entries, aged{key: key, createdAt: entry.CreatedAt})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].createdAt.Before(entries[j].createdAt)
	})

	victims := int(float64(len(entries)) * evictionFraction)
	if victims < 1 {
		victims = 1
	}

	evicted := 0
	for _, candidate := range entries[:victims] {
		if err := s.persistent.Delete(ctx, candidate.key); err != nil {
			continue
		}
		evicted++
	}

	return evicted, nil
}

func (s *Store) cleanupRoutine() {
	defer close(s.cleanupDone)

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			if err := s.Cleanup(s.ctx); err != nil {
				s.logger.Error("Cleanup failed", zap.Error(err))
			}
		}
	}
}

func (s *Store) getState() State {
	return s.state.Load().(State)
}

func (s *Store) setState(newState State) bool {
	currentState := s.getState()
	return s.state.CompareAndSwap(currentState, newState)
}

func (s *Store) transitionState(from, to State) bool {
	return s.state.CompareAndSwap(from, to)
}
