package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/saiset-co/sai-relay/types"
)

// memoryTier is the fast in-process tier. Reads are the hot path and
// must stay O(1); expired entries are purged lazily on read and in bulk
// by the owning store's cleanup pass.
type memoryTier struct {
	mu         sync.RWMutex
	data       map[string]*types.CacheEntry
	maxEntries int
	hits       uint64
	misses     uint64
	evictions  uint64
}

func newMemoryTier(maxEntries int) *memoryTier {
	return &memoryTier{
		data:       make(map[string]*types.CacheEntry),
		maxEntries: maxEntries,
	}
}

func (m *memoryTier) get(fingerprint string, now time.Time) (*types.CacheEntry, bool) {
	m.mu.RLock()
	entry, exists := m.data[fingerprint]
	m.mu.RUnlock()

	if !exists {
		atomic.AddUint64(&m.misses, 1)
		return nil, false
	}

	if !entry.Valid(now) {
		m.mu.Lock()
		if entry, exists := m.data[fingerprint]; exists && !entry.Valid(now) {
			delete(m.data, fingerprint)
		}
		m.mu.Unlock()

		atomic.AddUint64(&m.misses, 1)
		return nil, false
	}

	atomic.AddUint64(&m.hits, 1)
	return entry, true
}

func (m *memoryTier) set(entry *types.CacheEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.maxEntries > 0 {
		if _, exists := m.data[entry.Fingerprint]; !exists && len(m.data) >= m.maxEntries {
			m.evictOldestUnsafe()
		}
	}

	m.data[entry.Fingerprint] = entry
}

func (m *memoryTier) delete(fingerprint string) {
	m.mu.Lock()
	delete(m.data, fingerprint)
	m.mu.Unlock()
}

func (m *memoryTier) deleteByEndpoint(endpoint string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for fingerprint, entry := range m.data {
		if entry.Endpoint == endpoint {
			delete(m.data, fingerprint)
			removed++
		}
	}
	return removed
}

func (m *memoryTier) clear() {
	m.mu.Lock()
	m.data = make(map[string]*types.CacheEntry)
	m.mu.Unlock()
}

func (m *memoryTier) purgeExpired(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	expired := 0
	for fingerprint, entry := range m.data {
		if !entry.Valid(now) {
			delete(m.data, fingerprint)
			expired++
		}
	}
	return expired
}

func (m *memoryTier) len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

func (m *memoryTier) evictOldestUnsafe() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range m.data {
		if oldestKey == "" || entry.CreatedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.CreatedAt
		}
	}

	if oldestKey != "" {
		delete(m.data, oldestKey)
		atomic.AddUint64(&m.evictions, 1)
	}
}

func (m *memoryTier) stats() (hits, misses, evictions uint64, entries int) {
	return atomic.LoadUint64(&m.hits),
		atomic.LoadUint64(&m.misses),
		atomic.LoadUint64(&m.evictions),
		m.len()
}
