package cache

import (
	"context"
	"sync"

	"github.com/saiset-co/sai-relay/types"
	"github.com/saiset-co/sai-relay/utils"
)

type MemoryKVConfig struct {
	MaxEntries int `yaml:"max_entries" json:"max_entries"`
	MaxBytes   int `yaml:"max_bytes" json:"max_bytes"`
}

// MemoryKV is a bounded key-value store with the same quota failure
// mode as a real persistent backend: a Set that would exceed either
// limit returns ErrStoreQuotaExceeded instead of evicting on its own.
// Eviction is the cache store's decision, not the tier's.
type MemoryKV struct {
	mu         sync.RWMutex
	data       map[string][]byte
	bytes      int
	maxEntries int
	maxBytes   int
}

func NewMemoryKV(config interface{}) (*MemoryKV, error) {
	kvConfig := &MemoryKVConfig{
		MaxEntries: 10000,
		MaxBytes:   0,
	}

	if config != nil {
		if err := utils.UnmarshalConfig(config, kvConfig); err != nil {
			return nil, types.WrapError(err, "failed to unmarshal memory kv config")
		}
	}

	return &MemoryKV{
		data:       make(map[string][]byte),
		maxEntries: kvConfig.MaxEntries,
		maxBytes:   kvConfig.MaxBytes,
	}, nil
}

func (s *MemoryKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, types.ErrCacheKeyEmpty
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	value, exists := s.data[key]
	if !exists {
		return nil, false, nil
	}
	return value, true, nil
}

func (s *MemoryKV) Set(_ context.Context, key string, value []byte) error {
	if key == "" {
		return types.ErrCacheKeyEmpty
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.data[key]

	if s.maxEntries > 0 && !exists && len(s.data) >= s.maxEntries {
		return types.Errorf(types.ErrStoreQuotaExceeded, "entry limit %d reached", s.maxEntries)
	}

	newBytes := s.bytes + len(value)
	if exists {
		newBytes -= len(existing)
	}
	if s.maxBytes > 0 && newBytes > s.maxBytes {
		return types.Errorf(types.ErrStoreQuotaExceeded, "byte limit %d reached", s.maxBytes)
	}

	s.data[key] = value
	s.bytes = newBytes
	return nil
}

func (s *MemoryKV) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if value, exists := s.data[key]; exists {
		s.bytes -= len(value)
		delete(s.data, key)
	}
	return nil
}

func (s *MemoryKV) Keys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for key := range s.data {
		keys = append(keys, key)
	}
	return keys, nil
}

func (s *MemoryKV) Clear(_ context.Context) error {
	s.mu.Lock()
	s.data = make(map[string][]byte)
	s.bytes = 0
	s.mu.Unlock()
	return nil
}

func (s *MemoryKV) Close() error {
	return nil
}
