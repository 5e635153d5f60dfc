package policy

import (
	"sync"
	"time"

	"github.com/saiset-co/sai-relay/types"
)

// DefaultTTL applies to endpoints without an explicit entry.
const DefaultTTL = 6 * time.Hour

// Table maps endpoint names to cache lifetimes. A zero duration marks
// the endpoint's responses as uncacheable.
type Table struct {
	mu        sync.RWMutex
	endpoints map[string]time.Duration
	fallback  time.Duration
}

func NewTable(config *types.TTLConfig) *Table {
	table := &Table{
		endpoints: make(map[string]time.Duration),
		fallback:  DefaultTTL,
	}

	if config != nil {
		if config.Default > 0 {
			table.fallback = config.Default
		}
		for endpoint, ttl := range config.Endpoints {
			table.endpoints[endpoint] = ttl
		}
	}

	return table
}

// Resolve returns the lifetime for the endpoint, falling back to the
// table default when the endpoint has no entry of its own.
func (t *Table) Resolve(endpoint string) time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if ttl, exists := t.endpoints[endpoint]; exists {
		return ttl
	}
	return t.fallback
}

// WithEndpoint overrides a single endpoint's lifetime at runtime.
func (t *Table) WithEndpoint(endpoint string, ttl time.Duration) *Table {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.endpoints[endpoint] = ttl
	return t
}

// Cacheable reports whether responses for the endpoint should be
// stored at all.
func (t *Table) Cacheable(endpoint string) bool {
	return t.Resolve(endpoint) > 0
}
