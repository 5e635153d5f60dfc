package flight

import (
	"sync"

	"github.com/saiset-co/sai-relay/types"
)

// Table tracks requests that are already on their way upstream. Callers
// asking for a fingerprint that is in flight attach to the existing
// future instead of dispatching a second call.
type Table struct {
	mu       sync.Mutex
	inFlight map[string]*types.Future
}

func NewTable() *Table {
	return &Table{
		inFlight: make(map[string]*types.Future),
	}
}

// Join returns the future registered for the fingerprint. When no call
// is in flight it registers a fresh future and reports leader=true; the
// leader owns the upstream call and must Remove the entry once the
// future settles.
func (t *Table) Join(fingerprint string) (*types.Future, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if future, exists := t.inFlight[fingerprint]; exists {
		return future, false
	}

	future := types.NewFuture()
	t.inFlight[fingerprint] = future
	return future, true
}

// Remove drops the fingerprint from the table. Later requests with the
// same fingerprint dispatch anew.
func (t *Table) Remove(fingerprint string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.inFlight, fingerprint)
}

// Size reports how many calls are currently in flight.
func (t *Table) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.inFlight)
}
