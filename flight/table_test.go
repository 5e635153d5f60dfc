package flight

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_JoinElectsSingleLeader(t *testing.T) {
	table := NewTable()

	first, leader := table.Join("fp-1")
	require.True(t, leader)
	require.NotNil(t, first)

	second, leader := table.Join("fp-1")
	assert.False(t, leader)
	assert.Same(t, first, second)

	other, leader := table.Join("fp-2")
	assert.True(t, leader)
	assert.NotSame(t, first, other)

	assert.Equal(t, 2, table.Size())
}

func TestTable_RemoveAllowsNewDispatch(t *testing.T) {
	table := NewTable()

	first, leader := table.Join("fp-1")
	require.True(t, leader)

	table.Remove("fp-1")
	assert.Equal(t, 0, table.Size())

	second, leader := table.Join("fp-1")
	assert.True(t, leader)
	assert.NotSame(t, first, second)
}

func TestTable_ConcurrentJoinSingleExecution(t *testing.T) {
	table := NewTable()

	const waiters = 16
	var executions int32
	var wg sync.WaitGroup

	results := make([]interface{}, waiters)
	errs := make([]error, waiters)

	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			future, leader := table.Join("fp-shared")
			if leader {
				go func() {
					atomic.AddInt32(&executions, 1)
					time.Sleep(20 * time.Millisecond)
					table.Remove("fp-shared")
					future.Settle("answer", nil)
				}()
			}

			results[i], errs[i] = future.Wait(context.Background())
		}(i)
	}

	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&executions))
	for i := 0; i < waiters; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "answer", results[i])
	}
	assert.Equal(t, 0, table.Size())
}
