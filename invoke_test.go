package saiRelay

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-relay/types"
)

func testConfig() *types.RelayConfig {
	return &types.RelayConfig{
		Name:   "relay-test",
		Logger: &types.LoggerConfig{Level: "error"},
		Scheduler: &types.SchedulerConfig{
			MinimumSpacing: time.Millisecond,
			MaxConcurrent:  1,
		},
		Cache: &types.CacheConfig{
			Enabled:    true,
			Memory:     &types.MemoryTierConfig{MaxEntries: 100, CleanupInterval: "1h"},
			Persistent: &types.PersistentTierConfig{Type: "memory"},
		},
		TTL: &types.TTLConfig{
			Default: time.Hour,
			Endpoints: map[string]time.Duration{
				"auth.token": 0,
			},
		},
	}
}

func newTestService(t *testing.T, config *types.RelayConfig, caller types.UpstreamCaller) *Service {
	t.Helper()

	service, err := NewServiceFromConfig(context.Background(), config)
	require.NoError(t, err)

	service.SetUpstreamCaller(caller)
	require.NoError(t, service.Start())

	t.Cleanup(func() {
		if service.IsRunning() {
			_ = service.Stop()
		}
	})

	return service
}

func countingCaller(calls *int32, value interface{}, err error) types.UpstreamCaller {
	return types.UpstreamCallerFunc(func(ctx context.Context, endpoint string, payload interface{}) (interface{}, error) {
		atomic.AddInt32(calls, 1)
		return value, err
	})
}

func TestService_StartWithoutUpstreamCaller(t *testing.T) {
	service, err := NewServiceFromConfig(context.Background(), testConfig())
	require.NoError(t, err)

	assert.ErrorIs(t, service.Start(), types.ErrUpstreamCallerIsNil)
}

func TestService_InvokeNotRunning(t *testing.T) {
	service, err := NewServiceFromConfig(context.Background(), testConfig())
	require.NoError(t, err)

	_, err = service.Invoke(context.Background(), "weather.today", nil)
	assert.ErrorIs(t, err, types.ErrServiceNotRunning)
}

func TestService_InvokeCachesResponse(t *testing.T) {
	var calls int32
	service := newTestService(t, testConfig(), countingCaller(&calls, "sunny", nil))

	ctx := context.Background()
	payload := map[string]interface{}{"city": "Berlin"}

	first, err := service.Invoke(ctx, "weather.today", payload)
	require.NoError(t, err)
	assert.Equal(t, "sunny", first)

	second, err := service.Invoke(ctx, "weather.today", payload)
	require.NoError(t, err)
	assert.Equal(t, "sunny", second)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls),
		"a fresh cached response must answer without going upstream")
}

func TestService_InvokeCoalescesIdenticalRequests(t *testing.T) {
	var calls int32
	slowCaller := types.UpstreamCallerFunc(func(ctx context.Context, endpoint string, payload interface{}) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(100 * time.Millisecond)
		return "shared", nil
	})

	service := newTestService(t, testConfig(), slowCaller)

	const waiters = 8
	var wg sync.WaitGroup
	results := make([]interface{}, waiters)
	errs := make([]error, waiters)

	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = service.Invoke(context.Background(), "weather.today",
				map[string]interface{}{"city": "Berlin"})
		}(i)
	}

	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls),
		"identical concurrent requests must share one upstream call")
	for i := 0; i < waiters; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared", results[i])
	}
}

func TestService_InvokeErrorPropagatesUncached(t *testing.T) {
	var calls int32
	failOnce := types.UpstreamCallerFunc(func(ctx context.Context, endpoint string, payload interface{}) (interface{}, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, types.ErrUpstreamCallFailed
		}
		return "recovered", nil
	})

	service := newTestService(t, testConfig(), failOnce)
	ctx := context.Background()
	payload := map[string]interface{}{"city": "Berlin"}

	_, err := service.Invoke(ctx, "weather.today", payload)
	assert.ErrorIs(t, err, types.ErrUpstreamCallFailed)

	value, err := service.Invoke(ctx, "weather.today", payload)
	require.NoError(t, err)
	assert.Equal(t, "recovered", value)

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls),
		"a failed response must not be cached")
}

func TestService_ErrorReachesAllWaiters(t *testing.T) {
	var calls int32
	slowFailure := types.UpstreamCallerFunc(func(ctx context.Context, endpoint string, payload interface{}) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(50 * time.Millisecond)
		return nil, types.ErrUpstreamCallFailed
	})

	service := newTestService(t, testConfig(), slowFailure)

	const waiters = 5
	var wg sync.WaitGroup
	errs := make([]error, waiters)

	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = service.Invoke(context.Background(), "news.feed", nil)
		}(i)
	}

	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for i := 0; i < waiters; i++ {
		assert.ErrorIs(t, errs[i], types.ErrUpstreamCallFailed)
	}
}

func TestService_InvokeUncacheableEndpoint(t *testing.T) {
	var calls int32
	service := newTestService(t, testConfig(), countingCaller(&calls, "token-123", nil))

	ctx := context.Background()

	for i := 0; i < 2; i++ {
		value, err := service.Invoke(ctx, "auth.token", map[string]interface{}{"user": "alice"})
		require.NoError(t, err)
		assert.Equal(t, "token-123", value)
	}

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls),
		"a zero-TTL endpoint must go upstream every time")
}

func TestService_InvokeRejectsUnserializablePayload(t *testing.T) {
	var calls int32
	service := newTestService(t, testConfig(), countingCaller(&calls, nil, nil))

	_, err := service.Invoke(context.Background(), "weather.today",
		map[string]interface{}{"bad": make(chan int)})
	assert.ErrorIs(t, err, types.ErrPayloadNotCanonical)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls),
		"an unserializable payload must fail before dispatch")
}

func TestService_InvalidateEndpoint(t *testing.T) {
	var calls int32
	service := newTestService(t, testConfig(), countingCaller(&calls, "sunny", nil))

	ctx := context.Background()
	payload := map[string]interface{}{"city": "Berlin"}

	_, err := service.Invoke(ctx, "weather.today", payload)
	require.NoError(t, err)

	require.NoError(t, service.InvalidateEndpoint(ctx, "weather.today"))

	_, err = service.Invoke(ctx, "weather.today", payload)
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestService_SetEndpointTTL(t *testing.T) {
	var calls int32
	service := newTestService(t, testConfig(), countingCaller(&calls, "fresh", nil))

	service.SetEndpointTTL("live.scores", 0)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := service.Invoke(ctx, "live.scores", nil)
		require.NoError(t, err)
	}

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestService_Stats(t *testing.T) {
	var calls int32
	service := newTestService(t, testConfig(), countingCaller(&calls, "sunny", nil))

	ctx := context.Background()

	_, err := service.Invoke(ctx, "weather.today", nil)
	require.NoError(t, err)
	_, err = service.Invoke(ctx, "weather.today", nil)
	require.NoError(t, err)

	stats := service.Stats()
	assert.Equal(t, 0, stats.PendingRequests)
	assert.Equal(t, 0, stats.InFlight)
	assert.GreaterOrEqual(t, stats.Cache.Hits, uint64(1))
}

func TestService_SetMinimumSpacing(t *testing.T) {
	config := testConfig()
	config.Scheduler.MinimumSpacing = time.Second

	var calls int32
	service := newTestService(t, config, countingCaller(&calls, "ok", nil))
	require.NoError(t, service.SetMinimumSpacing(time.Millisecond))

	ctx := context.Background()
	start := time.Now()

	for i := 0; i < 3; i++ {
		_, err := service.Invoke(ctx, "auth.token", map[string]interface{}{"n": i})
		require.NoError(t, err)
	}

	assert.Less(t, time.Since(start), time.Second)
}
