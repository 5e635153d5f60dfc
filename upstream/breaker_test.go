package upstream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/saiset-co/sai-relay/logger"
	"github.com/saiset-co/sai-relay/types"
)

func newTestBreaker(config *types.CircuitBreakerConfig) *CircuitBreaker {
	return NewCircuitBreaker(config, logger.NewNopLogger(), "weather.today")
}

func TestCircuitBreaker_DisabledAlwaysExecutes(t *testing.T) {
	breaker := newTestBreaker(nil)

	for i := 0; i < 10; i++ {
		breaker.RecordFailure()
	}

	assert.True(t, breaker.CanExecute())
	assert.Equal(t, "disabled", breaker.StateString())
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	breaker := newTestBreaker(&types.CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: 3,
		RecoveryTimeout:  time.Minute,
		HalfOpenRequests: 1,
	})

	assert.True(t, breaker.CanExecute())

	breaker.RecordFailure()
	breaker.RecordFailure()
	assert.True(t, breaker.CanExecute(), "below threshold the breaker stays closed")

	breaker.RecordFailure()
	assert.False(t, breaker.CanExecute())
	assert.Equal(t, "open", breaker.StateString())
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	breaker := newTestBreaker(&types.CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: 2,
		RecoveryTimeout:  time.Minute,
		HalfOpenRequests: 1,
	})

	breaker.RecordFailure()
	breaker.RecordSuccess()
	breaker.RecordFailure()

	assert.True(t, breaker.CanExecute(), "a success must reset the consecutive failure count")
}

func TestCircuitBreaker_RecoversThroughHalfOpen(t *testing.T) {
	breaker := newTestBreaker(&types.CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: 1,
		RecoveryTimeout:  time.Millisecond,
		HalfOpenRequests: 2,
	})

	breaker.RecordFailure()
	assert.False(t, breaker.CanExecute())

	time.Sleep(20 * time.Millisecond)

	assert.True(t, breaker.CanExecute(), "after the recovery timeout a probe is allowed")
	assert.Equal(t, "half-open", breaker.StateString())

	breaker.RecordSuccess()
	assert.Equal(t, "half-open", breaker.StateString())

	breaker.RecordSuccess()
	assert.Equal(t, "closed", breaker.StateString())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	breaker := newTestBreaker(&types.CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: 1,
		RecoveryTimeout:  time.Millisecond,
		HalfOpenRequests: 2,
	})

	breaker.RecordFailure()
	time.Sleep(20 * time.Millisecond)

	assert.True(t, breaker.CanExecute())
	breaker.RecordFailure()

	assert.False(t, breaker.CanExecute())
	assert.Equal(t, "open", breaker.StateString())
}

func TestIsBreakerFailure(t *testing.T) {
	assert.True(t, IsBreakerFailure(0, types.ErrClientRequestFailed))
	assert.True(t, IsBreakerFailure(429, nil))
	assert.True(t, IsBreakerFailure(503, nil))
	assert.False(t, IsBreakerFailure(200, nil))
	assert.False(t, IsBreakerFailure(404, nil))
}

func TestIsSuccessfulResponse(t *testing.T) {
	assert.True(t, IsSuccessfulResponse(200, nil))
	assert.True(t, IsSuccessfulResponse(204, nil))
	assert.False(t, IsSuccessfulResponse(200, types.ErrClientRequestFailed))
	assert.False(t, IsSuccessfulResponse(500, nil))
}
