package types

import (
	"errors"
	"fmt"
)

var (
	ErrConfigNotFound       = errors.New("config not found")
	ErrConfigParseFailed    = errors.New("config parse failed")
	ErrConfigValidateFailed = errors.New("config validate failed")
	ErrConfigIsNil          = errors.New("config is nil")
)

var (
	ErrSchedulerStopped     = errors.New("scheduler stopped")
	ErrSchedulerWorkIsNil   = errors.New("scheduler work is nil")
	ErrSpacingInvalid       = errors.New("minimum spacing invalid")
	ErrConcurrencyInvalid   = errors.New("max concurrent must be >= 1")
	ErrFutureAlreadySettled = errors.New("future already settled")
)

var (
	ErrCacheKeyEmpty          = errors.New("cache key empty")
	ErrCacheTypeUnknown       = errors.New("cache store type unknown")
	ErrCacheIsDisabled        = errors.New("cache store is disabled")
	ErrCacheTTLNegative       = errors.New("cache ttl negative")
	ErrStoreQuotaExceeded     = errors.New("persistent store quota exceeded")
	ErrStoreConnectionFailed  = errors.New("persistent store connection failed")
	ErrStructuredTierDisabled = errors.New("structured tier disabled")
)

var (
	ErrPayloadNotCanonical = errors.New("payload cannot be canonicalized")
	ErrUpstreamCallFailed  = errors.New("upstream call failed")
	ErrEndpointEmpty       = errors.New("endpoint name empty")
	ErrEndpointUnknown     = errors.New("endpoint unknown")
	ErrUpstreamCallerIsNil = errors.New("upstream caller is nil")
)

var (
	ErrCronJobNameIsEmpty    = errors.New("cron job name is empty")
	ErrCronJobIsNil          = errors.New("cron job is nil")
	ErrCronJobExists         = errors.New("cron job exists")
	ErrCronExpressionInvalid = errors.New("cron expression invalid")
)

var (
	ErrMetricsTypeUnknown = errors.New("metrics type unknown")
	ErrMetricsIsDisabled  = errors.New("metrics manager is disabled")
	ErrMetricsNotRunning  = errors.New("metrics manager not running")
)

var (
	ErrClientRequestFailed   = errors.New("client request failed")
	ErrClientResponseInvalid = errors.New("client response invalid")
	ErrCircuitBreakerOpen    = errors.New("circuit breaker open")
)

var (
	ErrServiceNotRunning     = errors.New("service not running")
	ErrServiceAlreadyRunning = errors.New("service already running")
	ErrComponentStartFailed  = errors.New("component start failed")
	ErrComponentStopFailed   = errors.New("component stop failed")
)

func Errorf(baseErr error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", baseErr, fmt.Sprintf(format, args...))
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func NewErrorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

func IsError(err, target error) bool {
	return errors.Is(err, target)
}
