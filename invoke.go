package saiRelay

import (
	"context"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-relay/types"
)

// Invoke is the single entry point for outbound requests. It returns a
// cached response when one is still fresh, attaches to an identical
// request already in flight, or admits a new upstream call to the
// scheduler queue. Errors from upstream are never cached; every caller
// waiting on the same fingerprint observes the same outcome.
func (s *Service) Invoke(ctx context.Context, endpoint string, payload interface{}) (interface{}, error) {
	if !s.IsRunning() {
		return nil, types.ErrServiceNotRunning
	}

	fingerprint, err := Fingerprint(endpoint, payload)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if value, exists := s.cache.Get(ctx, fingerprint); exists {
			s.recordInvocation(endpoint, "cache_hit")
			return value, nil
		}
	}

	future, leader := s.flight.Join(fingerprint)
	if !leader {
		s.recordInvocation(endpoint, "coalesced")
		return future.Wait(ctx)
	}

	if err := s.dispatch(endpoint, fingerprint, payload, future); err != nil {
		return nil, err
	}

	s.recordInvocation(endpoint, "dispatched")

	// A ctx expiry abandons this wait only; the call keeps its place in
	// the queue and later identical requests still attach to it.
	return future.Wait(ctx)
}

func (s *Service) dispatch(endpoint, fingerprint string, payload interface{}, future *types.Future) error {
	work := func(workCtx context.Context) (interface{}, error) {
		return s.upstream.Call(workCtx, endpoint, payload)
	}

	scheduled, err := s.scheduler.Submit(work)
	if err != nil {
		s.flight.Remove(fingerprint)
		future.Settle(nil, err)
		return err
	}

	go s.settle(endpoint, fingerprint, future, scheduled)

	return nil
}

// settle waits for the scheduled call, stores a successful response
// under the endpoint's TTL and hands the outcome to every waiter. The
// flight entry is removed before settling so no later caller can attach
// to an already-decided future.
func (s *Service) settle(endpoint, fingerprint string, future, scheduled *types.Future) {
	value, err := scheduled.Wait(context.Background())

	if err == nil && s.cache != nil {
		ttl := s.ttl.Resolve(endpoint)
		if ttl > 0 {
			if putErr := s.cache.Put(s.ctx, fingerprint, endpoint, value, ttl); putErr != nil {
				s.logger.Warn("Failed to cache upstream response",
					zap.String("endpoint", endpoint),
					zap.Error(putErr))
			}
		}
	}

	s.flight.Remove(fingerprint)
	future.Settle(value, err)
}

func (s *Service) recordInvocation(endpoint, outcome string) {
	counter := s.metrics.Counter("relay_invocations_total", map[string]string{
		"endpoint": endpoint,
		"outcome":  outcome,
	})
	counter.Inc()
}
