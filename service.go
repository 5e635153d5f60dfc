package saiRelay

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-relay/cache"
	"github.com/saiset-co/sai-relay/config"
	"github.com/saiset-co/sai-relay/cron"
	"github.com/saiset-co/sai-relay/flight"
	"github.com/saiset-co/sai-relay/logger"
	"github.com/saiset-co/sai-relay/metrics"
	"github.com/saiset-co/sai-relay/policy"
	"github.com/saiset-co/sai-relay/scheduler"
	"github.com/saiset-co/sai-relay/types"
	"github.com/saiset-co/sai-relay/upstream"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

const purgeJobName = "cache_purge"

// Service is the assembled relay: a paced scheduler in front of the
// upstream, a layered response cache behind it, and a dedup table
// between the two.
type Service struct {
	ctx    context.Context
	cancel context.CancelFunc

	configManager types.ConfigManager
	logger        types.Logger
	metrics       types.MetricsManager
	cache         types.CacheStore
	scheduler     types.Scheduler
	flight        *flight.Table
	ttl           *policy.Table
	cron          types.CronManager
	upstream      types.UpstreamCaller

	state atomic.Value
}

// Stats is a point-in-time snapshot across the relay's moving parts.
type Stats struct {
	Cache           types.CacheStats `json:"cache"`
	PendingRequests int              `json:"pending_requests"`
	InFlight        int              `json:"in_flight"`
}

// NewService builds a relay from a YAML config file.
func NewService(ctx context.Context, configPath string) (*Service, error) {
	configManager, err := config.NewManager(configPath)
	if err != nil {
		return nil, err
	}

	return newService(ctx, configManager)
}

// NewServiceFromConfig builds a relay from an in-code configuration.
func NewServiceFromConfig(ctx context.Context, relayConfig *types.RelayConfig) (*Service, error) {
	configManager, err := config.NewManagerFromConfig(relayConfig)
	if err != nil {
		return nil, err
	}

	return newService(ctx, configManager)
}

func newService(ctx context.Context, configManager types.ConfigManager) (*Service, error) {
	relayConfig := configManager.GetConfig()
	if relayConfig == nil {
		return nil, types.ErrConfigIsNil
	}

	serviceCtx, cancel := context.WithCancel(ctx)

	log, err := buildLogger(relayConfig.Logger)
	if err != nil {
		cancel()
		return nil, err
	}

	metricsManager, err := metrics.NewManager(log, relayConfig.Metrics)
	if err != nil {
		if !types.IsError(err, types.ErrMetricsIsDisabled) {
			cancel()
			return nil, err
		}
		metricsManager = metrics.NewNoopManager()
	}

	cacheStore, err := cache.NewCacheStore(serviceCtx, log, metricsManager, relayConfig.Cache)
	if err != nil {
		if !types.IsError(err, types.ErrCacheIsDisabled) {
			cancel()
			return nil, err
		}
		cacheStore = nil
		log.Warn("Cache is disabled, every request goes upstream")
	}

	sched, err := scheduler.NewScheduler(serviceCtx, log, metricsManager, relayConfig.Scheduler)
	if err != nil {
		cancel()
		return nil, err
	}

	var cronManager types.CronManager
	if relayConfig.Cron != nil && relayConfig.Cron.Enabled && cacheStore != nil {
		cronManager, err = cron.NewManager(serviceCtx, log, metricsManager, relayConfig.Cron)
		if err != nil {
			cancel()
			return nil, err
		}
	}

	var caller types.UpstreamCaller
	if relayConfig.Upstream != nil && relayConfig.Upstream.Enabled {
		caller, err = upstream.NewHTTPCaller(log, relayConfig.Upstream)
		if err != nil {
			cancel()
			return nil, err
		}
	}

	service := &Service{
		ctx:           serviceCtx,
		cancel:        cancel,
		configManager: configManager,
		logger:        log,
		metrics:       metricsManager,
		cache:         cacheStore,
		scheduler:     sched,
		flight:        flight.NewTable(),
		ttl:           policy.NewTable(relayConfig.TTL),
		cron:          cronManager,
		upstream:      caller,
	}

	service.state.Store(StateStopped)

	return service, nil
}

func buildLogger(loggerConfig *types.LoggerConfig) (types.Logger, error) {
	if loggerConfig == nil {
		loggerConfig = &types.LoggerConfig{Level: "info"}
	}
	return logger.NewDefaultLogger(loggerConfig)
}

// SetUpstreamCaller installs the outbound call implementation. Must be
// set before Start when the config does not define HTTP endpoints.
func (s *Service) SetUpstreamCaller(caller types.UpstreamCaller) {
	s.upstream = caller
}

func (s *Service) Start() error {
	if !s.transitionState(StateStopped, StateStarting) {
		return types.ErrServiceAlreadyRunning
	}

	defer func() {
		if s.getState() == StateStarting {
			s.setState(StateRunning)
		}
	}()

	if s.upstream == nil {
		s.setState(StateStopped)
		return types.ErrUpstreamCallerIsNil
	}

	if err := s.metrics.Start(); err != nil {
		s.setState(StateStopped)
		return types.Errorf(types.ErrComponentStartFailed, "metrics: %v", err)
	}

	if s.cache != nil {
		if err := s.cache.Start(); err != nil {
			s.setState(StateStopped)
			return types.Errorf(types.ErrComponentStartFailed, "cache: %v", err)
		}
	}

	if err := s.scheduler.Start(); err != nil {
		s.setState(StateStopped)
		return types.Errorf(types.ErrComponentStartFailed, "scheduler: %v", err)
	}

	if s.cron != nil {
		if err := s.registerPurgeJob(); err != nil {
			s.setState(StateStopped)
			return types.Errorf(types.ErrComponentStartFailed, "cron: %v", err)
		}

		if err := s.cron.Start(); err != nil {
			s.setState(StateStopped)
			return types.Errorf(types.ErrComponentStartFailed, "cron: %v", err)
		}
	}

	s.logger.Info("Relay service started",
		zap.String("name", s.configManager.GetConfig().Name))
	return nil
}

func (s *Service) Stop() error {
	if !s.transitionState(StateRunning, StateStopping) {
		return types.ErrServiceNotRunning
	}

	defer func() {
		s.setState(StateStopped)
		s.cancel()
	}()

	var firstErr error

	if s.cron != nil {
		if err := s.cron.Stop(); err != nil && firstErr == nil {
			firstErr = types.Errorf(types.ErrComponentStopFailed, "cron: %v", err)
		}
	}

	if err := s.scheduler.Stop(); err != nil && firstErr == nil {
		firstErr = types.Errorf(types.ErrComponentStopFailed, "scheduler: %v", err)
	}

	// Cache and metrics have no ordering dependency between them.
	var g errgroup.Group

	if s.cache != nil {
		g.Go(func() error {
			if err := s.cache.Stop(); err != nil {
				return types.Errorf(types.ErrComponentStopFailed, "cache: %v", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		if err := s.metrics.Stop(); err != nil {
			return types.Errorf(types.ErrComponentStopFailed, "metrics: %v", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && firstErr == nil {
		firstErr = err
	}

	if firstErr == nil {
		s.logger.Info("Relay service stopped gracefully")
	}

	return firstErr
}

func (s *Service) IsRunning() bool {
	return s.getState() == StateRunning
}

// SetMinimumSpacing retunes the dispatch pacing at runtime. Applies to
// dispatches admitted after the call.
func (s *Service) SetMinimumSpacing(spacing time.Duration) error {
	return s.scheduler.SetMinimumSpacing(spacing)
}

// SetEndpointTTL overrides the cache lifetime for one endpoint.
func (s *Service) SetEndpointTTL(endpoint string, ttl time.Duration) {
	s.ttl.WithEndpoint(endpoint, ttl)
}

// InvalidateEndpoint drops every cached response for the endpoint.
func (s *Service) InvalidateEndpoint(ctx context.Context, endpoint string) error {
	if s.cache == nil {
		return types.ErrCacheIsDisabled
	}
	return s.cache.InvalidateTag(ctx, endpoint)
}

// QueryByTag returns still-fresh cached responses for the endpoints,
// optionally bounded to entries younger than maxAge.
func (s *Service) QueryByTag(ctx context.Context, endpoints []string, maxAge time.Duration) ([]*types.CacheEntry, error) {
	if s.cache == nil {
		return nil, types.ErrCacheIsDisabled
	}
	return s.cache.QueryByTag(ctx, endpoints, maxAge)
}

// ClearCache empties every cache tier.
func (s *Service) ClearCache(ctx context.Context) error {
	if s.cache == nil {
		return types.ErrCacheIsDisabled
	}
	return s.cache.ClearAll(ctx)
}

func (s *Service) Stats() Stats {
	stats := Stats{
		PendingRequests: s.scheduler.Pending(),
		InFlight:        s.flight.Size(),
	}

	if s.cache != nil {
		stats.Cache = s.cache.Stats()
	}

	return stats
}

func (s *Service) Logger() types.Logger {
	return s.logger
}

func (s *Service) Metrics() types.MetricsManager {
	return s.metrics
}

func (s *Service) registerPurgeJob() error {
	schedule := s.configManager.GetConfig().Cron.PurgeSchedule
	if schedule == "" {
		return nil
	}

	return s.cron.Add(purgeJobName, schedule, func() {
		if err := s.cache.Cleanup(s.ctx); err != nil {
			s.logger.Error("Cache purge failed", zap.Error(err))
		}
	})
}

func (s *Service) getState() State {
	return s.state.Load().(State)
}

func (s *Service) setState(newState State) bool {
	return s.state.CompareAndSwap(s.getState(), newState)
}

func (s *Service) transitionState(from, to State) bool {
	return s.state.CompareAndSwap(from, to)
}
