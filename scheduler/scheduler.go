package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-relay/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

const (
	DefaultMinimumSpacing = time.Second
	DefaultMaxConcurrent  = 1
)

type queueItem struct {
	work     types.Work
	future   *types.Future
	admitted time.Time
}

// Scheduler admits units of work into a FIFO queue and dispatches them
// through a single drain loop, never starting two dispatches closer
// together than the configured minimum spacing. At most maxConcurrent
// calls are in flight at once; the default bound is one.
type Scheduler struct {
	ctx     context.Context
	cancel  context.CancelFunc
	logger  types.Logger
	metrics types.MetricsManager

	mu             sync.Mutex
	queue          []*queueItem
	draining       bool
	lastDispatch   time.Time
	minimumSpacing time.Duration

	maxConcurrent  int
	queueWarnDepth int
	slots          chan struct{}

	state           atomic.Value
	workers         sync.WaitGroup
	shutdownTimeout time.Duration
}

func NewScheduler(ctx context.Context, logger types.Logger, metrics types.MetricsManager, config *types.SchedulerConfig) (*Scheduler, error) {
	spacing := DefaultMinimumSpacing
	maxConcurrent := DefaultMaxConcurrent
	warnDepth := 0

	if config != nil {
		if config.MinimumSpacing < 0 {
			return nil, types.ErrSpacingInvalid
		}
		if config.MaxConcurrent < 1 {
			return nil, types.ErrConcurrencyInvalid
		}
		spacing = config.MinimumSpacing
		maxConcurrent = config.MaxConcurrent
		warnDepth = config.QueueWarnDepth
	}

	schedCtx, cancel := context.WithCancel(ctx)

	s := &Scheduler{
		ctx:             schedCtx,
		cancel:          cancel,
		logger:          logger,
		metrics:         metrics,
		minimumSpacing:  spacing,
		maxConcurrent:   maxConcurrent,
		queueWarnDepth:  warnDepth,
		slots:           make(chan struct{}, maxConcurrent),
		shutdownTimeout: 10 * time.Second,
	}

	s.state.Store(StateStopped)

	return s, nil
}

func (s *Scheduler) Start() error {
	if !s.transitionState(StateStopped, StateStarting) {
		s.logger.Warn("Scheduler is already running")
		return types.ErrServiceAlreadyRunning
	}

	defer func() {
		if s.getState() == StateStarting {
			s.setState(StateRunning)
		}
	}()

	s.logger.Info("Scheduler started",
		zap.Duration("minimum_spacing", s.minimumSpacing),
		zap.Int("max_concurrent", s.maxConcurrent))
	return nil
}

func (s *Scheduler) Stop() error {
	if !s.transitionState(StateRunning, StateStopping) {
		s.logger.Warn("Scheduler is not running")
		return types.ErrServiceNotRunning
	}

	defer func() {
		s.setState(StateStopped)
	}()

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Scheduler stopped gracefully")
	case <-time.After(s.shutdownTimeout):
		s.logger.Warn("Scheduler stop timeout, drain loop may not have finished")
	}

	s.failPending(types.ErrSchedulerStopped)
	return nil
}

func (s *Scheduler) IsRunning() bool {
	return s.getState() == StateRunning
}

// Submit appends work to the queue tail and returns a pending future
// without blocking. The drain loop is started lazily on the first
// admission and exits once the queue empties.
func (s *Scheduler) Submit(work types.Work) (*types.Future, error) {
	if work == nil {
		return nil, types.ErrSchedulerWorkIsNil
	}

	if !s.IsRunning() {
		return nil, types.ErrSchedulerStopped
	}

	item := &queueItem{
		work:     work,
		future:   types.NewFuture(),
		admitted: time.Now(),
	}

	s.mu.Lock()
	s.queue = append(s.queue, item)
	depth := len(s.queue)
	startDrain := !s.draining
	if startDrain {
		s.draining = true
	}
	s.mu.Unlock()

	s.metrics.Counter("scheduler_submissions_total", nil).Inc()
	s.metrics.Gauge("scheduler_queue_depth", nil).Set(float64(depth))

	if s.queueWarnDepth > 0 && depth >= s.queueWarnDepth {
		s.logger.Warn("Scheduler queue depth high", zap.Int("depth", depth))
	}

	if startDrain {
		s.workers.Add(1)
		go s.drain()
	}

	return item.future, nil
}

// SetMinimumSpacing changes the spacing for subsequent dispatches only;
// a dispatch already waiting keeps the delay it computed.
func (s *Scheduler) SetMinimumSpacing(spacing time.Duration) error {
	if spacing < 0 {
		return types.ErrSpacingInvalid
	}

	s.mu.Lock()
	s.minimumSpacing = spacing
	s.mu.Unlock()

	s.logger.Debug("Scheduler spacing updated", zap.Duration("minimum_spacing", spacing))
	return nil
}

func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Scheduler) drain() {
	defer s.workers.Done()

	for {
		select {
		case <-s.ctx.Done():
			s.failPending(types.ErrSchedulerStopped)
			return
		default:
		}

		s.mu.Lock()
		if len(s.queue) == 0 {
			s.draining = false
			s.mu.Unlock()
			s.metrics.Gauge("scheduler_queue_depth", nil).Set(0)
			return
		}

		item := s.queue[0]
		s.queue = s.queue[1:]
		depth := len(s.queue)
		spacing := s.minimumSpacing
		last := s.lastDispatch
		s.mu.Unlock()

		s.metrics.Gauge("scheduler_queue_depth", nil).Set(float64(depth))

		if !last.IsZero() {
			if wait := spacing - time.Since(last); wait > 0 {
				if !s.pause(wait) {
					item.future.Settle(nil, types.ErrSchedulerStopped)
					s.failPending(types.ErrSchedulerStopped)
					return
				}
			}
		}

		if s.maxConcurrent > 1 {
			s.dispatchConcurrent(item)
		} else {
			s.dispatchSerial(item)
		}
	}
}

// dispatchSerial runs the work inline. The time slot is consumed on
// completion whether the call succeeded or failed, so a failing
// upstream cannot trigger a retry storm.
func (s *Scheduler) dispatchSerial(item *queueItem) {
	start := time.Now()
	value, err := item.work(s.ctx)

	s.mu.Lock()
	s.lastDispatch = time.Now()
	s.mu.Unlock()

	s.recordDispatch(start, err)
	item.future.Settle(value, err)
}

func (s *Scheduler) dispatchConcurrent(item *queueItem) {
	select {
	case s.slots <- struct{}{}:
	case <-s.ctx.Done():
		item.future.Settle(nil, types.ErrSchedulerStopped)
		return
	}

	s.mu.Lock()
	s.lastDispatch = time.Now()
	s.mu.Unlock()

	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		defer func() { <-s.slots }()

		start := time.Now()
		value, err := item.work(s.ctx)
		s.recordDispatch(start, err)
		item.future.Settle(value, err)
	}()
}

func (s *Scheduler) pause(wait time.Duration) bool {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *Scheduler) recordDispatch(start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}

	s.metrics.Counter("scheduler_dispatches_total", map[string]string{"result": result}).Inc()
	s.metrics.Histogram("scheduler_dispatch_duration_seconds",
		[]float64{0.01, 0.1, 0.5, 1.0, 5.0, 30.0},
		nil,
	).ObserveDuration(start)

	if err != nil {
		s.logger.Debug("Scheduled work failed", zap.Error(err))
	}
}

func (s *Scheduler) failPending(err error) {
	s.mu.Lock()
	pending := s.queue
	s.queue = nil
	s.draining = false
	s.mu.Unlock()

	for _, item := range pending {
		item.future.Settle(nil, err)
	}

	if len(pending) > 0 {
		s.logger.Warn("Scheduler dropped pending work on shutdown", zap.Int("count", len(pending)))
	}
}

func (s *Scheduler) getState() State {
	return s.state.Load().(State)
}

func (s *Scheduler) setState(newState State) bool {
	currentState := s.getState()
	return s.state.CompareAndSwap(currentState, newState)
}

func (s *Scheduler) transitionState(from, to State) bool {
	return s.state.CompareAndSwap(from, to)
}
