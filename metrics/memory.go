package metrics

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/saiset-co/sai-relay/types"
	"github.com/saiset-co/sai-relay/utils"
)

// MemoryMetrics keeps everything in-process. Used when no scrape
// surface exists, and in tests where asserting on counters matters.
type MemoryMetrics struct {
	logger     types.Logger
	counters   sync.Map
	gauges     sync.Map
	histograms sync.Map
	summaries  sync.Map
	running    int32
}

func NewMemoryMetrics(logger types.Logger, _ *types.MetricsConfig) (types.MetricsManager, error) {
	return &MemoryMetrics{logger: logger}, nil
}

func (m *MemoryMetrics) Start() error {
	if !atomic.CompareAndSwapInt32(&m.running, 0, 1) {
		return types.ErrServiceAlreadyRunning
	}
	return nil
}

func (m *MemoryMetrics) Stop() error {
	if !atomic.CompareAndSwapInt32(&m.running, 1, 0) {
		return types.ErrServiceNotRunning
	}
	return nil
}

func (m *MemoryMetrics) IsRunning() bool {
	return atomic.LoadInt32(&m.running) == 1
}

func (m *MemoryMetrics) Counter(name string, labels map[string]string) types.Counter {
	key := metricKey(name, labels)
	actual, _ := m.counters.LoadOrStore(key, &memoryCounter{})
	return actual.(*memoryCounter)
}

func (m *MemoryMetrics) Gauge(name string, labels map[string]string) types.Gauge {
	key := metricKey(name, labels)
	actual, _ := m.gauges.LoadOrStore(key, &memoryGauge{})
	return actual.(*memoryGauge)
}

func (m *MemoryMetrics) Histogram(name string, _ []float64, labels map[string]string) types.Histogram {
	key := metricKey(name, labels)
	actual, _ := m.histograms.LoadOrStore(key, &memoryObserver{})
	return actual.(*memoryObserver)
}

func (m *MemoryMetrics) Summary(name string, _ map[float64]float64, labels map[string]string) types.Summary {
	key := metricKey(name, labels)
	actual, _ := m.summaries.LoadOrStore(key, &memoryObserver{})
	return actual.(*memoryObserver)
}

func (m *MemoryMetrics) GetMetrics() ([]byte, error) {
	export := make(map[string]float64)

	m.counters.Range(func(key, value interface{}) bool {
		export[key.(string)] = value.(*memoryCounter).Get()
		return true
	})
	m.gauges.Range(func(key, value interface{}) bool {
		export[key.(string)] = value.(*memoryGauge).Get()
		return true
	})

	return utils.Marshal(export)
}

func metricKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}

	key := name
	for k, v := range labels {
		key += "|" + k + "=" + v
	}
	return key
}

type memoryCounter struct {
	bits uint64
}

func (c *memoryCounter) Inc() { c.Add(1) }

func (c *memoryCounter) Add(value float64) {
	for {
		old := atomic.LoadUint64(&c.bits)
		next := math.Float64bits(math.Float64frombits(old) + value)
		if atomic.CompareAndSwapUint64(&c.bits, old, next) {
			return
		}
	}
}

func (c *memoryCounter) Get() float64 {
	return math.Float64frombits(atomic.LoadUint64(&c.bits))
}

type memoryGauge struct {
	bits uint64
}

func (g *memoryGauge) Set(value float64) {
	atomic.StoreUint64(&g.bits, math.Float64bits(value))
}

func (g *memoryGauge) Inc()              { g.Add(1) }
func (g *memoryGauge) Dec()              { g.Add(-1) }
func (g *memoryGauge) Sub(value float64) { g.Add(-value) }

func (g *memoryGauge) Add(value float64) {
	for {
		old := atomic.LoadUint64(&g.bits)
		next := math.Float64bits(math.Float64frombits(old) + value)
		if atomic.CompareAndSwapUint64(&g.bits, old, next) {
			return
		}
	}
}

func (g *memoryGauge) Get() float64 {
	return math.Float64frombits(atomic.LoadUint64(&g.bits))
}

type memoryObserver struct {
	count uint64
	sum   uint64
}

func (o *memoryObserver) Observe(value float64) {
	atomic.AddUint64(&o.count, 1)
	for {
		old := atomic.LoadUint64(&o.sum)
		next := math.Float64bits(math.Float64frombits(old) + value)
		if atomic.CompareAndSwapUint64(&o.sum, old, next) {
			return
		}
	}
}

func (o *memoryObserver) ObserveDuration(start time.Time) {
	o.Observe(time.Since(start).Seconds())
}

func (o *memoryObserver) GetCount() uint64 {
	return atomic.LoadUint64(&o.count)
}

func (o *memoryObserver) GetSum() float64 {
	return math.Float64frombits(atomic.LoadUint64(&o.sum))
}
