package metrics

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-relay/types"
)

var customMetricsCreators = sync.Map{}

func RegisterMetricsManager(metricsManagerName string, creator types.MetricsManagerCreator) {
	customMetricsCreators.Store(metricsManagerName, creator)
}

func NewManager(logger types.Logger, config *types.MetricsConfig) (types.MetricsManager, error) {
	if config == nil || !config.Enabled {
		return nil, types.ErrMetricsIsDisabled
	}

	var manager types.MetricsManager
	var err error

	switch config.Type {
	case "memory":
		manager, err = NewMemoryMetrics(logger, config)
	case "prometheus":
		manager, err = NewPrometheusMetrics(logger, config)
	default:
		if creator, exists := customMetricsCreators.Load(config.Type); exists {
			manager, err = creator.(types.MetricsManagerCreator)(config)
		} else {
			return nil, types.Errorf(types.ErrMetricsTypeUnknown, "type: %s", config.Type)
		}
	}

	if err != nil {
		return nil, err
	}

	logger.Info("Metrics manager initialized", zap.String("type", config.Type))
	return manager, nil
}

// NewNoopManager is the fallback when metrics are disabled: every
// instrument is a no-op so call sites never nil-check.
func NewNoopManager() types.MetricsManager {
	return &noopMetrics{}
}

type noopMetrics struct{}

func (n *noopMetrics) Start() error    { return nil }
func (n *noopMetrics) Stop() error     { return nil }
func (n *noopMetrics) IsRunning() bool { return true }

func (n *noopMetrics) Counter(string, map[string]string) types.Counter { return &emptyCounter{} }
func (n *noopMetrics) Gauge(string, map[string]string) types.Gauge     { return &emptyGauge{} }

func (n *noopMetrics) Histogram(string, []float64, map[string]string) types.Histogram {
	return &emptyObserver{}
}

func (n *noopMetrics) Summary(string, map[float64]float64, map[string]string) types.Summary {
	return &emptyObserver{}
}

func (n *noopMetrics) GetMetrics() ([]byte, error) { return []byte("{}"), nil }

type emptyCounter struct{}

func (c *emptyCounter) Inc()          {}
func (c *emptyCounter) Add(_ float64) {}
func (c *emptyCounter) Get() float64  { return 0 }

type emptyGauge struct{}

func (g *emptyGauge) Set(_ float64) {}
func (g *emptyGauge) Inc()          {}
func (g *emptyGauge) Dec()          {}
func (g *emptyGauge) Add(_ float64) {}
func (g *emptyGauge) Sub(_ float64) {}
func (g *emptyGauge) Get() float64  { return 0 }

type emptyObserver struct{}

func (o *emptyObserver) Observe(_ float64)           {}
func (o *emptyObserver) ObserveDuration(_ time.Time) {}
func (o *emptyObserver) GetCount() uint64            { return 0 }
func (o *emptyObserver) GetSum() float64             { return 0 }
