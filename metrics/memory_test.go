package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-relay/logger"
	"github.com/saiset-co/sai-relay/types"
)

func TestMemoryMetrics_CounterAccumulates(t *testing.T) {
	m, err := NewMemoryMetrics(logger.NewNopLogger(), nil)
	require.NoError(t, err)

	counter := m.Counter("requests_total", map[string]string{"outcome": "hit"})
	counter.Inc()
	counter.Add(2.5)

	// Same name and labels resolve to the same instrument.
	again := m.Counter("requests_total", map[string]string{"outcome": "hit"})
	assert.Equal(t, 3.5, again.Get())

	other := m.Counter("requests_total", map[string]string{"outcome": "miss"})
	assert.Equal(t, 0.0, other.Get())
}

func TestMemoryMetrics_Gauge(t *testing.T) {
	m, err := NewMemoryMetrics(logger.NewNopLogger(), nil)
	require.NoError(t, err)

	gauge := m.Gauge("queue_depth", nil)
	gauge.Set(5)
	gauge.Inc()
	gauge.Dec()
	gauge.Sub(2)

	assert.Equal(t, 3.0, gauge.Get())
}

func TestMemoryMetrics_HistogramObserves(t *testing.T) {
	m, err := NewMemoryMetrics(logger.NewNopLogger(), nil)
	require.NoError(t, err)

	histogram := m.Histogram("dispatch_seconds", nil, nil)
	histogram.Observe(0.5)
	histogram.ObserveDuration(time.Now().Add(-time.Second))

	assert.Equal(t, uint64(2), histogram.GetCount())
	assert.Greater(t, histogram.GetSum(), 1.0)
}

func TestNewManager_DisabledAndUnknown(t *testing.T) {
	_, err := NewManager(logger.NewNopLogger(), nil)
	assert.ErrorIs(t, err, types.ErrMetricsIsDisabled)

	_, err = NewManager(logger.NewNopLogger(), &types.MetricsConfig{Enabled: true, Type: "statsd"})
	assert.ErrorIs(t, err, types.ErrMetricsTypeUnknown)
}

func TestNoopManager(t *testing.T) {
	m := NewNoopManager()

	require.NoError(t, m.Start())
	m.Counter("anything", nil).Inc()
	assert.Equal(t, 0.0, m.Counter("anything", nil).Get())
	require.NoError(t, m.Stop())
}
