package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, family := range families {
		byName[family.GetName()] = family
	}
	return byName
}

// TestPrometheusMetricsExportSeries verifies every runtime series is
// registered and records.
func TestPrometheusMetricsExportSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheusMetrics(reg)

	m.RecordPhaseDuration("build", 2*time.Millisecond)
	m.RecordLayoutCacheHit("direct")
	m.RecordLayoutCacheHit("boundary")
	m.RecordLayoutCacheMiss("self_dirty")
	m.RecordFrameComponents(3, 7)
	m.RecordLiveSlots(12)
	m.RecordFrameReceivers(2)
	m.RecordFrameAbort()

	families := gather(t, reg)

	require.Contains(t, families, "lattice_phase_duration_seconds")
	require.Contains(t, families, "lattice_layout_cache_hits_total")
	require.Contains(t, families, "lattice_layout_cache_misses_total")
	require.Contains(t, families, "lattice_component_builds_total")
	require.Contains(t, families, "lattice_component_replays_total")
	require.Contains(t, families, "lattice_live_slots")
	require.Contains(t, families, "lattice_frame_receivers")
	require.Contains(t, families, "lattice_frame_aborts_total")

	hits := families["lattice_layout_cache_hits_total"].GetMetric()
	assert.Len(t, hits, 2, "direct and boundary label values")

	builds := families["lattice_component_builds_total"].GetMetric()
	require.Len(t, builds, 1)
	assert.Equal(t, 3.0, builds[0].GetCounter().GetValue())

	slots := families["lattice_live_slots"].GetMetric()
	require.Len(t, slots, 1)
	assert.Equal(t, 12.0, slots[0].GetGauge().GetValue())
}

// TestGlobalMetricsDefaultsToNoOp verifies the default backend and the
// nil-restore behavior.
func TestGlobalMetricsDefaultsToNoOp(t *testing.T) {
	assert.IsType(t, NoOpMetrics{}, Global())

	reg := prometheus.NewRegistry()
	m := NewPrometheusMetrics(reg)
	SetGlobalMetrics(m)
	assert.Same(t, m, Global().(*PrometheusMetrics))

	SetGlobalMetrics(nil)
	assert.IsType(t, NoOpMetrics{}, Global())
}

// TestNoOpMetricsIsSafe verifies the no-op backend accepts every call.
func TestNoOpMetricsIsSafe(t *testing.T) {
	var m NoOpMetrics
	assert.NotPanics(t, func() {
		m.RecordPhaseDuration("measure", time.Millisecond)
		m.RecordLayoutCacheHit("direct")
		m.RecordLayoutCacheMiss("no_entry")
		m.RecordFrameComponents(1, 2)
		m.RecordLiveSlots(0)
		m.RecordFrameReceivers(0)
		m.RecordFrameAbort()
	})
}
