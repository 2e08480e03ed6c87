package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics exports runtime telemetry as Prometheus series.
//
// Exported series (all under the lattice_ namespace):
//   - lattice_phase_duration_seconds{phase}        histogram
//   - lattice_layout_cache_hits_total{kind}        counter
//   - lattice_layout_cache_misses_total{reason}    counter
//   - lattice_component_builds_total               counter
//   - lattice_component_replays_total              counter
//   - lattice_live_slots                           gauge
//   - lattice_frame_receivers                      gauge
//   - lattice_frame_aborts_total                   counter
//
// Example:
//
//	metrics := monitoring.NewPrometheusMetrics(prometheus.DefaultRegisterer)
//	monitoring.SetGlobalMetrics(metrics)
type PrometheusMetrics struct {
	phaseDuration *prometheus.HistogramVec
	cacheHits     *prometheus.CounterVec
	cacheMisses   *prometheus.CounterVec
	builds        prometheus.Counter
	replays       prometheus.Counter
	liveSlots     prometheus.Gauge
	receivers     prometheus.Gauge
	frameAborts   prometheus.Counter
}

// NewPrometheusMetrics creates and registers the runtime series with the
// given registerer. Registration panics on duplicate registration, the
// standard promauto behavior.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)
	return &PrometheusMetrics{
		phaseDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lattice",
			Name:      "phase_duration_seconds",
			Help:      "Duration of each frame phase (build, measure, record).",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 14),
		}, []string{"phase"}),
		cacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lattice",
			Name:      "layout_cache_hits_total",
			Help:      "Layout cache hits by kind (direct, boundary).",
		}, []string{"kind"}),
		cacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lattice",
			Name:      "layout_cache_misses_total",
			Help:      "Layout cache misses by reason.",
		}, []string{"reason"}),
		builds: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "lattice",
			Name:      "component_builds_total",
			Help:      "Component bodies executed during Build.",
		}),
		replays: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "lattice",
			Name:      "component_replays_total",
			Help:      "Components served by replay subtree reuse.",
		}),
		liveSlots: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "lattice",
			Name:      "live_slots",
			Help:      "Live slot-table entries after recycle.",
		}),
		receivers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "lattice",
			Name:      "frame_receivers",
			Help:      "Registered frame-nanos receivers at frame end.",
		}),
		frameAborts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "lattice",
			Name:      "frame_aborts_total",
			Help:      "Frames discarded after an unrecovered panic.",
		}),
	}
}

// RecordPhaseDuration implements RuntimeMetrics.
func (m *PrometheusMetrics) RecordPhaseDuration(phase string, duration time.Duration) {
	m.phaseDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

// RecordLayoutCacheHit implements RuntimeMetrics.
func (m *PrometheusMetrics) RecordLayoutCacheHit(kind string) {
	m.cacheHits.WithLabelValues(kind).Inc()
}

// RecordLayoutCacheMiss implements RuntimeMetrics.
func (m *PrometheusMetrics) RecordLayoutCacheMiss(reason string) {
	m.cacheMisses.WithLabelValues(reason).Inc()
}

// RecordFrameComponents implements RuntimeMetrics.
func (m *PrometheusMetrics) RecordFrameComponents(built, replayed int) {
	m.builds.Add(float64(built))
	m.replays.Add(float64(replayed))
}

// RecordLiveSlots implements RuntimeMetrics.
func (m *PrometheusMetrics) RecordLiveSlots(count int) {
	m.liveSlots.Set(float64(count))
}

// RecordFrameReceivers implements RuntimeMetrics.
func (m *PrometheusMetrics) RecordFrameReceivers(count int) {
	m.receivers.Set(float64(count))
}

// RecordFrameAbort implements RuntimeMetrics.
func (m *PrometheusMetrics) RecordFrameAbort() {
	m.frameAborts.Inc()
}
