package lattice

import "github.com/lattice-ui/lattice/pkg/lattice/monitoring"

// Option configures the runtime at startup. Options are applied in order
// by Configure.
type Option func()

// WithMetrics installs a metrics backend for the runtime's telemetry.
func WithMetrics(metrics monitoring.RuntimeMetrics) Option {
	return func() { monitoring.SetGlobalMetrics(metrics) }
}

// WithProfilerHooks installs a profiler sink (see the profiler package
// for the standard implementation).
func WithProfilerHooks(hooks ProfilerHooks) Option {
	return func() { SetProfilerHooks(hooks) }
}

// WithPanicHook installs the error-reporting callback for recovered
// runtime panics.
func WithPanicHook(hook func(PanicReport)) Option {
	return func() { SetPanicHook(hook) }
}

// WithWindowSize sets the initial window dimensions.
func WithWindowSize(width, height int) Option {
	return func() { SetWindowSize(width, height) }
}

// WithRedrawWaker registers the host's redraw callback.
func WithRedrawWaker(waker RedrawWaker) Option {
	return func() { InstallRedrawWaker(waker) }
}

// Configure applies startup options. Hosts typically call it once before
// the first Tick:
//
//	lattice.Configure(
//	    lattice.WithWindowSize(1280, 720),
//	    lattice.WithMetrics(monitoring.NewPrometheusMetrics(prometheus.DefaultRegisterer)),
//	)
func Configure(opts ...Option) {
	for _, opt := range opts {
		opt()
	}
}
