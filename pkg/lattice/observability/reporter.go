// Package observability provides pluggable error reporting for the
// lattice runtime: frame aborts, frame-receiver panics, and input-handler
// panics flow through an ErrorReporter with rich context attached.
//
// The reporter is optional. When none is configured, reporting is a nil
// check and nothing else. Development setups typically use
// ConsoleReporter; production setups use SentryReporter.
package observability

import (
	"sync"
	"time"
)

// ErrorReporter is a pluggable interface for error tracking backends.
// Implementations can send errors to services like Sentry or custom
// backends.
//
// Thread-safe: all methods must be safe for concurrent use.
//
// Example:
//
//	// Development: console reporter
//	observability.SetErrorReporter(observability.NewConsoleReporter(true))
//	observability.Install()
//
//	// Production: Sentry reporter
//	reporter, err := observability.NewSentryReporter(os.Getenv("SENTRY_DSN"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	observability.SetErrorReporter(reporter)
//	observability.Install()
//	defer reporter.Flush(5 * time.Second)
type ErrorReporter interface {
	// ReportError reports an error with context. The runtime calls it for
	// every recovered panic; hosts may call it directly for their own
	// errors.
	ReportError(err error, ctx *ErrorContext)

	// Flush ensures pending errors are sent before shutdown, waiting at
	// most timeout. Returns a non-nil error if the flush timed out.
	Flush(timeout time.Duration) error
}

// ErrorContext carries where and when an error occurred. All fields are
// optional; more context makes better reports.
type ErrorContext struct {
	// Kind labels the recovery site: "frame", "frame receiver", "input
	// handler", or a host-defined label.
	Kind string

	// ComponentName names the owning component when known.
	ComponentName string

	// InstanceKey identifies the owning component instance when known.
	InstanceKey uint64

	// Phase names the frame phase that was active.
	Phase string

	// FrameIndex is the frame during which the error occurred.
	FrameIndex uint64

	// Timestamp is when the error occurred.
	Timestamp time.Time

	// Tags are low-cardinality key-value pairs for filtering and
	// grouping.
	Tags map[string]string

	// Extra carries arbitrary structured data attached to the report.
	Extra map[string]any

	// Breadcrumbs are the recent runtime events leading up to the error.
	Breadcrumbs []Breadcrumb

	// StackTrace is the captured stack, if available.
	StackTrace []byte
}

var (
	reporterMu sync.RWMutex
	reporter   ErrorReporter
)

// SetErrorReporter installs the global reporter. Passing nil disables
// reporting.
func SetErrorReporter(r ErrorReporter) {
	reporterMu.Lock()
	defer reporterMu.Unlock()
	reporter = r
}

// GetErrorReporter returns the installed reporter, or nil when reporting
// is disabled.
func GetErrorReporter() ErrorReporter {
	reporterMu.RLock()
	defer reporterMu.RUnlock()
	return reporter
}
