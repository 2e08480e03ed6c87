package observability

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

// SentryReporter sends error reports to Sentry. It is designed for
// production use: centralized error tracking with tags, extra data, and
// the runtime breadcrumb trail mapped onto Sentry breadcrumbs.
//
// The reporter uses Sentry's Hub API so it never interferes with a host
// application's own Sentry usage.
//
// Thread-safe: all methods are safe for concurrent use.
type SentryReporter struct {
	hub *sentry.Hub
}

// SentryOption is a functional option applied to the Sentry client
// options during initialization.
type SentryOption func(*sentry.ClientOptions)

// WithDebug enables the Sentry client's debug logging.
func WithDebug(debug bool) SentryOption {
	return func(opts *sentry.ClientOptions) {
		opts.Debug = debug
	}
}

// WithEnvironment sets the environment tag for all events (e.g.
// "production", "staging").
func WithEnvironment(environment string) SentryOption {
	return func(opts *sentry.ClientOptions) {
		opts.Environment = environment
	}
}

// WithRelease sets the release identifier for all events.
func WithRelease(release string) SentryOption {
	return func(opts *sentry.ClientOptions) {
		opts.Release = release
	}
}

// WithBeforeSend configures a hook that can filter or modify events
// before they are sent; returning nil drops the event.
func WithBeforeSend(fn func(*sentry.Event, *sentry.EventHint) *sentry.Event) SentryOption {
	return func(opts *sentry.ClientOptions) {
		opts.BeforeSend = fn
	}
}

// NewSentryReporter creates a reporter with its own Sentry client bound
// to a dedicated hub.
func NewSentryReporter(dsn string, options ...SentryOption) (*SentryReporter, error) {
	clientOptions := sentry.ClientOptions{Dsn: dsn}
	for _, option := range options {
		option(&clientOptions)
	}
	client, err := sentry.NewClient(clientOptions)
	if err != nil {
		return nil, fmt.Errorf("observability: creating sentry client: %w", err)
	}
	hub := sentry.NewHub(client, sentry.NewScope())
	return &SentryReporter{hub: hub}, nil
}

// ReportError implements ErrorReporter.
func (r *SentryReporter) ReportError(err error, ctx *ErrorContext) {
	r.hub.WithScope(func(scope *sentry.Scope) {
		if ctx != nil {
			scope.SetTag("lattice.kind", ctx.Kind)
			scope.SetTag("lattice.phase", ctx.Phase)
			if ctx.ComponentName != "" {
				scope.SetTag("lattice.component", ctx.ComponentName)
			}
			for key, value := range ctx.Tags {
				scope.SetTag(key, value)
			}
			scope.SetContext("lattice", map[string]any{
				"frame_index":  ctx.FrameIndex,
				"instance_key": fmt.Sprintf("%#x", ctx.InstanceKey),
			})
			for key, value := range ctx.Extra {
				scope.SetExtra(key, value)
			}
			for _, crumb := range ctx.Breadcrumbs {
				scope.AddBreadcrumb(&sentry.Breadcrumb{
					Type:      crumb.Type,
					Message:   crumb.Message,
					Timestamp: crumb.Timestamp,
				}, DefaultTrailCapacity)
			}
		}
		r.hub.CaptureException(err)
	})
}

// Flush implements ErrorReporter, waiting up to timeout for buffered
// events to be delivered.
func (r *SentryReporter) Flush(timeout time.Duration) error {
	if !r.hub.Flush(timeout) {
		return fmt.Errorf("observability: sentry flush timed out after %s", timeout)
	}
	return nil
}
