package observability

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// ConsoleReporter writes error reports to a writer (stderr by default).
// It is intended for development; production setups use SentryReporter.
type ConsoleReporter struct {
	mu      sync.Mutex
	out     io.Writer
	verbose bool
}

// NewConsoleReporter creates a reporter writing to stderr. When verbose
// is true, breadcrumbs and stack traces are included.
func NewConsoleReporter(verbose bool) *ConsoleReporter {
	return &ConsoleReporter{out: os.Stderr, verbose: verbose}
}

// NewConsoleReporterTo creates a reporter writing to the given writer.
func NewConsoleReporterTo(out io.Writer, verbose bool) *ConsoleReporter {
	return &ConsoleReporter{out: out, verbose: verbose}
}

// ReportError implements ErrorReporter.
func (r *ConsoleReporter) ReportError(err error, ctx *ErrorContext) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintf(r.out, "[lattice] error: %v\n", err)
	if ctx == nil {
		return
	}
	fmt.Fprintf(r.out, "  kind=%s phase=%s frame=%d", ctx.Kind, ctx.Phase, ctx.FrameIndex)
	if ctx.ComponentName != "" {
		fmt.Fprintf(r.out, " component=%s", ctx.ComponentName)
	}
	if ctx.InstanceKey != 0 {
		fmt.Fprintf(r.out, " instance=%#x", ctx.InstanceKey)
	}
	fmt.Fprintln(r.out)

	if !r.verbose {
		return
	}
	for key, value := range ctx.Tags {
		fmt.Fprintf(r.out, "  tag %s=%s\n", key, value)
	}
	for _, crumb := range ctx.Breadcrumbs {
		fmt.Fprintf(r.out, "  crumb [%s] %s (%s)\n", crumb.Type, crumb.Message, crumb.Timestamp.Format(time.RFC3339Nano))
	}
	if len(ctx.StackTrace) > 0 {
		fmt.Fprintf(r.out, "  stack:\n%s\n", ctx.StackTrace)
	}
}

// Flush implements ErrorReporter; console output is synchronous so there
// is nothing to wait for.
func (r *ConsoleReporter) Flush(time.Duration) error { return nil }
