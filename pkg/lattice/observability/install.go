package observability

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/lattice-ui/lattice/pkg/lattice"
)

// Install wires the configured reporter into the runtime's panic hook.
// Every recovered runtime panic (frame abort, receiver panic, input
// handler panic) becomes a report with the breadcrumb trail and a stack
// trace attached.
//
// Call it once after SetErrorReporter; calling it with no reporter set is
// harmless (reports are dropped at a nil check).
func Install() {
	lattice.SetPanicHook(func(report lattice.PanicReport) {
		AddBreadcrumb("panic", fmt.Sprintf("%s panic in %s", report.Kind, report.Phase))

		r := GetErrorReporter()
		if r == nil {
			return
		}
		err, ok := report.Recovered.(error)
		if !ok {
			err = fmt.Errorf("panic: %v", report.Recovered)
		}
		r.ReportError(err, &ErrorContext{
			Kind:          report.Kind,
			ComponentName: report.ComponentName,
			InstanceKey:   report.InstanceKey,
			Phase:         report.Phase.String(),
			FrameIndex:    lattice.FrameIndex(),
			Timestamp:     time.Now(),
			Breadcrumbs:   GlobalTrail().Snapshot(),
			StackTrace:    debug.Stack(),
		})
	})
}

// Uninstall detaches reporting from the runtime.
func Uninstall() {
	lattice.SetPanicHook(nil)
}
