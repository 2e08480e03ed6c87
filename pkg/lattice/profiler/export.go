package profiler

import (
	"io"
	"time"

	"github.com/goccy/go-json"
)

// SessionExport is the JSON shape of one profiling session.
type SessionExport struct {
	SessionID string        `json:"session_id"`
	StartedAt time.Time     `json:"started_at"`
	Frames    []FrameRecord `json:"frames"`

	FPS struct {
		Average float64 `json:"average"`
		Min     float64 `json:"min"`
		Max     float64 `json:"max"`
		P95     float64 `json:"p95"`
	} `json:"fps"`

	Operations map[string]TimingStats `json:"operations"`
}

// Snapshot assembles the export for the current session state.
func (p *Profiler) Snapshot() SessionExport {
	export := SessionExport{
		SessionID:  p.sessionID,
		StartedAt:  p.startedAt,
		Frames:     p.Frames(),
		Operations: make(map[string]TimingStats),
	}
	export.FPS.Average = p.fps.GetAverage()
	export.FPS.Min = p.fps.GetMin()
	export.FPS.Max = p.fps.GetMax()
	export.FPS.P95 = p.fps.GetPercentile(95)
	for _, name := range p.timings.Operations() {
		if stats, ok := p.timings.GetStats(name); ok {
			export.Operations[name] = stats
		}
	}
	return export
}

// ExportJSON writes the session as indented JSON.
func (p *Profiler) ExportJSON(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(p.Snapshot())
}
