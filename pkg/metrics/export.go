package metrics

import (
	"context"
	"time"

	"github.com/matzehuels/gridrisk/pkg/errors"
	"github.com/matzehuels/gridrisk/pkg/powerflow"
)

// Export kinds.
const (
	ExportVoltages            = "voltages"
	ExportLineLoadings        = "line_loadings"
	ExportTransformerLoadings = "transformer_loadings"
)

// Exporter keeps raw per-asset values for every step inside [Start, End].
// A zero Start or End leaves that side of the window open.
type Exporter struct {
	base
	kind       string
	start, end time.Time
	values     func(*powerflow.Snapshot) map[string]float64
	rec        *recorder

	result Metric[Series]
}

// NewExporter creates an exporter for kind, one of [ExportVoltages],
// [ExportLineLoadings], or [ExportTransformerLoadings].
func NewExporter(kind string, start, end time.Time) (*Exporter, error) {
	var fn func(*powerflow.Snapshot) map[string]float64
	switch kind {
	case ExportVoltages:
		fn = func(s *powerflow.Snapshot) map[string]float64 {
			out := make(map[string]float64, len(s.Buses))
			for _, b := range s.Buses {
				out[b.Name] = b.Mean()
			}
			return out
		}
	case ExportLineLoadings:
		fn = func(s *powerflow.Snapshot) map[string]float64 { return branchLoadings(s.Lines) }
	case ExportTransformerLoadings:
		fn = func(s *powerflow.Snapshot) map[string]float64 { return branchLoadings(s.Transformers) }
	default:
		return nil, errors.New(errors.ErrCodeInvalidInput, "unknown export kind %q", kind)
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "export window ends (%s) before it starts (%s)",
			end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return &Exporter{
		base:   newBase("export " + kind),
		kind:   kind,
		start:  start,
		end:    end,
		values: fn,
		rec:    newRecorder(),
		result: Metric[Series]{name: kind},
	}, nil
}

func branchLoadings(branches []powerflow.Branch) map[string]float64 {
	out := make(map[string]float64, len(branches))
	for _, b := range branches {
		out[b.Name] = b.Loading()
	}
	return out
}

// Kind returns the export kind.
func (e *Exporter) Kind() string { return e.kind }

func (e *Exporter) inWindow(t time.Time) bool {
	if !e.start.IsZero() && t.Before(e.start) {
		return false
	}
	if !e.end.IsZero() && t.After(e.end) {
		return false
	}
	return true
}

// Observe implements [Observer].
func (e *Exporter) Observe(ctx context.Context, s *Step) error {
	if err := e.accumulating(); err != nil {
		return err
	}
	if e.inWindow(s.Time) {
		e.rec.row(s.Time, e.values(s.Snapshot))
	}
	return nil
}

// Finalize implements [Observer].
func (e *Exporter) Finalize() error {
	e.finalized = true
	e.result.set(e.rec.result())
	return nil
}

// Values returns one row per exported step.
func (e *Exporter) Values() (Series, error) { return e.result.Get() }
