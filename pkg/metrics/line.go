package metrics

import (
	"context"
	"maps"

	"github.com/matzehuels/gridrisk/pkg/impact"
)

// LineObserver accumulates the line loading risk index (LLRI) and line
// efficiency (LE), and publishes thermally impacted customers and line
// losses.
type LineObserver struct {
	base
	env  *Env
	risk map[string]float64
	eff  map[string]*efficiency

	llriRec, leRec *recorder

	llri   Metric[map[string]float64]
	le     Metric[map[string]float64]
	series Metric[map[string]Series]
}

// NewLineObserver creates a line observer for one run.
func NewLineObserver(env *Env) *LineObserver {
	return &LineObserver{
		base:    newBase("line"),
		env:     env,
		risk:    make(map[string]float64),
		eff:     make(map[string]*efficiency),
		llriRec: newRecorder(),
		leRec:   newRecorder(),
		llri:    Metric[map[string]float64]{name: "LLRI"},
		le:      Metric[map[string]float64]{name: "LE"},
		series:  Metric[map[string]Series]{name: "line series"},
	}
}

// Observe implements [Observer].
func (o *LineObserver) Observe(ctx context.Context, s *Step) error {
	if err := o.accumulating(); err != nil {
		return err
	}
	for _, line := range s.Snapshot.Lines {
		ids, err := o.env.Index.Downstream(impact.CategoryLine, line.Name)
		if err != nil {
			return err
		}
		gamma := ThermalGamma(line.Loading(), o.env.Thresholds.ThermalLimit)
		o.risk[line.Name] += o.env.weight(ids) * gamma
		if gamma > 0 {
			s.markImpacted(impact.CategoryLine, ids)
			s.raiseGamma(ids, gamma)
		}

		e := o.eff[line.Name]
		if e == nil {
			e = &efficiency{}
			o.eff[line.Name] = e
		}
		e.add(line.LossW, line.Throughput())
		s.lineLossW += line.LossW
	}

	if s.Record {
		o.llriRec.delta(s.Time, o.risk)
		window := make(map[string]float64, len(o.eff))
		for name, e := range o.eff {
			window[name] = e.window()
		}
		o.leRec.row(s.Time, window)
	}
	return nil
}

// Finalize implements [Observer].
func (o *LineObserver) Finalize() error {
	o.finalized = true
	le := make(map[string]float64, len(o.eff))
	for name, e := range o.eff {
		le[name] = e.total()
	}
	o.llri.set(maps.Clone(o.risk))
	o.le.set(le)
	o.series.set(map[string]Series{
		"LLRI": o.llriRec.result(),
		"LE":   o.leRec.result(),
	})
	return nil
}

// LLRI returns the index per line.
func (o *LineObserver) LLRI() (map[string]float64, error) { return o.llri.Get() }

// LE returns the run efficiency per line in percent.
func (o *LineObserver) LE() (map[string]float64, error) { return o.le.Get() }

// Series returns the LLRI increments and windowed LE per recording step,
// keyed by metric name.
func (o *LineObserver) Series() (map[string]Series, error) { return o.series.Get() }
