package metrics

import (
	"context"
	"maps"

	"github.com/matzehuels/gridrisk/pkg/impact"
	"github.com/matzehuels/gridrisk/pkg/thermal"
)

// TransformerObserver accumulates the transformer loading risk index
// (TLRI), efficiency (TE), overgeneration (TOG, kWh of reverse flow), and
// insulation loss of life (TLOL, percent).
type TransformerObserver struct {
	base
	env   *Env
	life  thermal.LifeParameters
	temps *thermal.TemperatureProfile

	risk    map[string]float64
	overgen map[string]float64
	aging   map[string]float64
	eff     map[string]*efficiency

	riskRec, togRec, lolRec, teRec *recorder

	tlri   Metric[map[string]float64]
	te     Metric[map[string]float64]
	tog    Metric[map[string]float64]
	tlol   Metric[map[string]float64]
	series Metric[map[string]Series]
}

// NewTransformerObserver creates a transformer observer. A nil profile
// means the default ambient temperature throughout.
func NewTransformerObserver(env *Env, life thermal.LifeParameters, temps *thermal.TemperatureProfile) *TransformerObserver {
	if temps == nil {
		temps = thermal.ConstantProfile(thermal.DefaultTemperature)
	}
	return &TransformerObserver{
		base:    newBase("transformer"),
		env:     env,
		life:    life,
		temps:   temps,
		risk:    make(map[string]float64),
		overgen: make(map[string]float64),
		aging:   make(map[string]float64),
		eff:     make(map[string]*efficiency),
		riskRec: newRecorder(),
		togRec:  newRecorder(),
		lolRec:  newRecorder(),
		teRec:   newRecorder(),
		tlri:    Metric[map[string]float64]{name: "TLRI"},
		te:      Metric[map[string]float64]{name: "TE"},
		tog:     Metric[map[string]float64]{name: "TOG"},
		tlol:    Metric[map[string]float64]{name: "TLOL"},
		series:  Metric[map[string]Series]{name: "transformer series"},
	}
}

// Observe implements [Observer].
func (o *TransformerObserver) Observe(ctx context.Context, s *Step) error {
	if err := o.accumulating(); err != nil {
		return err
	}
	ambient := o.temps.At(s.Time)
	dt := o.env.StepMinutes

	for _, tr := range s.Snapshot.Transformers {
		ids, err := o.env.Index.Downstream(impact.CategoryTransformer, tr.Name)
		if err != nil {
			return err
		}
		loading := tr.Loading()
		gamma := ThermalGamma(loading, o.env.Thresholds.ThermalLimit)
		o.risk[tr.Name] += o.env.weight(ids) * gamma
		if gamma > 0 {
			s.markImpacted(impact.CategoryTransformer, ids)
			s.raiseGamma(ids, gamma)
		}

		e := o.eff[tr.Name]
		if e == nil {
			e = &efficiency{}
			o.eff[tr.Name] = e
		}
		e.add(tr.LossW, tr.Throughput())
		s.transformerLossW += tr.LossW

		o.overgen[tr.Name] += max(tr.PTo-tr.PFrom, 0) * dt / 60

		lol := thermal.LossOfLife(loading, ambient, dt, o.life)
		o.aging[tr.Name] += lol
		s.lossOfLife += lol
	}

	if s.Record {
		o.riskRec.delta(s.Time, o.risk)
		o.togRec.delta(s.Time, o.overgen)
		o.lolRec.delta(s.Time, o.aging)
		window := make(map[string]float64, len(o.eff))
		for name, e := range o.eff {
			window[name] = e.window()
		}
		o.teRec.row(s.Time, window)
	}
	return nil
}

// Finalize implements [Observer].
func (o *TransformerObserver) Finalize() error {
	o.finalized = true
	te := make(map[string]float64, len(o.eff))
	for name, e := range o.eff {
		te[name] = e.total()
	}
	o.tlri.set(maps.Clone(o.risk))
	o.te.set(te)
	o.tog.set(maps.Clone(o.overgen))
	o.tlol.set(maps.Clone(o.aging))
	o.series.set(map[string]Series{
		"TLRI": o.riskRec.result(),
		"TE":   o.teRec.result(),
		"TOG":  o.togRec.result(),
		"TLOL": o.lolRec.result(),
	})
	return nil
}

// TLRI returns the loading risk index per transformer.
func (o *TransformerObserver) TLRI() (map[string]float64, error) { return o.tlri.Get() }

// TE returns the run efficiency per transformer in percent.
func (o *TransformerObserver) TE() (map[string]float64, error) { return o.te.Get() }

// TOG returns reverse-flow energy per transformer in kWh.
func (o *TransformerObserver) TOG() (map[string]float64, error) { return o.tog.Get() }

// TLOL returns the insulation life consumed per transformer in percent.
func (o *TransformerObserver) TLOL() (map[string]float64, error) { return o.tlol.Get() }

// Series returns per-window increments of TLRI, TOG, and TLOL and windowed
// TE, keyed by metric name.
func (o *TransformerObserver) Series() (map[string]Series, error) { return o.series.Get() }
