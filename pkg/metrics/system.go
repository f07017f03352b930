package metrics

import (
	"context"
	"math"
	"time"

	"github.com/matzehuels/gridrisk/pkg/impact"
)

// System metric names as they appear in reports.
const (
	SARDIVoltage     = "SARDI_voltage"
	SARDILine        = "SARDI_line"
	SARDITransformer = "SARDI_transformer"
	SARDIAggregated  = "SARDI_aggregated"
	SE               = "SE"
	SELine           = "SE_line"
	SETransformer    = "SE_transformer"
	SOG              = "SOG"
	SATLOL           = "SATLOL"

	// Substation energy in kWh and kvarh. Net energy is positive while the
	// feeder imports. Import and export split steps by the direction of
	// active power; both are reported as magnitudes of the flow.
	EnergyKWh         = "energy_kwh"
	EnergyKVARh       = "energy_kvarh"
	EnergyImportKWh   = "energy_import_kwh"
	EnergyImportKVARh = "energy_import_kvarh"
	EnergyExportKWh   = "energy_export_kwh"
	EnergyExportKVARh = "energy_export_kvarh"

	// Circuit losses in kWh and kvarh.
	LossEnergyKWh   = "loss_energy_kwh"
	LossEnergyKVARh = "loss_energy_kvarh"
)

// SystemMetricNames lists the system metrics in report order.
var SystemMetricNames = []string{
	SARDIVoltage, SARDILine, SARDITransformer, SARDIAggregated,
	SE, SELine, SETransformer, SOG, SATLOL,
	EnergyKWh, EnergyKVARh, EnergyImportKWh, EnergyImportKVARh,
	EnergyExportKWh, EnergyExportKVARh, LossEnergyKWh, LossEnergyKVARh,
}

// energyTotals are the accumulating system metrics reported as window
// increments.
var energyTotals = []string{
	EnergyKWh, EnergyKVARh, EnergyImportKWh, EnergyImportKVARh,
	EnergyExportKWh, EnergyExportKVARh, LossEnergyKWh, LossEnergyKVARh,
}

// Columns of the per-step "Energy" series.
const (
	PowerKWh   = "power_kwh"
	PowerKVARh = "power_kvarh"
	LossKWh    = "loss_kwh"
	LossKVARh  = "loss_kvarh"
)

// SARDIPoint is the share of customers impacted at one timestep, in percent.
type SARDIPoint struct {
	Time        time.Time `json:"time" bson:"time"`
	Voltage     float64   `json:"voltage" bson:"voltage"`
	Line        float64   `json:"line" bson:"line"`
	Transformer float64   `json:"transformer" bson:"transformer"`
	Aggregated  float64   `json:"aggregated" bson:"aggregated"`
}

// SystemObserver computes feeder-wide indices: the SARDI family, system
// efficiencies, substation overgeneration and energy, circuit loss energy,
// and average transformer loss of life. It reads what the node, line, and transformer observers published
// on the step, so it must be attached after them.
type SystemObserver struct {
	base
	env          *Env
	transformers int

	totals  map[string]float64
	points  []SARDIPoint
	system  efficiency
	line    efficiency
	trans   efficiency
	deltas  *recorder
	windows *recorder
	energy  *recorder

	result Metric[map[string]float64]
	steps  Metric[[]SARDIPoint]
	series Metric[map[string]Series]
}

// NewSystemObserver creates a system observer.
func NewSystemObserver(env *Env) *SystemObserver {
	o := &SystemObserver{
		base:         newBase("system"),
		env:          env,
		transformers: len(env.Index.Transformers),
		totals:       make(map[string]float64, len(SystemMetricNames)),
		deltas:       newRecorder(),
		windows:      newRecorder(),
		energy:       newRecorder(),
		result:       Metric[map[string]float64]{name: "system metrics"},
		steps:        Metric[[]SARDIPoint]{name: "SARDI steps"},
		series:       Metric[map[string]Series]{name: "system series"},
	}
	for _, name := range SystemMetricNames {
		o.totals[name] = 0
	}
	return o
}

// Observe implements [Observer].
func (o *SystemObserver) Observe(ctx context.Context, s *Step) error {
	if err := o.accumulating(); err != nil {
		return err
	}
	total := float64(o.env.Index.TotalCustomers())
	pct := func(n int) float64 { return 100 * float64(n) / total }

	p := SARDIPoint{
		Time:        s.Time,
		Voltage:     pct(len(s.impacted[impact.CategoryNode])),
		Line:        pct(len(s.impacted[impact.CategoryLine])),
		Transformer: pct(len(s.impacted[impact.CategoryTransformer])),
		Aggregated:  pct(s.impactedUnion()),
	}
	o.points = append(o.points, p)
	steps := float64(o.env.TotalSteps)
	o.totals[SARDIVoltage] += p.Voltage / steps
	o.totals[SARDILine] += p.Line / steps
	o.totals[SARDITransformer] += p.Transformer / steps
	o.totals[SARDIAggregated] += p.Aggregated / steps

	c := s.Snapshot.Circuit
	power := math.Abs(c.PowerKW)
	o.system.add(math.Abs(c.LossW), power)
	o.line.add(s.lineLossW, power)
	o.trans.add(s.transformerLossW, power)

	h := o.env.StepMinutes / 60
	if c.PowerKW > 0 {
		o.totals[SOG] += c.PowerKW * h
		o.totals[EnergyExportKWh] += c.PowerKW * h
		o.totals[EnergyExportKVARh] += c.PowerKVAR * h
	} else {
		o.totals[EnergyImportKWh] -= c.PowerKW * h
		o.totals[EnergyImportKVARh] -= c.PowerKVAR * h
	}
	o.totals[EnergyKWh] -= c.PowerKW * h
	o.totals[EnergyKVARh] -= c.PowerKVAR * h
	o.totals[LossEnergyKWh] += c.LossW * h / 1000
	o.totals[LossEnergyKVARh] += c.LossVAR * h / 1000
	o.energy.row(s.Time, map[string]float64{
		PowerKWh:   -c.PowerKW * h,
		PowerKVARh: -c.PowerKVAR * h,
		LossKWh:    c.LossW * h / 1000,
		LossKVARh:  c.LossVAR * h / 1000,
	})
	o.totals[SATLOL] += s.lossOfLife

	if s.Record {
		o.deltas.delta(s.Time, o.averaged())
		o.windows.row(s.Time, map[string]float64{
			SE:            o.system.window(),
			SELine:        o.line.window(),
			SETransformer: o.trans.window(),
		})
	}
	return nil
}

// averaged returns the accumulating totals with SATLOL spread over the
// transformer count.
func (o *SystemObserver) averaged() map[string]float64 {
	out := map[string]float64{
		SARDIVoltage:     o.totals[SARDIVoltage],
		SARDILine:        o.totals[SARDILine],
		SARDITransformer: o.totals[SARDITransformer],
		SARDIAggregated:  o.totals[SARDIAggregated],
		SOG:              o.totals[SOG],
		SATLOL:           0,
	}
	if o.transformers > 0 {
		out[SATLOL] = o.totals[SATLOL] / float64(o.transformers)
	}
	for _, name := range energyTotals {
		out[name] = o.totals[name]
	}
	return out
}

// Finalize implements [Observer].
func (o *SystemObserver) Finalize() error {
	o.finalized = true
	res := o.averaged()
	res[SE] = o.system.total()
	res[SELine] = o.line.total()
	res[SETransformer] = o.trans.total()
	o.result.set(res)
	o.steps.set(o.points)

	merged := o.deltas.result()
	windows := o.windows.result()
	for k, v := range windows.Values {
		merged.Values[k] = v
	}
	o.series.set(map[string]Series{"System": merged, "Energy": o.energy.result()})
	return nil
}

// Metrics returns every system metric keyed by report name.
func (o *SystemObserver) Metrics() (map[string]float64, error) { return o.result.Get() }

// SARDISteps returns the per-timestep impacted shares.
func (o *SystemObserver) SARDISteps() ([]SARDIPoint, error) { return o.steps.Get() }

// Series returns, keyed as "System", the per-window increments of every
// accumulating system metric and the windowed efficiencies. "Energy" holds
// one row per step of substation and loss energy.
func (o *SystemObserver) Series() (map[string]Series, error) { return o.series.Get() }
