package metrics

import (
	"context"
	"maps"
	"time"

	"github.com/matzehuels/gridrisk/pkg/errors"
	"github.com/matzehuels/gridrisk/pkg/impact"
)

// NodeObserver accumulates the nodal voltage risk index (NVRI) and publishes
// voltage-impacted customers.
type NodeObserver struct {
	base
	env  *Env
	nvri map[string]float64
	rec  *recorder

	result Metric[map[string]float64]
	series Metric[map[string]Series]
}

// NewNodeObserver creates a node observer for one run.
func NewNodeObserver(env *Env) *NodeObserver {
	return &NodeObserver{
		base:   newBase("node"),
		env:    env,
		nvri:   make(map[string]float64),
		rec:    newRecorder(),
		result: Metric[map[string]float64]{name: "NVRI"},
		series: Metric[map[string]Series]{name: "node series"},
	}
}

// Observe implements [Observer].
func (o *NodeObserver) Observe(ctx context.Context, s *Step) error {
	if err := o.accumulating(); err != nil {
		return err
	}
	th := o.env.Thresholds
	for _, bus := range s.Snapshot.Buses {
		ids, err := o.env.Index.Downstream(impact.CategoryNode, bus.Name)
		if err != nil {
			return err
		}
		if len(bus.PU) == 0 {
			return errors.New(errors.ErrCodeInvalidInput, "bus %s has no phase voltages at %s", bus.Name, s.Time.Format(time.RFC3339))
		}
		gamma := VoltageGamma(bus.Max(), bus.Min(), th.Overvoltage, th.Undervoltage)
		o.nvri[bus.Name] += o.env.weight(ids) * gamma
		if gamma > 0 {
			s.markImpacted(impact.CategoryNode, ids)
			s.raiseGamma(ids, gamma)
		}
	}
	if s.Record {
		o.rec.delta(s.Time, o.nvri)
	}
	return nil
}

// Finalize implements [Observer].
func (o *NodeObserver) Finalize() error {
	o.finalized = true
	o.result.set(maps.Clone(o.nvri))
	o.series.set(map[string]Series{"NVRI": o.rec.result()})
	return nil
}

// NVRI returns the index per bus.
func (o *NodeObserver) NVRI() (map[string]float64, error) { return o.result.Get() }

// Series returns the NVRI increments per recording window, keyed by metric
// name.
func (o *NodeObserver) Series() (map[string]Series, error) { return o.series.Get() }
