package metrics

import (
	"context"
	"maps"
)

// CustomerObserver tracks the customer risk index (CRI): the deepest
// violation on any node, line, or transformer a customer depends on over the
// whole run. It reads the per-step depths published by the producers, so it
// must be attached after them.
type CustomerObserver struct {
	base
	env    *Env
	worst  map[string]float64
	window map[string]float64
	rec    *recorder

	cri    Metric[map[string]float64]
	series Metric[map[string]Series]
}

// NewCustomerObserver creates a customer observer covering every indexed
// customer.
func NewCustomerObserver(env *Env) *CustomerObserver {
	o := &CustomerObserver{
		base:   newBase("customer"),
		env:    env,
		worst:  make(map[string]float64, env.Index.TotalCustomers()),
		window: make(map[string]float64, env.Index.TotalCustomers()),
		rec:    newRecorder(),
		cri:    Metric[map[string]float64]{name: "CRI"},
		series: Metric[map[string]Series]{name: "customer series"},
	}
	for _, id := range env.Index.Customers {
		o.worst[id] = 0
		o.window[id] = 0
	}
	return o
}

// Observe implements [Observer].
func (o *CustomerObserver) Observe(ctx context.Context, s *Step) error {
	if err := o.accumulating(); err != nil {
		return err
	}
	for id, g := range s.gamma {
		o.worst[id] = max(o.worst[id], g)
		o.window[id] = max(o.window[id], g)
	}
	if s.Record {
		o.rec.row(s.Time, o.window)
		clear(o.window)
		for _, id := range o.env.Index.Customers {
			o.window[id] = 0
		}
	}
	return nil
}

// Finalize implements [Observer].
func (o *CustomerObserver) Finalize() error {
	o.finalized = true
	o.cri.set(maps.Clone(o.worst))
	o.series.set(map[string]Series{"CRI": o.rec.result()})
	return nil
}

// CRI returns the worst violation depth per customer in per-unit.
func (o *CustomerObserver) CRI() (map[string]float64, error) { return o.cri.Get() }

// Series returns the worst depth within each recording window, keyed by
// metric name.
func (o *CustomerObserver) Series() (map[string]Series, error) { return o.series.Get() }
