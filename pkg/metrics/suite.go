package metrics

import (
	"maps"
	"time"

	"github.com/matzehuels/gridrisk/pkg/thermal"
)

// ExportOptions selects raw value exports and their time window.
type ExportOptions struct {
	Voltages            bool
	LineLoadings        bool
	TransformerLoadings bool
	Start, End          time.Time
}

// SuiteOptions configures the observers of one run.
type SuiteOptions struct {
	// Life holds the insulation model; the zero value means defaults.
	Life thermal.LifeParameters

	// Temperatures is the ambient profile; nil means the default
	// temperature.
	Temperatures *thermal.TemperatureProfile

	// LoadingBins are line loading bin edges. Nil disables the bins.
	LoadingBins []float64

	// VoltageBins are bus voltage bin edges. Nil disables the bins.
	VoltageBins []float64

	Export ExportOptions
}

// Suite is the full set of observers for one run, created in dependency
// order.
type Suite struct {
	Node        *NodeObserver
	Line        *LineObserver
	Transformer *TransformerObserver
	Customer    *CustomerObserver
	System      *SystemObserver

	LineStats    *StatsObserver
	VoltageStats *StatsObserver
	LineBins     *BinsObserver
	VoltageBins  *BinsObserver
	Overloads    *OverloadObserver
	Exports      []*Exporter
}

// NewSuite validates env and creates every observer opts enables.
func NewSuite(env *Env, opts SuiteOptions) (*Suite, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	life := opts.Life
	if life == (thermal.LifeParameters{}) {
		life = thermal.DefaultLifeParameters()
	}
	if err := life.Validate(); err != nil {
		return nil, err
	}

	s := &Suite{
		Node:         NewNodeObserver(env),
		Line:         NewLineObserver(env),
		Transformer:  NewTransformerObserver(env, life, opts.Temperatures),
		Customer:     NewCustomerObserver(env),
		System:       NewSystemObserver(env),
		LineStats:    NewLineLoadingStats(),
		VoltageStats: NewVoltageStats(),
		Overloads:    NewOverloadObserver(env),
	}
	var err error
	if opts.LoadingBins != nil {
		if s.LineBins, err = NewLineLoadingBins(env, opts.LoadingBins); err != nil {
			return nil, err
		}
	}
	if opts.VoltageBins != nil {
		if s.VoltageBins, err = NewVoltageBins(env, opts.VoltageBins); err != nil {
			return nil, err
		}
	}
	kinds := []struct {
		on   bool
		kind string
	}{
		{opts.Export.Voltages, ExportVoltages},
		{opts.Export.LineLoadings, ExportLineLoadings},
		{opts.Export.TransformerLoadings, ExportTransformerLoadings},
	}
	for _, k := range kinds {
		if !k.on {
			continue
		}
		e, err := NewExporter(k.kind, opts.Export.Start, opts.Export.End)
		if err != nil {
			return nil, err
		}
		s.Exports = append(s.Exports, e)
	}
	return s, nil
}

// Observers returns the observers in notification order: producers first,
// then the customer and system observers that read what they publish.
func (s *Suite) Observers() []Observer {
	out := []Observer{s.Node, s.Line, s.Transformer, s.Customer, s.System, s.LineStats, s.VoltageStats, s.Overloads}
	if s.LineBins != nil {
		out = append(out, s.LineBins)
	}
	if s.VoltageBins != nil {
		out = append(out, s.VoltageBins)
	}
	for _, e := range s.Exports {
		out = append(out, e)
	}
	return out
}

// Attach registers every observer on sub.
func (s *Suite) Attach(sub *Subject) {
	for _, o := range s.Observers() {
		sub.Attach(o)
	}
}

// Results gathers every finalized metric of a run.
type Results struct {
	NVRI map[string]float64 `json:"nvri" bson:"nvri"`
	LLRI map[string]float64 `json:"llri" bson:"llri"`
	TLRI map[string]float64 `json:"tlri" bson:"tlri"`
	CRI  map[string]float64 `json:"cri" bson:"cri"`
	LE   map[string]float64 `json:"le" bson:"le"`
	TE   map[string]float64 `json:"te" bson:"te"`
	TOG  map[string]float64 `json:"tog" bson:"tog"`
	TLOL map[string]float64 `json:"tlol" bson:"tlol"`

	System     map[string]float64 `json:"system" bson:"system"`
	SARDISteps []SARDIPoint       `json:"sardi_steps" bson:"sardi_steps"`

	// Series is keyed by metric name: NVRI, LLRI, LE, TLRI, TE, TOG, TLOL,
	// CRI, and System.
	Series map[string]Series `json:"series" bson:"-"`

	LineLoadingStats Series             `json:"line_loading_stats" bson:"-"`
	VoltageStats     Series             `json:"voltage_stats" bson:"-"`
	LineLoadingBins  map[string]float64 `json:"line_loading_bins,omitempty" bson:"line_loading_bins,omitempty"`
	LineBinLabels    []string           `json:"-" bson:"-"`
	VoltageBins      map[string]float64 `json:"voltage_bins,omitempty" bson:"voltage_bins,omitempty"`
	VoltageBinLabels []string           `json:"-" bson:"-"`
	Overloads        []Overload         `json:"overloads" bson:"overloads"`

	// Exports is keyed by export kind.
	Exports map[string]Series `json:"exports,omitempty" bson:"-"`
}

// Results collects the suite's metrics. It fails with NOT_FINALIZED until
// every observer is finalized.
func (s *Suite) Results() (*Results, error) {
	r := &Results{Series: make(map[string]Series), Exports: make(map[string]Series)}
	var err error

	scalars := []struct {
		dst *map[string]float64
		get func() (map[string]float64, error)
	}{
		{&r.NVRI, s.Node.NVRI},
		{&r.LLRI, s.Line.LLRI},
		{&r.LE, s.Line.LE},
		{&r.TLRI, s.Transformer.TLRI},
		{&r.TE, s.Transformer.TE},
		{&r.TOG, s.Transformer.TOG},
		{&r.TLOL, s.Transformer.TLOL},
		{&r.CRI, s.Customer.CRI},
		{&r.System, s.System.Metrics},
	}
	for _, m := range scalars {
		if *m.dst, err = m.get(); err != nil {
			return nil, err
		}
	}
	if r.SARDISteps, err = s.System.SARDISteps(); err != nil {
		return nil, err
	}

	for _, get := range []func() (map[string]Series, error){
		s.Node.Series, s.Line.Series, s.Transformer.Series, s.Customer.Series, s.System.Series,
	} {
		series, err := get()
		if err != nil {
			return nil, err
		}
		maps.Copy(r.Series, series)
	}

	if r.LineLoadingStats, err = s.LineStats.Stats(); err != nil {
		return nil, err
	}
	if r.VoltageStats, err = s.VoltageStats.Stats(); err != nil {
		return nil, err
	}
	if s.LineBins != nil {
		if r.LineLoadingBins, err = s.LineBins.Hours(); err != nil {
			return nil, err
		}
		r.LineBinLabels = s.LineBins.Labels()
	}
	if s.VoltageBins != nil {
		if r.VoltageBins, err = s.VoltageBins.Hours(); err != nil {
			return nil, err
		}
		r.VoltageBinLabels = s.VoltageBins.Labels()
	}
	if r.Overloads, err = s.Overloads.Overloads(); err != nil {
		return nil, err
	}
	for _, e := range s.Exports {
		v, err := e.Values()
		if err != nil {
			return nil, err
		}
		r.Exports[e.Kind()] = v
	}
	return r, nil
}
