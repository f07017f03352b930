package metrics

import (
	"context"
	"maps"
	"slices"
	"strconv"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/matzehuels/gridrisk/pkg/errors"
	"github.com/matzehuels/gridrisk/pkg/powerflow"
)

// Bins partitions per-unit values into half-open intervals. For edges
// b0 < b1 < ... < bn the labels are "<b0", ">=b0__<b1", ..., ">=bn".
type Bins struct {
	edges  []float64
	labels []string
}

// NewBins sorts and deduplicates edges. At least two unique edges are
// required.
func NewBins(edges []float64) (Bins, error) {
	uniq := slices.Clone(edges)
	slices.Sort(uniq)
	uniq = slices.Compact(uniq)
	if len(uniq) < 2 {
		return Bins{}, errors.New(errors.ErrCodeInvalidConfig, "loading.bins: %v should have at least two unique values", edges)
	}
	labels := make([]string, 0, len(uniq)+1)
	labels = append(labels, "<"+formatEdge(uniq[0]))
	for i := 1; i < len(uniq); i++ {
		labels = append(labels, ">="+formatEdge(uniq[i-1])+"__<"+formatEdge(uniq[i]))
	}
	labels = append(labels, ">="+formatEdge(uniq[len(uniq)-1]))
	return Bins{edges: uniq, labels: labels}, nil
}

func formatEdge(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

// Labels returns the bin labels in ascending order.
func (b Bins) Labels() []string { return slices.Clone(b.labels) }

// Label returns the bin that holds v.
func (b Bins) Label(v float64) string {
	i, found := slices.BinarySearch(b.edges, v)
	if found {
		i++
	}
	return b.labels[i]
}

// valueFunc extracts the per-asset values a distribution observer tracks.
type valueFunc func(*powerflow.Snapshot) []float64

func lineLoadings(s *powerflow.Snapshot) []float64 {
	out := make([]float64, len(s.Lines))
	for i, l := range s.Lines {
		out[i] = l.Loading()
	}
	return out
}

func busVoltages(s *powerflow.Snapshot) []float64 {
	out := make([]float64, len(s.Buses))
	for i, b := range s.Buses {
		out[i] = b.Mean()
	}
	return out
}

// BinsObserver accumulates asset-hours per bin: every asset in a bin at a
// step adds one step length.
type BinsObserver struct {
	base
	env    *Env
	bins   Bins
	values valueFunc
	hours  map[string]float64

	result Metric[map[string]float64]
}

// NewLineLoadingBins tracks line loadings.
func NewLineLoadingBins(env *Env, edges []float64) (*BinsObserver, error) {
	return newBinsObserver(env, "line loading bins", edges, lineLoadings)
}

// NewVoltageBins tracks mean bus voltages.
func NewVoltageBins(env *Env, edges []float64) (*BinsObserver, error) {
	return newBinsObserver(env, "voltage bins", edges, busVoltages)
}

func newBinsObserver(env *Env, name string, edges []float64, fn valueFunc) (*BinsObserver, error) {
	bins, err := NewBins(edges)
	if err != nil {
		return nil, err
	}
	hours := make(map[string]float64, len(bins.labels))
	for _, l := range bins.labels {
		hours[l] = 0
	}
	return &BinsObserver{
		base:   newBase(name),
		env:    env,
		bins:   bins,
		values: fn,
		hours:  hours,
		result: Metric[map[string]float64]{name: name},
	}, nil
}

// Observe implements [Observer].
func (o *BinsObserver) Observe(ctx context.Context, s *Step) error {
	if err := o.accumulating(); err != nil {
		return err
	}
	h := o.env.StepMinutes / 60
	for _, v := range o.values(s.Snapshot) {
		o.hours[o.bins.Label(v)] += h
	}
	return nil
}

// Finalize implements [Observer].
func (o *BinsObserver) Finalize() error {
	o.finalized = true
	o.result.set(maps.Clone(o.hours))
	return nil
}

// Labels returns the bin labels in ascending order.
func (o *BinsObserver) Labels() []string { return o.bins.Labels() }

// Hours returns asset-hours per bin label.
func (o *BinsObserver) Hours() (map[string]float64, error) { return o.result.Get() }

// Statistic names in report order.
var StatNames = []string{
	"min", "max", "median", "mean",
	"quantile_0.1", "quantile_0.25", "quantile_0.75", "quantile_0.9",
}

var statQuantiles = map[string]float64{
	"median":        0.5,
	"quantile_0.1":  0.1,
	"quantile_0.25": 0.25,
	"quantile_0.75": 0.75,
	"quantile_0.9":  0.9,
}

// Describe computes the named statistics over values. Quantiles use the
// empirical distribution. An empty input gives zeros.
func Describe(values []float64) map[string]float64 {
	out := make(map[string]float64, len(StatNames))
	if len(values) == 0 {
		for _, n := range StatNames {
			out[n] = 0
		}
		return out
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	out["min"] = floats.Min(sorted)
	out["max"] = floats.Max(sorted)
	out["mean"] = stat.Mean(sorted, nil)
	for name, p := range statQuantiles {
		out[name] = stat.Quantile(p, stat.Empirical, sorted, nil)
	}
	return out
}

// StatsObserver records distribution statistics of asset values at every
// step.
type StatsObserver struct {
	base
	values valueFunc
	rec    *recorder

	result Metric[Series]
}

// NewLineLoadingStats tracks the line loading distribution.
func NewLineLoadingStats() *StatsObserver {
	return newStatsObserver("line loading stats", lineLoadings)
}

// NewVoltageStats tracks the mean bus voltage distribution.
func NewVoltageStats() *StatsObserver {
	return newStatsObserver("voltage stats", busVoltages)
}

func newStatsObserver(name string, fn valueFunc) *StatsObserver {
	return &StatsObserver{
		base:   newBase(name),
		values: fn,
		rec:    newRecorder(),
		result: Metric[Series]{name: name},
	}
}

// Observe implements [Observer].
func (o *StatsObserver) Observe(ctx context.Context, s *Step) error {
	if err := o.accumulating(); err != nil {
		return err
	}
	o.rec.row(s.Time, Describe(o.values(s.Snapshot)))
	return nil
}

// Finalize implements [Observer].
func (o *StatsObserver) Finalize() error {
	o.finalized = true
	o.result.set(o.rec.result())
	return nil
}

// Stats returns one row of statistics per step keyed by [StatNames].
func (o *StatsObserver) Stats() (Series, error) { return o.result.Get() }

// Overload summarizes an asset that exceeded the thermal limit.
type Overload struct {
	Kind    string    `json:"kind" bson:"kind"`
	Name    string    `json:"name" bson:"name"`
	Peak    float64   `json:"peak" bson:"peak"`
	PeakAt  time.Time `json:"peak_at" bson:"peak_at"`
	Hours   float64   `json:"hours" bson:"hours"`
	Samples int       `json:"samples" bson:"samples"`
}

// Asset kinds reported by [OverloadObserver].
const (
	KindLine        = "line"
	KindTransformer = "transformer"
)

// OverloadObserver tracks the peak loading and time over the limit of every
// line and transformer that was ever overloaded.
type OverloadObserver struct {
	base
	env   *Env
	peaks map[string]*Overload

	result Metric[[]Overload]
}

// NewOverloadObserver creates an overload observer.
func NewOverloadObserver(env *Env) *OverloadObserver {
	return &OverloadObserver{
		base:   newBase("overloads"),
		env:    env,
		peaks:  make(map[string]*Overload),
		result: Metric[[]Overload]{name: "overloaded assets"},
	}
}

// Observe implements [Observer].
func (o *OverloadObserver) Observe(ctx context.Context, s *Step) error {
	if err := o.accumulating(); err != nil {
		return err
	}
	for _, l := range s.Snapshot.Lines {
		o.track(KindLine, l, s.Time)
	}
	for _, tr := range s.Snapshot.Transformers {
		o.track(KindTransformer, tr, s.Time)
	}
	return nil
}

func (o *OverloadObserver) track(kind string, b powerflow.Branch, t time.Time) {
	loading := b.Loading()
	if loading <= o.env.Thresholds.ThermalLimit {
		return
	}
	key := kind + "/" + b.Name
	ov := o.peaks[key]
	if ov == nil {
		ov = &Overload{Kind: kind, Name: b.Name}
		o.peaks[key] = ov
	}
	if loading > ov.Peak {
		ov.Peak, ov.PeakAt = loading, t
	}
	ov.Samples++
	ov.Hours += o.env.StepMinutes / 60
}

// Finalize implements [Observer].
func (o *OverloadObserver) Finalize() error {
	o.finalized = true
	out := make([]Overload, 0, len(o.peaks))
	for _, key := range slices.Sorted(maps.Keys(o.peaks)) {
		out = append(out, *o.peaks[key])
	}
	slices.SortStableFunc(out, func(a, b Overload) int {
		switch {
		case a.Peak > b.Peak:
			return -1
		case a.Peak < b.Peak:
			return 1
		}
		return 0
	})
	o.result.set(out)
	return nil
}

// Overloads returns overloaded assets, highest peak first.
func (o *OverloadObserver) Overloads() ([]Overload, error) { return o.result.Get() }
