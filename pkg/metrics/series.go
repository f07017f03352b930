package metrics

import (
	"maps"
	"slices"
	"time"
)

// Series is a table of values per asset sampled at recording steps. Every
// value slice has one entry per time.
type Series struct {
	Times  []time.Time          `json:"times"`
	Values map[string][]float64 `json:"values"`
}

// Keys returns the asset names in sorted order.
func (s Series) Keys() []string {
	return slices.Sorted(maps.Keys(s.Values))
}

// Last returns the latest value for key, or 0.
func (s Series) Last(key string) float64 {
	v := s.Values[key]
	if len(v) == 0 {
		return 0
	}
	return v[len(v)-1]
}

// recorder builds a Series. Keys that first appear late are back-filled with
// zeros; keys missing from a row get a zero.
type recorder struct {
	series Series
	last   map[string]float64
}

func newRecorder() *recorder {
	return &recorder{
		series: Series{Values: make(map[string][]float64)},
		last:   make(map[string]float64),
	}
}

// row appends raw values at t.
func (r *recorder) row(t time.Time, values map[string]float64) {
	n := len(r.series.Times)
	for k, v := range values {
		col, ok := r.series.Values[k]
		if !ok {
			col = make([]float64, n, n+1)
		}
		r.series.Values[k] = append(col, v)
	}
	for k, col := range r.series.Values {
		if len(col) == n {
			r.series.Values[k] = append(col, 0)
		}
	}
	r.series.Times = append(r.series.Times, t)
}

// delta appends the growth of each running total since the previous call.
func (r *recorder) delta(t time.Time, totals map[string]float64) {
	inc := make(map[string]float64, len(totals))
	for k, v := range totals {
		inc[k] = v - r.last[k]
		r.last[k] = v
	}
	r.row(t, inc)
}

// result returns a copy of the series.
func (r *recorder) result() Series {
	out := Series{Times: slices.Clone(r.series.Times), Values: make(map[string][]float64, len(r.series.Values))}
	for k, v := range r.series.Values {
		out.Values[k] = slices.Clone(v)
	}
	return out
}
