// Package thermal estimates transformer insulation loss of life from loading
// and ambient temperature.
//
// The model follows IEEE C57.91: top-oil rise lags the ultimate rise with a
// first-order response, the hot-spot gradient grows with loading, and aging
// is an Arrhenius function of hot-spot temperature. Each estimate only sees
// one interval, so the initial top-oil rise is refined by a fixed number of
// passes over the interval before the hot spot is read.
package thermal

import (
	"fmt"
	"math"
	"slices"
)

const (
	// MaxLoading is the per-unit loading at and above which the model is
	// out of range. Such intervals contribute no loss of life.
	MaxLoading = 1.5

	// DefaultTemperature is the ambient temperature in °C used when no
	// profile is available.
	DefaultTemperature = 25.0

	// lagInterval is the top-oil response interval in hours.
	lagInterval = 0.25
)

// LifeParameters holds the thermal constants of the aging model.
type LifeParameters struct {
	ThetaI     float64 // initial top-oil rise over ambient, °C
	ThetaFL    float64 // top-oil rise at rated load, °C
	ThetaGFL   float64 // hot-spot gradient at rated load, °C
	R          float64 // ratio of load loss to no-load loss
	N          float64 // oil exponent
	Tau        float64 // oil time constant, hours
	M          float64 // winding exponent
	A          float64 // aging constant
	B          float64 // aging constant
	Iterations int
}

// DefaultLifeParameters returns the parameters of a typical distribution
// transformer.
func DefaultLifeParameters() LifeParameters {
	return LifeParameters{
		ThetaI:     30,
		ThetaFL:    36,
		ThetaGFL:   28.6,
		R:          4.87,
		N:          1,
		Tau:        3.5,
		M:          1,
		A:          -13.391,
		B:          6972.15,
		Iterations: 4,
	}
}

// parameterKeys maps override names to fields.
var parameterKeys = map[string]func(*LifeParameters, float64){
	"theta_i":          func(p *LifeParameters, v float64) { p.ThetaI = v },
	"theta_fl":         func(p *LifeParameters, v float64) { p.ThetaFL = v },
	"theta_gfl":        func(p *LifeParameters, v float64) { p.ThetaGFL = v },
	"R":                func(p *LifeParameters, v float64) { p.R = v },
	"n":                func(p *LifeParameters, v float64) { p.N = v },
	"tau":              func(p *LifeParameters, v float64) { p.Tau = v },
	"m":                func(p *LifeParameters, v float64) { p.M = v },
	"A":                func(p *LifeParameters, v float64) { p.A = v },
	"B":                func(p *LifeParameters, v float64) { p.B = v },
	"num_of_iteration": func(p *LifeParameters, v float64) { p.Iterations = int(v) },
}

// ParameterNames returns the accepted override keys in sorted order.
func ParameterNames() []string {
	names := make([]string, 0, len(parameterKeys))
	for k := range parameterKeys {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

// Merge applies overrides and returns the result. Unknown keys are an error.
func (p LifeParameters) Merge(overrides map[string]float64) (LifeParameters, error) {
	for k, v := range overrides {
		set, ok := parameterKeys[k]
		if !ok {
			return p, fmt.Errorf("unknown life parameter %q", k)
		}
		set(&p, v)
	}
	return p, p.Validate()
}

// Validate rejects parameters the model cannot evaluate.
func (p LifeParameters) Validate() error {
	switch {
	case p.Tau <= 0:
		return fmt.Errorf("life parameter tau must be positive, got %v", p.Tau)
	case p.R <= -1:
		return fmt.Errorf("life parameter R must exceed -1, got %v", p.R)
	case p.Iterations < 1:
		return fmt.Errorf("life parameter num_of_iteration must be at least 1, got %d", p.Iterations)
	}
	return nil
}

// HotSpot returns the converged hot-spot temperature in °C for a constant
// per-unit loading over one interval.
func (p LifeParameters) HotSpot(loading, ambient float64) float64 {
	ultimate := p.ThetaFL * math.Pow((loading*loading*p.R+1)/(p.R+1), p.N)
	gradient := p.ThetaGFL * math.Pow(loading, 2*p.M)
	lag := 1 - math.Exp(-lagInterval/p.Tau)

	topOil := p.ThetaI
	first := 0.0
	for range p.Iterations {
		// Two samples per pass: previous and current interval.
		for k := range 2 {
			topOil += (ultimate - topOil) * lag
			if k == 0 {
				first = topOil + ambient + gradient
			}
		}
	}
	return first
}

// LossOfLife returns the percentage of insulation life consumed by one
// interval of stepMinutes at the given loading and ambient temperature.
// Loadings at or above [MaxLoading] return 0.
func LossOfLife(loading, ambient, stepMinutes float64, p LifeParameters) float64 {
	if loading >= MaxLoading || loading < 0 {
		return 0
	}
	hst := p.HotSpot(loading, ambient)
	return 100 * stepMinutes / (60 * math.Pow(10, p.A+p.B/(hst+273)))
}
