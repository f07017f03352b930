// Package powerflow defines the electrical state a power-flow solver reports
// for each timestep and the interface the analysis drives it through.
//
// The analysis never solves power flow itself. A [Solver] is an oracle: it is
// asked to solve one timestep and then exposes a [Snapshot] of bus voltages,
// branch currents and powers, and circuit totals. [ReplaySolver] replays
// snapshots an external solver recorded as JSON lines.
package powerflow

import (
	"context"
	"math"
	"slices"
	"time"

	"github.com/matzehuels/gridrisk/pkg/errors"
)

// Solver is the power-flow oracle.
type Solver interface {
	// Solve solves the circuit at t and reports convergence. An error means
	// the solver could not be asked at all and stops the run.
	Solve(ctx context.Context, t time.Time) (bool, error)

	// Snapshot returns the state of the last Solve call.
	Snapshot() *Snapshot

	// Inventory lists the circuit's element names.
	Inventory() Inventory
}

// Bus holds per-phase voltage magnitudes in per-unit.
type Bus struct {
	Name string    `json:"name"`
	PU   []float64 `json:"pu"`
}

// Max returns the highest phase magnitude, or 0 for a bus with no phases.
// [Snapshot.Validate] rejects such buses before metrics read them.
func (b Bus) Max() float64 {
	if len(b.PU) == 0 {
		return 0
	}
	return slices.Max(b.PU)
}

// Min returns the lowest phase magnitude, or 0 for a bus with no phases.
func (b Bus) Min() float64 {
	if len(b.PU) == 0 {
		return 0
	}
	return slices.Min(b.PU)
}

// Mean returns the average phase magnitude.
func (b Bus) Mean() float64 {
	if len(b.PU) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range b.PU {
		sum += v
	}
	return sum / float64(len(b.PU))
}

// Branch is a line, cable, service drop, or transformer. Currents are the
// per-phase magnitudes at the sending terminal. Powers are the active and
// reactive power entering each terminal, in kW and kvar. Losses are in W.
type Branch struct {
	Name      string    `json:"name"`
	Currents  []float64 `json:"currents"`
	RatedAmps float64   `json:"rated_amps"`
	PFrom     float64   `json:"p_from"`
	QFrom     float64   `json:"q_from,omitempty"`
	PTo       float64   `json:"p_to"`
	QTo       float64   `json:"q_to,omitempty"`
	LossW     float64   `json:"loss_w"`
}

// Loading returns the per-unit loading: highest phase current over rated
// current. A branch without a rating reports 0; [Snapshot.Validate] rejects
// those.
func (b Branch) Loading() float64 {
	if b.RatedAmps <= 0 || len(b.Currents) == 0 {
		return 0
	}
	return slices.Max(b.Currents) / b.RatedAmps
}

// Throughput returns the larger absolute terminal active power.
func (b Branch) Throughput() float64 {
	return max(math.Abs(b.PFrom), math.Abs(b.PTo))
}

// Circuit holds substation totals. PowerKW follows the solver's sign
// convention: negative while the substation feeds the circuit, positive when
// power flows back upstream. Losses are in W and var.
type Circuit struct {
	PowerKW   float64 `json:"power_kw"`
	PowerKVAR float64 `json:"power_kvar,omitempty"`
	LossW     float64 `json:"loss_w"`
	LossVAR   float64 `json:"loss_var,omitempty"`
}

// Snapshot is the solved state at one timestep.
type Snapshot struct {
	Time         time.Time `json:"time"`
	Converged    bool      `json:"converged"`
	Buses        []Bus     `json:"buses"`
	Lines        []Branch  `json:"lines"`
	Transformers []Branch  `json:"transformers"`
	Circuit      Circuit   `json:"circuit"`
	Loads        []string  `json:"loads,omitempty"`
}

// Validate rejects a snapshot whose buses carry no phase magnitudes or whose
// branches lack a current or a rating. Such values would read as 0 pu or 0%
// loading. The offending element is named.
func (s *Snapshot) Validate() error {
	for _, b := range s.Buses {
		if len(b.PU) == 0 {
			return errors.New(errors.ErrCodeInvalidInput, "bus %s has no phase voltages", b.Name)
		}
	}
	branches := []struct {
		kind string
		list []Branch
	}{
		{"line", s.Lines},
		{"transformer", s.Transformers},
	}
	for _, k := range branches {
		for _, b := range k.list {
			switch {
			case b.RatedAmps <= 0:
				return errors.New(errors.ErrCodeInvalidInput, "%s %s has no rated current", k.kind, b.Name)
			case len(b.Currents) == 0:
				return errors.New(errors.ErrCodeInvalidInput, "%s %s has no phase currents", k.kind, b.Name)
			}
		}
	}
	return nil
}

// Inventory lists the element names of a circuit.
type Inventory struct {
	Buses        []string
	Lines        []string
	Transformers []string
	Loads        []string
}

// InventoryOf lists the elements present in s.
func InventoryOf(s *Snapshot) Inventory {
	inv := Inventory{Loads: slices.Clone(s.Loads)}
	for _, b := range s.Buses {
		inv.Buses = append(inv.Buses, b.Name)
	}
	for _, l := range s.Lines {
		inv.Lines = append(inv.Lines, l.Name)
	}
	for _, tr := range s.Transformers {
		inv.Transformers = append(inv.Transformers, tr.Name)
	}
	return inv
}
