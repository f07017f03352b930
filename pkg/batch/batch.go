// Package batch runs independent feeder scenarios in parallel.
//
// Each scenario owns its graph, index, and observers, so workers share
// nothing but the runner's cache. A failing scenario does not stop the
// others; its error is kept with its outcome and joined into the error
// [Run] returns.
package batch

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/gridrisk/pkg/simulation"
)

// DefaultWorkers is the pool size when none is given.
const DefaultWorkers = 4

// Func runs one scenario.
type Func func(ctx context.Context, sc simulation.Scenario) (*simulation.Result, error)

// Outcome is the result of one scenario, in input order.
type Outcome struct {
	Scenario string
	Result   *simulation.Result
	Err      error
	Duration time.Duration
}

// Run executes fn for every scenario with at most workers in flight.
// Outcomes are returned in input order. The error joins every scenario
// failure, each prefixed with its scenario name.
func Run(ctx context.Context, scenarios []simulation.Scenario, workers int, fn Func) ([]Outcome, error) {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	out := make([]Outcome, len(scenarios))

	g := new(errgroup.Group)
	g.SetLimit(workers)
	for i, sc := range scenarios {
		out[i].Scenario = sc.Name
		if err := ctx.Err(); err != nil {
			out[i].Err = err
			continue
		}
		g.Go(func() error {
			start := time.Now()
			res, err := fn(ctx, sc)
			out[i] = Outcome{Scenario: sc.Name, Result: res, Err: err, Duration: time.Since(start)}
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, o := range out {
		if o.Err != nil {
			errs = append(errs, fmt.Errorf("scenario %s: %w", o.Scenario, o.Err))
		}
	}
	return out, stderrors.Join(errs...)
}

// Succeeded returns the outcomes without an error.
func Succeeded(outcomes []Outcome) []Outcome {
	var ok []Outcome
	for _, o := range outcomes {
		if o.Err == nil {
			ok = append(ok, o)
		}
	}
	return ok
}
