// Package simulation runs one feeder scenario end to end: build the
// topology, build or load the impact index, step the power-flow oracle
// through the simulation window, and finalize the risk metrics.
//
// # Usage
//
//	runner := simulation.NewRunner(cache, nil, logger)
//	result, err := runner.Execute(ctx, simulation.Scenario{
//	    Name:   "base",
//	    Assets: assets,
//	    Solver: replay,
//	    Config: cfg,
//	})
//
// A run is strictly sequential. The index must exist before the first step
// and observers are notified in registration order. Non-converged steps are
// recorded in the convergence report and the run continues.
package simulation

import (
	"time"

	"github.com/google/uuid"

	"github.com/matzehuels/gridrisk/pkg/config"
	"github.com/matzehuels/gridrisk/pkg/impact"
	"github.com/matzehuels/gridrisk/pkg/metrics"
	"github.com/matzehuels/gridrisk/pkg/powerflow"
	"github.com/matzehuels/gridrisk/pkg/thermal"
	"github.com/matzehuels/gridrisk/pkg/topology"
)

// Scenario is one run's inputs.
type Scenario struct {
	Name   string
	Assets topology.Assets
	Solver powerflow.Solver

	// Config defaults to config.Default().
	Config *config.Config

	// Index skips the topology and index stages when set.
	Index *impact.Index

	// Temperatures and Life override the thermal files named in Config.
	Temperatures *thermal.TemperatureProfile
	Life         *thermal.LifeParameters

	// Refresh rebuilds the index even when it is cached.
	Refresh bool
}

// Result is the outcome of a run.
type Result struct {
	RunID    uuid.UUID
	Scenario string
	Start    time.Time
	End      time.Time
	Steps    int

	// Graph is nil when the scenario supplied its own index.
	Graph        *topology.Graph
	TopologyHash string
	Index        *impact.Index
	Metrics      *metrics.Results
	Convergence  *powerflow.ConvergenceReport

	Stats     Stats
	CacheInfo CacheInfo
}

// Stats holds timings and sizes of a run.
type Stats struct {
	Nodes           int
	Edges           int
	Customers       int
	IslandsRepaired int
	TopologyTime    time.Duration
	IndexTime       time.Duration
	StepTime        time.Duration
}

// CacheInfo records which stages came from the cache.
type CacheInfo struct {
	IndexHit bool
}
