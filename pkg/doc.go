// Package pkg provides the core libraries for gridrisk feeder risk analysis.
//
// # Overview
//
// gridrisk replays a time series of solved power-flow snapshots over a
// radial distribution feeder and scores how badly, how long, and for how
// many customers each asset violates its limits. The pkg directory is
// organized into three areas:
//
//  1. Domain logic: [topology], [impact], [powerflow], [thermal], [metrics]
//  2. Orchestration: [simulation], [batch]
//  3. Infrastructure: [config], [cache], [store], [report], [io],
//     [observability], [errors]
//
// # Architecture
//
// The typical data flow through gridrisk:
//
//	Asset inventory (JSON)
//	         ↓
//	    [topology] package (radial graph rooted at the substation)
//	         ↓
//	    [impact] package (downstream customers per asset, cached)
//	         ↓
//	    [simulation] package (replay snapshots through [metrics] observers)
//	         ↓
//	    CSV reports, MongoDB documents, InfluxDB points
//
// # Quick Start
//
//	assets, _ := io.ImportAssets("feeder/assets.json")
//	solver, _ := powerflow.OpenReplay("feeder/snapshots.jsonl")
//
//	runner := simulation.NewRunner(nil, nil, logger)
//	res, _ := runner.Execute(ctx, simulation.Scenario{
//	    Name:   "base",
//	    Assets: assets,
//	    Solver: solver,
//	    Config: config.Default(),
//	})
//	files, _ := report.WriteAll("reports/base", res, logger)
//
// # Errors
//
// Every package returns [errors.Error] values carrying a stable code, so
// callers branch on [errors.GetCode] rather than on message text.
//
// [topology]: https://pkg.go.dev/github.com/matzehuels/gridrisk/pkg/topology
// [impact]: https://pkg.go.dev/github.com/matzehuels/gridrisk/pkg/impact
// [powerflow]: https://pkg.go.dev/github.com/matzehuels/gridrisk/pkg/powerflow
// [thermal]: https://pkg.go.dev/github.com/matzehuels/gridrisk/pkg/thermal
// [metrics]: https://pkg.go.dev/github.com/matzehuels/gridrisk/pkg/metrics
// [simulation]: https://pkg.go.dev/github.com/matzehuels/gridrisk/pkg/simulation
// [batch]: https://pkg.go.dev/github.com/matzehuels/gridrisk/pkg/batch
// [config]: https://pkg.go.dev/github.com/matzehuels/gridrisk/pkg/config
// [cache]: https://pkg.go.dev/github.com/matzehuels/gridrisk/pkg/cache
// [store]: https://pkg.go.dev/github.com/matzehuels/gridrisk/pkg/store
// [report]: https://pkg.go.dev/github.com/matzehuels/gridrisk/pkg/report
// [io]: https://pkg.go.dev/github.com/matzehuels/gridrisk/pkg/io
// [observability]: https://pkg.go.dev/github.com/matzehuels/gridrisk/pkg/observability
// [errors]: https://pkg.go.dev/github.com/matzehuels/gridrisk/pkg/errors
// [errors.Error]: https://pkg.go.dev/github.com/matzehuels/gridrisk/pkg/errors#Error
// [errors.GetCode]: https://pkg.go.dev/github.com/matzehuels/gridrisk/pkg/errors#GetCode
package pkg
