package simulation

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/gridrisk/pkg/cache"
	"github.com/matzehuels/gridrisk/pkg/config"
	"github.com/matzehuels/gridrisk/pkg/errors"
	"github.com/matzehuels/gridrisk/pkg/impact"
	"github.com/matzehuels/gridrisk/pkg/metrics"
	"github.com/matzehuels/gridrisk/pkg/observability"
	"github.com/matzehuels/gridrisk/pkg/powerflow"
	"github.com/matzehuels/gridrisk/pkg/thermal"
	"github.com/matzehuels/gridrisk/pkg/topology"
)

// Runner executes scenarios with index caching. It holds no run state, so
// one Runner may serve concurrent scenarios.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger

	// TTL is the lifetime of cached indices. Zero means cache.TTLIndex.
	TTL time.Duration
}

// NewRunner creates a runner. A nil cache disables caching; a nil keyer
// means cache.DefaultKeyer.
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if c == nil {
		c = cache.NewNullCache()
	}
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{Cache: c, Keyer: keyer, Logger: logger, TTL: cache.TTLIndex}
}

// timeSource is implemented by solvers that know which timesteps they can
// answer.
type timeSource interface {
	Times() []time.Time
}

// Timeline returns start, start+step, ... up to and including end.
func Timeline(start, end time.Time, step time.Duration) ([]time.Time, error) {
	if step <= 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "simulation.step_minutes must be positive")
	}
	if end.Before(start) {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "simulation ends (%s) before it starts (%s)",
			end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	var out []time.Time
	for t := start; !t.After(end); t = t.Add(step) {
		out = append(out, t)
	}
	return out, nil
}

// window resolves the simulation span, falling back to the solver's own
// timesteps for unset bounds.
func window(cfg *config.Config, solver powerflow.Solver) (time.Time, time.Time, error) {
	start, end := cfg.Simulation.Start, cfg.Simulation.End
	if start.IsZero() || end.IsZero() {
		ts, ok := solver.(timeSource)
		if !ok || len(ts.Times()) == 0 {
			return start, end, errors.New(errors.ErrCodeInvalidConfig, "simulation.start and simulation.end are required for this solver")
		}
		times := ts.Times()
		if start.IsZero() {
			start = times[0]
		}
		if end.IsZero() {
			end = times[len(times)-1]
		}
	}
	return start, end, nil
}

// Execute runs a scenario.
func (r *Runner) Execute(ctx context.Context, sc Scenario) (*Result, error) {
	runStart := time.Now()
	res, err := r.execute(ctx, sc)
	steps, failed := 0, 0
	if res != nil && res.Convergence != nil {
		steps, failed = len(res.Convergence.Entries), len(res.Convergence.Failed())
	}
	observability.Simulation().OnRunComplete(ctx, sc.Name, steps, failed, time.Since(runStart), err)
	return res, err
}

func (r *Runner) execute(ctx context.Context, sc Scenario) (*Result, error) {
	if sc.Solver == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "scenario %s has no solver", sc.Name)
	}
	cfg := sc.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	logger := r.Logger.With("scenario", sc.Name)

	result := &Result{RunID: uuid.New(), Scenario: sc.Name}

	// Stage 1: topology and index
	idx := sc.Index
	if idx == nil {
		topoStart := time.Now()
		g, stats, err := topology.Build(ctx, sc.Assets, r.topologyOptions(cfg, logger))
		result.Stats.TopologyTime = time.Since(topoStart)
		nodes, edges := 0, 0
		if g != nil {
			nodes, edges = g.NodeCount(), g.EdgeCount()
		}
		observability.Simulation().OnTopologyBuilt(ctx, sc.Name, nodes, edges, result.Stats.TopologyTime, err)
		if err != nil {
			return nil, fmt.Errorf("topology: %w", err)
		}
		result.Graph = g
		result.TopologyHash = g.Hash()
		result.Stats.Nodes, result.Stats.Edges = nodes, edges
		result.Stats.IslandsRepaired = stats.IslandsRepaired()

		indexStart := time.Now()
		idx, result.CacheInfo.IndexHit, err = r.indexWithCacheInfo(ctx, g, sc.Refresh, logger)
		result.Stats.IndexTime = time.Since(indexStart)
		customers := 0
		if idx != nil {
			customers = idx.TotalCustomers()
		}
		observability.Simulation().OnIndexBuilt(ctx, sc.Name, customers, result.CacheInfo.IndexHit, result.Stats.IndexTime, err)
		if err != nil {
			return nil, fmt.Errorf("impact index: %w", err)
		}
	}
	result.Index = idx
	result.Stats.Customers = idx.TotalCustomers()

	inv := sc.Solver.Inventory()
	if err := idx.CheckCircuit(impact.Circuit{Lines: inv.Lines, Transformers: inv.Transformers, Buses: inv.Buses}); err != nil {
		return nil, err
	}

	// Stage 2: step the oracle
	start, end, err := window(cfg, sc.Solver)
	if err != nil {
		return nil, err
	}
	times, err := Timeline(start, end, cfg.Simulation.Step())
	if err != nil {
		return nil, err
	}
	result.Start, result.End, result.Steps = start, end, len(times)

	env := &metrics.Env{
		Index:       idx,
		Thresholds:  cfg.MetricThresholds(),
		StepMinutes: cfg.Simulation.StepMinutes,
		TotalSteps:  len(times),
		Logger:      logger,
	}
	opts, err := r.suiteOptions(sc, cfg, start, len(times), logger)
	if err != nil {
		return nil, err
	}
	suite, err := metrics.NewSuite(env, opts)
	if err != nil {
		return nil, err
	}
	sub := metrics.NewSubject(logger)
	suite.Attach(sub)

	stepStart := time.Now()
	conv, err := r.step(ctx, sc, cfg, times, sub, logger)
	result.Convergence = conv
	result.Stats.StepTime = time.Since(stepStart)
	if err != nil {
		return result, err
	}

	// Stage 3: finalize
	if err := sub.Finalize(); err != nil {
		return result, fmt.Errorf("finalize metrics: %w", err)
	}
	if result.Metrics, err = suite.Results(); err != nil {
		return result, err
	}

	logger.Info("completed run",
		"steps", len(times),
		"failed", len(conv.Failed()),
		"duration", result.Stats.StepTime)
	return result, nil
}

func (r *Runner) step(ctx context.Context, sc Scenario, cfg *config.Config, times []time.Time, sub *metrics.Subject, logger *log.Logger) (*powerflow.ConvergenceReport, error) {
	conv := &powerflow.ConvergenceReport{}
	every := cfg.Simulation.RecordEvery
	for i, t := range times {
		if err := ctx.Err(); err != nil {
			return conv, err
		}
		began := time.Now()
		converged, err := sc.Solver.Solve(ctx, t)
		if err != nil {
			return conv, fmt.Errorf("solve %s: %w", t.Format(time.RFC3339), err)
		}
		conv.Record(t, converged)
		if !converged {
			logger.Warn("power flow did not converge", "time", t)
		}

		record := (i+1)%every == 0
		if record {
			logger.Info("power flow completed", "time", t, "step", i+1, "of", len(times))
		}
		step := metrics.NewStep(t, i, record, converged, sc.Solver.Snapshot())
		if err := sub.Notify(ctx, step); err != nil {
			return conv, err
		}
		observability.Simulation().OnStep(ctx, sc.Name, t, converged, time.Since(began))
	}
	return conv, nil
}

func (r *Runner) topologyOptions(cfg *config.Config, logger *log.Logger) topology.Options {
	opts := cfg.TopologyOptions()
	opts.Logger = logger
	return opts
}

func (r *Runner) suiteOptions(sc Scenario, cfg *config.Config, start time.Time, steps int, logger *log.Logger) (metrics.SuiteOptions, error) {
	opts := metrics.SuiteOptions{
		Temperatures: sc.Temperatures,
		LoadingBins:  cfg.Loading.Bins,
		VoltageBins:  cfg.Loading.VoltageBins,
		Export:       cfg.ExportOptions(),
	}
	if opts.Temperatures == nil {
		temps, err := thermal.LoadTemperatureCSV(cfg.Thermal.TemperatureCSV, start, cfg.Simulation.Step(),
			steps, cfg.Thermal.DefaultTemperature, logger)
		if err != nil {
			return opts, err
		}
		opts.Temperatures = temps
	}
	if sc.Life != nil {
		opts.Life = *sc.Life
		return opts, nil
	}
	life, err := thermal.LoadLifeParametersCSV(cfg.Thermal.LifeParametersCSV, logger)
	if err != nil {
		return opts, err
	}
	if len(cfg.Thermal.Life) > 0 {
		if life, err = life.Merge(cfg.Thermal.Life); err != nil {
			return opts, errors.Wrap(errors.ErrCodeInvalidConfig, err, "thermal.life")
		}
	}
	opts.Life = life
	return opts, nil
}

// indexWithCacheInfo builds the impact index of g, reusing a cached copy
// keyed by the topology hash.
func (r *Runner) indexWithCacheInfo(ctx context.Context, g *topology.Graph, refresh bool, logger *log.Logger) (*impact.Index, bool, error) {
	key := r.Keyer.IndexKey(g.Hash())

	if !refresh {
		if data, hit, err := r.Cache.Get(ctx, key); err == nil && hit {
			if idx, err := impact.Unmarshal(data); err == nil {
				observability.Cache().OnCacheHit(ctx, "index")
				logger.Info("loaded impact index from cache", "customers", idx.TotalCustomers())
				return idx, true, nil
			}
		} else if err != nil {
			logger.Warn("cache lookup failed", "err", err)
		}
		observability.Cache().OnCacheMiss(ctx, "index")
	}

	idx, err := impact.Build(g)
	if err != nil {
		return nil, false, err
	}
	if data, err := idx.Marshal(); err == nil {
		if err := r.Cache.Set(ctx, key, data, r.TTL); err != nil {
			logger.Warn("cache write failed", "err", err)
		} else {
			observability.Cache().OnCacheSet(ctx, "index", len(data))
		}
	}
	logger.Info("built impact index",
		"customers", idx.TotalCustomers(),
		"lines", len(idx.Lines),
		"transformers", len(idx.Transformers))
	return idx, false, nil
}

// BuildIndex builds the topology and impact index of assets without
// stepping a solver. It serves the index and topology commands.
func (r *Runner) BuildIndex(ctx context.Context, assets topology.Assets, cfg *config.Config, refresh bool) (*topology.Graph, topology.Stats, *impact.Index, bool, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	g, stats, err := topology.Build(ctx, assets, r.topologyOptions(cfg, r.Logger))
	if err != nil {
		return nil, stats, nil, false, err
	}
	idx, hit, err := r.indexWithCacheInfo(ctx, g, refresh, r.Logger)
	return g, stats, idx, hit, err
}
