package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/matzehuels/gridrisk/pkg/config"
	"github.com/matzehuels/gridrisk/pkg/errors"
	"github.com/matzehuels/gridrisk/pkg/impact"
	"github.com/matzehuels/gridrisk/pkg/metrics"
	"github.com/matzehuels/gridrisk/pkg/powerflow"
	"github.com/matzehuels/gridrisk/pkg/report"
	"github.com/matzehuels/gridrisk/pkg/simulation"
	"github.com/matzehuels/gridrisk/pkg/store"
)

// runFlags holds the flags shared by analyze and batch.
type runFlags struct {
	config      string
	out         string
	noCache     bool
	noStore     bool
	metricsAddr string
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.config, "config", "c", "", "analysis configuration (TOML)")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "report directory (default: export.dir or ./reports)")
	cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "disable the index cache")
	cmd.Flags().BoolVar(&f.noStore, "no-store", false, "skip the MongoDB and InfluxDB sinks")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
}

// analyzeCommand creates the analyze command.
func (c *CLI) analyzeCommand() *cobra.Command {
	var (
		flags     runFlags
		assets    string
		snapshots string
		indexDir  string
		name      string
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Compute risk indices for one scenario",
		Long: `Run one scenario: build the feeder graph and impact index, replay the
recorded power-flow snapshots over the simulation window, and write the
resulting indices as CSV reports.

With --index a saved impact index is used and --assets may be omitted.
Reports are also published to MongoDB and InfluxDB when [store] is
configured.`,
		Example: `  gridrisk analyze --assets assets.json --snapshots run.jsonl -c analysis.toml
  gridrisk analyze --index index/ --snapshots run.jsonl --out reports/ --metrics-addr :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)

			cfg, err := c.loadConfig(flags.config)
			if err != nil {
				return err
			}
			sc := simulation.Scenario{Name: name, Config: cfg}
			if indexDir != "" {
				if sc.Index, err = impact.Load(indexDir); err != nil {
					return err
				}
			} else if sc.Assets, err = loadAssets(assets); err != nil {
				return err
			}
			if sc.Solver, err = openSnapshots(snapshots); err != nil {
				return err
			}

			stop, err := serveMetrics(flags.metricsAddr, logger)
			if err != nil {
				return err
			}
			defer stop()

			runner, closeRunner, err := c.newRunner(ctx, cfg, flags.noCache)
			if err != nil {
				return err
			}
			defer closeRunner()

			prog := newProgress(logger, "analyze")
			res, err := runner.Execute(ctx, sc)
			if err != nil {
				return err
			}
			prog.done("scenario", res.Scenario, "steps", res.Steps)

			dir := outDir(flags.out, cfg)
			written, err := report.WriteAll(dir, res, logger)
			if err != nil {
				return err
			}
			if !flags.noStore {
				if err := c.publish(cmd, cfg, res); err != nil {
					return err
				}
			}

			printSummary(res)
			printSuccess("Wrote %d reports", len(written))
			printFile(dir)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&assets, "assets", "", "normalized asset file (assets.json)")
	cmd.Flags().StringVar(&snapshots, "snapshots", "", "recorded power-flow snapshots (JSON lines)")
	cmd.Flags().StringVar(&indexDir, "index", "", "use a saved impact index instead of building one")
	cmd.Flags().StringVar(&name, "name", defaultScenario, "scenario name used in logs and stored reports")
	return cmd
}

func openSnapshots(path string) (*powerflow.ReplaySolver, error) {
	if path == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "--snapshots is required")
	}
	if err := errors.ValidatePath(path); err != nil {
		return nil, err
	}
	return powerflow.OpenReplay(path)
}

// publish writes res to the configured sinks. Transient sink failures are
// logged, not returned.
func (c *CLI) publish(cmd *cobra.Command, cfg *config.Config, res *simulation.Result) error {
	ctx := cmd.Context()
	sinks, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return err
	}
	if len(sinks) == 0 {
		return nil
	}
	defer func() { _ = store.CloseAll(sinks) }()
	if err := store.Publish(ctx, sinks, res); err != nil {
		if errors.IsFatal(err) {
			return err
		}
		c.Logger.Warn("report not stored", "run", res.RunID, "err", err)
		return nil
	}
	for _, s := range sinks {
		printInfo("Published to %s", s.Name())
	}
	return nil
}

// printSummary prints the headline system indices of a run.
func printSummary(res *simulation.Result) {
	sys := res.Metrics.System
	printSuccess("Scenario %s", StyleHighlight.Render(res.Scenario))
	printGraphSummary(res.Stats.Nodes, res.Stats.Edges, res.CacheInfo.IndexHit)
	printKeyValue("Run", res.RunID.String())
	printKeyValue("Window", fmt.Sprintf("%s .. %s (%d steps)",
		res.Start.Format("2006-01-02 15:04"), res.End.Format("2006-01-02 15:04"), res.Steps))
	printKeyValue("Converged", fmt.Sprintf("%.1f%%", 100*res.Convergence.Rate()))
	printKeyValue("SARDI", formatRisk(sys[metrics.SARDIAggregated]))
	printKeyValue("SE", formatPercent(sys[metrics.SE]))
	printKeyValue("Energy", fmt.Sprintf("%.1f kWh in, %.1f kWh out, %.1f kWh lost",
		sys[metrics.EnergyImportKWh], sys[metrics.EnergyExportKWh], sys[metrics.LossEnergyKWh]))
	printKeyValue("SATLOL", strconv.FormatFloat(sys[metrics.SATLOL], 'f', 4, 64))
	if n := len(res.Metrics.Overloads); n > 0 {
		printWarning("%d assets exceeded the thermal limit", n)
	}
	if failed := res.Convergence.Failed(); len(failed) > 0 {
		printWarning("%d steps did not converge, see %s", len(failed), report.ConvergenceFile)
	}
}
