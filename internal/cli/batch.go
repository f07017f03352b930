package cli

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/gridrisk/pkg/batch"
	"github.com/matzehuels/gridrisk/pkg/config"
	"github.com/matzehuels/gridrisk/pkg/errors"
	"github.com/matzehuels/gridrisk/pkg/report"
	"github.com/matzehuels/gridrisk/pkg/simulation"
	"github.com/matzehuels/gridrisk/pkg/store"
)

// Scenario directory layout.
const (
	assetsFile    = "assets.json"
	snapshotsFile = "snapshots.jsonl"
)

// scenarioDir is one scenario found under the batch root.
type scenarioDir struct {
	name      string
	assets    string
	snapshots string
}

// discoverScenarios lists the subdirectories of root that hold both an
// asset file and a snapshot file, sorted by name. Other entries are
// skipped.
func discoverScenarios(root string) ([]scenarioDir, error) {
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, errors.New(errors.ErrCodeFileNotFound, "scenario directory %s not found", root)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "read %s", root)
	}
	var out []scenarioDir
	for _, e := range entries {
		if !e.IsDir() || errors.ValidateScenarioName(e.Name()) != nil {
			continue
		}
		sd := scenarioDir{
			name:      e.Name(),
			assets:    filepath.Join(root, e.Name(), assetsFile),
			snapshots: filepath.Join(root, e.Name(), snapshotsFile),
		}
		if !fileExists(sd.assets) || !fileExists(sd.snapshots) {
			continue
		}
		out = append(out, sd)
	}
	if len(out) == 0 {
		return nil, errors.New(errors.ErrCodeNotFound, "no scenarios under %s (each needs %s and %s)", root, assetsFile, snapshotsFile)
	}
	slices.SortFunc(out, func(a, b scenarioDir) int {
		switch {
		case a.name < b.name:
			return -1
		case a.name > b.name:
			return 1
		}
		return 0
	})
	return out, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// batchCommand creates the batch command.
func (c *CLI) batchCommand() *cobra.Command {
	var (
		flags   runFlags
		root    string
		workers int
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Analyze every scenario under a directory in parallel",
		Long: `Run every scenario found under --scenarios. Each subdirectory is one
scenario and must contain assets.json and snapshots.jsonl. Reports are
written to <out>/<scenario>/.

A failing scenario does not stop the others. The command fails at the end
if any scenario failed.`,
		Example: `  gridrisk batch --scenarios runs/ -c analysis.toml --out reports/ --workers 8`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)

			cfg, err := c.loadConfig(flags.config)
			if err != nil {
				return err
			}
			if root == "" {
				return errors.New(errors.ErrCodeInvalidInput, "--scenarios is required")
			}
			dirs, err := discoverScenarios(root)
			if err != nil {
				return err
			}
			if workers <= 0 {
				workers = cfg.Batch.Workers
			}
			if workers > config.MaxWorkers {
				return errors.New(errors.ErrCodeInvalidInput, "--workers can not exceed %d, got %d", config.MaxWorkers, workers)
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

			var sinks []store.Sink
			if !flags.noStore {
				if sinks, err = store.Open(ctx, cfg.Store); err != nil {
					return err
				}
				defer func() { _ = store.CloseAll(sinks) }()
			}

			byName := make(map[string]scenarioDir, len(dirs))
			scenarios := make([]simulation.Scenario, len(dirs))
			for i, d := range dirs {
				byName[d.name] = d
				scenarios[i] = simulation.Scenario{Name: d.name, Config: cfg}
			}
			base := outDir(flags.out, cfg)

			run := func(ctx context.Context, sc simulation.Scenario) (*simulation.Result, error) {
				d := byName[sc.Name]
				var err error
				if sc.Assets, err = loadAssets(d.assets); err != nil {
					return nil, err
				}
				if sc.Solver, err = openSnapshots(d.snapshots); err != nil {
					return nil, err
				}
				res, err := runner.Execute(ctx, sc)
				if err != nil {
					return res, err
				}
				if _, err := report.WriteAll(filepath.Join(base, sc.Name), res, logger.With("scenario", sc.Name)); err != nil {
					return res, err
				}
				if err := store.Publish(ctx, sinks, res); err != nil {
					if errors.IsFatal(err) {
						return res, err
					}
					logger.Warn("report not stored", "scenario", sc.Name, "err", err)
				}
				return res, nil
			}

			logger.Info("running scenarios", "count", len(scenarios), "workers", workers)
			prog := newProgress(logger, "batch")
			outcomes, runErr := batch.Run(ctx, scenarios, workers, run)
			prog.done("scenarios", len(outcomes), "failed", len(outcomes)-len(batch.Succeeded(outcomes)))

			for _, o := range outcomes {
				if o.Err != nil {
					printError("%s: %s", o.Scenario, errors.UserMessage(o.Err))
					continue
				}
				printSuccess("%s %s", o.Scenario, StyleDim.Render(o.Duration.Round(time.Millisecond).String()))
			}
			printKeyValue("Succeeded", formatCount(len(batch.Succeeded(outcomes)), len(outcomes)))
			printFile(base)
			return runErr
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&root, "scenarios", "", "directory with one subdirectory per scenario")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "parallel scenarios (default: batch.workers)")
	return cmd
}
