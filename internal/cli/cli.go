package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/gridrisk/pkg/buildinfo"
	"github.com/matzehuels/gridrisk/pkg/cache"
	"github.com/matzehuels/gridrisk/pkg/config"
	"github.com/matzehuels/gridrisk/pkg/simulation"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "gridrisk"

	// defaultOutDir receives reports when neither --out nor export.dir is set.
	defaultOutDir = "reports"

	// defaultScenario names a single analyze run.
	defaultScenario = "base"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	// getenv reads credential overrides; tests replace it.
	getenv func(string) string
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level), getenv: os.Getenv}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "gridrisk computes reliability and risk indices for distribution feeders",
		Long:         `gridrisk builds a radial feeder model from GIS asset records, maps every line, transformer and bus to the customers it serves, and turns time-series power-flow results into customer-weighted risk indices.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
		},
	}

	root.SetVersionTemplate(buildinfo.Template())

	root.AddCommand(c.topologyCommand())
	root.AddCommand(c.indexCommand())
	root.AddCommand(c.analyzeCommand())
	root.AddCommand(c.batchCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())
	markPathFlags(root)

	return root
}

// =============================================================================
// Runner Factory
// =============================================================================

// loadConfig reads path, or the defaults when path is empty, and applies
// credential overrides from the environment.
func (c *CLI) loadConfig(path string) (*config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv(c.getenv)
	return cfg, nil
}

// newRunner creates a simulation runner for CLI use. The returned function
// releases the cache.
func (c *CLI) newRunner(ctx context.Context, cfg *config.Config, noCache bool) (*simulation.Runner, func(), error) {
	cc, err := c.newCache(ctx, cfg, noCache)
	if err != nil {
		return nil, nil, err
	}
	var keyer cache.Keyer
	if cfg.Cache.Backend == config.CacheRedis {
		keyer = cache.NewScopedKeyer(nil, appName+":")
	}
	r := simulation.NewRunner(cc, keyer, c.Logger)
	if cfg.Cache.TTL.Duration > 0 {
		r.TTL = cfg.Cache.TTL.Duration
	}
	return r, func() { _ = cc.Close() }, nil
}

func (c *CLI) newCache(ctx context.Context, cfg *config.Config, noCache bool) (cache.Cache, error) {
	if noCache || cfg.Cache.Backend == config.CacheNone {
		return cache.NewNullCache(), nil
	}
	if cfg.Cache.Backend == config.CacheRedis {
		return cache.NewRedisCache(ctx, cache.RedisOptions{Addr: cfg.Cache.RedisAddr})
	}
	dir, err := cacheDir()
	if err != nil {
		c.Logger.Warn("no cache directory, caching disabled", "err", err)
		return cache.NewNullCache(), nil
	}
	return cache.NewFileCache(dir)
}

// =============================================================================
// Paths
// =============================================================================

// cacheDir returns the cache directory using XDG standard (~/.cache/gridrisk/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}

// outDir picks the report directory: the flag, then export.dir, then
// defaultOutDir.
func outDir(flag string, cfg *config.Config) string {
	switch {
	case flag != "":
		return flag
	case cfg.Export.Dir != "":
		return cfg.Export.Dir
	}
	return defaultOutDir
}
