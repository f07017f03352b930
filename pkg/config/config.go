// Package config loads the TOML run configuration shared by every gridrisk
// command.
//
// A configuration file is optional: [Default] returns a usable
// configuration and [Load] overlays a file on it. [Config.ValidateAndSetDefaults]
// fills unset keys and rejects out-of-range values with an INVALID_CONFIG
// error naming the key.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/paulmach/orb"

	"github.com/matzehuels/gridrisk/pkg/errors"
	"github.com/matzehuels/gridrisk/pkg/metrics"
	"github.com/matzehuels/gridrisk/pkg/thermal"
	"github.com/matzehuels/gridrisk/pkg/topology"
)

// =============================================================================
// Default Values
// =============================================================================

const (
	// DefaultStepMinutes is the simulation resolution.
	DefaultStepMinutes = 15.0

	// DefaultRecordEvery records one time-series row per day at the
	// default resolution.
	DefaultRecordEvery = 96

	// DefaultWorkers bounds concurrent scenarios in a batch.
	DefaultWorkers = 4

	// MaxWorkers is the largest accepted batch.workers.
	MaxWorkers = 32

	// DefaultCacheBackend keeps impact indices on local disk.
	DefaultCacheBackend = CacheFile

	// DefaultCacheTTL matches the lifetime of cached impact indices.
	DefaultCacheTTL = 7 * 24 * time.Hour

	// DefaultMongoDatabase holds run reports.
	DefaultMongoDatabase = "gridrisk"
)

// DefaultLoadingBins are the line loading bin edges in per-unit.
var DefaultLoadingBins = []float64{0.25, 0.5, 0.75, 1.0, 1.25}

// Cache backends.
const (
	CacheFile  = "file"
	CacheRedis = "redis"
	CacheNone  = "none"
)

// Environment overrides read by [Config.ApplyEnv].
const (
	EnvRedisAddr   = "GRIDRISK_REDIS_ADDR"
	EnvMongoURI    = "GRIDRISK_MONGO_URI"
	EnvInfluxToken = "GRIDRISK_INFLUX_TOKEN"
)

// =============================================================================
// Sections
// =============================================================================

// Config is the full run configuration.
type Config struct {
	Simulation Simulation `toml:"simulation"`
	Thresholds Thresholds `toml:"thresholds"`
	Export     Export     `toml:"export"`
	Topology   Topology   `toml:"topology"`
	Thermal    Thermal    `toml:"thermal"`
	Loading    Loading    `toml:"loading"`
	Batch      Batch      `toml:"batch"`
	Cache      Cache      `toml:"cache"`
	Store      Store      `toml:"store"`

	validated bool
}

// Simulation bounds the run. Zero Start and End mean the span of the
// snapshots being replayed.
type Simulation struct {
	Start       time.Time `toml:"start"`
	End         time.Time `toml:"end"`
	StepMinutes float64   `toml:"step_minutes"`
	RecordEvery int       `toml:"record_every"`
}

// Step returns the resolution as a duration.
func (s Simulation) Step() time.Duration {
	return time.Duration(s.StepMinutes * float64(time.Minute))
}

// Thresholds are the violation limits in per-unit.
type Thresholds struct {
	Overvoltage  float64 `toml:"overvoltage"`
	Undervoltage float64 `toml:"undervoltage"`
	ThermalLimit float64 `toml:"thermal_limit"`
}

// Export selects raw value exports.
type Export struct {
	Voltages            bool      `toml:"voltages"`
	LineLoadings        bool      `toml:"line_loadings"`
	TransformerLoadings bool      `toml:"transformer_loadings"`
	Start               time.Time `toml:"start"`
	End                 time.Time `toml:"end"`
	Dir                 string    `toml:"dir"`
}

// Topology carries the network builder settings.
type Topology struct {
	CoordinatePrecision int      `toml:"coordinate_precision"`
	RandomPhase         bool     `toml:"random_phase"`
	Seed                uint64   `toml:"seed"`
	ThreePhase          string   `toml:"three_phase"`
	SinglePhase         []string `toml:"single_phase"`
	ServiceConductor    string   `toml:"service_conductor"`
	HTServiceConductor  string   `toml:"ht_service_conductor"`
	Conductors          []string `toml:"conductors"`
	SourceX             *float64 `toml:"source_x"`
	SourceY             *float64 `toml:"source_y"`
}

// Thermal configures the loss-of-life model.
type Thermal struct {
	TemperatureCSV     string             `toml:"temperature_csv"`
	LifeParametersCSV  string             `toml:"life_parameters_csv"`
	DefaultTemperature float64            `toml:"default_temperature"`
	Life               map[string]float64 `toml:"life"`
}

// Loading holds distribution bin edges.
type Loading struct {
	Bins        []float64 `toml:"bins"`
	VoltageBins []float64 `toml:"voltage_bins"`
}

// Batch configures multi-scenario runs.
type Batch struct {
	Workers int `toml:"workers"`
}

// Cache selects the impact index cache.
type Cache struct {
	Backend   string   `toml:"backend"`
	RedisAddr string   `toml:"redis_addr"`
	TTL       Duration `toml:"ttl"`
}

// Store configures optional report sinks. Empty URLs disable them.
type Store struct {
	MongoURI      string `toml:"mongo_uri"`
	MongoDatabase string `toml:"mongo_database"`
	InfluxURL     string `toml:"influx_url"`
	InfluxToken   string `toml:"influx_token"`
	InfluxOrg     string `toml:"influx_org"`
	InfluxBucket  string `toml:"influx_bucket"`
}

// Duration decodes TOML strings such as "36h".
type Duration struct{ time.Duration }

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// =============================================================================
// Loading
// =============================================================================

// Default returns a validated default configuration.
func Default() *Config {
	c := &Config{}
	_ = c.ValidateAndSetDefaults()
	return c
}

// Load decodes path over the defaults and validates the result. Unknown keys
// are rejected so typos do not silently fall back to defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "config %s not found", path)
		}
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "read config %s", path)
	}
	return Parse(string(data))
}

// Parse decodes TOML text and validates it.
func Parse(text string) (*Config, error) {
	c := &Config{}
	md, err := toml.Decode(text, c)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse config")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, errors.New(errors.ErrCodeInvalidConfig, "unknown config keys: %s", strings.Join(keys, ", "))
	}
	if err := c.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	return c, nil
}

// ApplyEnv overrides store and cache credentials from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvRedisAddr); v != "" {
		c.Cache.RedisAddr = v
	}
	if v := getenv(EnvMongoURI); v != "" {
		c.Store.MongoURI = v
	}
	if v := getenv(EnvInfluxToken); v != "" {
		c.Store.InfluxToken = v
	}
}

// =============================================================================
// Validation
// =============================================================================

func invalid(key, format string, args ...any) error {
	return errors.New(errors.ErrCodeInvalidConfig, key+": "+format, args...)
}

// ValidateAndSetDefaults fills unset keys and checks ranges. It is
// idempotent.
func (c *Config) ValidateAndSetDefaults() error {
	if c.validated {
		return nil
	}
	steps := []func() error{
		c.validateSimulation,
		c.validateThresholds,
		c.validateExport,
		c.validateThermal,
		c.validateLoading,
		c.validateBatch,
		c.validateCache,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	if c.Store.MongoDatabase == "" {
		c.Store.MongoDatabase = DefaultMongoDatabase
	}
	c.validated = true
	return nil
}

func (c *Config) validateSimulation() error {
	s := &c.Simulation
	if s.StepMinutes == 0 {
		s.StepMinutes = DefaultStepMinutes
	}
	if s.StepMinutes < 0 {
		return invalid("simulation.step_minutes", "must be positive, got %v", s.StepMinutes)
	}
	if s.RecordEvery == 0 {
		s.RecordEvery = DefaultRecordEvery
	}
	if s.RecordEvery < 1 {
		return invalid("simulation.record_every", "can not be less than 1, got %d", s.RecordEvery)
	}
	if !s.Start.IsZero() && !s.End.IsZero() && s.End.Before(s.Start) {
		return invalid("simulation.end", "%s is before simulation.start %s",
			s.End.Format(time.RFC3339), s.Start.Format(time.RFC3339))
	}
	return nil
}

func (c *Config) validateThresholds() error {
	t := &c.Thresholds
	if t.Overvoltage == 0 {
		t.Overvoltage = metrics.DefaultOvervoltage
	}
	if t.Undervoltage == 0 {
		t.Undervoltage = metrics.DefaultUndervoltage
	}
	if t.ThermalLimit == 0 {
		t.ThermalLimit = metrics.DefaultThermalLimit
	}
	switch {
	case t.Overvoltage < 1.01 || t.Overvoltage > 2:
		return invalid("thresholds.overvoltage", "must be within [1.01, 2], got %v", t.Overvoltage)
	case t.Undervoltage < 0 || t.Undervoltage > 1:
		return invalid("thresholds.undervoltage", "must be within [0, 1], got %v", t.Undervoltage)
	case t.ThermalLimit < 0 || t.ThermalLimit > 2:
		return invalid("thresholds.thermal_limit", "must be within [0, 2], got %v", t.ThermalLimit)
	}
	return nil
}

func (c *Config) validateExport() error {
	e := c.Export
	if !e.Start.IsZero() && !e.End.IsZero() && e.End.Before(e.Start) {
		return invalid("export.end", "%s is before export.start %s",
			e.End.Format(time.RFC3339), e.Start.Format(time.RFC3339))
	}
	return nil
}

func (c *Config) validateThermal() error {
	t := &c.Thermal
	if t.DefaultTemperature == 0 {
		t.DefaultTemperature = thermal.DefaultTemperature
	}
	if len(t.Life) > 0 {
		if _, err := thermal.DefaultLifeParameters().Merge(t.Life); err != nil {
			return invalid("thermal.life", "%v", err)
		}
	}
	return nil
}

func (c *Config) validateLoading() error {
	l := &c.Loading
	if l.Bins == nil {
		l.Bins = append([]float64(nil), DefaultLoadingBins...)
	}
	if _, err := metrics.NewBins(l.Bins); err != nil {
		return invalid("loading.bins", "%v should have at least two unique values", l.Bins)
	}
	if l.VoltageBins != nil {
		if _, err := metrics.NewBins(l.VoltageBins); err != nil {
			return invalid("loading.voltage_bins", "%v should have at least two unique values", l.VoltageBins)
		}
	}
	return nil
}

func (c *Config) validateBatch() error {
	if c.Batch.Workers == 0 {
		c.Batch.Workers = DefaultWorkers
	}
	if c.Batch.Workers < 1 || c.Batch.Workers > MaxWorkers {
		return invalid("batch.workers", "must be within [1, %d], got %d", MaxWorkers, c.Batch.Workers)
	}
	return nil
}

func (c *Config) validateCache() error {
	cc := &c.Cache
	if cc.Backend == "" {
		cc.Backend = DefaultCacheBackend
	}
	switch cc.Backend {
	case CacheFile, CacheNone:
	case CacheRedis:
		if cc.RedisAddr == "" {
			return invalid("cache.redis_addr", "required when cache.backend is %q", CacheRedis)
		}
	default:
		return invalid("cache.backend", "must be one of file, redis, none, got %q", cc.Backend)
	}
	if cc.TTL.Duration == 0 {
		cc.TTL.Duration = DefaultCacheTTL
	}
	if cc.TTL.Duration < 0 {
		return invalid("cache.ttl", "must be positive, got %s", cc.TTL)
	}
	return nil
}

// =============================================================================
// Conversions
// =============================================================================

// TopologyOptions returns the builder options. Unset fields keep the
// builder's own defaults.
func (c *Config) TopologyOptions() topology.Options {
	t := c.Topology
	opts := topology.Options{
		CoordinatePrecision: t.CoordinatePrecision,
		RandomPhase:         t.RandomPhase,
		Seed:                t.Seed,
		ThreePhase:          t.ThreePhase,
		SinglePhase:         t.SinglePhase,
		ServiceConductor:    t.ServiceConductor,
		HTServiceConductor:  t.HTServiceConductor,
		Conductors:          t.Conductors,
	}
	if t.SourceX != nil && t.SourceY != nil {
		opts.Source = &orb.Point{*t.SourceX, *t.SourceY}
	}
	return opts
}

// MetricThresholds converts the thresholds section.
func (c *Config) MetricThresholds() metrics.Thresholds {
	return metrics.Thresholds{
		Overvoltage:  c.Thresholds.Overvoltage,
		Undervoltage: c.Thresholds.Undervoltage,
		ThermalLimit: c.Thresholds.ThermalLimit,
	}
}

// ExportOptions converts the export section.
func (c *Config) ExportOptions() metrics.ExportOptions {
	return metrics.ExportOptions{
		Voltages:            c.Export.Voltages,
		LineLoadings:        c.Export.LineLoadings,
		TransformerLoadings: c.Export.TransformerLoadings,
		Start:               c.Export.Start,
		End:                 c.Export.End,
	}
}
