// Package report writes finished runs as CSV files.
//
// Scalar metrics (one value per asset) are written as
//
//	component_name,values
//	lt_bc,375
//
// to <METRIC>.csv, and time series are written with one column per asset to
// <METRIC>_timeseries.csv:
//
//	time,lt_bc,lt_bd
//	2018-01-01T00:15:00Z,187.5,0
//
// Rows are sorted by asset name so identical runs produce identical files.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/gridrisk/pkg/errors"
	"github.com/matzehuels/gridrisk/pkg/metrics"
	"github.com/matzehuels/gridrisk/pkg/powerflow"
	"github.com/matzehuels/gridrisk/pkg/simulation"
)

// File names that do not follow the metric naming.
const (
	ConvergenceFile      = "convergence_report.csv"
	LineLoadingBinsFile  = "line_loading_bins.csv"
	VoltageBinsFile      = "voltage_bins.csv"
	LineLoadingStatsFile = "line_loading_stats.csv"
	VoltageStatsFile     = "voltage_stats.csv"
	OverloadsFile        = "overloaded_assets.csv"
)

// exportFiles names the raw value exports.
var exportFiles = map[string]string{
	metrics.ExportVoltages:            "voltages.csv",
	metrics.ExportLineLoadings:        "lineloading.csv",
	metrics.ExportTransformerLoadings: "transloading.csv",
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339) }

// WriteScalars writes one component_name,values row per asset.
func WriteScalars(w io.Writer, values map[string]float64) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"component_name", "values"}); err != nil {
		return err
	}
	for _, name := range slices.Sorted(maps.Keys(values)) {
		if err := cw.Write([]string{name, formatFloat(values[name])}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSeries writes s with one column per key in sorted order.
func WriteSeries(w io.Writer, s metrics.Series) error {
	return WriteSeriesColumns(w, s, s.Keys())
}

// WriteSeriesColumns writes s with the given columns. A column missing from
// s is written as zeros.
func WriteSeriesColumns(w io.Writer, s metrics.Series, columns []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"time"}, columns...)); err != nil {
		return err
	}
	row := make([]string, len(columns)+1)
	for i, t := range s.Times {
		row[0] = formatTime(t)
		for j, col := range columns {
			v := 0.0
			if vals := s.Values[col]; i < len(vals) {
				v = vals[i]
			}
			row[j+1] = formatFloat(v)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteConvergence writes one time,converged row per step.
func WriteConvergence(w io.Writer, r *powerflow.ConvergenceReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "converged"}); err != nil {
		return err
	}
	for _, e := range r.Entries {
		if err := cw.Write([]string{formatTime(e.Time), strconv.FormatBool(e.Converged)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteBins writes asset-hours per bin in label order.
func WriteBins(w io.Writer, labels []string, hours map[string]float64) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"bin", "hours"}); err != nil {
		return err
	}
	for _, l := range labels {
		if err := cw.Write([]string{l, formatFloat(hours[l])}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteOverloads writes one row per overloaded asset.
func WriteOverloads(w io.Writer, overloads []metrics.Overload) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"kind", "name", "peak_loading", "peak_time", "hours", "samples"}); err != nil {
		return err
	}
	for _, o := range overloads {
		rec := []string{o.Kind, o.Name, formatFloat(o.Peak), formatTime(o.PeakAt), formatFloat(o.Hours), strconv.Itoa(o.Samples)}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// scalarFiles lists the per-asset metrics in write order.
func scalarFiles(r *metrics.Results) []struct {
	name   string
	values map[string]float64
} {
	return []struct {
		name   string
		values map[string]float64
	}{
		{"NVRI", r.NVRI},
		{"LLRI", r.LLRI},
		{"TLRI", r.TLRI},
		{"CRI", r.CRI},
		{"LE", r.LE},
		{"TE", r.TE},
		{"TOG", r.TOG},
		{"TLOL", r.TLOL},
		{"System", r.System},
	}
}

// WriteAll writes every report of res into dir, creating it if needed, and
// returns the written paths.
func WriteAll(dir string, res *simulation.Result, logger *log.Logger) ([]string, error) {
	if logger == nil {
		logger = log.Default()
	}
	if err := errors.ValidatePath(dir); err != nil {
		return nil, err
	}
	if res.Metrics == nil {
		return nil, errors.New(errors.ErrCodeNotFinalized, "run %s has no finalized metrics", res.Scenario)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "create report directory %s", dir)
	}

	var written []string
	write := func(name string, fn func(io.Writer) error) error {
		path := filepath.Join(dir, name)
		if err := writeFile(path, fn); err != nil {
			return err
		}
		written = append(written, path)
		logger.Debug("wrote report", "path", path)
		return nil
	}

	m := res.Metrics
	for _, f := range scalarFiles(m) {
		values := f.values
		if err := write(f.name+".csv", func(w io.Writer) error { return WriteScalars(w, values) }); err != nil {
			return written, err
		}
	}
	for _, name := range slices.Sorted(maps.Keys(m.Series)) {
		s := m.Series[name]
		if err := write(name+"_timeseries.csv", func(w io.Writer) error { return WriteSeries(w, s) }); err != nil {
			return written, err
		}
	}

	steps := make([]func() error, 0, 8)
	if res.Convergence != nil {
		steps = append(steps, func() error {
			return write(ConvergenceFile, func(w io.Writer) error { return WriteConvergence(w, res.Convergence) })
		})
	}
	steps = append(steps,
		func() error {
			return write(LineLoadingStatsFile, func(w io.Writer) error {
				return WriteSeriesColumns(w, m.LineLoadingStats, metrics.StatNames)
			})
		},
		func() error {
			return write(VoltageStatsFile, func(w io.Writer) error {
				return WriteSeriesColumns(w, m.VoltageStats, metrics.StatNames)
			})
		},
		func() error {
			return write(OverloadsFile, func(w io.Writer) error { return WriteOverloads(w, m.Overloads) })
		},
	)
	if m.LineLoadingBins != nil {
		steps = append(steps, func() error {
			return write(LineLoadingBinsFile, func(w io.Writer) error { return WriteBins(w, m.LineBinLabels, m.LineLoadingBins) })
		})
	}
	if m.VoltageBins != nil {
		steps = append(steps, func() error {
			return write(VoltageBinsFile, func(w io.Writer) error { return WriteBins(w, m.VoltageBinLabels, m.VoltageBins) })
		})
	}
	for _, kind := range slices.Sorted(maps.Keys(m.Exports)) {
		s := m.Exports[kind]
		steps = append(steps, func() error {
			return write(exportFiles[kind], func(w io.Writer) error { return WriteSeries(w, s) })
		})
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return written, err
		}
	}

	logger.Info("exported reports", "dir", dir, "files", len(written))
	return written, nil
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := fn(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
