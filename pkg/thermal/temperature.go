package thermal

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// TemperatureColumn is the header of the ambient temperature column.
const TemperatureColumn = "Temperature"

// TemperatureProfile is an ambient temperature series sampled every Step from
// Start. Times outside the series read as Default.
type TemperatureProfile struct {
	Start   time.Time
	Step    time.Duration
	Values  []float64
	Default float64
}

// ConstantProfile returns a profile that is def everywhere.
func ConstantProfile(def float64) *TemperatureProfile {
	return &TemperatureProfile{Default: def}
}

// At returns the ambient temperature at t.
func (p *TemperatureProfile) At(t time.Time) float64 {
	if p == nil {
		return DefaultTemperature
	}
	if p.Step <= 0 || t.Before(p.Start) {
		return p.Default
	}
	i := int(t.Sub(p.Start) / p.Step)
	if i >= len(p.Values) {
		return p.Default
	}
	return p.Values[i]
}

// LoadTemperatureCSV reads the Temperature column of path as a profile
// starting at start with one row per step. The default profile is returned,
// with a warning, when the file is missing, has no Temperature column, or
// holds fewer than need rows. Malformed numbers are an error.
func LoadTemperatureCSV(path string, start time.Time, step time.Duration, need int, def float64, logger *log.Logger) (*TemperatureProfile, error) {
	if logger == nil {
		logger = log.Default()
	}
	fallback := ConstantProfile(def)
	if path == "" {
		logger.Warn("no temperature profile configured, using default ambient", "temperature", def)
		return fallback, nil
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn("temperature profile not found, using default ambient", "path", path, "temperature", def)
		return fallback, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open temperature profile: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err == io.EOF {
		logger.Warn("temperature profile is empty, using default ambient", "path", path)
		return fallback, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read temperature header: %w", err)
	}
	col := indexOf(header, TemperatureColumn)
	if col < 0 {
		logger.Warn("temperature profile has no Temperature column, using default ambient", "path", path, "temperature", def)
		return fallback, nil
	}

	var values []float64
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read temperature row %d: %w", len(values)+2, err)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[col]), 64)
		if err != nil {
			return nil, fmt.Errorf("temperature row %d: %w", len(values)+2, err)
		}
		values = append(values, v)
	}
	if len(values) < need {
		logger.Warn("temperature profile is shorter than the simulation, using default ambient",
			"path", path, "rows", len(values), "need", need)
		return fallback, nil
	}

	if need > 0 {
		values = values[:need]
	}
	logger.Info("loaded temperature profile", "path", path, "rows", len(values))
	return &TemperatureProfile{Start: start, Step: step, Values: values, Default: def}, nil
}

// LoadLifeParametersCSV reads Parameters,Value rows and merges them over the
// defaults. A missing file yields the defaults.
func LoadLifeParametersCSV(path string, logger *log.Logger) (LifeParameters, error) {
	if logger == nil {
		logger = log.Default()
	}
	params := DefaultLifeParameters()
	if path == "" {
		return params, nil
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Info("life parameters not found, using defaults", "path", path)
		return params, nil
	}
	if err != nil {
		return params, fmt.Errorf("open life parameters: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return params, fmt.Errorf("read life parameters: %w", err)
	}
	if len(rows) == 0 {
		return params, nil
	}
	nameCol, valueCol := indexOf(rows[0], "Parameters"), indexOf(rows[0], "Value")
	if nameCol < 0 || valueCol < 0 {
		logger.Warn("life parameters need Parameters and Value columns, using defaults", "path", path)
		return params, nil
	}

	overrides := make(map[string]float64, len(rows)-1)
	for i, row := range rows[1:] {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[valueCol]), 64)
		if err != nil {
			return params, fmt.Errorf("life parameter row %d: %w", i+2, err)
		}
		overrides[strings.TrimSpace(row[nameCol])] = v
	}
	return params.Merge(overrides)
}

func indexOf(header []string, name string) int {
	for i, h := range header {
		if strings.TrimSpace(h) == name {
			return i
		}
	}
	return -1
}
