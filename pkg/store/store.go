// Package store publishes finished runs to external sinks.
//
// [MongoStore] keeps one report document per run, upserted by run id so a
// re-published run replaces its earlier document. [InfluxWriter] streams
// the per-timestep SARDI values and system series as points for
// dashboards. Both are optional; the CSV reports remain the primary
// output.
package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/matzehuels/gridrisk/pkg/config"
	"github.com/matzehuels/gridrisk/pkg/errors"
	"github.com/matzehuels/gridrisk/pkg/metrics"
	"github.com/matzehuels/gridrisk/pkg/simulation"
)

// Sink receives finished runs.
type Sink interface {
	Name() string
	Write(ctx context.Context, res *simulation.Result) error
	Close() error
}

// Report is the stored summary of one run.
type Report struct {
	RunID           string           `json:"run_id" bson:"run_id"`
	Scenario        string           `json:"scenario" bson:"scenario"`
	Start           time.Time        `json:"start" bson:"start"`
	End             time.Time        `json:"end" bson:"end"`
	Steps           int              `json:"steps" bson:"steps"`
	TopologyHash    string           `json:"topology_hash,omitempty" bson:"topology_hash,omitempty"`
	Customers       int              `json:"customers" bson:"customers"`
	ConvergenceRate float64          `json:"convergence_rate" bson:"convergence_rate"`
	FailedSteps     []time.Time      `json:"failed_steps,omitempty" bson:"failed_steps,omitempty"`
	Metrics         *metrics.Results `json:"metrics" bson:"metrics"`
	CreatedAt       time.Time        `json:"created_at" bson:"created_at"`
}

// NewReport summarizes res.
func NewReport(res *simulation.Result) Report {
	r := Report{
		RunID:        res.RunID.String(),
		Scenario:     res.Scenario,
		Start:        res.Start,
		End:          res.End,
		Steps:        res.Steps,
		TopologyHash: res.TopologyHash,
		Customers:    res.Stats.Customers,
		Metrics:      res.Metrics,
		CreatedAt:    time.Now().UTC(),
	}
	if res.Convergence != nil {
		r.ConvergenceRate = res.Convergence.Rate()
		r.FailedSteps = res.Convergence.Failed()
	}
	return r
}

// Open creates the sinks cfg enables. An empty URI or URL disables a sink.
func Open(ctx context.Context, cfg config.Store) ([]Sink, error) {
	var sinks []Sink
	if cfg.MongoURI != "" {
		m, err := NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, m)
	}
	if cfg.InfluxURL != "" {
		if cfg.InfluxOrg == "" || cfg.InfluxBucket == "" {
			_ = CloseAll(sinks)
			return nil, errors.New(errors.ErrCodeInvalidConfig, "store.influx_org and store.influx_bucket are required with store.influx_url")
		}
		sinks = append(sinks, NewInfluxWriter(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket))
	}
	return sinks, nil
}

// Publish writes res to every sink and joins their errors.
func Publish(ctx context.Context, sinks []Sink, res *simulation.Result) error {
	var errs []error
	for _, s := range sinks {
		if err := s.Write(ctx, res); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return stderrors.Join(errs...)
}

// CloseAll closes every sink and joins their errors.
func CloseAll(sinks []Sink) error {
	var errs []error
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", s.Name(), err))
		}
	}
	return stderrors.Join(errs...)
}
