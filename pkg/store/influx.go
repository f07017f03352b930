package store

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	ihttp "github.com/influxdata/influxdb-client-go/v2/api/http"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/matzehuels/gridrisk/pkg/errors"
	"github.com/matzehuels/gridrisk/pkg/metrics"
	"github.com/matzehuels/gridrisk/pkg/observability"
	"github.com/matzehuels/gridrisk/pkg/simulation"
)

// Measurements written by [InfluxWriter].
const (
	MeasurementSARDI  = "sardi"
	MeasurementSystem = "system_metrics"
	MeasurementEnergy = "energy"
)

// InfluxWriter writes per-timestep series to an InfluxDB bucket.
type InfluxWriter struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

var _ Sink = (*InfluxWriter)(nil)

// NewInfluxWriter creates a writer for org and bucket.
func NewInfluxWriter(url, token, org, bucket string) *InfluxWriter {
	client := influxdb2.NewClient(url, token)
	return &InfluxWriter{client: client, writeAPI: client.WriteAPIBlocking(org, bucket)}
}

// Name implements [Sink].
func (w *InfluxWriter) Name() string { return "influx" }

// Points converts a run into points: one SARDI point per timestep, one
// system point per recording step and one energy point per timestep. Every
// point is tagged with the scenario and run id.
func Points(res *simulation.Result) []*write.Point {
	if res.Metrics == nil {
		return nil
	}
	tags := map[string]string{
		"scenario": res.Scenario,
		"run_id":   res.RunID.String(),
	}
	var out []*write.Point
	for _, p := range res.Metrics.SARDISteps {
		out = append(out, influxdb2.NewPoint(MeasurementSARDI, tags, map[string]any{
			"voltage":     p.Voltage,
			"line":        p.Line,
			"transformer": p.Transformer,
			"aggregated":  p.Aggregated,
		}, p.Time))
	}
	sys := res.Metrics.Series["System"]
	for i, t := range sys.Times {
		fields := make(map[string]any, len(sys.Values))
		for _, name := range metrics.SystemMetricNames {
			if col, ok := sys.Values[name]; ok {
				fields[name] = col[i]
			}
		}
		if len(fields) > 0 {
			out = append(out, influxdb2.NewPoint(MeasurementSystem, tags, fields, t))
		}
	}
	out = append(out, seriesPoints(MeasurementEnergy, tags, res.Metrics.Series["Energy"])...)
	return out
}

// seriesPoints writes every row of ts as one point whose fields are the
// series columns.
func seriesPoints(measurement string, tags map[string]string, ts metrics.Series) []*write.Point {
	out := make([]*write.Point, 0, len(ts.Times))
	for i, t := range ts.Times {
		fields := make(map[string]any, len(ts.Values))
		for name, col := range ts.Values {
			fields[name] = col[i]
		}
		if len(fields) > 0 {
			out = append(out, influxdb2.NewPoint(measurement, tags, fields, t))
		}
	}
	return out
}

// writeErrorCode classifies a failed write. Rejections the server will keep
// returning are fatal; overload and transport failures are not.
func writeErrorCode(err error) errors.Code {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.ErrCodeTimeout
	}
	var herr *ihttp.Error
	if !stderrors.As(err, &herr) {
		return errors.ErrCodeNetwork
	}
	switch code := herr.StatusCode; {
	case code == 0:
		return errors.ErrCodeNetwork
	case code == http.StatusRequestTimeout:
		return errors.ErrCodeTimeout
	case code == http.StatusTooManyRequests, code >= http.StatusInternalServerError:
		return errors.ErrCodeNetwork
	case code == http.StatusUnauthorized, code == http.StatusForbidden, code == http.StatusNotFound:
		return errors.ErrCodeInvalidConfig
	}
	return errors.ErrCodeInvalidInput
}

// Write implements [Sink].
func (w *InfluxWriter) Write(ctx context.Context, res *simulation.Result) error {
	start := time.Now()
	points := Points(res)
	var err error
	if len(points) > 0 {
		if err = w.writeAPI.WritePoint(ctx, points...); err != nil {
			err = errors.Wrap(writeErrorCode(err), err, "write %d points", len(points))
		}
	}
	observability.Store().OnWrite(ctx, w.Name(), len(points), time.Since(start), err)
	return err
}

// Close releases the client.
func (w *InfluxWriter) Close() error {
	w.client.Close()
	return nil
}
