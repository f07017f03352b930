package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusHooks exports run events as Prometheus metrics. It implements
// [SimulationHooks], [CacheHooks], and [StoreHooks].
type PrometheusHooks struct {
	stageDuration *prometheus.HistogramVec
	stageErrors   *prometheus.CounterVec
	steps         *prometheus.CounterVec
	stepDuration  prometheus.Histogram
	runs          *prometheus.CounterVec
	customers     *prometheus.GaugeVec
	cacheEvents   *prometheus.CounterVec
	cacheBytes    prometheus.Counter
	storeWrites   *prometheus.CounterVec
}

// NewPrometheusHooks registers the collectors on reg.
func NewPrometheusHooks(reg prometheus.Registerer) *PrometheusHooks {
	f := promauto.With(reg)
	return &PrometheusHooks{
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gridrisk_stage_duration_seconds",
			Help:    "Duration of run stages",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"stage"}),
		stageErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gridrisk_stage_errors_total",
			Help: "Failed run stages",
		}, []string{"stage"}),
		steps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gridrisk_steps_total",
			Help: "Solved timesteps by convergence",
		}, []string{"scenario", "converged"}),
		stepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "gridrisk_step_duration_seconds",
			Help:    "Solve and observe time per timestep",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gridrisk_runs_total",
			Help: "Completed scenario runs by result",
		}, []string{"result"}),
		customers: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gridrisk_customers",
			Help: "Customers in the impact index of a scenario",
		}, []string{"scenario"}),
		cacheEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gridrisk_cache_events_total",
			Help: "Cache lookups and writes by key type and event",
		}, []string{"key_type", "event"}),
		cacheBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "gridrisk_cache_written_bytes_total",
			Help: "Bytes written to the cache",
		}),
		storeWrites: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gridrisk_store_records_total",
			Help: "Records written to report sinks by result",
		}, []string{"sink", "result"}),
	}
}

func (h *PrometheusHooks) stage(name string, d time.Duration, err error) {
	h.stageDuration.WithLabelValues(name).Observe(d.Seconds())
	if err != nil {
		h.stageErrors.WithLabelValues(name).Inc()
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (h *PrometheusHooks) OnTopologyBuilt(_ context.Context, _ string, _, _ int, d time.Duration, err error) {
	h.stage("topology", d, err)
}

func (h *PrometheusHooks) OnIndexBuilt(_ context.Context, scenario string, customers int, cached bool, d time.Duration, err error) {
	h.stage("index", d, err)
	if err == nil {
		h.customers.WithLabelValues(scenario).Set(float64(customers))
	}
}

func (h *PrometheusHooks) OnStep(_ context.Context, scenario string, _ time.Time, converged bool, d time.Duration) {
	label := "true"
	if !converged {
		label = "false"
	}
	h.steps.WithLabelValues(scenario, label).Inc()
	h.stepDuration.Observe(d.Seconds())
}

func (h *PrometheusHooks) OnRunComplete(_ context.Context, _ string, _, _ int, d time.Duration, err error) {
	h.stage("run", d, err)
	h.runs.WithLabelValues(result(err)).Inc()
}

func (h *PrometheusHooks) OnCacheHit(_ context.Context, keyType string) {
	h.cacheEvents.WithLabelValues(keyType, "hit").Inc()
}

func (h *PrometheusHooks) OnCacheMiss(_ context.Context, keyType string) {
	h.cacheEvents.WithLabelValues(keyType, "miss").Inc()
}

func (h *PrometheusHooks) OnCacheSet(_ context.Context, keyType string, size int) {
	h.cacheEvents.WithLabelValues(keyType, "set").Inc()
	h.cacheBytes.Add(float64(size))
}

func (h *PrometheusHooks) OnWrite(_ context.Context, sink string, n int, _ time.Duration, err error) {
	h.storeWrites.WithLabelValues(sink, result(err)).Add(float64(n))
}

var (
	_ SimulationHooks = (*PrometheusHooks)(nil)
	_ CacheHooks      = (*PrometheusHooks)(nil)
	_ StoreHooks      = (*PrometheusHooks)(nil)
)
