package cli

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/matzehuels/gridrisk/pkg/errors"
	"github.com/matzehuels/gridrisk/pkg/observability"
)

const shutdownTimeout = 5 * time.Second

// serveMetrics installs Prometheus hooks and serves /metrics on addr until
// the returned stop function is called. An empty addr does nothing.
func serveMetrics(addr string, logger *log.Logger) (stop func(), err error) {
	if addr == "" {
		return func() {}, nil
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	hooks := observability.NewPrometheusHooks(reg)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "listen on %s", addr)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "err", err)
		}
	}()
	observability.SetSimulationHooks(hooks)
	observability.SetCacheHooks(hooks)
	observability.SetStoreHooks(hooks)
	logger.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		observability.Reset()
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
