package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kilianp07/zonedispatch/infra/logger"
)

// Route mounts an extra handler next to /metrics.
type Route struct {
	Pattern string
	Handler http.Handler
}

// StartPromServer serves the metrics of gatherer and the given routes on
// addr until ctx is canceled. A nil gatherer serves the default registry.
func StartPromServer(ctx context.Context, addr string, gatherer prometheus.Gatherer, routes ...Route) error {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	log := logger.New("prom-server")
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	for _, r := range routes {
		mux.Handle(r.Pattern, r.Handler)
	}
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("prom server shutdown: %v", err)
		}
		cancel()
	}()
	log.Infof("serving metrics on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
