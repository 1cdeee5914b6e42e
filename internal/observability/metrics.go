package observability

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"throttle/internal/models"
)

// MetricsServer serves Prometheus metrics on their own port so scrapes are
// never subject to admission control.
type MetricsServer struct {
	server *http.Server
}

// NewMetricsServer creates a metrics HTTP server exposing the Prometheus
// handler at cfg.Path. Without a Prometheus exporter the path answers 404.
func NewMetricsServer(cfg models.MetricsConfig, provider *Provider) *MetricsServer {
	mux := http.NewServeMux()

	if provider != nil && provider.promExporter != nil {
		mux.Handle(cfg.Path, promhttp.Handler())
	}

	return &MetricsServer{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Handler exposes the server's routes.
func (ms *MetricsServer) Handler() http.Handler {
	return ms.server.Handler
}

// Start serves metrics until Shutdown is called, then returns http.ErrServerClosed.
func (ms *MetricsServer) Start() error {
	slog.Info("Starting metrics server", "addr", ms.server.Addr)
	return ms.server.ListenAndServe()
}

// Shutdown gracefully stops the metrics server.
func (ms *MetricsServer) Shutdown(ctx context.Context) error {
	return ms.server.Shutdown(ctx)
}
