package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lafamilia/og-scanner/pkg/logger"
	"github.com/lafamilia/og-scanner/pkg/metrics"
)

// NewRouter wires the scan routes, request logging and /metrics.
func NewRouter(svc Scanner, src Lister, reg *prometheus.Registry) (http.Handler, error) {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(LoggingMiddleware(logger.Log))

	if reg != nil {
		httpMetrics, err := metrics.NewHTTPMiddleware(reg)
		if err != nil {
			return nil, err
		}
		r.Use(httpMetrics.Handler)
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/scans", func(r chi.Router) {
		r.Post("/", NewRecordScanHandler(svc))
		r.Get("/", NewHistoryHandler(src))
		r.Get("/{barcode}", NewLookupHandler(svc))
	})

	return r, nil
}
