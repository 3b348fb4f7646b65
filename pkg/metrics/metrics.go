package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lafamilia/og-scanner/pkg/ledger"
)

// ScanCounter counts recorded scans by outcome.
type ScanCounter struct {
	scans *prometheus.CounterVec
}

// NewScanCounter creates a ScanCounter registered on reg.
func NewScanCounter(reg prometheus.Registerer) (*ScanCounter, error) {
	c := &ScanCounter{
		scans: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scans_total",
				Help: "Total number of barcode scans recorded, by outcome.",
			},
			[]string{"outcome"},
		),
	}
	if err := reg.Register(c.scans); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *ScanCounter) ObserveScan(_ context.Context, res ledger.Result) {
	if res.Outcome == ledger.OutcomeNone {
		return
	}
	c.scans.WithLabelValues(res.Outcome.String()).Inc()
}

// HTTPMiddleware counts HTTP requests by method, route pattern and status.
type HTTPMiddleware struct {
	requestCount *prometheus.CounterVec
}

// NewHTTPMiddleware creates an HTTPMiddleware registered on reg.
func NewHTTPMiddleware(reg prometheus.Registerer) (*HTTPMiddleware, error) {
	m := &HTTPMiddleware{
		requestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests processed.",
			},
			[]string{"method", "path", "status"},
		),
	}
	if err := reg.Register(m.requestCount); err != nil {
		return nil, err
	}
	return m, nil
}

// Handler returns the chi-compatible middleware.
func (m *HTTPMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		// Route pattern (/scans/{barcode}) keeps label cardinality bounded.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}

		m.requestCount.WithLabelValues(r.Method, path, strconv.Itoa(sw.status)).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
