package interceptors

import (
	"log"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"print-relay/internal/platform/httpx"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Telemetry returns middleware that records request count and duration per route.
// skipPaths is the set of request paths to not record (e.g. health probes).
func Telemetry(skipPaths map[string]bool) func(http.Handler) http.Handler {
	meter := otel.Meter("print-relay/http")
	requests, err := meter.Int64Counter("http.server.requests",
		metric.WithDescription("Inbound HTTP requests by path and status."))
	if err != nil {
		log.Printf("telemetry: register request counter: %v", err)
	}
	duration, err := meter.Float64Histogram("http.server.duration",
		metric.WithDescription("Inbound HTTP request duration."),
		metric.WithUnit("ms"))
	if err != nil {
		log.Printf("telemetry: register duration histogram: %v", err)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			elapsed := time.Since(start)
			attrs := metric.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.path", r.URL.Path),
				attribute.Int("http.status_code", rec.status),
			)
			if requests != nil {
				requests.Add(r.Context(), 1, attrs)
			}
			if duration != nil {
				duration.Record(r.Context(), float64(elapsed.Milliseconds()), attrs)
			}
			if rec.status >= http.StatusInternalServerError {
				log.Printf("http: %s %s from %s returned %d in %s", r.Method, r.URL.Path, httpx.ClientIP(r), rec.status, elapsed)
			}
		})
	}
}
