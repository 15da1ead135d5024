// Package metrics records Prometheus HTTP metrics.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/swiftie-vault/eastereggs/media"
)

const unmatchedPath = "unmatched"

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eastereggs",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "eastereggs",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "eastereggs",
			Name:      "http_requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		},
	)

	uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eastereggs",
			Name:      "media_uploads_total",
			Help:      "Media uploads by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
)

type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}

	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

type patternKey struct{}

type patternHolder struct {
	pattern string
}

// Middleware records request counts and latencies labelled by the matched
// ServeMux pattern, so path parameters do not explode label cardinality.
// The pattern is reported by Routes, which must wrap the mux itself.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		holder := &patternHolder{}
		r = r.WithContext(context.WithValue(r.Context(), patternKey{}, holder))

		wrapped := newResponseWriter(w)
		next.ServeHTTP(wrapped, r)

		path := holder.pattern
		if path == "" {
			path = unmatchedPath
		}

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// Routes passes the pattern matched by mux back to Middleware. Requests are
// copied by every middleware in between, so r.Pattern is not visible outside.
func Routes(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mux.ServeHTTP(w, r)

		if holder, ok := r.Context().Value(patternKey{}).(*patternHolder); ok {
			holder.pattern = r.Pattern
		}
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func ObserveUpload(kind string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}

	uploadsTotal.WithLabelValues(kind, outcome).Inc()
}

type instrumentedUploader struct {
	next media.Uploader
}

// InstrumentUploader counts uploads made through next.
func InstrumentUploader(next media.Uploader) media.Uploader {
	return &instrumentedUploader{next: next}
}

func (u *instrumentedUploader) Upload(ctx context.Context, upload media.Upload) (string, error) {
	publicURL, err := u.next.Upload(ctx, upload)
	ObserveUpload(string(upload.Kind), err)

	return publicURL, err
}

func (u *instrumentedUploader) Delete(ctx context.Context, publicURL string) error {
	return u.next.Delete(ctx, publicURL)
}
