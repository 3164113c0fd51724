package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector owns a private Prometheus registry and the service's
// metrics. One instance is created at startup and handed to whatever
// needs to record.
type MetricsCollector struct {
	registry *prometheus.Registry
	handler  http.Handler

	requests     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	uploads      *prometheus.CounterVec
	files        prometheus.Gauge
	storageBytes prometheus.Gauge
}

// InitMetrics builds the registry and registers all collectors on it.
func InitMetrics() (*MetricsCollector, error) {
	reg := prometheus.NewRegistry()

	mc := &MetricsCollector{
		registry: reg,
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"endpoint", "code"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_latency_seconds",
				Help:    "Request latency",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"endpoint"},
		),
		uploads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "photo_uploads_total",
				Help: "Uploads by outcome",
			},
			[]string{"result"},
		),
		files: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "photo_files_total",
			Help: "Files currently in the storage root",
		}),
		storageBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "photo_storage_bytes",
			Help: "Total size of files in the storage root",
		}),
	}

	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		mc.requests,
		mc.latency,
		mc.uploads,
		mc.files,
		mc.storageBytes,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	mc.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	return mc, nil
}

// Instrument wraps next so each request increments the request counter and
// observes latency under the given endpoint label.
func (mc *MetricsCollector) Instrument(endpoint string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		mc.requests.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
		mc.latency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	})
}

// RecordUpload counts an upload outcome ("ok", "invalid", "too_large", "cancelled", "error").
func (mc *MetricsCollector) RecordUpload(result string) {
	mc.uploads.WithLabelValues(result).Inc()
}

func (mc *MetricsCollector) SetStorageUsage(files int, bytes int64) {
	mc.files.Set(float64(files))
	mc.storageBytes.Set(float64(bytes))
}

// GetHandler returns the HTTP handler for the /metrics endpoint
func (mc *MetricsCollector) GetHandler() http.Handler {
	return mc.handler
}

func (mc *MetricsCollector) Registry() *prometheus.Registry {
	return mc.registry
}
