package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	saveDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	bodySizeBuckets     = []float64{100, 1024, 10240, 102400, 1048576}
	rowCountBuckets     = []float64{1, 2, 5, 10, 25, 50, 100}
)

// Metrics holds all Prometheus metric instruments for the designer backend.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Layout persistence metrics
	LayoutSavesTotal    *prometheus.CounterVec
	LayoutSaveDuration  *prometheus.HistogramVec
	SaveDedupsTotal     prometheus.Counter
	SaveConflictsTotal  prometheus.Counter

	// Conversion and mutation metrics
	LayoutConversionsTotal *prometheus.CounterVec
	LayoutMutationsTotal   *prometheus.CounterVec

	// Repeating group metrics
	GroupExpansionsTotal prometheus.Counter
	GroupRowsExpanded    prometheus.Histogram

	// Validation metrics
	ValidationMappingsTotal *prometheus.CounterVec

	// System metrics
	LayoutReloadTotal      *prometheus.CounterVec
	LayoutSetsLoaded       prometheus.Gauge
	DataModelFieldsIndexed *prometheus.GaugeVec
	EditorSessionsActive   prometheus.Gauge
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forma_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "forma_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPRequestSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "forma_http_request_size_bytes",
			Help:    "HTTP request body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "forma_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		// Persistence
		LayoutSavesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forma_layout_saves_total",
			Help: "Total number of layout save attempts.",
		}, []string{"status"}),
		LayoutSaveDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "forma_layout_save_duration_seconds",
			Help:    "Layout save duration in seconds.",
			Buckets: saveDurationBuckets,
		}, []string{"driver"}),
		SaveDedupsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forma_save_dedups_total",
			Help: "Total number of saves answered from the idempotency store.",
		}),
		SaveConflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forma_save_conflicts_total",
			Help: "Total number of optimistic-lock save conflicts.",
		}),

		// Conversion and mutation
		LayoutConversionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forma_layout_conversions_total",
			Help: "Total number of layout format conversions.",
		}, []string{"direction"}),
		LayoutMutationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forma_layout_mutations_total",
			Help: "Total number of layout tree mutations.",
		}, []string{"operation"}),

		// Repeating groups
		GroupExpansionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forma_group_expansions_total",
			Help: "Total number of repeating group preview expansions.",
		}),
		GroupRowsExpanded: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "forma_group_rows_expanded",
			Help:    "Number of rows produced per group expansion.",
			Buckets: rowCountBuckets,
		}),

		// Validation
		ValidationMappingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forma_validation_mappings_total",
			Help: "Total number of validation-to-component mapping runs.",
		}, []string{"status"}),

		// System
		LayoutReloadTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forma_layout_reload_total",
			Help: "Total layout set reloads from disk.",
		}, []string{"status"}),
		LayoutSetsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "forma_layout_sets_loaded",
			Help: "Number of loaded layout sets.",
		}),
		DataModelFieldsIndexed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "forma_datamodel_fields_indexed",
			Help: "Number of indexed data model fields.",
		}, []string{"data_type"}),
		EditorSessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "forma_editor_sessions_active",
			Help: "Number of live editing sessions.",
		}),
	}

	reg.MustRegister(
		// HTTP
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSizeBytes,
		// Persistence
		m.LayoutSavesTotal,
		m.LayoutSaveDuration,
		m.SaveDedupsTotal,
		m.SaveConflictsTotal,
		// Conversion and mutation
		m.LayoutConversionsTotal,
		m.LayoutMutationsTotal,
		// Repeating groups
		m.GroupExpansionsTotal,
		m.GroupRowsExpanded,
		// Validation
		m.ValidationMappingsTotal,
		// System
		m.LayoutReloadTotal,
		m.LayoutSetsLoaded,
		m.DataModelFieldsIndexed,
		m.EditorSessionsActive,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, reqSize, respSize int) {
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPRequestSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(reqSize))
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordLayoutSave records a layout save attempt.
func (m *Metrics) RecordLayoutSave(driver, status string, duration time.Duration) {
	m.LayoutSavesTotal.WithLabelValues(status).Inc()
	m.LayoutSaveDuration.WithLabelValues(driver).Observe(duration.Seconds())
}

// RecordSaveDedup records a save answered from the idempotency store.
func (m *Metrics) RecordSaveDedup() {
	m.SaveDedupsTotal.Inc()
}

// RecordSaveConflict records an optimistic-lock conflict.
func (m *Metrics) RecordSaveConflict() {
	m.SaveConflictsTotal.Inc()
}

// RecordConversion records a layout format conversion. Direction is either
// "to_internal" or "to_external".
func (m *Metrics) RecordConversion(direction string) {
	m.LayoutConversionsTotal.WithLabelValues(direction).Inc()
}

// RecordMutation records a layout tree mutation by operation name.
func (m *Metrics) RecordMutation(operation string) {
	m.LayoutMutationsTotal.WithLabelValues(operation).Inc()
}

// RecordGroupExpansion records one repeating group expansion.
func (m *Metrics) RecordGroupExpansion(rows int) {
	m.GroupExpansionsTotal.Inc()
	m.GroupRowsExpanded.Observe(float64(rows))
}

// RecordValidationMapping records a validation mapping run.
func (m *Metrics) RecordValidationMapping(status string) {
	m.ValidationMappingsTotal.WithLabelValues(status).Inc()
}

// RecordLayoutReload records a layout set reload from disk.
func (m *Metrics) RecordLayoutReload(status string) {
	m.LayoutReloadTotal.WithLabelValues(status).Inc()
}

// SetLayoutSetsLoaded sets the number of loaded layout sets.
func (m *Metrics) SetLayoutSetsLoaded(count float64) {
	m.LayoutSetsLoaded.Set(count)
}

// SetDataModelFieldsIndexed sets the number of indexed fields for a data type.
func (m *Metrics) SetDataModelFieldsIndexed(dataType string, count float64) {
	m.DataModelFieldsIndexed.WithLabelValues(dataType).Set(count)
}

// SetEditorSessionsActive sets the number of live editing sessions.
func (m *Metrics) SetEditorSessionsActive(count float64) {
	m.EditorSessionsActive.Set(count)
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		duration := time.Since(start)
		pathPattern := routePattern(r)
		reqSize := 0
		if r.ContentLength > 0 {
			reqSize = int(r.ContentLength)
		}

		m.RecordHTTPRequest(r.Method, pathPattern, sw.status, duration, reqSize, sw.bytes)
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	// chi route patterns have trailing /*, remove it.
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture status and bytes.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
