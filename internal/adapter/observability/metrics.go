package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "Total number of AI requests by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)
	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "AI request duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"provider"},
	)
	AIPromptTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_prompt_tokens_total",
			Help: "Total prompt tokens sent by provider",
		},
		[]string{"provider"},
	)
	AICompletionTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_completion_tokens_total",
			Help: "Total completion tokens received by provider",
		},
		[]string{"provider"},
	)

	AnalysesStartedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analyses_started_total",
			Help: "Total number of analyses started by mode",
		},
		[]string{"mode"},
	)
	AnalysesCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analyses_completed_total",
			Help: "Total number of analyses completed by mode",
		},
		[]string{"mode"},
	)
	AnalysesFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analyses_failed_total",
			Help: "Total number of analyses failed by mode",
		},
		[]string{"mode"},
	)
	ChunkFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "analysis_chunk_failures_total",
			Help: "Total number of chunk pipelines that failed and were excluded from synthesis",
		},
	)

	// Outcome distribution
	OverallScoreHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "analysis_overall_score",
			Help:    "Distribution of overall scores ([0,100])",
			Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)
)

// InitMetrics registers all Prometheus metrics once per process.
func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(AIRequestsTotal)
	prometheus.MustRegister(AIRequestDuration)
	prometheus.MustRegister(AIPromptTokens)
	prometheus.MustRegister(AICompletionTokens)
	prometheus.MustRegister(AnalysesStartedTotal)
	prometheus.MustRegister(AnalysesCompletedTotal)
	prometheus.MustRegister(AnalysesFailedTotal)
	prometheus.MustRegister(ChunkFailuresTotal)
	prometheus.MustRegister(OverallScoreHistogram)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}

// StartAnalysis records the beginning of an analysis for the given mode.
func StartAnalysis(mode string) { AnalysesStartedTotal.WithLabelValues(mode).Inc() }

// CompleteAnalysis records a completed analysis and its overall score.
func CompleteAnalysis(mode string, overallScore int) {
	AnalysesCompletedTotal.WithLabelValues(mode).Inc()
	OverallScoreHistogram.Observe(float64(overallScore))
}

// FailAnalysis records a failed analysis for the given mode.
func FailAnalysis(mode string) { AnalysesFailedTotal.WithLabelValues(mode).Inc() }
