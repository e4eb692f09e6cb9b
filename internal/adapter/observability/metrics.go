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

	SubmissionsSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "submissions_submitted_total",
			Help: "Total number of submissions relayed to a remote judge",
		},
		[]string{"oj"},
	)
	SubmissionsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "submissions_failed_total",
			Help: "Total number of submissions that ended in an error verdict",
		},
		[]string{"oj", "reason"},
	)
	VerdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verdicts_total",
			Help: "Total number of terminal verdicts committed",
		},
		[]string{"oj", "verdict"},
	)
	PollAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "status_poll_attempts",
			Help:    "Number of status polls needed before a terminal verdict",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34, 55, 89, 120},
		},
	)
	RunningSubmitters = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "running_submitters",
			Help: "Number of live submitter workers per OJ",
		},
		[]string{"oj"},
	)
	ProblemsRefreshedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "problems_refreshed_total",
			Help: "Total number of problem records upserted by the crawler",
		},
		[]string{"oj"},
	)
	QueueCorruptPayloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_corrupt_payloads_total",
			Help: "Total number of corrupt durable-queue payloads dropped",
		},
		[]string{"queue"},
	)
)

// InitMetrics registers all collectors; call once per process.
func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(SubmissionsSubmittedTotal)
	prometheus.MustRegister(SubmissionsFailedTotal)
	prometheus.MustRegister(VerdictsTotal)
	prometheus.MustRegister(PollAttempts)
	prometheus.MustRegister(RunningSubmitters)
	prometheus.MustRegister(ProblemsRefreshedTotal)
	prometheus.MustRegister(QueueCorruptPayloadsTotal)
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
		HTTPRequestsTotal.WithLabelValues(route, r.Method, http.StatusText(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(dur)
	})
}

func SubmissionSubmitted(oj string) { SubmissionsSubmittedTotal.WithLabelValues(oj).Inc() }

func SubmissionFailed(oj, reason string) { SubmissionsFailedTotal.WithLabelValues(oj, reason).Inc() }

func VerdictCommitted(oj, verdict string) { VerdictsTotal.WithLabelValues(oj, verdict).Inc() }

func ProblemRefreshed(oj string) { ProblemsRefreshedTotal.WithLabelValues(oj).Inc() }

func CorruptPayload(queue string) { QueueCorruptPayloadsTotal.WithLabelValues(queue).Inc() }
