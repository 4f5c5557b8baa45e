package catalogserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	results  prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coursesearch",
			Subsystem: "catalog",
			Name:      "requests_total",
			Help:      "Data service requests by endpoint, method and status code.",
		}, []string{"endpoint", "method", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "coursesearch",
			Subsystem: "catalog",
			Name:      "request_duration_seconds",
			Help:      "Data service request latency by endpoint.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		results: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "coursesearch",
			Subsystem: "catalog",
			Name:      "search_results",
			Help:      "Number of courses returned per search.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250},
		}),
	}
	reg.MustRegister(m.requests, m.duration, m.results)
	return m
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (m *metrics) instrument(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next(rec, r)
		m.duration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		m.requests.WithLabelValues(endpoint, r.Method, strconv.Itoa(rec.status)).Inc()
	}
}
