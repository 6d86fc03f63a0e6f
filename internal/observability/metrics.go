package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "exstem_attempt"

var (
	registerOnce sync.Once

	activeSessions      prometheus.Gauge
	submissionsTotal    *prometheus.CounterVec
	expiriesTotal       prometheus.Counter
	droppedMergesTotal  *prometheus.CounterVec
	recognitionDuration *prometheus.HistogramVec
	recognitionFailures *prometheus.CounterVec
	captureSessions     *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by attempt sessions.
func RegisterMetrics() {
	registerOnce.Do(func() {
		activeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of attempt sessions currently running.",
		})

		submissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Submission deliveries by trigger and outcome.",
		}, []string{"trigger", "outcome"})

		expiriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "countdown_expiries_total",
			Help:      "Attempts whose countdown reached zero.",
		})

		droppedMergesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_merges_total",
			Help:      "Recognition results discarded because the attempt had moved on.",
		}, []string{"reason"})

		recognitionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "recognition",
			Name:      "duration_seconds",
			Help:      "Duration of text recognition requests.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}, []string{"model"})

		recognitionFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recognition",
			Name:      "failures_total",
			Help:      "Number of failed text recognition requests.",
		}, []string{"model"})

		captureSessions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capture",
			Name:      "exits_total",
			Help:      "Live captures by exit path.",
		}, []string{"exit"})

		prometheus.MustRegister(
			activeSessions,
			submissionsTotal,
			expiriesTotal,
			droppedMergesTotal,
			recognitionDuration,
			recognitionFailures,
			captureSessions,
		)
	})
}

// ActiveSessions exposes the running-sessions gauge.
func ActiveSessions() prometheus.Gauge {
	RegisterMetrics()
	return activeSessions
}

// Submissions exposes the delivery counter.
func Submissions() *prometheus.CounterVec {
	RegisterMetrics()
	return submissionsTotal
}

// Expiries exposes the expiry counter.
func Expiries() prometheus.Counter {
	RegisterMetrics()
	return expiriesTotal
}

// DroppedMerges exposes the discarded-merge counter.
func DroppedMerges() *prometheus.CounterVec {
	RegisterMetrics()
	return droppedMergesTotal
}

// RecognitionDuration exposes the recognition latency histogram.
func RecognitionDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return recognitionDuration
}

// RecognitionFailures exposes the recognition failure counter.
func RecognitionFailures() *prometheus.CounterVec {
	RegisterMetrics()
	return recognitionFailures
}

// CaptureExits exposes the capture exit-path counter.
func CaptureExits() *prometheus.CounterVec {
	RegisterMetrics()
	return captureSessions
}
