// Package metrics exposes Prometheus instrumentation for session lifecycle and
// API traffic. A nil *Recorder is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the collectors registered by New.
type Recorder struct {
	sessionsActive  prometheus.Gauge
	launchDuration  prometheus.Histogram
	launchFailures  prometheus.Counter
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "testbed_sessions_active",
			Help: "Number of browser sessions currently mapped to a worker.",
		}),
		launchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "testbed_session_launch_seconds",
			Help:    "Time taken to launch a browser session.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		launchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "testbed_session_launch_failures_total",
			Help: "Total number of failed browser session launches.",
		}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "testbed_http_requests_total",
			Help: "Total number of API requests issued, by method and status.",
		}, []string{"method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "testbed_http_request_duration_seconds",
			Help:    "API request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}

	reg.MustRegister(
		r.sessionsActive,
		r.launchDuration,
		r.launchFailures,
		r.requestsTotal,
		r.requestDuration,
	)
	return r
}

// SessionLaunched records a successful launch that took d.
func (r *Recorder) SessionLaunched(d time.Duration) {
	if r == nil {
		return
	}
	r.launchDuration.Observe(d.Seconds())
	r.sessionsActive.Inc()
}

// SessionLaunchFailed records a failed launch.
func (r *Recorder) SessionLaunchFailed() {
	if r == nil {
		return
	}
	r.launchFailures.Inc()
}

// SessionReleased records a session leaving the worker map.
func (r *Recorder) SessionReleased() {
	if r == nil {
		return
	}
	r.sessionsActive.Dec()
}

// Request records one API call. status 0 means a transport failure.
func (r *Recorder) Request(method string, status int, d time.Duration) {
	if r == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	r.requestsTotal.WithLabelValues(method, label).Inc()
	r.requestDuration.WithLabelValues(method).Observe(d.Seconds())
}
