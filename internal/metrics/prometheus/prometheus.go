package prometheus

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/slok/taskbroker/internal/metrics"
)

const namespace = "taskbroker"

// Recorder is a Prometheus metrics.Recorder.
type Recorder struct {
	transitions   *prometheus.CounterVec
	gatewayCalls  *prometheus.HistogramVec
	webhooks      *prometheus.CounterVec
	notifications *prometheus.CounterVec
	httpRequests  *prometheus.HistogramVec
}

var _ metrics.Recorder = &Recorder{}

// NewRecorder registers the broker metrics on reg and returns the recorder.
// A nil reg uses the default Prometheus registerer.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Recorder{
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Total task actions by result.",
		}, []string{"action", "result"}),

		gatewayCalls: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "call_duration_seconds",
			Help:      "Payment gateway call duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "result"}),

		webhooks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "webhooks_total",
			Help:      "Total gateway webhooks received by result.",
		}, []string{"event", "result"}),

		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "notifications_total",
			Help:      "Total notifications delivered to sinks by result.",
		}, []string{"sink", "result"}),

		httpRequests: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP API request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "code"}),
	}
}

func (r *Recorder) ObserveTransition(_ context.Context, action, result string) {
	r.transitions.WithLabelValues(action, result).Inc()
}

func (r *Recorder) ObserveGatewayCall(_ context.Context, op, result string, duration time.Duration) {
	r.gatewayCalls.WithLabelValues(op, result).Observe(duration.Seconds())
}

func (r *Recorder) ObserveWebhook(_ context.Context, eventType, result string) {
	r.webhooks.WithLabelValues(eventType, result).Inc()
}

func (r *Recorder) ObserveNotification(_ context.Context, sink, result string) {
	r.notifications.WithLabelValues(sink, result).Inc()
}

func (r *Recorder) ObserveHTTPRequest(_ context.Context, method, route string, status int, duration time.Duration) {
	r.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Observe(duration.Seconds())
}
