package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Result label values.
const (
	ResultOK       = "ok"
	ResultError    = "error"
	ResultRejected = "rejected"
)

// Notification direction label values.
const (
	DirectionSent     = "sent"
	DirectionReceived = "received"
)

var (
	registerOnce sync.Once

	sessionRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "oxixenon",
			Subsystem: "session",
			Name:      "requests_total",
			Help:      "Session requests handled by the server.",
		},
		[]string{"packet", "result"},
	)
	sessionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "oxixenon",
			Subsystem: "session",
			Name:      "request_duration_seconds",
			Help:      "Session request handling duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"packet"},
	)
	renewals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "oxixenon",
			Name:      "renewals_total",
			Help:      "IP renewal attempts by outcome.",
		},
		[]string{"result"},
	)
	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "oxixenon",
			Name:      "notifications_total",
			Help:      "Notifier events sent or received.",
		},
		[]string{"direction", "result"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "oxixenon",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total status endpoint HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "oxixenon",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Status endpoint request duration in seconds.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5},
		},
		[]string{"path"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(sessionRequests, sessionDuration, renewals, notifications, httpRequests, httpDuration)
	})
}

func RecordSessionRequest(packet, result string, duration time.Duration) {
	RegisterMetrics()
	sessionRequests.WithLabelValues(packet, result).Inc()
	sessionDuration.WithLabelValues(packet).Observe(duration.Seconds())
}

func RecordRenewal(result string) {
	RegisterMetrics()
	renewals.WithLabelValues(result).Inc()
}

func RecordNotification(direction string, err error) {
	RegisterMetrics()
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	notifications.WithLabelValues(direction, result).Inc()
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(path).Observe(duration.Seconds())
}

// Recorder adapts the package-level recorders to the session server hooks.
type Recorder struct{}

func (Recorder) SessionRequest(packet, result string, duration time.Duration) {
	RecordSessionRequest(packet, result, duration)
}

func (Recorder) Renewal(result string) {
	RecordRenewal(result)
}
