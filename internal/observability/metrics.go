package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "telectl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "telectl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	packetsLogged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "telectl",
			Subsystem: "router",
			Name:      "packets_logged_total",
			Help:      "Packets built and dispatched by Log.",
		},
		[]string{"node", "type"},
	)
	packetsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "telectl",
			Subsystem: "router",
			Name:      "packets_received_total",
			Help:      "Packets decoded and dispatched by Receive.",
		},
		[]string{"node", "type"},
	)
	transmits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "telectl",
			Subsystem: "router",
			Name:      "transmits_total",
			Help:      "Remote transmit callback invocations.",
		},
		[]string{"node", "success"},
	)
	handlerCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "telectl",
			Subsystem: "router",
			Name:      "handler_invocations_total",
			Help:      "Local endpoint handler invocations.",
		},
		[]string{"node", "endpoint", "success"},
	)
	dispatchErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "telectl",
			Subsystem: "router",
			Name:      "dispatch_errors_total",
			Help:      "Dispatch failures by stage.",
		},
		[]string{"node", "stage"},
	)
	transmitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "telectl",
			Subsystem: "transport",
			Name:      "send_duration_seconds",
			Help:      "Time spent writing one frame to the remote link.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "success"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			packetsLogged, packetsReceived, transmits, handlerCalls, dispatchErrors,
			transmitDuration,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordLogged(node, dataType string) {
	RegisterMetrics()
	packetsLogged.WithLabelValues(node, dataType).Inc()
}

func RecordReceived(node, dataType string) {
	RegisterMetrics()
	packetsReceived.WithLabelValues(node, dataType).Inc()
}

func RecordTransmit(node string, success bool) {
	RegisterMetrics()
	transmits.WithLabelValues(node, strconv.FormatBool(success)).Inc()
}

func RecordHandler(node, endpoint string, success bool) {
	RegisterMetrics()
	handlerCalls.WithLabelValues(node, endpoint, strconv.FormatBool(success)).Inc()
}

// RecordDispatchError counts a failure at stage: encode, decode, validate,
// handler or transmit.
func RecordDispatchError(node, stage string) {
	RegisterMetrics()
	dispatchErrors.WithLabelValues(node, stage).Inc()
}

func RecordSend(node string, duration time.Duration, success bool) {
	RegisterMetrics()
	transmitDuration.WithLabelValues(node, strconv.FormatBool(success)).Observe(duration.Seconds())
}
