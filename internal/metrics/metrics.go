package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/notifyhub/notification-relay/internal/domain"
	"github.com/notifyhub/notification-relay/internal/queue"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	Submitted         prometheus.Counter
	Rejected          *prometheus.CounterVec
	Processed         *prometheus.CounterVec
	Dropped           prometheus.Counter
	StoreErrors       prometheus.Counter
	Redelivered       prometheus.Counter
	ProcessingLatency prometheus.Histogram
	Forwarded         *prometheus.CounterVec
	BrokerState       prometheus.Gauge
}

// New registers all instruments with the given Prometheus registerer.
// A custom registry (instead of prometheus.DefaultRegisterer) keeps tests
// isolated.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notifications_submitted_total",
			Help: "Notifications accepted by intake and published to the inbound queue.",
		}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_rejected_total",
			Help: "Submissions refused by intake, by reason.",
		}, []string{"reason"}),
		Processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_processed_total",
			Help: "Notifications that reached a terminal status, by status.",
		}, []string{"status"}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notifications_dropped_total",
			Help: "Malformed inbound messages nacked without requeue.",
		}),
		StoreErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "status_store_errors_total",
			Help: "Status updates that failed after a decision was made; the message was still acked.",
		}),
		Redelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notifications_redelivered_total",
			Help: "Inbound messages whose record was already final; the first outcome was kept.",
		}),
		ProcessingLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "notification_processing_seconds",
			Help:    "Time from delivery to ack, including simulated work.",
			Buckets: prometheus.DefBuckets,
		}),
		Forwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "status_events_forwarded_total",
			Help: "Status events relayed to the external webhook, by result.",
		}, []string{"result"}),
		BrokerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "broker_state",
			Help: "Broker connection state: 0 disconnected, 1 connecting, 2 ready.",
		}),
	}

	reg.MustRegister(
		m.Submitted,
		m.Rejected,
		m.Processed,
		m.Dropped,
		m.StoreErrors,
		m.Redelivered,
		m.ProcessingLatency,
		m.Forwarded,
		m.BrokerState,
	)

	return m
}

// RegisterStoreSize exposes the number of records held by the status store.
func RegisterStoreSize(reg prometheus.Registerer, size func() float64) {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "status_store_records",
		Help: "Records currently held by the status store.",
	}, size))
}

// BrokerStateHook returns the callback expected by queue.AMQPOptions.OnStateChange.
func (m *Metrics) BrokerStateHook() func(queue.State) {
	return func(s queue.State) {
		m.BrokerState.Set(float64(s))
	}
}

// IntakeHooks returns the callbacks expected by service.MetricHooks.
func (m *Metrics) IntakeHooks() (
	onSubmitted func(),
	onRejected func(reason string),
) {
	onSubmitted = func() { m.Submitted.Inc() }
	onRejected = func(reason string) { m.Rejected.WithLabelValues(reason).Inc() }
	return
}

// WorkerHooks returns the callbacks expected by worker.MetricHooks.
// Centralises the prometheus calls so the worker package stays import-free.
func (m *Metrics) WorkerHooks() (
	onProcessed func(domain.Status, time.Duration),
	onDropped func(),
	onStoreError func(),
	onRedelivered func(),
) {
	onProcessed = func(s domain.Status, latency time.Duration) {
		m.Processed.WithLabelValues(string(s)).Inc()
		m.ProcessingLatency.Observe(latency.Seconds())
	}
	onDropped = func() { m.Dropped.Inc() }
	onStoreError = func() { m.StoreErrors.Inc() }
	onRedelivered = func() { m.Redelivered.Inc() }
	return
}

// ForwarderHook returns the callback expected by worker.StatusForwarder.
func (m *Metrics) ForwarderHook() func(ok bool) {
	return func(ok bool) {
		result := "delivered"
		if !ok {
			result = "dropped"
		}
		m.Forwarded.WithLabelValues(result).Inc()
	}
}
