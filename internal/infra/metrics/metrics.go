package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the purchase lifecycle collectors. A nil *Metrics is a valid no-op sink.
type Metrics struct {
	paymentsCreated *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	webhookEvents   *prometheus.CounterVec
	deliveryBatches *prometheus.CounterVec
	jobRuns         *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	messagesDeleted *prometheus.CounterVec
}

func New(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		paymentsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payments_created_total",
				Help: "Payment codes issued, by gateway mode.",
			},
			[]string{"mode"},
		),
		transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_transitions_total",
				Help: "Applied status transitions of purchases and transactions.",
			},
			[]string{"entity", "status"},
		),
		webhookEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webhook_events_total",
				Help: "Provider webhook deliveries by event type and outcome.",
			},
			[]string{"type", "result"},
		),
		deliveryBatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "delivery_batches_total",
				Help: "Content batches sent to buyers.",
			},
			[]string{"result"},
		),
		jobRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "job_runs_total",
				Help: "Scheduler job executions by outcome.",
			},
			[]string{"job", "result"},
		),
		jobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "job_duration_seconds",
				Help:    "Scheduler job execution time including retries.",
				Buckets: prometheus.ExponentialBuckets(0.05, 4, 8),
			},
			[]string{"job"},
		),
		messagesDeleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "content_messages_deleted_total",
				Help: "Delivered messages retracted by the expiration sweep.",
			},
			[]string{"result"},
		),
	}
}

func (m *Metrics) PaymentCreated(simulated bool) {
	if m == nil {
		return
	}
	mode := "live"
	if simulated {
		mode = "simulated"
	}
	m.paymentsCreated.WithLabelValues(mode).Inc()
}

func (m *Metrics) Transition(entity, status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(entity, status).Inc()
}

func (m *Metrics) WebhookEvent(eventType, result string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(eventType, result).Inc()
}

func (m *Metrics) DeliveryBatch(ok bool) {
	if m == nil {
		return
	}
	m.deliveryBatches.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) JobRun(job string, ok bool, took time.Duration) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job, result(ok)).Inc()
	m.jobDuration.WithLabelValues(job).Observe(took.Seconds())
}

func (m *Metrics) MessageDeleted(ok bool) {
	if m == nil {
		return
	}
	m.messagesDeleted.WithLabelValues(result(ok)).Inc()
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
