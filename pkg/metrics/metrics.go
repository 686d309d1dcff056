package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Booking related metrics
	Bookings        *prometheus.CounterVec
	ScheduleChanges *prometheus.CounterVec
	ScheduleBlocks  *prometheus.CounterVec

	// Reminder sweep metrics
	RemindersSent      *prometheus.CounterVec
	SweepDuration      prometheus.Histogram
	ReminderClaimsLost prometheus.Counter

	// Database metrics
	DatabaseOperations *prometheus.CounterVec
	DatabaseRetries    prometheus.Counter

	// Broker metrics
	BrokerPublishes *prometheus.CounterVec
}

// NewMetrics creates and registers all application metrics on reg. A nil
// registerer uses the default prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		Bookings: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointment_bookings_total",
			Help:      "Appointment booking attempts by result",
		}, []string{"result"}),
		ScheduleChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedule_changes_total",
			Help:      "Schedule create, update and delete operations by result",
		}, []string{"operation", "result"}),
		ScheduleBlocks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedule_blocks_total",
			Help:      "Block time requests by outcome",
		}, []string{"result"}),

		RemindersSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_sent_total",
			Help:      "Reminders dispatched by kind and status",
		}, []string{"kind", "status"}),
		SweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reminder_sweep_duration_seconds",
			Help:      "Time spent in one reminder sweep",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		ReminderClaimsLost: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminder_claims_lost_total",
			Help:      "Due reminders already claimed by another sweep",
		}),

		DatabaseOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_operations_total",
			Help:      "Total number of database transactions",
		}, []string{"operation", "status"}),
		DatabaseRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_retries_total",
			Help:      "Transactions retried after a transient failure",
		}),

		BrokerPublishes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broker_publishes_total",
			Help:      "Messages published to the notification broker",
		}, []string{"status"}),
	}
}

// New builds metrics on a private registry, for tests and tools.
func New(namespace string) *Metrics {
	return NewMetrics(namespace, prometheus.NewRegistry())
}

func (m *Metrics) ObserveBooking(result string) {
	if m == nil {
		return
	}
	m.Bookings.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveScheduleChange(operation, result string) {
	if m == nil {
		return
	}
	m.ScheduleChanges.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) ObserveBlock(result string) {
	if m == nil {
		return
	}
	m.ScheduleBlocks.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveReminder(kind, status string) {
	if m == nil {
		return
	}
	m.RemindersSent.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) ObserveClaimLost() {
	if m == nil {
		return
	}
	m.ReminderClaimsLost.Inc()
}

func (m *Metrics) ObserveDatabase(operation, status string) {
	if m == nil {
		return
	}
	m.DatabaseOperations.WithLabelValues(operation, status).Inc()
}

func (m *Metrics) ObserveRetry() {
	if m == nil {
		return
	}
	m.DatabaseRetries.Inc()
}

func (m *Metrics) ObservePublish(status string) {
	if m == nil {
		return
	}
	m.BrokerPublishes.WithLabelValues(status).Inc()
}

// Result maps an error to the label used on counters.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
