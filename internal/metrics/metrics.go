// Package metrics declares the prometheus collectors of the service.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "parking_garage"

type Metrics struct {
	Detections           *prometheus.CounterVec
	ReservationsCreated  prometheus.Counter
	ReservationConflicts prometheus.Counter
	Reassignments        *prometheus.CounterVec
	PaymentResults       *prometheus.CounterVec
	GarageEntered        *prometheus.GaugeVec
	RetriedTransactions  prometheus.Counter
	QueueMessages        *prometheus.CounterVec
	HTTPRequests         *prometheus.HistogramVec
}

// New registers every collector with reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Detections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detections_total",
			Help:      "Licence plate detections by outcome.",
		}, []string{"source", "outcome"}),
		ReservationsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_created_total",
			Help:      "Reservations successfully created.",
		}),
		ReservationConflicts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservation_conflicts_total",
			Help:      "Reservation requests rejected because the lot was taken.",
		}),
		Reassignments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reassignments_total",
			Help:      "Reservations moved to another lot, by result.",
		}, []string{"result"}),
		PaymentResults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_results_total",
			Help:      "Payment results received for exits, by result.",
		}, []string{"result"}),
		GarageEntered: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "garage_entered_vehicles",
			Help:      "Vehicles currently inside a garage.",
		}, []string{"garage_id"}),
		RetriedTransactions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transaction_retries_total",
			Help:      "Transactions run again after a serialization failure.",
		}),
		QueueMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_messages_total",
			Help:      "Detection queue messages by result.",
		}, []string{"result"}),
		HTTPRequests: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

// NewUnregistered is for tests and tools that do not expose /metrics.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}

func (m *Metrics) ObserveDetection(source, outcome string) {
	m.Detections.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) SetEntered(garageID, entered int) {
	m.GarageEntered.WithLabelValues(strconv.Itoa(garageID)).Set(float64(entered))
}
