package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "stockhold"

// Metrics groups the service collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	HoldsCreated   prometheus.Counter
	HoldsRejected  *prometheus.CounterVec
	OrdersPlaced   prometheus.Counter
	PaymentEvents  *prometheus.CounterVec
	HoldsReclaimed *prometheus.CounterVec
	StockAnomalies *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HoldsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "holds_created_total",
			Help:      "Holds successfully created.",
		}),
		HoldsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "holds_rejected_total",
			Help:      "Hold requests rejected, by reason.",
		}, []string{"reason"}),
		OrdersPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_placed_total",
			Help:      "Orders created from redeemed holds.",
		}),
		PaymentEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_events_total",
			Help:      "Payment events processed, by outcome and result.",
		}, []string{"outcome", "result"}),
		HoldsReclaimed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "holds_reclaimed_total",
			Help:      "Expired holds whose reservation was released, by trigger.",
		}, []string{"trigger"}),
		StockAnomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_anomalies_total",
			Help:      "Ledger clamps applied because reserved stock was short.",
		}, []string{"operation"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.HoldsCreated,
			m.HoldsRejected,
			m.OrdersPlaced,
			m.PaymentEvents,
			m.HoldsReclaimed,
			m.StockAnomalies,
		)
	}
	return m
}

func (m *Metrics) HoldCreated() {
	if m == nil {
		return
	}
	m.HoldsCreated.Inc()
}

func (m *Metrics) HoldRejected(reason string) {
	if m == nil {
		return
	}
	m.HoldsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) OrderPlaced() {
	if m == nil {
		return
	}
	m.OrdersPlaced.Inc()
}

func (m *Metrics) PaymentEvent(outcome, result string) {
	if m == nil {
		return
	}
	m.PaymentEvents.WithLabelValues(outcome, result).Inc()
}

func (m *Metrics) HoldReclaimed(trigger string) {
	if m == nil {
		return
	}
	m.HoldsReclaimed.WithLabelValues(trigger).Inc()
}

func (m *Metrics) StockAnomaly(operation string) {
	if m == nil {
		return
	}
	m.StockAnomalies.WithLabelValues(operation).Inc()
}
