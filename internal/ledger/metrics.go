package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for ledger writes. A nil *Metrics is a no-op.
type Metrics struct {
	movements   *prometheus.CounterVec
	amounts     *prometheus.CounterVec
	transfers   *prometheus.CounterVec
	settlements *prometheus.CounterVec
}

// NewMetrics registers the ledger collectors against registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	movements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_ledger_movements_total",
		Help: "Movements recorded partitioned by kind and direction.",
	}, []string{"kind", "direction"})
	amounts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_ledger_movement_amount_total",
		Help: "Sum of recorded movement amounts partitioned by direction.",
	}, []string{"direction"})
	transfers := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_ledger_transfers_total",
		Help: "Transfer attempts partitioned by outcome.",
	}, []string{"outcome"})
	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_ledger_settlements_total",
		Help: "Settlement attempts partitioned by bill kind and outcome.",
	}, []string{"kind", "outcome"})
	registerer.MustRegister(movements, amounts, transfers, settlements)
	return &Metrics{movements: movements, amounts: amounts, transfers: transfers, settlements: settlements}
}

// MovementRecorded counts a committed movement.
func (m *Metrics) MovementRecorded(mv Movement) {
	if m == nil {
		return
	}
	m.movements.WithLabelValues(string(mv.Kind), string(mv.Direction)).Inc()
	amount, _ := mv.Amount.Float64()
	m.amounts.WithLabelValues(string(mv.Direction)).Add(amount)
}

// TransferDone counts a transfer by the error kind it ended with.
func (m *Metrics) TransferDone(err error) {
	if m == nil {
		return
	}
	m.transfers.WithLabelValues(outcome(err)).Inc()
}

// SettlementDone counts a settlement attempt.
func (m *Metrics) SettlementDone(kind BillKind, err error) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(string(kind), outcome(err)).Inc()
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(KindOf(err))
}

