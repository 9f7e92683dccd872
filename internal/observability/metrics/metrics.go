package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ConversationMetrics exposes counters/histograms for conversation turns.
// A nil receiver is a no-op so callers never need to guard.
type ConversationMetrics struct {
	turnsTotal     *prometheus.CounterVec
	turnDuration   *prometheus.HistogramVec
	bookingsTotal  *prometheus.CounterVec
	mergesTotal    prometheus.Counter
	newPatients    prometheus.Counter
	llmFailures    prometheus.Counter
	slotsDropped   prometheus.Counter
	conflictsTotal prometheus.Counter
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "consultorio",
			Subsystem: "conversation",
			Name:      "turns_total",
			Help:      "Total processed conversation turns",
		}, []string{"path"}),
		turnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "consultorio",
			Subsystem: "conversation",
			Name:      "turn_duration_seconds",
			Help:      "End-to-end latency of a conversation turn",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path"}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "consultorio",
			Subsystem: "conversation",
			Name:      "bookings_total",
			Help:      "Total booking operations executed",
		}, []string{"kind"}),
		mergesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "consultorio",
			Subsystem: "conversation",
			Name:      "patient_merges_total",
			Help:      "Total duplicate-DNI patient merges",
		}),
		newPatients: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "consultorio",
			Subsystem: "conversation",
			Name:      "new_patients_total",
			Help:      "Total patients created on first contact",
		}),
		llmFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "consultorio",
			Subsystem: "conversation",
			Name:      "llm_failures_total",
			Help:      "Total model calls that failed or returned garbage",
		}),
		slotsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "consultorio",
			Subsystem: "conversation",
			Name:      "hallucinated_slots_dropped_total",
			Help:      "Total model slot claims rejected by grounding",
		}),
		conflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "consultorio",
			Subsystem: "conversation",
			Name:      "slot_conflicts_total",
			Help:      "Total bookings lost to a concurrent confirmation",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.turnDuration, m.bookingsTotal, m.mergesTotal,
		m.newPatients, m.llmFailures, m.slotsDropped, m.conflictsTotal)
	return m
}

func (m *ConversationMetrics) ObserveTurn(path string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(path).Inc()
	m.turnDuration.WithLabelValues(path).Observe(elapsed.Seconds())
}

func (m *ConversationMetrics) CountBooking(kind string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(kind).Inc()
}

func (m *ConversationMetrics) CountMerge() {
	if m == nil {
		return
	}
	m.mergesTotal.Inc()
}

func (m *ConversationMetrics) CountNewPatient() {
	if m == nil {
		return
	}
	m.newPatients.Inc()
}

func (m *ConversationMetrics) CountLLMFailure() {
	if m == nil {
		return
	}
	m.llmFailures.Inc()
}

func (m *ConversationMetrics) CountDroppedSlot() {
	if m == nil {
		return
	}
	m.slotsDropped.Inc()
}

func (m *ConversationMetrics) CountSlotConflict() {
	if m == nil {
		return
	}
	m.conflictsTotal.Inc()
}
