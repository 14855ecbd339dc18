package chat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes room and session counters. A nil *Metrics records nothing.
type Metrics struct {
	members     prometheus.Gauge
	backlog     prometheus.Gauge
	delivered   prometheus.Counter
	sessions    *prometheus.CounterVec
	disconnects *prometheus.CounterVec
}

// NewMetrics registers the chat metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		members: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "fchat",
			Name:      "room_members",
			Help:      "Number of sessions currently joined to the room",
		}),
		backlog: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "fchat",
			Name:      "room_backlog_messages",
			Help:      "Number of messages held for replay to new members",
		}),
		delivered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "fchat",
			Name:      "room_delivered_total",
			Help:      "Total number of messages delivered to the room",
		}),
		sessions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fchat",
			Name:      "sessions_total",
			Help:      "Total number of sessions started, by transport",
		}, []string{"transport"}),
		disconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fchat",
			Name:      "session_disconnects_total",
			Help:      "Total number of sessions ended, by reason",
		}, []string{"reason"}),
	}
}

func (m *Metrics) setMembers(n int) {
	if m != nil {
		m.members.Set(float64(n))
	}
}

func (m *Metrics) setBacklog(n int) {
	if m != nil {
		m.backlog.Set(float64(n))
	}
}

func (m *Metrics) incDelivered() {
	if m != nil {
		m.delivered.Inc()
	}
}

func (m *Metrics) sessionStarted(transport string) {
	if m != nil {
		m.sessions.WithLabelValues(transport).Inc()
	}
}

func (m *Metrics) sessionEnded(reason string) {
	if m != nil {
		m.disconnects.WithLabelValues(reason).Inc()
	}
}
