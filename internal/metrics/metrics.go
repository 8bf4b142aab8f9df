package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/DoyleJ11/tournament-voting-backend/internal/engine"
)

// Metrics counts tournament activity. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	VotesCast        prometheus.Counter
	RejectedCommands *prometheus.CounterVec
	RoundsResolved   *prometheus.CounterVec
	WinnersDeclared  prometheus.Counter
	ActiveLobbies    prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		VotesCast: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tournament",
			Name:      "votes_cast_total",
			Help:      "Ballots accepted across all tournaments.",
		}),
		RejectedCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tournament",
			Name:      "rejected_commands_total",
			Help:      "Commands refused by the engine, by command type.",
		}, []string{"command"}),
		RoundsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tournament",
			Name:      "rounds_resolved_total",
			Help:      "Rounds closed, by outcome.",
		}, []string{"outcome"}),
		WinnersDeclared: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tournament",
			Name:      "winners_declared_total",
			Help:      "Tournaments that reached a single winner.",
		}),
		ActiveLobbies: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tournament",
			Name:      "active_lobbies",
			Help:      "Tournaments currently held in memory.",
		}),
	}
	reg.MustRegister(m.VotesCast, m.RejectedCommands, m.RoundsResolved, m.WinnersDeclared, m.ActiveLobbies)
	return m
}

// Observe records the events produced by one accepted command.
func (m *Metrics) Observe(events []engine.Event) {
	if m == nil {
		return
	}
	for _, e := range events {
		switch e.Type {
		case engine.EvtVoteCast:
			m.VotesCast.Inc()
		case engine.EvtRoundResolved:
			outcome := "decided"
			if len(e.Entries) == 2 {
				outcome = "tie"
			}
			m.RoundsResolved.WithLabelValues(outcome).Inc()
		case engine.EvtWinnerDeclared:
			m.WinnersDeclared.Inc()
		}
	}
}

func (m *Metrics) Rejected(cmd engine.CommandType) {
	if m == nil {
		return
	}
	m.RejectedCommands.WithLabelValues(string(cmd)).Inc()
}

func (m *Metrics) LobbyOpened() {
	if m != nil {
		m.ActiveLobbies.Inc()
	}
}

func (m *Metrics) LobbyClosed() {
	if m != nil {
		m.ActiveLobbies.Dec()
	}
}
