// Package metrics exposes process counters and the per-status session gauge.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/talkincode/wamux/internal/command"
	"github.com/talkincode/wamux/internal/domain"
	"go.uber.org/zap"
)

// StatusCounter reports how many tenants sit in each status.
type StatusCounter interface {
	StatusCounts(ctx context.Context) (map[domain.SessionStatus]int, error)
}

// Metrics owns the collectors. It satisfies the observer interfaces of the
// dispatch pipeline, the antispam handler and the session registry.
type Metrics struct {
	Registry *prometheus.Registry

	MessagesTotal    *prometheus.CounterVec
	CommandsTotal    *prometheus.CounterVec
	ReconnectsTotal  prometheus.Counter
	SpamActionsTotal *prometheus.CounterVec
	StatusChanges    *prometheus.CounterVec
}

func New(sessions StatusCounter) *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		MessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wamux_messages_total",
				Help: "Inbound messages by classification.",
			},
			[]string{"classification"},
		),
		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wamux_commands_total",
				Help: "Executed commands by pattern and result.",
			},
			[]string{"command", "result"},
		),
		ReconnectsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "wamux_reconnects_total",
				Help: "Scheduled reconnect attempts.",
			},
		),
		SpamActionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wamux_spam_actions_total",
				Help: "Antispam warnings and punishments.",
			},
			[]string{"action"},
		),
		StatusChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wamux_session_transitions_total",
				Help: "Session status transitions by target status.",
			},
			[]string{"status"},
		),
	}
	m.Registry.MustRegister(
		m.MessagesTotal,
		m.CommandsTotal,
		m.ReconnectsTotal,
		m.SpamActionsTotal,
		m.StatusChanges,
	)
	if sessions != nil {
		m.Registry.MustRegister(&sessionCollector{src: sessions})
	}
	return m
}

func (m *Metrics) MessageClassified(kind command.Kind) {
	m.MessagesTotal.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) CommandFinished(name, result string) {
	m.CommandsTotal.WithLabelValues(name, result).Inc()
}

func (m *Metrics) SpamAction(action string) {
	m.SpamActionsTotal.WithLabelValues(action).Inc()
}

func (m *Metrics) StatusChanged(_ string, _, to domain.SessionStatus) {
	m.StatusChanges.WithLabelValues(to.String()).Inc()
}

func (m *Metrics) Reconnecting(string, int) {
	m.ReconnectsTotal.Inc()
}

var sessionsDesc = prometheus.NewDesc(
	"wamux_sessions",
	"Sessions by status.",
	[]string{"status"}, nil,
)

// sessionCollector reads the registry on every scrape.
type sessionCollector struct {
	src StatusCounter
}

func (c *sessionCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- sessionsDesc
}

func (c *sessionCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	counts, err := c.src.StatusCounts(ctx)
	if err != nil {
		zap.L().Warn("collect session counts failed",
			zap.String("namespace", "metrics"),
			zap.Error(err),
		)
		return
	}
	for status, n := range counts {
		ch <- prometheus.MustNewConstMetric(sessionsDesc, prometheus.GaugeValue, float64(n), status.String())
	}
}
