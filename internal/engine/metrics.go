package engine

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/pmsync/internal/pm"
)

// Metrics holds the Prometheus collectors of one or more engines.
// Every series carries a "side" label so a client and a server engine can
// share one Metrics value.
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	commandsSent    *prometheus.CounterVec
	commandsApplied *prometheus.CounterVec
	applyErrors     *prometheus.CounterVec
	splices         *prometheus.CounterVec
	collected       *prometheus.CounterVec
	managed         *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered, which is handy in tests.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		commandsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pmsync",
			Name:      "commands_sent_total",
			Help:      "Commands handed to the outbox, by kind.",
		}, []string{"side", "kind"}),
		commandsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pmsync",
			Name:      "commands_applied_total",
			Help:      "Inbound commands applied successfully, by kind.",
		}, []string{"side", "kind"}),
		applyErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pmsync",
			Name:      "apply_errors_total",
			Help:      "Inbound commands that failed, by error code.",
		}, []string{"side", "code"}),
		splices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pmsync",
			Name:      "list_splices_total",
			Help:      "List splices emitted (outbound) or replayed (inbound).",
		}, []string{"side", "direction"}),
		collected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pmsync",
			Name:      "beans_collected_total",
			Help:      "Beans deleted by the reference tracker.",
		}, []string{"side"}),
		managed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "pmsync",
			Name:      "beans_managed",
			Help:      "Beans currently managed by the repository.",
		}, []string{"side"}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.commandsSent, m.commandsApplied, m.applyErrors,
		m.splices, m.collected, m.managed,
	}
}

func (m *Metrics) sent(side pm.Side, kind pm.CommandKind) {
	if m == nil {
		return
	}
	m.commandsSent.WithLabelValues(string(side), string(kind)).Inc()
}

func (m *Metrics) applied(side pm.Side, kind pm.CommandKind) {
	if m == nil {
		return
	}
	m.commandsApplied.WithLabelValues(string(side), string(kind)).Inc()
}

func (m *Metrics) failed(side pm.Side, err error) {
	if m == nil {
		return
	}
	code := string(pm.CodeOf(err))
	if code == "" {
		code = "OTHER"
	}
	m.applyErrors.WithLabelValues(string(side), code).Inc()
}

func (m *Metrics) splice(side pm.Side, direction string) {
	if m == nil {
		return
	}
	m.splices.WithLabelValues(string(side), direction).Inc()
}

func (m *Metrics) collect(side pm.Side, n int) {
	if m == nil || n == 0 {
		return
	}
	m.collected.WithLabelValues(string(side)).Add(float64(n))
}

func (m *Metrics) setManaged(side pm.Side, n int) {
	if m == nil {
		return
	}
	m.managed.WithLabelValues(string(side)).Set(float64(n))
}
