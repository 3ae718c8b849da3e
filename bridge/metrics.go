package bridge

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	registry  *prometheus.Registry
	commands  *prometheus.CounterVec
	datagrams prometheus.Counter
	sessions  prometheus.Gauge
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "samaio",
			Subsystem: "bridge",
			Name:      "commands_total",
			Help:      "Commands received from SAM clients.",
		}, []string{"verb", "action"}),
		datagrams: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "samaio",
			Subsystem: "bridge",
			Name:      "datagrams_forwarded_total",
			Help:      "Datagrams delivered to a session.",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "samaio",
			Subsystem: "bridge",
			Name:      "sessions",
			Help:      "Sessions currently open.",
		}),
	}

	m.registry.MustRegister(m.commands, m.datagrams, m.sessions)

	return m
}
