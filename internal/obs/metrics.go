package obs

import (
	"github.com/prometheus/client_golang/prometheus"

	"main/internal/bus"
	"main/internal/schema"
)

// Metrics exposes trading activity as Prometheus collectors. It attaches to
// the bus as a read-only observer and never publishes events.
type Metrics struct {
	registry *prometheus.Registry

	events     *prometheus.CounterVec
	orders     *prometheus.CounterVec
	fills      *prometheus.CounterVec
	riskAlerts *prometheus.CounterVec
	equity     prometheus.Gauge
	unrealized prometheus.Gauge
	perf       *prometheus.GaugeVec
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trading_events_total",
				Help: "Events dispatched, by type",
			},
			[]string{"type"},
		),
		orders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trading_orders_total",
				Help: "Orders published, by side",
			},
			[]string{"side"},
		),
		fills: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trading_fills_total",
				Help: "Fills received, by side",
			},
			[]string{"side"},
		),
		riskAlerts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trading_risk_alerts_total",
				Help: "Risk alerts raised, by kind and severity",
			},
			[]string{"kind", "severity"},
		),
		equity: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "trading_equity_usd",
				Help: "Current portfolio equity snapshot",
			},
		),
		unrealized: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "trading_unrealized_pnl_usd",
				Help: "Unrealized P&L across open positions",
			},
		),
		perf: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "trading_performance_metric",
				Help: "Performance metrics published at end of run",
			},
			[]string{"name"},
		),
	}
	m.registry.MustRegister(
		m.events, m.orders, m.fills, m.riskAlerts,
		m.equity, m.unrealized, m.perf,
	)
	return m
}

// Registry returns the registry for serving.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetEquity records an equity snapshot.
func (m *Metrics) SetEquity(equity, unrealized float64) {
	m.equity.Set(equity)
	m.unrealized.Set(unrealized)
}

// Bind subscribes the collectors to the bus.
func (m *Metrics) Bind(b *bus.Bus) {
	count := func(ev *schema.Event) {
		m.events.WithLabelValues(ev.Type.String()).Inc()
	}
	b.Subscribe(schema.EventMarketData, count)
	b.Subscribe(schema.EventSignal, count)
	b.Subscribe(schema.EventSystem, count)
	b.Subscribe(schema.EventOrder, func(ev *schema.Event) {
		count(ev)
		m.orders.WithLabelValues(ev.Order.Side.String()).Inc()
	})
	b.Subscribe(schema.EventFill, func(ev *schema.Event) {
		count(ev)
		m.fills.WithLabelValues(ev.Fill.Side.String()).Inc()
	})
	b.Subscribe(schema.EventRiskAlert, func(ev *schema.Event) {
		count(ev)
		m.riskAlerts.WithLabelValues(ev.RiskAlert.Kind, ev.RiskAlert.Severity.String()).Inc()
	})
	b.Subscribe(schema.EventPositionUpdate, func(ev *schema.Event) {
		count(ev)
	})
	b.Subscribe(schema.EventPerformanceMetric, func(ev *schema.Event) {
		count(ev)
		m.perf.WithLabelValues(ev.Metric.Name).Set(ev.Metric.Value)
	})
}
