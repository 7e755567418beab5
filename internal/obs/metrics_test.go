package obs

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"main/internal/bus"
	"main/internal/schema"
)

func TestCountersTrackBusActivity(t *testing.T) {
	m := NewMetrics()
	b := bus.New(bus.ModeImmediate)
	m.Bind(b)

	now := time.Now()
	b.Publish(schema.NewOrderEvent(now, &schema.Order{
		ID: "O1", Symbol: "BTC-USD", Side: schema.OrderSideBuy,
		Type: schema.OrderTypeMarket, Quantity: 1,
	}))
	b.Publish(schema.NewFillEvent(now, &schema.Fill{
		TradeID: "T1", OrderID: "O1", Symbol: "BTC-USD",
		Side: schema.OrderSideBuy, Quantity: 1, Price: 100,
	}))
	b.Publish(schema.NewRiskAlertEvent(now, &schema.RiskAlert{
		Kind: "CIRCUIT_BREAKER", Severity: schema.SeverityCritical,
	}))

	require.InDelta(t, 1, testutil.ToFloat64(m.orders.WithLabelValues("BUY")), 1e-9)
	require.InDelta(t, 1, testutil.ToFloat64(m.fills.WithLabelValues("BUY")), 1e-9)
	require.InDelta(t, 1, testutil.ToFloat64(m.riskAlerts.WithLabelValues("CIRCUIT_BREAKER", "CRITICAL")), 1e-9)
}

func TestEventCounterCoversEveryType(t *testing.T) {
	m := NewMetrics()
	b := bus.New(bus.ModeImmediate)
	m.Bind(b)

	now := time.Now()
	b.Publish(schema.NewMarketDataEvent(now, &schema.MarketData{
		Symbol: "BTC-USD", Bar: schema.Bar{Open: 100, High: 101, Low: 99, Close: 100.5},
	}))
	b.Publish(schema.NewMarketDataEvent(now, &schema.MarketData{
		Symbol: "BTC-USD", Bar: schema.Bar{Open: 100.5, High: 102, Low: 100, Close: 101},
	}))
	b.Publish(schema.NewSignalEvent(now, &schema.Signal{
		Kind: schema.SignalBuy, Symbol: "BTC-USD", StrategyID: "mr", Confidence: 1,
	}))
	b.Publish(schema.NewOrderEvent(now, &schema.Order{
		ID: "O1", Symbol: "BTC-USD", Side: schema.OrderSideBuy,
		Type: schema.OrderTypeMarket, Quantity: 1,
	}))
	b.Publish(schema.NewSystemEvent(now, &schema.SystemNotice{Message: "session start"}))

	require.InDelta(t, 2, testutil.ToFloat64(m.events.WithLabelValues("market_data")), 1e-9)
	require.InDelta(t, 1, testutil.ToFloat64(m.events.WithLabelValues("signal")), 1e-9)
	require.InDelta(t, 1, testutil.ToFloat64(m.events.WithLabelValues("order")), 1e-9)
	require.InDelta(t, 1, testutil.ToFloat64(m.events.WithLabelValues("system")), 1e-9)
}

func TestPerformanceGauges(t *testing.T) {
	m := NewMetrics()
	b := bus.New(bus.ModeImmediate)
	m.Bind(b)

	b.Publish(schema.NewMetricEvent(time.Now(), &schema.PerformanceMetric{
		Name: "sharpe_ratio", Value: 1.8,
	}))
	require.InDelta(t, 1.8, testutil.ToFloat64(m.perf.WithLabelValues("sharpe_ratio")), 1e-9)

	m.SetEquity(105_000, 250)
	require.InDelta(t, 105_000, testutil.ToFloat64(m.equity), 1e-9)
	require.InDelta(t, 250, testutil.ToFloat64(m.unrealized), 1e-9)
}
