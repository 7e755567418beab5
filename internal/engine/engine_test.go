package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"main/internal/bus"
	"main/internal/exec"
	"main/internal/ledger"
	"main/internal/ops"
	"main/internal/risk"
	"main/internal/schema"
	"main/internal/strategy"
)

// scripted emits pre-programmed signals keyed by bar arrival index.
type scripted struct {
	name    string
	signals map[int]*schema.Signal
	seen    int
}

func (s *scripted) Name() string { return s.name }

func (s *scripted) OnMarketData(md *schema.MarketData) *schema.Signal {
	sig := s.signals[s.seen]
	s.seen++
	if sig != nil {
		sig.Symbol = md.Symbol
		sig.Asset = md.Asset
		sig.StrategyID = s.name
		sig.Price = md.Bar.Close
	}
	return sig
}

func (s *scripted) OnPositionUpdate(*schema.PositionUpdate) {}

func testConfig() ops.Loaded {
	costs := exec.DefaultCosts()
	costs.Conservative = false
	costs.BaseSlippage = 0
	costs.VolumeImpact = 0
	costs.CryptoTakerFee = 0
	return ops.Loaded{
		Portfolio: ops.PortfolioConfig{InitialCapital: 100_000, RiskFreeRate: 0.03},
		Risk:      risk.DefaultConfig(),
		Costs:     costs,
		Feed:      ops.FeedConfig{QueueSize: 64},
	}
}

func bar(symbol string, close float64) *schema.MarketData {
	return &schema.MarketData{
		Symbol: symbol,
		Asset:  schema.AssetCrypto,
		Bar:    schema.Bar{Open: close, High: close, Low: close, Close: close, Volume: 1000},
		Source: "test",
	}
}

func runAll(t *testing.T, e *Engine, start time.Time, symbol string, closes []float64) {
	t.Helper()
	for i, c := range closes {
		require.NoError(t, e.Push(start.AddDate(0, 0, i), bar(symbol, c)))
	}
	e.Close()
	e.Run(context.Background())
}

func TestLiveLoopFillsAndTracksEquity(t *testing.T) {
	strat := &scripted{
		name: "test",
		signals: map[int]*schema.Signal{
			1: {Kind: schema.SignalBuy, Confidence: 1, Meta: schema.SignalMeta{QuantityPct: 0.05, StopLoss: 97}},
			3: {Kind: schema.SignalClose, Confidence: 1},
		},
	}
	e := New(testConfig(), []strategy.Strategy{strat})

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	runAll(t, e, start, "BTC-USD", []float64{100, 100, 105, 110})

	// 5% of 100k at 100 buys 50 units, closed at 110 for +500.
	require.InDelta(t, 500, e.Ledger().RealizedPnL(), 1e-9)
	require.InDelta(t, 100_500, e.Ledger().Equity(), 1e-9)
	require.Empty(t, e.Ledger().Positions())
	require.Len(t, e.Ledger().ClosedTrades(), 1)
}

func TestDailyResetOnDayBoundary(t *testing.T) {
	e := New(testConfig(), nil)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, e.Push(start, bar("BTC-USD", 100)))
	require.NoError(t, e.Push(start.Add(time.Hour), bar("BTC-USD", 101)))
	require.NoError(t, e.Push(start.AddDate(0, 0, 1), bar("BTC-USD", 102)))
	e.Close()
	e.Run(context.Background())

	require.Equal(t, start.AddDate(0, 0, 1), e.lastDay)
	require.InDelta(t, 100_000, e.Risk().State().DailyStartEquity, 1e-9)
}

func TestQueueFullReported(t *testing.T) {
	cfg := testConfig()
	cfg.Feed.QueueSize = 1
	e := New(cfg, nil)

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, e.Push(ts, bar("BTC-USD", 100)))
	require.ErrorIs(t, e.Push(ts, bar("BTC-USD", 100)), bus.ErrQueueFull)
}

func TestPushAfterCloseRejected(t *testing.T) {
	e := New(testConfig(), nil)
	e.Close()

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.ErrorIs(t, e.Push(ts, bar("BTC-USD", 100)), bus.ErrQueueClosed)
}

func TestSnapshotWrittenOnShutdown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	strat := &scripted{
		name: "test",
		signals: map[int]*schema.Signal{
			1: {Kind: schema.SignalBuy, Confidence: 1, Meta: schema.SignalMeta{QuantityPct: 0.05, StopLoss: 97}},
		},
	}
	e := New(testConfig(), []strategy.Strategy{strat}, WithSnapshot(path))

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	runAll(t, e, start, "BTC-USD", []float64{100, 100, 100})

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("snapshot not written: %v", err)
	}
	snap, err := ledger.ReadSnapshot(path)
	require.NoError(t, err)
	require.Len(t, snap.Positions, 1)
	require.InDelta(t, 50, snap.Positions[0].Quantity, 1e-9)

	// A fresh engine picks up where the last run left off.
	restored := New(testConfig(), nil)
	restored.Ledger().Restore(snap)
	require.InDelta(t, e.Ledger().Cash(), restored.Ledger().Cash(), 1e-9)
	side, qty, ok := restored.Ledger().OpenPosition("BTC-USD", "test")
	require.True(t, ok)
	require.Equal(t, schema.PositionLong, side)
	require.InDelta(t, 50, qty, 1e-9)
}

// stubBroker fills every order at a fixed price.
type stubBroker struct {
	fillPrice float64
	submitted []string
}

func (b *stubBroker) Submit(ctx context.Context, order *schema.Order) (*schema.Fill, error) {
	b.submitted = append(b.submitted, order.ID)
	return &schema.Fill{
		TradeID:    "T-" + order.ID,
		OrderID:    order.ID,
		Symbol:     order.Symbol,
		Asset:      order.Asset,
		StrategyID: order.StrategyID,
		Side:       order.Side,
		Quantity:   order.Quantity,
		Price:      b.fillPrice,
		StopLoss:   order.StopLoss,
		TakeProfit: order.TakeProfit,
		Reduce:     order.Reduce,
	}, nil
}

func (b *stubBroker) Cancel(ctx context.Context, orderID string) error { return nil }

func TestBrokerOptionRoutesOrders(t *testing.T) {
	broker := &stubBroker{fillPrice: 100}
	strat := &scripted{
		name: "test",
		signals: map[int]*schema.Signal{
			1: {Kind: schema.SignalBuy, Confidence: 1, Meta: schema.SignalMeta{QuantityPct: 0.05, StopLoss: 97}},
		},
	}
	e := New(testConfig(), []strategy.Strategy{strat}, WithBroker(broker, exec.LiveConfig{}))

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	runAll(t, e, start, "BTC-USD", []float64{100, 100, 100})

	require.Len(t, broker.submitted, 1)
	positions := e.Ledger().Positions()
	require.Len(t, positions, 1)
	require.InDelta(t, 50, positions[0].Quantity, 1e-9)
	require.InDelta(t, 100, positions[0].EntryPrice, 1e-9)
}
