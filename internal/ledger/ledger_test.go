package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func tick(l *Ledger, symbol string, price float64) {
	l.OnMarketData(&schema.MarketData{
		Symbol: symbol,
		Asset:  schema.AssetCrypto,
		Bar:    schema.Bar{Open: price, High: price, Low: price, Close: price},
	})
}

func TestOpenLongMovesCash(t *testing.T) {
	l := New(100_000)
	l.OnFill(&schema.Fill{
		TradeID: "T1", OrderID: "O1",
		Symbol: "BTC-USD", StrategyID: "mr",
		Side: schema.OrderSideBuy, Quantity: 0.1, Price: 50_000, Commission: 30,
	}, time.Now())

	require.InDelta(t, 100_000-5_000-30, l.Cash(), 1e-9)
	side, qty, ok := l.OpenPosition("BTC-USD", "mr")
	require.True(t, ok)
	require.Equal(t, schema.PositionLong, side)
	require.InDelta(t, 0.1, qty, 1e-9)
}

func TestEquityIdentityLong(t *testing.T) {
	l := New(100_000)
	l.OnFill(&schema.Fill{
		Symbol: "BTC-USD", StrategyID: "mr",
		Side: schema.OrderSideBuy, Quantity: 0.1, Price: 50_000, Commission: 30,
	}, time.Now())
	tick(l, "BTC-USD", 52_000)

	// equity = initial + realized + unrealized at every mark
	require.InDelta(t, l.InitialCash()+l.RealizedPnL()+l.UnrealizedPnL(), l.Equity(), 1e-9)
	require.InDelta(t, (52_000-50_000)*0.1-30, l.UnrealizedPnL(), 1e-9)
}

func TestEquityIdentityShort(t *testing.T) {
	l := New(100_000)
	l.OnFill(&schema.Fill{
		Symbol: "ETH-USD", StrategyID: "mr",
		Side: schema.OrderSideSell, Quantity: 2, Price: 3_000, Commission: 18,
	}, time.Now())

	tick(l, "ETH-USD", 2_800)
	require.InDelta(t, (3_000-2_800)*2-18, l.UnrealizedPnL(), 1e-9)
	require.InDelta(t, l.InitialCash()+l.RealizedPnL()+l.UnrealizedPnL(), l.Equity(), 1e-9)

	tick(l, "ETH-USD", 3_200)
	require.InDelta(t, l.InitialCash()+l.RealizedPnL()+l.UnrealizedPnL(), l.Equity(), 1e-9)
}

func TestCloseLongRealizesPnL(t *testing.T) {
	l := New(100_000)
	now := time.Now()
	l.OnFill(&schema.Fill{
		Symbol: "BTC-USD", StrategyID: "mr",
		Side: schema.OrderSideBuy, Quantity: 0.1, Price: 50_000, Commission: 30,
	}, now)
	tick(l, "BTC-USD", 52_000)
	l.OnFill(&schema.Fill{
		Symbol: "BTC-USD", StrategyID: "mr",
		Side: schema.OrderSideSell, Quantity: 0.1, Price: 52_000, Commission: 31.2, Reduce: true,
	}, now.Add(time.Hour))

	require.InDelta(t, (52_000-50_000)*0.1-30-31.2, l.RealizedPnL(), 1e-9)
	_, _, ok := l.OpenPosition("BTC-USD", "mr")
	require.False(t, ok)
	require.Len(t, l.ClosedTrades(), 1)
	require.InDelta(t, l.InitialCash()+l.RealizedPnL(), l.Equity(), 1e-9)
}

func TestCloseShortRealizesPnL(t *testing.T) {
	l := New(100_000)
	now := time.Now()
	l.OnFill(&schema.Fill{
		Symbol: "ETH-USD", StrategyID: "mr",
		Side: schema.OrderSideSell, Quantity: 2, Price: 3_000, Commission: 18,
	}, now)
	tick(l, "ETH-USD", 2_700)
	l.OnFill(&schema.Fill{
		Symbol: "ETH-USD", StrategyID: "mr",
		Side: schema.OrderSideBuy, Quantity: 2, Price: 2_700, Commission: 16.2, Reduce: true,
	}, now.Add(time.Hour))

	require.InDelta(t, (3_000-2_700)*2-18-16.2, l.RealizedPnL(), 1e-9)
	require.InDelta(t, l.InitialCash()+l.RealizedPnL(), l.Equity(), 1e-9)
}

func TestPartialReduceProportionalCommission(t *testing.T) {
	l := New(100_000)
	now := time.Now()
	l.OnFill(&schema.Fill{
		Symbol: "BTC-USD", StrategyID: "mr",
		Side: schema.OrderSideBuy, Quantity: 0.2, Price: 50_000, Commission: 60,
	}, now)
	tick(l, "BTC-USD", 55_000)
	l.OnFill(&schema.Fill{
		Symbol: "BTC-USD", StrategyID: "mr",
		Side: schema.OrderSideSell, Quantity: 0.1, Price: 55_000, Commission: 33, Reduce: true,
	}, now.Add(time.Hour))

	// Half the entry commission is attributed to the closed half.
	require.InDelta(t, (55_000-50_000)*0.1-30-33, l.RealizedPnL(), 1e-9)
	_, qty, ok := l.OpenPosition("BTC-USD", "mr")
	require.True(t, ok)
	require.InDelta(t, 0.1, qty, 1e-9)
	tick(l, "BTC-USD", 55_000)
	require.InDelta(t, l.InitialCash()+l.RealizedPnL()+l.UnrealizedPnL(), l.Equity(), 1e-9)
}

func TestOversizedCloseClamps(t *testing.T) {
	l := New(100_000)
	now := time.Now()
	l.OnFill(&schema.Fill{
		Symbol: "BTC-USD", StrategyID: "mr",
		Side: schema.OrderSideBuy, Quantity: 0.1, Price: 50_000,
	}, now)
	l.OnFill(&schema.Fill{
		Symbol: "BTC-USD", StrategyID: "mr",
		Side: schema.OrderSideSell, Quantity: 0.5, Price: 51_000, Reduce: true,
	}, now.Add(time.Hour))

	_, _, ok := l.OpenPosition("BTC-USD", "mr")
	require.False(t, ok)
	require.InDelta(t, (51_000-50_000)*0.1, l.RealizedPnL(), 1e-9)
	require.InDelta(t, l.InitialCash()+l.RealizedPnL(), l.Equity(), 1e-9)
}

func TestAddToAveragesEntry(t *testing.T) {
	l := New(100_000)
	now := time.Now()
	l.OnFill(&schema.Fill{
		Symbol: "BTC-USD", StrategyID: "mr",
		Side: schema.OrderSideBuy, Quantity: 0.1, Price: 50_000,
	}, now)
	l.OnFill(&schema.Fill{
		Symbol: "BTC-USD", StrategyID: "mr",
		Side: schema.OrderSideBuy, Quantity: 0.1, Price: 54_000,
	}, now)

	positions := l.Positions()
	require.Len(t, positions, 1)
	require.InDelta(t, 52_000, positions[0].EntryPrice, 1e-9)
	require.InDelta(t, 0.2, positions[0].Quantity, 1e-9)
}

func TestStrategiesIsolated(t *testing.T) {
	l := New(100_000)
	now := time.Now()
	l.OnFill(&schema.Fill{
		Symbol: "BTC-USD", StrategyID: "a",
		Side: schema.OrderSideBuy, Quantity: 0.1, Price: 50_000,
	}, now)
	l.OnFill(&schema.Fill{
		Symbol: "BTC-USD", StrategyID: "b",
		Side: schema.OrderSideSell, Quantity: 0.1, Price: 50_000,
	}, now)

	require.Len(t, l.Positions(), 2)
	tick(l, "BTC-USD", 50_000)
	require.InDelta(t, 10_000, l.SymbolExposure("BTC-USD"), 1e-9)
	require.InDelta(t, 10_000, l.TotalExposure(), 1e-9)
}

func TestStopLossSynthesizesExit(t *testing.T) {
	l := New(100_000)
	l.OnFill(&schema.Fill{
		Symbol: "BTC-USD", StrategyID: "mr",
		Side: schema.OrderSideBuy, Quantity: 0.1, Price: 50_000,
		StopLoss: 48_000, TakeProfit: 55_000,
	}, time.Now())

	_, exits := l.OnMarketData(&schema.MarketData{
		Symbol: "BTC-USD",
		Bar:    schema.Bar{Close: 49_000},
	})
	require.Empty(t, exits)

	_, exits = l.OnMarketData(&schema.MarketData{
		Symbol: "BTC-USD",
		Bar:    schema.Bar{Close: 47_900},
	})
	require.Len(t, exits, 1)
	require.Equal(t, schema.OrderSideSell, exits[0].Side)
	require.True(t, exits[0].Reduce)
	require.InDelta(t, 0.1, exits[0].Quantity, 1e-9)

	// The pending exit suppresses duplicate triggers on later bars.
	_, exits = l.OnMarketData(&schema.MarketData{
		Symbol: "BTC-USD",
		Bar:    schema.Bar{Close: 47_500},
	})
	require.Empty(t, exits)
}

func TestTakeProfitShort(t *testing.T) {
	l := New(100_000)
	l.OnFill(&schema.Fill{
		Symbol: "ETH-USD", StrategyID: "mr",
		Side: schema.OrderSideSell, Quantity: 2, Price: 3_000,
		StopLoss: 3_150, TakeProfit: 2_700,
	}, time.Now())

	_, exits := l.OnMarketData(&schema.MarketData{
		Symbol: "ETH-USD",
		Bar:    schema.Bar{Close: 2_650},
	})
	require.Len(t, exits, 1)
	require.Equal(t, schema.OrderSideBuy, exits[0].Side)
}

func TestDuplicateReduceFillDropped(t *testing.T) {
	l := New(100_000)
	l.OnFill(&schema.Fill{
		Symbol: "BTC-USD", StrategyID: "mr",
		Side: schema.OrderSideBuy, Quantity: 50, Price: 100,
	}, time.Now())

	exit := &schema.Fill{
		Symbol: "BTC-USD", StrategyID: "mr",
		Side: schema.OrderSideSell, Quantity: 50, Price: 110, Reduce: true,
	}
	update := l.OnFill(exit, time.Now())
	require.Equal(t, schema.PositionClosed, update.Status)
	require.Len(t, l.ClosedTrades(), 1)

	// The same full-quantity close arriving again must not reopen the key
	// as a reversed position.
	update = l.OnFill(exit, time.Now())
	require.Nil(t, update)
	require.Empty(t, l.Positions())
	require.Len(t, l.ClosedTrades(), 1)
	require.InDelta(t, 50*10, l.RealizedPnL(), 1e-9)
}

func TestPendingExitHidesPositionFromGate(t *testing.T) {
	l := New(100_000)
	l.OnFill(&schema.Fill{
		Symbol: "BTC-USD", StrategyID: "mr",
		Side: schema.OrderSideBuy, Quantity: 50, Price: 100, TakeProfit: 105,
	}, time.Now())

	_, exits := l.OnMarketData(&schema.MarketData{
		Symbol: "BTC-USD",
		Bar:    schema.Bar{Close: 110},
	})
	require.Len(t, exits, 1)

	_, _, ok := l.OpenPosition("BTC-USD", "mr")
	require.False(t, ok)

	// The exit fill clears the flag by closing the position outright.
	l.OnFill(&schema.Fill{
		Symbol: "BTC-USD", StrategyID: "mr",
		Side: schema.OrderSideSell, Quantity: 50, Price: 110, Reduce: true,
	}, time.Now())
	require.Empty(t, l.Positions())
	require.Len(t, l.ClosedTrades(), 1)
}

func TestMissingPriceValuesAtEntry(t *testing.T) {
	l := New(100_000)
	l.OnFill(&schema.Fill{
		Symbol: "BTC-USD", StrategyID: "mr",
		Side: schema.OrderSideBuy, Quantity: 0.1, Price: 50_000,
	}, time.Now())

	require.InDelta(t, 100_000, l.Equity(), 1e-9)
}

func TestSnapshotRoundTrip(t *testing.T) {
	l := New(100_000)
	l.OnFill(&schema.Fill{
		Symbol: "BTC-USD", StrategyID: "mr",
		Side: schema.OrderSideBuy, Quantity: 0.1, Price: 50_000, Commission: 30,
		StopLoss: 48_000,
	}, time.Now())

	path := filepath.Join(t.TempDir(), "ledger.json")
	require.NoError(t, WriteSnapshot(path, l.Snapshot()))

	snap, err := ReadSnapshot(path)
	require.NoError(t, err)

	restored := New(0)
	restored.Restore(snap)
	require.InDelta(t, l.Cash(), restored.Cash(), 1e-9)
	side, qty, ok := restored.OpenPosition("BTC-USD", "mr")
	require.True(t, ok)
	require.Equal(t, schema.PositionLong, side)
	require.InDelta(t, 0.1, qty, 1e-9)
}
