package perf

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"main/internal/ledger"
)

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func curveOf(values ...float64) []EquityPoint {
	out := make([]EquityPoint, len(values))
	for i, v := range values {
		out[i] = EquityPoint{Time: day(i), Value: v}
	}
	return out
}

func TestTotalReturn(t *testing.T) {
	curve := curveOf(100_000, 101_000, 110_000)
	c := NewCalculator(curve, nil, 100_000, day(0), day(2), 0.03)
	report := c.Calculate()

	require.InDelta(t, 10_000, report.Returns.TotalReturn, 1e-9)
	require.InDelta(t, 0.10, report.Returns.TotalReturnPct, 1e-9)
}

func TestCAGROneYearDouble(t *testing.T) {
	start := day(0)
	end := start.AddDate(0, 0, 365) // 365/365.25 years
	curve := []EquityPoint{
		{Time: start, Value: 100_000},
		{Time: end, Value: 200_000},
	}
	c := NewCalculator(curve, nil, 100_000, start, end, 0.03)
	report := c.Calculate()

	years := 365.0 / 365.25
	require.InDelta(t, math.Pow(2, 1/years)-1, report.Returns.CAGR, 1e-9)
}

func TestVolatilityAndSharpe(t *testing.T) {
	// Daily returns: +1%, -1%, +1%, -1%.
	curve := curveOf(100, 101, 99.99, 100.9899, 99.980001)
	c := NewCalculator(curve, nil, 100, day(0), day(4), 0)
	report := c.Calculate()

	returns := []float64{0.01, -0.01, 0.01, -0.01}
	m := 0.0
	for _, r := range returns {
		m += r
	}
	m /= 4
	ss := 0.0
	for _, r := range returns {
		ss += (r - m) * (r - m)
	}
	sd := math.Sqrt(ss / 3)

	require.InDelta(t, sd*math.Sqrt(252), report.RiskAdjusted.Volatility, 1e-6)
	require.InDelta(t, m/sd*math.Sqrt(252), report.RiskAdjusted.SharpeRatio, 1e-6)
}

func TestMaxDrawdown(t *testing.T) {
	// Peak 120, trough 90, recovery above 120.
	curve := curveOf(100, 120, 110, 90, 100, 125)
	c := NewCalculator(curve, nil, 100, day(0), day(5), 0.03)
	report := c.Calculate()

	require.InDelta(t, 90.0/120.0-1, report.Drawdown.MaxDrawdownPct, 1e-9)
	require.InDelta(t, -30, report.Drawdown.MaxDrawdown, 1e-9)
	// Peak on day 1, recovery on day 5.
	require.Equal(t, 4, report.Drawdown.MaxDurationDays)
}

func TestDrawdownStillUnderwater(t *testing.T) {
	curve := curveOf(100, 120, 100, 95)
	c := NewCalculator(curve, nil, 100, day(0), day(3), 0.03)
	report := c.Calculate()

	require.InDelta(t, 95.0/120.0-1, report.Drawdown.MaxDrawdownPct, 1e-9)
	require.Equal(t, 2, report.Drawdown.MaxDurationDays)
}

func TestTradeStats(t *testing.T) {
	trades := []ledger.ClosedTrade{
		{PnL: 100, EntryTime: day(0), ExitTime: day(1)},
		{PnL: 300, EntryTime: day(1), ExitTime: day(2)},
		{PnL: -100, EntryTime: day(2), ExitTime: day(3)},
		{PnL: -100, EntryTime: day(3), ExitTime: day(4)},
	}
	c := NewCalculator(curveOf(100, 101), trades, 100, day(0), day(4), 0.03)
	report := c.Calculate()

	stats := report.Trades
	require.Equal(t, 4, stats.TotalTrades)
	require.Equal(t, 2, stats.WinningTrades)
	require.Equal(t, 2, stats.LosingTrades)
	require.InDelta(t, 0.5, stats.WinRate, 1e-9)
	require.InDelta(t, 2.0, stats.ProfitFactor, 1e-9) // 400 gross win / 200 gross loss
	require.InDelta(t, 200, stats.AvgWin, 1e-9)
	require.InDelta(t, -100, stats.AvgLoss, 1e-9)
	require.InDelta(t, 0.5*200-0.5*100, stats.Expectancy, 1e-9)
	require.InDelta(t, 300, stats.MaxWin, 1e-9)
	require.InDelta(t, -100, stats.MaxLoss, 1e-9)
	require.InDelta(t, 24, stats.AvgHoldHours, 1e-9)
}

func TestProfitFactorNoLosses(t *testing.T) {
	trades := []ledger.ClosedTrade{{PnL: 100}, {PnL: 50}}
	c := NewCalculator(curveOf(100, 101), trades, 100, day(0), day(1), 0.03)
	report := c.Calculate()

	require.True(t, math.IsInf(report.Trades.ProfitFactor, 1))
	require.InDelta(t, 1.0, report.Trades.WinRate, 1e-9)
}

func TestMonthlyReturns(t *testing.T) {
	curve := []EquityPoint{
		{Time: time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), Value: 100},
		{Time: time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), Value: 110},
		{Time: time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), Value: 99},
	}
	c := NewCalculator(curve, nil, 100, curve[0].Time, curve[2].Time, 0.03)
	report := c.Calculate()

	require.InDelta(t, 0.10, report.Monthly.BestMonth, 1e-9)
	require.InDelta(t, 99.0/110.0-1, report.Monthly.WorstMonth, 1e-9)
	require.InDelta(t, 0.5, report.Monthly.PositivePct, 1e-9)
}

func TestInsufficientCurve(t *testing.T) {
	c := NewCalculator(curveOf(100), nil, 100, day(0), day(0), 0.03)
	require.Equal(t, Report{}, c.Calculate())
}
