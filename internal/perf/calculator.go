package perf

import (
	"math"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/ledger"
)

// tradingDays is the annualization factor for daily returns.
const tradingDays = 252

// EquityPoint is a single observation on the equity curve.
type EquityPoint struct {
	Time  time.Time
	Value float64
}

// Returns groups absolute and annualized return metrics.
type Returns struct {
	TotalReturn      float64 `json:"totalReturn"`
	TotalReturnPct   float64 `json:"totalReturnPct"`
	CAGR             float64 `json:"cagr"`
	AnnualizedReturn float64 `json:"annualizedReturn"`
}

// RiskAdjusted groups volatility-normalized metrics.
type RiskAdjusted struct {
	SharpeRatio  float64 `json:"sharpeRatio"`
	SortinoRatio float64 `json:"sortinoRatio"`
	CalmarRatio  float64 `json:"calmarRatio"`
	Volatility   float64 `json:"volatility"`
}

// Drawdown groups peak-to-trough metrics.
type Drawdown struct {
	MaxDrawdown     float64 `json:"maxDrawdown"`
	MaxDrawdownPct  float64 `json:"maxDrawdownPct"`
	AvgDrawdown     float64 `json:"avgDrawdown"`
	MaxDurationDays int     `json:"maxDurationDays"`
}

// TradeStats groups per-trade statistics over closed trades.
type TradeStats struct {
	TotalTrades   int     `json:"totalTrades"`
	WinningTrades int     `json:"winningTrades"`
	LosingTrades  int     `json:"losingTrades"`
	WinRate       float64 `json:"winRate"`
	ProfitFactor  float64 `json:"profitFactor"`
	Expectancy    float64 `json:"expectancy"`
	AvgWin        float64 `json:"avgWin"`
	AvgLoss       float64 `json:"avgLoss"`
	MaxWin        float64 `json:"maxWin"`
	MaxLoss       float64 `json:"maxLoss"`
	AvgHoldHours  float64 `json:"avgHoldHours"`
}

// Monthly groups calendar-month return statistics.
type Monthly struct {
	BestMonth    float64            `json:"bestMonth"`
	WorstMonth   float64            `json:"worstMonth"`
	AvgMonth     float64            `json:"avgMonth"`
	PositivePct  float64            `json:"positivePct"`
	MonthReturns map[string]float64 `json:"monthReturns,omitempty"`
}

// Report is the full set of performance metrics for a run.
type Report struct {
	Returns      Returns      `json:"returns"`
	RiskAdjusted RiskAdjusted `json:"riskAdjusted"`
	Drawdown     Drawdown     `json:"drawdown"`
	Trades       TradeStats   `json:"trades"`
	Monthly      Monthly      `json:"monthly"`
}

// Calculator derives performance metrics from an equity curve and the
// closed trade ledger.
type Calculator struct {
	curve          []EquityPoint
	trades         []ledger.ClosedTrade
	initialCapital float64
	start, end     time.Time
	riskFreeRate   float64
}

// NewCalculator creates a calculator. Risk free rate is annual; the
// standard assumption is 3%.
func NewCalculator(curve []EquityPoint, trades []ledger.ClosedTrade, initialCapital float64, start, end time.Time, riskFreeRate float64) *Calculator {
	return &Calculator{
		curve:          curve,
		trades:         trades,
		initialCapital: initialCapital,
		start:          start,
		end:            end,
		riskFreeRate:   riskFreeRate,
	}
}

// Calculate produces the full report. An equity curve with fewer than two
// points yields a zero report.
func (c *Calculator) Calculate() Report {
	if len(c.curve) < 2 {
		logs.Warn("insufficient equity points for performance metrics")
		return Report{}
	}
	returns := c.dailyReturns()
	return Report{
		Returns:      c.returnMetrics(returns),
		RiskAdjusted: c.riskMetrics(returns),
		Drawdown:     c.drawdownMetrics(),
		Trades:       c.tradeStats(),
		Monthly:      c.monthlyMetrics(),
	}
}

func (c *Calculator) dailyReturns() []float64 {
	out := make([]float64, 0, len(c.curve)-1)
	for i := 1; i < len(c.curve); i++ {
		prev := c.curve[i-1].Value
		if prev == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, c.curve[i].Value/prev-1)
	}
	return out
}

func (c *Calculator) returnMetrics(returns []float64) Returns {
	final := c.curve[len(c.curve)-1].Value
	total := final - c.initialCapital

	cagr := c.cagr(final)

	annualized := 0.0
	if len(returns) > 0 {
		annualized = mean(returns) * tradingDays
	}
	return Returns{
		TotalReturn:      total,
		TotalReturnPct:   total / c.initialCapital,
		CAGR:             cagr,
		AnnualizedReturn: annualized,
	}
}

func (c *Calculator) cagr(final float64) float64 {
	years := c.end.Sub(c.start).Hours() / 24 / 365.25
	if years <= 0 || c.initialCapital <= 0 || final <= 0 {
		return 0
	}
	return math.Pow(final/c.initialCapital, 1/years) - 1
}

func (c *Calculator) riskMetrics(returns []float64) RiskAdjusted {
	if len(returns) < 2 {
		return RiskAdjusted{}
	}

	dailyRf := c.riskFreeRate / tradingDays
	excess := make([]float64, len(returns))
	downside := make([]float64, 0, len(returns))
	for i, r := range returns {
		excess[i] = r - dailyRf
		if excess[i] < 0 {
			downside = append(downside, excess[i])
		}
	}

	volatility := stddev(returns) * math.Sqrt(tradingDays)

	sharpe := 0.0
	if sd := stddev(excess); sd > 0 {
		sharpe = mean(excess) / sd * math.Sqrt(tradingDays)
	}

	sortino := 0.0
	if sd := stddev(downside); sd > 0 {
		sortino = mean(excess) / sd * math.Sqrt(tradingDays)
	}

	calmar := 0.0
	maxDDPct, _, _ := c.maxDrawdown()
	if maxDDPct != 0 {
		calmar = c.cagr(c.curve[len(c.curve)-1].Value) / math.Abs(maxDDPct)
	}

	return RiskAdjusted{
		SharpeRatio:  sharpe,
		SortinoRatio: sortino,
		CalmarRatio:  calmar,
		Volatility:   volatility,
	}
}

func (c *Calculator) drawdownMetrics() Drawdown {
	maxDDPct, maxDD, duration := c.maxDrawdown()

	sum, n := 0.0, 0
	runningMax := c.curve[0].Value
	for _, p := range c.curve {
		if p.Value > runningMax {
			runningMax = p.Value
		}
		if runningMax > 0 && p.Value < runningMax {
			sum += p.Value/runningMax - 1
			n++
		}
	}
	avg := 0.0
	if n > 0 {
		avg = sum / float64(n)
	}
	return Drawdown{
		MaxDrawdown:     maxDD,
		MaxDrawdownPct:  maxDDPct,
		AvgDrawdown:     avg,
		MaxDurationDays: duration,
	}
}

// maxDrawdown returns the deepest peak-to-trough drawdown as a fraction,
// in dollars, and its duration in days from peak to recovery (or to the
// end of the curve if still underwater).
func (c *Calculator) maxDrawdown() (pct, dollars float64, durationDays int) {
	runningMax := c.curve[0].Value
	peakTime := c.curve[0].Time
	troughIdx := -1
	var troughPeak float64
	var troughPeakTime time.Time

	for i, p := range c.curve {
		if p.Value > runningMax {
			runningMax = p.Value
			peakTime = p.Time
		}
		if runningMax <= 0 {
			continue
		}
		dd := p.Value/runningMax - 1
		if dd < pct {
			pct = dd
			dollars = p.Value - runningMax
			troughIdx = i
			troughPeak = runningMax
			troughPeakTime = peakTime
		}
	}
	if troughIdx < 0 {
		return 0, 0, 0
	}

	recovered := false
	for _, p := range c.curve[troughIdx:] {
		if p.Value >= troughPeak {
			durationDays = int(p.Time.Sub(troughPeakTime).Hours() / 24)
			recovered = true
			break
		}
	}
	if !recovered {
		durationDays = int(c.curve[len(c.curve)-1].Time.Sub(troughPeakTime).Hours() / 24)
	}
	return pct, dollars, durationDays
}

func (c *Calculator) tradeStats() TradeStats {
	if len(c.trades) == 0 {
		return TradeStats{}
	}

	var winners, losers []float64
	var holdHours []float64
	for _, t := range c.trades {
		switch {
		case t.PnL > 0:
			winners = append(winners, t.PnL)
		case t.PnL < 0:
			losers = append(losers, t.PnL)
		}
		if !t.EntryTime.IsZero() && !t.ExitTime.IsZero() {
			holdHours = append(holdHours, t.ExitTime.Sub(t.EntryTime).Hours())
		}
	}

	total := len(c.trades)
	winRate := float64(len(winners)) / float64(total)
	avgWin, avgLoss := mean(winners), mean(losers)

	grossWin := sum(winners)
	grossLoss := math.Abs(sum(losers))
	profitFactor := 0.0
	if grossLoss > 0 {
		profitFactor = grossWin / grossLoss
	} else if grossWin > 0 {
		profitFactor = math.Inf(1)
	}

	return TradeStats{
		TotalTrades:   total,
		WinningTrades: len(winners),
		LosingTrades:  len(losers),
		WinRate:       winRate,
		ProfitFactor:  profitFactor,
		Expectancy:    winRate*avgWin - (1-winRate)*math.Abs(avgLoss),
		AvgWin:        avgWin,
		AvgLoss:       avgLoss,
		MaxWin:        maxOf(winners),
		MaxLoss:       minOf(losers),
		AvgHoldHours:  mean(holdHours),
	}
}

func (c *Calculator) monthlyMetrics() Monthly {
	// Last equity value per calendar month, in curve order.
	type monthEnd struct {
		key   string
		value float64
	}
	var months []monthEnd
	for _, p := range c.curve {
		key := p.Time.Format("2006-01")
		if len(months) > 0 && months[len(months)-1].key == key {
			months[len(months)-1].value = p.Value
			continue
		}
		months = append(months, monthEnd{key: key, value: p.Value})
	}
	if len(months) < 2 {
		return Monthly{}
	}

	out := Monthly{
		BestMonth:    math.Inf(-1),
		WorstMonth:   math.Inf(1),
		MonthReturns: make(map[string]float64, len(months)-1),
	}
	positive, total, sumRet := 0, 0, 0.0
	for i := 1; i < len(months); i++ {
		if months[i-1].value == 0 {
			continue
		}
		r := months[i].value/months[i-1].value - 1
		out.MonthReturns[months[i].key] = r
		sumRet += r
		total++
		if r > 0 {
			positive++
		}
		if r > out.BestMonth {
			out.BestMonth = r
		}
		if r < out.WorstMonth {
			out.WorstMonth = r
		}
	}
	if total == 0 {
		return Monthly{}
	}
	out.AvgMonth = sumRet / float64(total)
	out.PositivePct = float64(positive) / float64(total)
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return sum(xs) / float64(len(xs))
}

func sum(xs []float64) float64 {
	total := 0.0
	for _, x := range xs {
		total += x
	}
	return total
}

// stddev is the sample standard deviation.
func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	ss := 0.0
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

func maxOf(xs []float64) float64 {
	out := 0.0
	for _, x := range xs {
		if x > out {
			out = x
		}
	}
	return out
}

func minOf(xs []float64) float64 {
	out := 0.0
	for _, x := range xs {
		if x < out {
			out = x
		}
	}
	return out
}
