package replay

import (
	"context"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/exec"
	"main/internal/feed"
	"main/internal/ledger"
	"main/internal/og"
	"main/internal/perf"
	"main/internal/risk"
	"main/internal/schema"
	"main/internal/strategy"
)

var ErrOutOfOrderData = errors.New("market data timestamps not strictly ascending")

// Clock allows deterministic playback control.
type Clock interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Config controls a replay run.
type Config struct {
	InitialCapital float64     `json:"initialCapital"`
	RiskFreeRate   float64     `json:"riskFreeRate"`
	Risk           risk.Config `json:"risk"`
	Costs          exec.Costs  `json:"costs"`

	// Speed throttles playback relative to bar time. Zero replays as fast
	// as possible.
	Speed float64 `json:"speed"`

	// HistoryRounds bounds the bus event history kept for inspection.
	HistoryRounds int `json:"historyRounds"`
}

func (cfg Config) withDefaults() Config {
	if cfg.InitialCapital <= 0 {
		cfg.InitialCapital = 100_000
	}
	if cfg.RiskFreeRate == 0 {
		cfg.RiskFreeRate = 0.03
	}
	if cfg.HistoryRounds <= 0 {
		cfg.HistoryRounds = 64
	}
	if cfg.Risk == (risk.Config{}) {
		cfg.Risk = risk.DefaultConfig()
	}
	return cfg
}

// Result is the output of a replay run.
type Result struct {
	Report      perf.Report
	EquityCurve []perf.EquityPoint
	Trades      []ledger.ClosedTrade
	Bars        int
	Start, End  time.Time
}

// Orchestrator drives the full event cascade over historical bars. Each
// timestamp is published and fully drained before the next one, so no
// component ever sees data ahead of the bar being processed.
type Orchestrator struct {
	cfg    Config
	bus    *bus.Bus
	ledger *ledger.Ledger
	risk   *risk.Engine
	sim    *exec.Simulator
	orders *og.Gateway
	clock  Clock
}

// NewOrchestrator wires the bus, ledger, risk gate, simulator, and order
// tracking for a queued replay, then binds the given strategies.
func NewOrchestrator(cfg Config, strategies ...strategy.Strategy) *Orchestrator {
	cfg = cfg.withDefaults()
	b := bus.New(bus.ModeQueued, bus.WithHistory(cfg.HistoryRounds))
	led := ledger.New(cfg.InitialCapital)
	engine := risk.NewEngine(cfg.Risk, cfg.InitialCapital)
	sim := exec.NewSimulator(cfg.Costs)
	gw := og.NewGateway(og.GatewayConfig{Session: "replay"})

	o := &Orchestrator{
		cfg:    cfg,
		bus:    b,
		ledger: led,
		risk:   engine,
		sim:    sim,
		orders: gw,
		clock:  realClock{},
	}

	// Registration order fixes intra-round dispatch order: the simulator
	// snapshots the bar before the ledger can synthesize exits against it.
	sim.Bind(b)
	led.Bind(b)
	engine.Bind(b, led)
	for _, s := range strategies {
		strategy.Bind(b, s)
	}
	o.trackOrders()
	return o
}

// WithClock swaps the clock implementation.
func (o *Orchestrator) WithClock(clock Clock) *Orchestrator {
	o.clock = clock
	return o
}

// Bus exposes the underlying bus so observers (persistence, metrics) can
// subscribe before Run.
func (o *Orchestrator) Bus() *bus.Bus {
	return o.bus
}

// Ledger exposes the portfolio state.
func (o *Orchestrator) Ledger() *ledger.Ledger {
	return o.ledger
}

// Risk exposes the risk engine.
func (o *Orchestrator) Risk() *risk.Engine {
	return o.risk
}

// Orders exposes the order lifecycle tracker.
func (o *Orchestrator) Orders() *og.Gateway {
	return o.orders
}

// Run replays the bars through the cascade and computes the final report.
// Bars must arrive in ascending time order; equal timestamps form one
// round across symbols.
func (o *Orchestrator) Run(ctx context.Context, bars []feed.Bar) (*Result, error) {
	if len(bars) == 0 {
		return nil, errors.New("no bars to replay")
	}

	curve := []perf.EquityPoint{{Time: bars[0].Time, Value: o.ledger.Equity()}}
	var prev time.Time
	var lastTS time.Time

	i := 0
	for i < len(bars) {
		ts := bars[i].Time
		if !prev.IsZero() && !ts.After(prev) {
			return nil, errors.Wrap(ErrOutOfOrderData, ts.String()).
				With("previous", prev.String())
		}

		if err := o.pace(ctx, prev, ts); err != nil {
			return nil, err
		}
		if !prev.IsZero() && dayChanged(prev, ts) {
			o.risk.ResetDaily(o.ledger.Equity())
		}

		// All bars sharing this timestamp go into one round.
		for i < len(bars) && bars[i].Time.Equal(ts) {
			bar := bars[i]
			o.bus.Publish(schema.NewMarketDataEvent(ts, &schema.MarketData{
				Symbol: bar.Symbol,
				Asset:  bar.Asset,
				Bar:    bar.Bar,
				Source: "replay",
			}))
			i++
		}
		o.bus.Drain()

		if alert := o.risk.OnEquityUpdate(o.ledger.Equity()); alert != nil {
			o.bus.Publish(schema.NewRiskAlertEvent(ts, alert))
			o.bus.Drain()
		}

		curve = append(curve, perf.EquityPoint{Time: ts, Value: o.ledger.Equity()})
		prev = ts
		lastTS = ts

		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	o.forceClose(lastTS)
	curve = append(curve, perf.EquityPoint{Time: lastTS, Value: o.ledger.Equity()})

	trades := o.ledger.ClosedTrades()
	report := perf.NewCalculator(curve, trades, o.cfg.InitialCapital,
		bars[0].Time, lastTS, o.cfg.RiskFreeRate).Calculate()
	o.publishMetrics(lastTS, report)

	logs.Infof("replay finished: %d bars, %d trades, final equity %.2f",
		len(bars), len(trades), o.ledger.Equity())

	return &Result{
		Report:      report,
		EquityCurve: curve,
		Trades:      trades,
		Bars:        len(bars),
		Start:       bars[0].Time,
		End:         lastTS,
	}, nil
}

// forceClose liquidates open positions at the last seen price so the final
// equity reflects realized results only.
func (o *Orchestrator) forceClose(ts time.Time) {
	for _, p := range o.ledger.Positions() {
		side := schema.OrderSideSell
		if p.Side == schema.PositionShort {
			side = schema.OrderSideBuy
		}
		logs.Infof("force closing %s %s %.6f at end of replay", p.Side, p.Symbol, p.Quantity)
		o.bus.Publish(schema.NewOrderEvent(ts, &schema.Order{
			ID:         "EOD-" + p.Symbol + "-" + p.StrategyID,
			Symbol:     p.Symbol,
			Asset:      p.Asset,
			StrategyID: p.StrategyID,
			Side:       side,
			Type:       schema.OrderTypeMarket,
			Quantity:   p.Quantity,
			Reduce:     true,
		}))
	}
	o.bus.Drain()
}

func (o *Orchestrator) publishMetrics(ts time.Time, report perf.Report) {
	metrics := []schema.PerformanceMetric{
		{Name: "total_return_pct", Value: report.Returns.TotalReturnPct},
		{Name: "sharpe_ratio", Value: report.RiskAdjusted.SharpeRatio},
		{Name: "max_drawdown_pct", Value: report.Drawdown.MaxDrawdownPct},
		{Name: "win_rate", Value: report.Trades.WinRate},
	}
	for i := range metrics {
		o.bus.Publish(schema.NewMetricEvent(ts, &metrics[i]))
	}
	o.bus.Drain()
}

// trackOrders mirrors the order lifecycle into the gateway state machine:
// orders register on publish and complete on fill.
func (o *Orchestrator) trackOrders() {
	o.bus.Subscribe(schema.EventOrder, func(ev *schema.Event) {
		if err := o.orders.Send(*ev.Order); err != nil {
			logs.Warnf("order tracking: %+v", err)
		}
	})
	o.bus.Subscribe(schema.EventFill, func(ev *schema.Event) {
		if err := o.orders.OnFill(*ev.Fill); err != nil {
			logs.Warnf("fill tracking: %+v", err)
		}
	})
}

func (o *Orchestrator) pace(ctx context.Context, prev, current time.Time) error {
	if o.cfg.Speed <= 0 || prev.IsZero() {
		return nil
	}
	delta := current.Sub(prev)
	if delta <= 0 {
		return nil
	}
	return o.clock.Sleep(ctx, time.Duration(float64(delta)/o.cfg.Speed))
}

func dayChanged(prev, current time.Time) bool {
	py, pm, pd := prev.UTC().Date()
	cy, cm, cd := current.UTC().Date()
	return py != cy || pm != cm || pd != cd
}
