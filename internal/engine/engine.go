package engine

import (
	"context"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/exec"
	"main/internal/journal"
	"main/internal/ledger"
	"main/internal/obs"
	"main/internal/og"
	"main/internal/ops"
	"main/internal/risk"
	"main/internal/schema"
	"main/internal/store"
	"main/internal/strategy"
)

// Engine runs the live/paper trading loop. Feeds push market data into a
// bounded queue from their own goroutines; a single consumer publishes onto
// an immediate-mode bus, so every mutation of financial state stays on one
// goroutine.
type Engine struct {
	cfg     ops.Loaded
	bus     *bus.Bus
	queue   *bus.Queue
	ledger  *ledger.Ledger
	risk    *risk.Engine
	sim     *exec.Simulator
	gateway *og.Gateway
	metrics *obs.Metrics
	journal *journal.Writer

	broker  exec.Broker
	liveCfg exec.LiveConfig

	snapshotPath string
	lastDay      time.Time
}

// Option customizes the engine.
type Option func(*Engine)

// WithStore attaches persistence. A nil store is a no-op.
func WithStore(s *store.Store) Option {
	return func(e *Engine) { s.Bind(e.bus) }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *obs.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
		m.Bind(e.bus)
	}
}

// WithSnapshot writes the ledger snapshot to path on shutdown.
func WithSnapshot(path string) Option {
	return func(e *Engine) { e.snapshotPath = path }
}

// WithJournal records every bus event to an append-only journal, closed on
// shutdown.
func WithJournal(w *journal.Writer) Option {
	return func(e *Engine) {
		e.journal = w
		w.Bind(e.bus)
	}
}

// WithBroker routes approved orders to a live venue instead of the paper
// simulator.
func WithBroker(broker exec.Broker, cfg exec.LiveConfig) Option {
	return func(e *Engine) {
		e.broker = broker
		e.liveCfg = cfg
	}
}

// New wires the trading cascade in immediate mode and binds the strategies.
func New(cfg ops.Loaded, strategies []strategy.Strategy, opts ...Option) *Engine {
	b := bus.New(bus.ModeImmediate)
	e := &Engine{
		cfg:     cfg,
		bus:     b,
		queue:   bus.NewQueue(cfg.Feed.QueueSize),
		ledger:  ledger.New(cfg.Portfolio.InitialCapital),
		risk:    risk.NewEngine(cfg.Risk, cfg.Portfolio.InitialCapital),
		sim:     exec.NewSimulator(cfg.Costs),
		gateway: og.NewGateway(og.GatewayConfig{Session: "live"}),
	}

	// Observer options (store, metrics, journal) register before the
	// cascade so they see orders before execution consumes them.
	for _, opt := range opts {
		opt(e)
	}

	// In immediate mode an order's fill dispatches depth-first inside the
	// order handlers, so the gateway must see the order before the executor
	// fills it.
	e.trackOrders()
	if e.broker != nil {
		exec.NewLive(e.liveCfg, e.broker).Bind(context.Background(), b)
	} else {
		e.sim.Bind(b)
	}
	e.ledger.Bind(b)
	e.risk.Bind(b, e.ledger)
	for _, s := range strategies {
		strategy.Bind(b, s)
	}
	return e
}

// Bus exposes the underlying bus for additional observers.
func (e *Engine) Bus() *bus.Bus {
	return e.bus
}

// Ledger exposes the portfolio state.
func (e *Engine) Ledger() *ledger.Ledger {
	return e.ledger
}

// Risk exposes the risk engine.
func (e *Engine) Risk() *risk.Engine {
	return e.risk
}

// Push enqueues a market data event from a feed goroutine. Returns
// bus.ErrQueueFull when the consumer is behind.
func (e *Engine) Push(ts time.Time, md *schema.MarketData) error {
	return e.queue.TryPublish(schema.NewMarketDataEvent(ts, md))
}

// Run consumes the queue until the context is done, then performs the
// shutdown sequence. Blocks.
func (e *Engine) Run(ctx context.Context) {
	logs.Infof("engine started with %.2f initial capital", e.cfg.Portfolio.InitialCapital)
	e.queue.Run(ctx, e.onEvent)
	e.shutdown()
}

// Close stops the ingestion queue. Safe to call from any goroutine.
func (e *Engine) Close() {
	e.queue.Close()
}

func (e *Engine) onEvent(ev *schema.Event) {
	ts := ev.Timestamp
	if !e.lastDay.IsZero() && dayChanged(e.lastDay, ts) {
		e.risk.ResetDaily(e.ledger.Equity())
		if swept := e.gateway.State().Sweep(); swept > 0 {
			logs.Infof("swept %d settled orders at day boundary", swept)
		}
	}
	e.lastDay = ts

	e.bus.Publish(ev)

	equity := e.ledger.Equity()
	if alert := e.risk.OnEquityUpdate(equity); alert != nil {
		e.bus.Publish(schema.NewRiskAlertEvent(ts, alert))
	}
	if e.metrics != nil {
		e.metrics.SetEquity(equity, e.ledger.UnrealizedPnL())
	}
}

func (e *Engine) shutdown() {
	cancelled := e.gateway.CancelAll()
	if len(cancelled) > 0 {
		logs.Warnf("cancelled %d outstanding orders on shutdown", len(cancelled))
	}
	if e.journal != nil {
		if err := e.journal.Close(); err != nil {
			logs.Errorf("close journal: %+v", err)
		}
	}
	if e.snapshotPath != "" {
		if err := ledger.WriteSnapshot(e.snapshotPath, e.ledger.Snapshot()); err != nil {
			logs.Errorf("write shutdown snapshot: %+v", err)
		} else {
			logs.Infof("ledger snapshot written to %s", e.snapshotPath)
		}
	}
	logs.Infof("engine stopped: equity %.2f, realized %.2f",
		e.ledger.Equity(), e.ledger.RealizedPnL())
}

func (e *Engine) trackOrders() {
	e.bus.Subscribe(schema.EventOrder, func(ev *schema.Event) {
		if err := e.gateway.Send(*ev.Order); err != nil {
			logs.Warnf("order tracking: %+v", err)
		}
	})
	e.bus.Subscribe(schema.EventFill, func(ev *schema.Event) {
		if err := e.gateway.OnFill(*ev.Fill); err != nil {
			logs.Warnf("fill tracking: %+v", err)
		}
	})
}

func dayChanged(prev, current time.Time) bool {
	py, pm, pd := prev.UTC().Date()
	cy, cm, cd := current.UTC().Date()
	return py != cy || pm != cm || pd != cd
}
