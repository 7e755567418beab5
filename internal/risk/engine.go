package risk

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/schema"
)

// Config defines the four-layer risk limits. All percentages are fractions
// of current equity.
type Config struct {
	MaxPositionPct  float64 `json:"maxPositionPct"`
	MaxSymbolPct    float64 `json:"maxSymbolPct"`
	MaxPortfolioPct float64 `json:"maxPortfolioPct"`
	DailyLossLimit  float64 `json:"dailyLossLimit"`
	MaxDrawdown     float64 `json:"maxDrawdown"`
	StopLossMinPct  float64 `json:"stopLossMinPct"`
	StopLossMaxPct  float64 `json:"stopLossMaxPct"`

	// CloseBypassesBreaker lets CLOSE signals through an active circuit
	// breaker. Closing reduces risk, so the default is true.
	CloseBypassesBreaker *bool `json:"closeBypassesBreaker"`
}

// DefaultConfig returns the stock limits.
func DefaultConfig() Config {
	return Config{
		MaxPositionPct:  0.10,
		MaxSymbolPct:    0.15,
		MaxPortfolioPct: 0.80,
		DailyLossLimit:  0.05,
		MaxDrawdown:     0.20,
		StopLossMinPct:  0.005,
		StopLossMaxPct:  0.10,
	}
}

func (c Config) closeBypassesBreaker() bool {
	if c.CloseBypassesBreaker == nil {
		return true
	}
	return *c.CloseBypassesBreaker
}

// Validate checks the limits are usable.
func (c Config) Validate() error {
	if c.MaxPositionPct <= 0 || c.MaxPositionPct > 1 {
		return fmt.Errorf("invalid risk config: MaxPositionPct must be in (0,1]")
	}
	if c.MaxSymbolPct <= 0 || c.MaxSymbolPct > 1 {
		return fmt.Errorf("invalid risk config: MaxSymbolPct must be in (0,1]")
	}
	if c.MaxPortfolioPct <= 0 || c.MaxPortfolioPct > 1 {
		return fmt.Errorf("invalid risk config: MaxPortfolioPct must be in (0,1]")
	}
	if c.DailyLossLimit <= 0 || c.MaxDrawdown <= 0 {
		return fmt.Errorf("invalid risk config: loss limits must be > 0")
	}
	if c.StopLossMinPct < 0 || c.StopLossMaxPct <= c.StopLossMinPct {
		return fmt.Errorf("invalid risk config: stop-loss band is empty")
	}
	return nil
}

// View is the read-only portfolio snapshot the gate validates against.
// Implemented by the ledger.
type View interface {
	Equity() float64
	SymbolExposure(symbol string) float64
	TotalExposure() float64
	OpenPosition(symbol, strategyID string) (schema.PositionSide, float64, bool)
}

// State is the gate's private breaker bookkeeping. Owned exclusively by the
// engine; nothing else reads or mutates it.
type State struct {
	PortfolioValue       float64
	DailyStartEquity     float64
	PeakEquity           float64
	CircuitBreakerActive bool
}

// Decision is the outcome of validating one signal.
type Decision struct {
	Approved bool
	Order    *schema.Order
	Reason   string
	Severity schema.Severity
}

// Engine evaluates signals through the layered checks and owns the sticky
// circuit breaker.
type Engine struct {
	cfg   Config
	state State
}

// NewEngine creates a risk engine seeded with the starting equity.
func NewEngine(cfg Config, initialEquity float64) *Engine {
	return &Engine{
		cfg: cfg,
		state: State{
			PortfolioValue:   initialEquity,
			DailyStartEquity: initialEquity,
			PeakEquity:       initialEquity,
		},
	}
}

// State returns a copy of the current breaker state.
func (e *Engine) State() State {
	return e.state
}

// BreakerActive reports whether the circuit breaker has tripped.
func (e *Engine) BreakerActive() bool {
	return e.state.CircuitBreakerActive
}

// Validate runs a signal through the check layers in order, short-circuiting
// on the first failure. CLOSE signals skip the sizing layers; whether they
// also skip the breaker check is governed by CloseBypassesBreaker.
func (e *Engine) Validate(sig *schema.Signal, view View) Decision {
	if sig == nil {
		return reject("signal is nil", schema.SeverityLow)
	}
	if sig.Symbol == "" || !sig.Kind.IsAvailable() {
		return reject("signal missing symbol or kind", schema.SeverityLow)
	}
	if sig.Price <= 0 {
		return reject(fmt.Sprintf("signal price %.4f is not positive", sig.Price), schema.SeverityLow)
	}

	if sig.Kind == schema.SignalClose {
		return e.validateClose(sig, view)
	}

	// Layer 0: circuit breaker.
	if e.state.CircuitBreakerActive {
		return reject("circuit breaker active - trading halted", schema.SeverityCritical)
	}

	equity := view.Equity()
	if equity <= 0 {
		return reject("equity is not positive", schema.SeverityHigh)
	}

	// Layer 1: position sizing and stop-loss placement.
	if d, ok := e.checkPosition(sig); !ok {
		return d
	}

	proposed := sig.Meta.QuantityPct * equity

	// Layer 2: aggregate symbol exposure.
	if symbolPct := (view.SymbolExposure(sig.Symbol) + proposed) / equity; symbolPct > e.cfg.MaxSymbolPct {
		return reject(fmt.Sprintf("symbol exposure %.1f%% exceeds limit %.1f%%",
			symbolPct*100, e.cfg.MaxSymbolPct*100), schema.SeverityMedium)
	}

	// Layer 3: total portfolio exposure.
	if totalPct := (view.TotalExposure() + proposed) / equity; totalPct > e.cfg.MaxPortfolioPct {
		return reject(fmt.Sprintf("portfolio exposure %.1f%% exceeds limit %.1f%%",
			totalPct*100, e.cfg.MaxPortfolioPct*100), schema.SeverityMedium)
	}

	side := schema.OrderSideBuy
	if sig.Kind == schema.SignalSell {
		side = schema.OrderSideSell
	}
	return approve(&schema.Order{
		ID:         newOrderID("ORD"),
		Symbol:     sig.Symbol,
		Asset:      sig.Asset,
		StrategyID: sig.StrategyID,
		Side:       side,
		Type:       schema.OrderTypeMarket,
		Quantity:   proposed / sig.Price,
		StopLoss:   sig.Meta.StopLoss,
		TakeProfit: sig.Meta.TakeProfit,
	})
}

func (e *Engine) validateClose(sig *schema.Signal, view View) Decision {
	if e.state.CircuitBreakerActive && !e.cfg.closeBypassesBreaker() {
		return reject("circuit breaker active - trading halted", schema.SeverityCritical)
	}
	posSide, qty, ok := view.OpenPosition(sig.Symbol, sig.StrategyID)
	if !ok || qty <= 0 {
		return reject(fmt.Sprintf("no open position to close for %s", sig.Symbol), schema.SeverityLow)
	}
	side := schema.OrderSideSell
	if posSide == schema.PositionShort {
		side = schema.OrderSideBuy
	}
	return approve(&schema.Order{
		ID:         newOrderID("CLS"),
		Symbol:     sig.Symbol,
		Asset:      sig.Asset,
		StrategyID: sig.StrategyID,
		Side:       side,
		Type:       schema.OrderTypeMarket,
		Quantity:   qty,
		Reduce:     true,
	})
}

func (e *Engine) checkPosition(sig *schema.Signal) (Decision, bool) {
	pct := sig.Meta.QuantityPct
	if pct <= 0 {
		return reject("quantity fraction must be > 0", schema.SeverityLow), false
	}
	if pct > e.cfg.MaxPositionPct {
		return reject(fmt.Sprintf("position size %.1f%% exceeds limit %.1f%%",
			pct*100, e.cfg.MaxPositionPct*100), schema.SeverityHigh), false
	}
	if sig.Meta.StopLoss <= 0 {
		return reject("stop-loss required but not provided", schema.SeverityHigh), false
	}
	stopPct := abs(sig.Price-sig.Meta.StopLoss) / sig.Price
	if stopPct < e.cfg.StopLossMinPct {
		return reject(fmt.Sprintf("stop-loss too tight: %.2f%% < %.2f%%",
			stopPct*100, e.cfg.StopLossMinPct*100), schema.SeverityHigh), false
	}
	if stopPct > e.cfg.StopLossMaxPct {
		return reject(fmt.Sprintf("stop-loss too wide: %.2f%% > %.2f%%",
			stopPct*100, e.cfg.StopLossMaxPct*100), schema.SeverityHigh), false
	}
	return Decision{}, true
}

// OnEquityUpdate records the latest mark-to-market equity and re-evaluates
// the breaker triggers. Returns the alert when the breaker trips on this
// update, nil otherwise. The flag never clears itself.
func (e *Engine) OnEquityUpdate(equity float64) *schema.RiskAlert {
	e.state.PortfolioValue = equity
	if !e.state.CircuitBreakerActive {
		if alert := e.checkBreakers(equity); alert != nil {
			e.state.CircuitBreakerActive = true
			logs.Errorf("CIRCUIT BREAKER ACTIVATED: %s", alert.Reason)
			return alert
		}
	}
	if equity > e.state.PeakEquity {
		e.state.PeakEquity = equity
	}
	return nil
}

func (e *Engine) checkBreakers(equity float64) *schema.RiskAlert {
	if e.state.DailyStartEquity > 0 {
		dailyPnL := equity/e.state.DailyStartEquity - 1
		if dailyPnL <= -e.cfg.DailyLossLimit {
			return &schema.RiskAlert{
				Kind:     "CIRCUIT_BREAKER",
				Severity: schema.SeverityCritical,
				Reason: fmt.Sprintf("daily loss limit breached: %.2f%% exceeds limit -%.2f%%",
					dailyPnL*100, e.cfg.DailyLossLimit*100),
				Equity: equity,
			}
		}
	}
	if e.state.PeakEquity > 0 {
		drawdown := equity/e.state.PeakEquity - 1
		if drawdown <= -e.cfg.MaxDrawdown {
			return &schema.RiskAlert{
				Kind:     "CIRCUIT_BREAKER",
				Severity: schema.SeverityCritical,
				Reason: fmt.Sprintf("max drawdown breached: %.2f%% exceeds limit -%.2f%%",
					drawdown*100, e.cfg.MaxDrawdown*100),
				Equity: equity,
			}
		}
	}
	return nil
}

// ResetCircuitBreaker clears the sticky breaker flag. This is the only path
// that clears it; there is no timer or automatic recovery.
func (e *Engine) ResetCircuitBreaker() {
	if e.state.CircuitBreakerActive {
		e.state.CircuitBreakerActive = false
		logs.Warn("circuit breaker manually reset - trading resumed")
		return
	}
	logs.Info("circuit breaker already inactive")
}

// ResetDaily re-bases the daily loss reference at a trading-day boundary.
func (e *Engine) ResetDaily(equity float64) {
	e.state.DailyStartEquity = equity
}

// Bind subscribes the gate to signal events. Approved signals become order
// events; rejections become risk alerts carrying the first failing reason.
func (e *Engine) Bind(b *bus.Bus, view View) {
	b.Subscribe(schema.EventSignal, func(ev *schema.Event) {
		sig := ev.Signal
		d := e.Validate(sig, view)
		if d.Approved {
			logs.Infof("signal approved: %s %s @ %.2f qty=%.6f",
				sig.Symbol, sig.Kind, sig.Price, d.Order.Quantity)
			b.Publish(schema.NewOrderEvent(ev.Timestamp, d.Order))
			return
		}
		logs.Warnf("signal rejected (%s): %s - %s", d.Severity, sig.Symbol, d.Reason)
		b.Publish(schema.NewRiskAlertEvent(ev.Timestamp, &schema.RiskAlert{
			Kind:       "SIGNAL_REJECTED",
			Severity:   d.Severity,
			Reason:     d.Reason,
			Symbol:     sig.Symbol,
			StrategyID: sig.StrategyID,
			Equity:     e.state.PortfolioValue,
		}))
	})
}

func reject(reason string, severity schema.Severity) Decision {
	return Decision{Reason: reason, Severity: severity}
}

func approve(order *schema.Order) Decision {
	return Decision{Approved: true, Order: order}
}

func newOrderID(prefix string) string {
	return prefix + "-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
