package ledger

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/schema"
)

// ClosedTrade is a realized round trip kept for performance statistics.
type ClosedTrade struct {
	Symbol     string
	StrategyID string
	Side       schema.PositionSide
	Quantity   float64
	EntryPrice float64
	ExitPrice  float64
	EntryTime  time.Time
	ExitTime   time.Time
	PnL        float64
}

type positionKey struct {
	symbol   string
	strategy string
}

// Ledger owns cash and positions and is the single writer of financial
// state. All mutation arrives through OnFill and OnMarketData; everything
// else is read-only.
type Ledger struct {
	initialCash float64
	cash        float64
	realized    float64

	positions map[positionKey]*Position
	lastPrice map[string]float64
	closed    []ClosedTrade

	bus *bus.Bus
}

// New creates a ledger holding the starting cash.
func New(initialCash float64) *Ledger {
	return &Ledger{
		initialCash: initialCash,
		cash:        initialCash,
		positions:   make(map[positionKey]*Position),
		lastPrice:   make(map[string]float64),
	}
}

// Cash returns the current cash balance.
func (l *Ledger) Cash() float64 {
	return l.cash
}

// InitialCash returns the starting balance.
func (l *Ledger) InitialCash() float64 {
	return l.initialCash
}

// RealizedPnL returns cumulative realized P&L across all closed trades.
func (l *Ledger) RealizedPnL() float64 {
	return l.realized
}

// ClosedTrades returns the realized trade ledger, oldest first.
func (l *Ledger) ClosedTrades() []ClosedTrade {
	return l.closed
}

// Equity is cash plus the mark-to-market value of every open position.
// A symbol that never ticked is valued at its entry price with a warning;
// valuation never halts on a missing price.
func (l *Ledger) Equity() float64 {
	total := l.cash
	for _, p := range l.positions {
		total += p.Value(l.markPrice(p))
	}
	return total
}

// UnrealizedPnL sums unrealized P&L across open positions.
func (l *Ledger) UnrealizedPnL() float64 {
	total := 0.0
	for _, p := range l.positions {
		total += p.UnrealizedPnL
	}
	return total
}

// SymbolExposure is the mark-to-market invested amount on one symbol across
// strategies.
func (l *Ledger) SymbolExposure(symbol string) float64 {
	total := 0.0
	for key, p := range l.positions {
		if key.symbol == symbol {
			total += p.Exposure(l.markPrice(p))
		}
	}
	return total
}

// TotalExposure is the mark-to-market invested amount across all open
// positions.
func (l *Ledger) TotalExposure() float64 {
	total := 0.0
	for _, p := range l.positions {
		total += p.Exposure(l.markPrice(p))
	}
	return total
}

// OpenPosition reports the side and open quantity for a (symbol, strategy)
// pair. A position with a synthesized exit already in flight reports as
// closed so the gate cannot approve a second full-quantity close.
func (l *Ledger) OpenPosition(symbol, strategyID string) (schema.PositionSide, float64, bool) {
	p, ok := l.positions[positionKey{symbol: symbol, strategy: strategyID}]
	if !ok || p.exitPending {
		return 0, 0, false
	}
	return p.Side, p.Quantity, true
}

// Positions returns the open positions. Callers must not mutate them.
func (l *Ledger) Positions() []*Position {
	out := make([]*Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, p)
	}
	return out
}

// OnFill opens, extends, reduces, or closes a position and moves cash by
// quantity*price plus or minus commission depending on side. Returns the
// resulting position update.
func (l *Ledger) OnFill(fill *schema.Fill, ts time.Time) *schema.PositionUpdate {
	if fill == nil || fill.Quantity <= 0 || fill.Price <= 0 {
		logs.Warnf("ignoring malformed fill: %+v", fill)
		return nil
	}
	key := positionKey{symbol: fill.Symbol, strategy: fill.StrategyID}
	p, ok := l.positions[key]

	switch {
	case !ok:
		// A reduce fill whose position is already gone means two exits
		// raced on the same bar. It must never reopen the key reversed.
		if fill.Reduce {
			logs.Warnf("dropping reduce fill with no open position: %s %s %.6f @ %.2f",
				fill.Symbol, fill.StrategyID, fill.Quantity, fill.Price)
			return nil
		}
		p = l.openPosition(fill, ts)
		l.positions[key] = p
	case sameDirection(p.Side, fill.Side):
		l.applyCash(fill.Side, fill.Quantity, fill.Price, fill.Commission)
		p.addTo(fill.Quantity, fill.Price, fill.Commission)
		logs.Infof("added to position: %s %s +%.6f @ %.2f (avg %.2f)",
			p.Symbol, p.Side, fill.Quantity, fill.Price, p.EntryPrice)
	default:
		l.reducePosition(key, p, fill, ts)
	}

	return l.positionUpdate(p)
}

// OnMarketData marks every open position on the symbol to the bar close,
// then evaluates stop-loss/take-profit levels. A trigger synthesizes a
// market close order, bypassing signal generation. Returns the resulting
// position updates and any synthesized orders.
func (l *Ledger) OnMarketData(md *schema.MarketData) (updates []*schema.PositionUpdate, exits []*schema.Order) {
	if md == nil || md.Bar.Close <= 0 {
		return nil, nil
	}
	price := md.Bar.Close
	l.lastPrice[md.Symbol] = price

	for key, p := range l.positions {
		if key.symbol != md.Symbol {
			continue
		}
		p.MarkToMarket(price)
		updates = append(updates, l.positionUpdate(p))

		switch {
		case p.ShouldStopLoss(price):
			logs.Warnf("stop-loss triggered: %s %s @ %.2f (stop %.2f)",
				p.Symbol, p.Side, price, p.StopLoss)
			exits = append(exits, l.exitOrder(p, "SL"))
		case p.ShouldTakeProfit(price):
			logs.Infof("take-profit triggered: %s %s @ %.2f (target %.2f)",
				p.Symbol, p.Side, price, p.TakeProfit)
			exits = append(exits, l.exitOrder(p, "TP"))
		}
	}
	return updates, exits
}

// Bind subscribes the ledger to fill and market data events, publishing
// position updates and synthesized exit orders back onto the bus.
func (l *Ledger) Bind(b *bus.Bus) {
	l.bus = b
	b.Subscribe(schema.EventFill, func(ev *schema.Event) {
		if update := l.OnFill(ev.Fill, ev.Timestamp); update != nil {
			b.Publish(schema.NewPositionUpdateEvent(ev.Timestamp, update))
		}
	})
	b.Subscribe(schema.EventMarketData, func(ev *schema.Event) {
		updates, exits := l.OnMarketData(ev.MarketData)
		for _, update := range updates {
			b.Publish(schema.NewPositionUpdateEvent(ev.Timestamp, update))
		}
		for _, order := range exits {
			b.Publish(schema.NewOrderEvent(ev.Timestamp, order))
		}
	})
}

func (l *Ledger) openPosition(fill *schema.Fill, ts time.Time) *Position {
	side := schema.PositionLong
	if fill.Side == schema.OrderSideSell {
		side = schema.PositionShort
	}
	l.applyCash(fill.Side, fill.Quantity, fill.Price, fill.Commission)
	p := &Position{
		Symbol:          fill.Symbol,
		Asset:           fill.Asset,
		StrategyID:      fill.StrategyID,
		Side:            side,
		Quantity:        fill.Quantity,
		EntryPrice:      fill.Price,
		EntryTime:       ts,
		StopLoss:        fill.StopLoss,
		TakeProfit:      fill.TakeProfit,
		Status:          schema.PositionOpen,
		EntryCommission: fill.Commission,
	}
	logs.Infof("position opened: %s %.6f %s @ %.2f", p.Side, p.Quantity, p.Symbol, p.EntryPrice)
	return p
}

func (l *Ledger) reducePosition(key positionKey, p *Position, fill *schema.Fill, ts time.Time) {
	qty := fill.Quantity
	if qty > p.Quantity {
		logs.Warnf("closing fill %.6f exceeds open quantity %.6f on %s, clamping",
			qty, p.Quantity, p.Symbol)
		qty = p.Quantity
	}
	l.applyCash(fill.Side, qty, fill.Price, fill.Commission)
	realized, closedQty := p.reduce(qty, fill.Price, fill.Commission)
	l.realized += realized

	logs.Infof("position reduced: %s -%.6f @ %.2f, realized %.2f",
		p.Symbol, closedQty, fill.Price, realized)

	if p.Status == schema.PositionClosed {
		l.closed = append(l.closed, ClosedTrade{
			Symbol:     p.Symbol,
			StrategyID: p.StrategyID,
			Side:       p.Side,
			Quantity:   closedQty,
			EntryPrice: p.EntryPrice,
			ExitPrice:  fill.Price,
			EntryTime:  p.EntryTime,
			ExitTime:   ts,
			PnL:        realized,
		})
		delete(l.positions, key)
	}
}

func (l *Ledger) applyCash(side schema.OrderSide, qty, price, commission float64) {
	if side == schema.OrderSideBuy {
		l.cash -= qty*price + commission
		return
	}
	l.cash += qty*price - commission
}

func (l *Ledger) exitOrder(p *Position, prefix string) *schema.Order {
	p.exitPending = true
	side := schema.OrderSideSell
	if p.Side == schema.PositionShort {
		side = schema.OrderSideBuy
	}
	return &schema.Order{
		ID:         prefix + "-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12]),
		Symbol:     p.Symbol,
		Asset:      p.Asset,
		StrategyID: p.StrategyID,
		Side:       side,
		Type:       schema.OrderTypeMarket,
		Quantity:   p.Quantity,
		Reduce:     true,
	}
}

func (l *Ledger) positionUpdate(p *Position) *schema.PositionUpdate {
	return &schema.PositionUpdate{
		Symbol:        p.Symbol,
		StrategyID:    p.StrategyID,
		Side:          p.Side,
		Status:        p.Status,
		Quantity:      p.Quantity,
		EntryPrice:    p.EntryPrice,
		CurrentPrice:  l.markPrice(p),
		RealizedPnL:   p.RealizedPnL,
		UnrealizedPnL: p.UnrealizedPnL,
	}
}

// markPrice resolves the valuation price for a position, holding the last
// known price and falling back to entry when the symbol has never ticked.
func (l *Ledger) markPrice(p *Position) float64 {
	if price, ok := l.lastPrice[p.Symbol]; ok && price > 0 {
		return price
	}
	logs.Warnf("no market price for %s, valuing at entry price", p.Symbol)
	return p.EntryPrice
}
