package ledger

import (
	"time"

	"main/internal/schema"
)

// qtyEpsilon absorbs float drift when a reducing fill empties a position.
const qtyEpsilon = 1e-9

// Position is one open exposure for a (symbol, strategy) pair. Owned and
// mutated exclusively by the Ledger.
type Position struct {
	Symbol     string
	Asset      schema.AssetClass
	StrategyID string
	Side       schema.PositionSide
	Quantity   float64
	EntryPrice float64
	EntryTime  time.Time
	StopLoss   float64
	TakeProfit float64
	Status     schema.PositionStatus

	EntryCommission float64
	RealizedPnL     float64
	UnrealizedPnL   float64

	// exitPending blocks duplicate synthesized close orders while one is
	// already in flight.
	exitPending bool
}

// MarkToMarket recomputes unrealized P&L at the given price.
// LONG profits when price rises, SHORT when it falls. Entry commission is
// deducted; exit commission lands in realized P&L on close.
func (p *Position) MarkToMarket(price float64) float64 {
	if p.Status == schema.PositionClosed {
		p.UnrealizedPnL = 0
		return 0
	}
	diff := price - p.EntryPrice
	if p.Side == schema.PositionShort {
		diff = p.EntryPrice - price
	}
	p.UnrealizedPnL = diff*p.Quantity - p.EntryCommission
	return p.UnrealizedPnL
}

// Value is the position's contribution to equity at the given price.
// A LONG carries market value. A SHORT is a liability: its proceeds already
// sit in cash, so it contributes the negative cost of buying back.
func (p *Position) Value(price float64) float64 {
	if p.Status == schema.PositionClosed {
		return 0
	}
	if p.Side == schema.PositionLong {
		return p.Quantity * price
	}
	return -p.Quantity * price
}

// Exposure is the mark-to-market invested amount used by the risk layers.
func (p *Position) Exposure(price float64) float64 {
	if p.Status == schema.PositionClosed {
		return 0
	}
	return p.Quantity * price
}

// ShouldStopLoss reports whether price has crossed the stop level.
func (p *Position) ShouldStopLoss(price float64) bool {
	if p.StopLoss <= 0 || p.Status == schema.PositionClosed || p.exitPending {
		return false
	}
	if p.Side == schema.PositionLong {
		return price <= p.StopLoss
	}
	return price >= p.StopLoss
}

// ShouldTakeProfit reports whether price has crossed the target level.
func (p *Position) ShouldTakeProfit(price float64) bool {
	if p.TakeProfit <= 0 || p.Status == schema.PositionClosed || p.exitPending {
		return false
	}
	if p.Side == schema.PositionLong {
		return price >= p.TakeProfit
	}
	return price <= p.TakeProfit
}

// addTo extends the position on the same side, averaging the entry price.
func (p *Position) addTo(qty, price, commission float64) {
	total := p.Quantity + qty
	p.EntryPrice = (p.Quantity*p.EntryPrice + qty*price) / total
	p.Quantity = total
	p.EntryCommission += commission
}

// reduce applies a closing fill. The fill quantity is clamped so it never
// exceeds the remaining open quantity. Returns the realized P&L of the
// closed portion and the quantity actually closed.
func (p *Position) reduce(qty, price, commission float64) (realized, closed float64) {
	if qty > p.Quantity {
		qty = p.Quantity
	}
	diff := price - p.EntryPrice
	if p.Side == schema.PositionShort {
		diff = p.EntryPrice - price
	}
	// Entry commission is charged proportionally to the closed fraction.
	entryShare := 0.0
	if p.Quantity > 0 {
		entryShare = p.EntryCommission * qty / p.Quantity
	}
	realized = diff*qty - entryShare - commission

	p.Quantity -= qty
	p.EntryCommission -= entryShare
	p.RealizedPnL += realized
	p.exitPending = false

	if p.Quantity <= qtyEpsilon {
		p.Quantity = 0
		p.Status = schema.PositionClosed
		p.UnrealizedPnL = 0
	} else {
		p.Status = schema.PositionPartial
	}
	return realized, qty
}

// sameDirection reports whether a fill on the given side grows rather than
// reduces a position on the given side.
func sameDirection(pos schema.PositionSide, side schema.OrderSide) bool {
	if pos == schema.PositionLong {
		return side == schema.OrderSideBuy
	}
	return side == schema.OrderSideSell
}
