package strategy

import (
	"main/internal/bus"
	"main/internal/schema"
)

// Strategy turns market data into trading signals. Implementations keep
// their own per-symbol state and must be driven from a single goroutine.
type Strategy interface {
	// Name identifies the strategy in signals and position keys.
	Name() string
	// OnMarketData consumes a bar and may emit a signal.
	OnMarketData(md *schema.MarketData) *schema.Signal
	// OnPositionUpdate informs the strategy of its own position changes.
	OnPositionUpdate(update *schema.PositionUpdate)
}

// Bind subscribes a strategy to market data and position updates,
// publishing its signals back onto the bus. Position updates for other
// strategies are filtered out.
func Bind(b *bus.Bus, s Strategy) {
	b.Subscribe(schema.EventMarketData, func(ev *schema.Event) {
		if sig := s.OnMarketData(ev.MarketData); sig != nil {
			b.Publish(schema.NewSignalEvent(ev.Timestamp, sig))
		}
	})
	b.Subscribe(schema.EventPositionUpdate, func(ev *schema.Event) {
		if ev.PositionUpdate == nil || ev.PositionUpdate.StrategyID != s.Name() {
			return
		}
		s.OnPositionUpdate(ev.PositionUpdate)
	})
}
