package exec

import (
	"strings"

	"github.com/google/uuid"
	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/schema"
)

// Costs models transaction costs for simulated fills.
type Costs struct {
	BaseSlippage   float64 `json:"baseSlippage"`
	VolumeImpact   float64 `json:"volumeImpact"`
	MaxSlippagePct float64 `json:"maxSlippagePct"`
	CryptoTakerFee float64 `json:"cryptoTakerFee"`
	StockSECFee    float64 `json:"stockSecFee"`
	StockFINRATaf  float64 `json:"stockFinraTaf"`

	// Conservative fills buys at the bar high and sells at the bar low
	// instead of the close.
	Conservative bool `json:"conservative"`
}

// DefaultCosts returns the standard cost model.
func DefaultCosts() Costs {
	return Costs{
		BaseSlippage:   0.001,
		VolumeImpact:   0.00001,
		MaxSlippagePct: 0.02,
		CryptoTakerFee: 0.006,
		StockSECFee:    0.0000278,
		StockFINRATaf:  0.000166,
		Conservative:   true,
	}
}

// Simulator fills market orders against the latest bar per symbol, applying
// slippage and commission. It stands in for a live venue during backtests
// and paper trading.
type Simulator struct {
	costs Costs
	bars  map[string]schema.Bar
}

// NewSimulator creates a simulator with the given cost model.
func NewSimulator(costs Costs) *Simulator {
	return &Simulator{
		costs: costs,
		bars:  make(map[string]schema.Bar),
	}
}

// OnMarketData records the latest bar for a symbol.
func (s *Simulator) OnMarketData(md *schema.MarketData) {
	if md == nil {
		return
	}
	s.bars[md.Symbol] = md.Bar
}

// Execute fills an order against the symbol's latest bar. Returns nil when
// the order cannot fill, with the reason logged.
func (s *Simulator) Execute(order *schema.Order) *schema.Fill {
	if order == nil || order.ID == "" || order.Symbol == "" || order.Quantity <= 0 {
		logs.Errorf("rejecting malformed order: %+v", order)
		return nil
	}
	if !order.Side.IsAvailable() {
		logs.Errorf("rejecting order %s: invalid side", order.ID)
		return nil
	}
	bar, ok := s.bars[order.Symbol]
	if !ok || bar.Close <= 0 {
		logs.Errorf("rejecting order %s: no market data for %s", order.ID, order.Symbol)
		return nil
	}

	price := s.fillPrice(order, bar)
	commission := s.commission(order, price)

	logs.Infof("order filled: %s %s %.6f %s @ %.2f (commission %.2f)",
		order.Side, order.Type, order.Quantity, order.Symbol, price, commission)

	return &schema.Fill{
		TradeID:    newTradeID(),
		OrderID:    order.ID,
		Symbol:     order.Symbol,
		Asset:      order.Asset,
		StrategyID: order.StrategyID,
		Side:       order.Side,
		Quantity:   order.Quantity,
		Price:      price,
		Commission: commission,
		StopLoss:   order.StopLoss,
		TakeProfit: order.TakeProfit,
		Reduce:     order.Reduce,
	}
}

// Bind subscribes the simulator to market data and order events, publishing
// fills back onto the bus.
func (s *Simulator) Bind(b *bus.Bus) {
	b.Subscribe(schema.EventMarketData, func(ev *schema.Event) {
		s.OnMarketData(ev.MarketData)
	})
	b.Subscribe(schema.EventOrder, func(ev *schema.Event) {
		if fill := s.Execute(ev.Order); fill != nil {
			b.Publish(schema.NewFillEvent(ev.Timestamp, fill))
		}
	})
}

// fillPrice starts from the worst price in the bar (high for buys, low for
// sells) when conservative, then moves the price further against the order
// by the slippage amount.
func (s *Simulator) fillPrice(order *schema.Order, bar schema.Bar) float64 {
	base := bar.Close
	if s.costs.Conservative {
		if order.Side == schema.OrderSideBuy {
			base = bar.High
		} else {
			base = bar.Low
		}
	}
	slip := s.slippage(order, base, bar)
	if order.Side == schema.OrderSideBuy {
		return base + slip
	}
	return base - slip
}

// slippage is base plus volume impact plus volatility impact, capped at a
// fraction of the base price.
func (s *Simulator) slippage(order *schema.Order, base float64, bar schema.Bar) float64 {
	total := base * s.costs.BaseSlippage

	if bar.Volume > 0 {
		orderValue := order.Quantity * base
		barValue := bar.Volume * bar.Close
		if barValue < orderValue {
			barValue = orderValue
		}
		total += base * (orderValue / barValue) * s.costs.VolumeImpact
	}

	if bar.Close > 0 {
		barRange := (bar.High - bar.Low) / bar.Close
		total += base * barRange * 0.5
	}

	if limit := base * s.costs.MaxSlippagePct; total > limit {
		total = limit
	}
	return total
}

// commission follows the venue fee schedule per asset class. Crypto pays
// the taker rate both ways; stocks are commission-free with SEC and FINRA
// fees charged on sells only.
func (s *Simulator) commission(order *schema.Order, price float64) float64 {
	value := order.Quantity * price
	switch order.Asset {
	case schema.AssetCrypto:
		return value * s.costs.CryptoTakerFee
	case schema.AssetStock:
		if order.Side == schema.OrderSideSell {
			return value*s.costs.StockSECFee + order.Quantity*s.costs.StockFINRATaf
		}
		return 0
	default:
		return 0
	}
}

func newTradeID() string {
	return "TRADE-" + strings.ToUpper(uuid.NewString()[:8])
}
