package schema

// AssetClass selects the commission model applied by execution.
type AssetClass uint8

const (
	_asset_beg AssetClass = iota
	AssetCrypto
	AssetStock
	_asset_end
)

func (a AssetClass) IsAvailable() bool {
	return a > _asset_beg && a < _asset_end
}

func (a AssetClass) String() string {
	switch a {
	case AssetCrypto:
		return "CRYPTO"
	case AssetStock:
		return "STOCK"
	default:
		return "UNKNOWN"
	}
}

// Bar is a single OHLCV observation.
type Bar struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// MarketData is the payload for EventMarketData.
type MarketData struct {
	Symbol string
	Asset  AssetClass
	Bar    Bar
	Source string
}

// SignalKind describes the intent of a strategy signal.
type SignalKind uint8

const (
	_signal_beg SignalKind = iota
	SignalBuy
	SignalSell
	SignalClose
	_signal_end
)

func (k SignalKind) IsAvailable() bool {
	return k > _signal_beg && k < _signal_end
}

func (k SignalKind) String() string {
	switch k {
	case SignalBuy:
		return "BUY"
	case SignalSell:
		return "SELL"
	case SignalClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

// SignalMeta carries the typed sizing fields a signal proposes.
// QuantityPct is the fraction of current equity to commit. StopLoss and
// TakeProfit are absolute price levels; zero means absent.
type SignalMeta struct {
	QuantityPct float64
	StopLoss    float64
	TakeProfit  float64
}

// Signal is the payload for EventSignal. Produced by a strategy, consumed
// exactly once by the risk gate.
type Signal struct {
	Symbol     string
	Asset      AssetClass
	StrategyID string
	Kind       SignalKind
	Confidence float64
	Price      float64
	Meta       SignalMeta
}

// OrderSide describes order direction.
type OrderSide uint8

const (
	_side_beg OrderSide = iota
	OrderSideBuy
	OrderSideSell
	_side_end
)

func (s OrderSide) IsAvailable() bool {
	return s > _side_beg && s < _side_end
}

func (s OrderSide) String() string {
	switch s {
	case OrderSideBuy:
		return "BUY"
	case OrderSideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Opposite returns the side that offsets s.
func (s OrderSide) Opposite() OrderSide {
	switch s {
	case OrderSideBuy:
		return OrderSideSell
	case OrderSideSell:
		return OrderSideBuy
	default:
		return s
	}
}

// OrderType describes order type.
type OrderType uint8

const (
	_order_type_beg OrderType = iota
	OrderTypeMarket
	OrderTypeLimit
	OrderTypeStop
	OrderTypeStopLimit
	_order_type_end
)

func (t OrderType) IsAvailable() bool {
	return t > _order_type_beg && t < _order_type_end
}

func (t OrderType) String() string {
	switch t {
	case OrderTypeMarket:
		return "MARKET"
	case OrderTypeLimit:
		return "LIMIT"
	case OrderTypeStop:
		return "STOP"
	case OrderTypeStopLimit:
		return "STOP_LIMIT"
	default:
		return "UNKNOWN"
	}
}

// OrderStatus tracks the order lifecycle.
type OrderStatus uint8

const (
	_order_status_beg OrderStatus = iota
	OrderStatusPending
	OrderStatusOpen
	OrderStatusFilled
	OrderStatusPartial
	OrderStatusCancelled
	OrderStatusRejected
	_order_status_end
)

func (s OrderStatus) IsAvailable() bool {
	return s > _order_status_beg && s < _order_status_end
}

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusPending:
		return "PENDING"
	case OrderStatusOpen:
		return "OPEN"
	case OrderStatusFilled:
		return "FILLED"
	case OrderStatusPartial:
		return "PARTIAL"
	case OrderStatusCancelled:
		return "CANCELLED"
	case OrderStatusRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// Order is the payload for EventOrder. Created only from an approved signal
// or synthesized by the ledger for stop/take-profit exits.
type Order struct {
	ID         string
	Symbol     string
	Asset      AssetClass
	StrategyID string
	Side       OrderSide
	Type       OrderType
	Quantity   float64
	Price      float64 // limit/stop price; zero for market orders
	StopLoss   float64 // carried from the signal; zero when absent
	TakeProfit float64
	Reduce     bool // closes or reduces an existing position
}

// Fill is the payload for EventFill: the record of an execution.
type Fill struct {
	TradeID    string
	OrderID    string
	Symbol     string
	Asset      AssetClass
	StrategyID string
	Side       OrderSide
	Quantity   float64
	Price      float64
	Commission float64
	StopLoss   float64
	TakeProfit float64
	Reduce     bool
}

// PositionSide describes position direction.
type PositionSide uint8

const (
	_pos_side_beg PositionSide = iota
	PositionLong
	PositionShort
	_pos_side_end
)

func (s PositionSide) IsAvailable() bool {
	return s > _pos_side_beg && s < _pos_side_end
}

func (s PositionSide) String() string {
	switch s {
	case PositionLong:
		return "LONG"
	case PositionShort:
		return "SHORT"
	default:
		return "UNKNOWN"
	}
}

// PositionStatus tracks the position lifecycle.
type PositionStatus uint8

const (
	_pos_status_beg PositionStatus = iota
	PositionOpen
	PositionPartial
	PositionClosed
	_pos_status_end
)

func (s PositionStatus) IsAvailable() bool {
	return s > _pos_status_beg && s < _pos_status_end
}

func (s PositionStatus) String() string {
	switch s {
	case PositionOpen:
		return "OPEN"
	case PositionPartial:
		return "PARTIAL"
	case PositionClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// PositionUpdate is the payload for EventPositionUpdate.
type PositionUpdate struct {
	Symbol        string
	StrategyID    string
	Side          PositionSide
	Status        PositionStatus
	Quantity      float64
	EntryPrice    float64
	CurrentPrice  float64
	RealizedPnL   float64
	UnrealizedPnL float64
}

// Severity grades a risk alert.
type Severity uint8

const (
	_severity_beg Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
	_severity_end
)

func (s Severity) IsAvailable() bool {
	return s > _severity_beg && s < _severity_end
}

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// RiskAlert is the payload for EventRiskAlert.
type RiskAlert struct {
	Kind       string
	Severity   Severity
	Reason     string
	Symbol     string
	StrategyID string
	Equity     float64
}

// PerformanceMetric is the payload for EventPerformanceMetric.
type PerformanceMetric struct {
	Name       string
	Value      float64
	StrategyID string
}

// SystemNotice is the payload for EventSystem.
type SystemNotice struct {
	Name    string
	Message string
}
