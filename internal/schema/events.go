package schema

import "time"

// EventType discriminates the payload carried by an Event.
type EventType uint16

const (
	_event_beg EventType = iota
	EventMarketData
	EventSignal
	EventOrder
	EventFill
	EventPositionUpdate
	EventRiskAlert
	EventPerformanceMetric
	EventSystem
	_event_end
)

func (t EventType) IsAvailable() bool {
	return t > _event_beg && t < _event_end
}

func (t EventType) String() string {
	switch t {
	case EventMarketData:
		return "market_data"
	case EventSignal:
		return "signal"
	case EventOrder:
		return "order"
	case EventFill:
		return "fill"
	case EventPositionUpdate:
		return "position_update"
	case EventRiskAlert:
		return "risk_alert"
	case EventPerformanceMetric:
		return "performance_metric"
	case EventSystem:
		return "system"
	default:
		return "unknown"
	}
}

// Event is the unit passed through the bus. Exactly one payload pointer is
// non-nil, matching Type. Seq is assigned by the bus at publish time and is
// monotonically increasing for the lifetime of the bus. Events are immutable
// once published.
type Event struct {
	Type      EventType
	Seq       uint64
	Timestamp time.Time

	MarketData     *MarketData
	Signal         *Signal
	Order          *Order
	Fill           *Fill
	PositionUpdate *PositionUpdate
	RiskAlert      *RiskAlert
	Metric         *PerformanceMetric
	System         *SystemNotice
}

// NewMarketDataEvent wraps a market data payload.
func NewMarketDataEvent(ts time.Time, md *MarketData) *Event {
	return &Event{Type: EventMarketData, Timestamp: ts, MarketData: md}
}

// NewSignalEvent wraps a signal payload.
func NewSignalEvent(ts time.Time, sig *Signal) *Event {
	return &Event{Type: EventSignal, Timestamp: ts, Signal: sig}
}

// NewOrderEvent wraps an order payload.
func NewOrderEvent(ts time.Time, order *Order) *Event {
	return &Event{Type: EventOrder, Timestamp: ts, Order: order}
}

// NewFillEvent wraps a fill payload.
func NewFillEvent(ts time.Time, fill *Fill) *Event {
	return &Event{Type: EventFill, Timestamp: ts, Fill: fill}
}

// NewPositionUpdateEvent wraps a position update payload.
func NewPositionUpdateEvent(ts time.Time, update *PositionUpdate) *Event {
	return &Event{Type: EventPositionUpdate, Timestamp: ts, PositionUpdate: update}
}

// NewRiskAlertEvent wraps a risk alert payload.
func NewRiskAlertEvent(ts time.Time, alert *RiskAlert) *Event {
	return &Event{Type: EventRiskAlert, Timestamp: ts, RiskAlert: alert}
}

// NewMetricEvent wraps a performance metric payload.
func NewMetricEvent(ts time.Time, metric *PerformanceMetric) *Event {
	return &Event{Type: EventPerformanceMetric, Timestamp: ts, Metric: metric}
}

// NewSystemEvent wraps a system notice payload.
func NewSystemEvent(ts time.Time, notice *SystemNotice) *Event {
	return &Event{Type: EventSystem, Timestamp: ts, System: notice}
}
