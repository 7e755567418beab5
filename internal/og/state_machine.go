package og

import (
	"github.com/yanun0323/errors"

	"main/internal/schema"
)

var (
	ErrDuplicateOrder    = errors.New("order already exists")
	ErrUnknownOrder      = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid order state transition")
	ErrInvalidFill       = errors.New("invalid fill quantity")
)

// TrackedOrder holds the gateway's view of an in-flight order.
type TrackedOrder struct {
	Order     schema.Order
	LeavesQty float64
	FilledQty float64
	AvgPrice  float64
	Status    schema.OrderStatus
}

// StateMachine updates tracked orders from submit/ack/fill events.
type StateMachine struct {
	orders map[string]*TrackedOrder
}

// NewStateMachine creates an empty state machine.
func NewStateMachine() *StateMachine {
	return &StateMachine{orders: make(map[string]*TrackedOrder)}
}

// Order returns the current tracked state for an order ID.
func (m *StateMachine) Order(id string) (*TrackedOrder, bool) {
	o, ok := m.orders[id]
	return o, ok
}

// ApplySubmit registers a new order in Pending state.
func (m *StateMachine) ApplySubmit(order schema.Order) (*TrackedOrder, error) {
	if order.ID == "" {
		return nil, ErrUnknownOrder
	}
	if _, ok := m.orders[order.ID]; ok {
		return nil, ErrDuplicateOrder
	}
	o := &TrackedOrder{
		Order:     order,
		LeavesQty: order.Quantity,
		Status:    schema.OrderStatusPending,
	}
	m.orders[order.ID] = o
	return o, nil
}

// ApplyAck moves a pending order to Open.
func (m *StateMachine) ApplyAck(id string) (*TrackedOrder, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrUnknownOrder
	}
	if o.Status != schema.OrderStatusPending {
		return o, ErrInvalidTransition
	}
	o.Status = schema.OrderStatusOpen
	return o, nil
}

// ApplyReject moves a non-terminal order to Rejected.
func (m *StateMachine) ApplyReject(id string) (*TrackedOrder, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrUnknownOrder
	}
	if isTerminal(o.Status) {
		return o, ErrInvalidTransition
	}
	o.Status = schema.OrderStatusRejected
	return o, nil
}

// ApplyCancel moves a non-terminal order to Cancelled. A partially filled
// order keeps its filled quantity.
func (m *StateMachine) ApplyCancel(id string) (*TrackedOrder, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrUnknownOrder
	}
	if isTerminal(o.Status) {
		return o, ErrInvalidTransition
	}
	o.Status = schema.OrderStatusCancelled
	return o, nil
}

// ApplyFill reduces the leaves quantity, moving the order to Partial or
// Filled. A pending order is implicitly acked by its first fill.
func (m *StateMachine) ApplyFill(fill schema.Fill) (*TrackedOrder, error) {
	o, ok := m.orders[fill.OrderID]
	if !ok {
		return nil, ErrUnknownOrder
	}
	if isTerminal(o.Status) {
		return o, ErrInvalidTransition
	}
	if fill.Quantity <= 0 || fill.Price <= 0 {
		return o, ErrInvalidFill
	}

	qty := fill.Quantity
	if qty > o.LeavesQty {
		qty = o.LeavesQty
	}
	o.AvgPrice = (o.AvgPrice*o.FilledQty + fill.Price*qty) / (o.FilledQty + qty)
	o.FilledQty += qty
	o.LeavesQty -= qty

	if o.LeavesQty <= 0 {
		o.LeavesQty = 0
		o.Status = schema.OrderStatusFilled
	} else {
		o.Status = schema.OrderStatusPartial
	}
	return o, nil
}

// Sweep drops terminal orders so the tracked set stays bounded over a long
// session. Returns the number of orders removed.
func (m *StateMachine) Sweep() int {
	removed := 0
	for id, o := range m.orders {
		if isTerminal(o.Status) {
			delete(m.orders, id)
			removed++
		}
	}
	return removed
}

func isTerminal(status schema.OrderStatus) bool {
	switch status {
	case schema.OrderStatusFilled, schema.OrderStatusCancelled, schema.OrderStatusRejected:
		return true
	default:
		return false
	}
}
