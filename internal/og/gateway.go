package og

import (
	"github.com/yanun0323/errors"

	"main/internal/schema"
)

var ErrGatewayDisconnected = errors.New("order gateway disconnected")

// GatewayConfig controls the gateway behavior.
type GatewayConfig struct {
	Session           string
	ResendOnReconnect bool
}

// Gateway tracks in-flight orders with reconnect/resend support. It sits
// between the risk gate and the execution venue so the engine can cancel
// or resend outstanding orders on shutdown and reconnect.
type Gateway struct {
	cfg       GatewayConfig
	state     *StateMachine
	pending   map[string]schema.Order
	connected bool
}

// NewGateway creates a new gateway.
func NewGateway(cfg GatewayConfig) *Gateway {
	if cfg.Session == "" {
		cfg.Session = "default"
	}
	return &Gateway{
		cfg:       cfg,
		state:     NewStateMachine(),
		pending:   make(map[string]schema.Order),
		connected: true,
	}
}

// State returns the underlying order state machine.
func (g *Gateway) State() *StateMachine {
	return g.state
}

// Send registers a new order and stores it for potential resend.
func (g *Gateway) Send(order schema.Order) error {
	if _, err := g.state.ApplySubmit(order); err != nil {
		return err
	}
	g.pending[order.ID] = order
	if !g.connected {
		return ErrGatewayDisconnected
	}
	return nil
}

// OnAck moves an order to Open.
func (g *Gateway) OnAck(id string) error {
	_, err := g.state.ApplyAck(id)
	return err
}

// OnReject moves an order to Rejected and drops it from the resend set.
func (g *Gateway) OnReject(id string) error {
	order, err := g.state.ApplyReject(id)
	if err != nil {
		return err
	}
	if isTerminal(order.Status) {
		delete(g.pending, id)
	}
	return nil
}

// OnFill updates order state from a fill.
func (g *Gateway) OnFill(fill schema.Fill) error {
	order, err := g.state.ApplyFill(fill)
	if err != nil {
		return err
	}
	if isTerminal(order.Status) {
		delete(g.pending, fill.OrderID)
	}
	return nil
}

// Cancel moves an order to Cancelled and drops it from the resend set.
func (g *Gateway) Cancel(id string) error {
	if _, err := g.state.ApplyCancel(id); err != nil {
		return err
	}
	delete(g.pending, id)
	return nil
}

// CancelAll cancels every outstanding order and returns the cancelled IDs.
func (g *Gateway) CancelAll() []string {
	out := make([]string, 0, len(g.pending))
	for id := range g.pending {
		if _, err := g.state.ApplyCancel(id); err != nil {
			continue
		}
		out = append(out, id)
	}
	for _, id := range out {
		delete(g.pending, id)
	}
	return out
}

// Disconnect marks the gateway as disconnected.
func (g *Gateway) Disconnect() {
	g.connected = false
}

// Reconnect marks the gateway as connected and returns outstanding orders
// to resend.
func (g *Gateway) Reconnect() []schema.Order {
	g.connected = true
	if !g.cfg.ResendOnReconnect {
		return nil
	}
	out := make([]schema.Order, 0, len(g.pending))
	for _, order := range g.pending {
		out = append(out, order)
	}
	return out
}
