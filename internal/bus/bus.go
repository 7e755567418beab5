package bus

import (
	"time"

	"github.com/yanun0323/logs"

	"main/internal/schema"
)

// Mode selects the delivery discipline.
type Mode uint8

const (
	// ModeImmediate dispatches synchronously inside Publish. Used live.
	ModeImmediate Mode = iota
	// ModeQueued buffers published events until Drain. Used for replay,
	// where delivery must be round-complete before the timeline advances.
	ModeQueued
)

// Handler consumes a dispatched event. Handlers must not retain the event
// past the call.
type Handler func(*schema.Event)

// Bus is a typed publish/subscribe dispatcher. It owns no domain state, only
// in-flight events. It is not safe for concurrent use; callers serialize
// through a single writer (the replay orchestrator or the live engine loop).
type Bus struct {
	mode         Mode
	seq          uint64
	handlers     map[schema.EventType][]Handler
	pending      []*schema.Event
	history      [][]*schema.Event
	historyLimit int
}

// Option mutates bus construction.
type Option func(*Bus)

// WithHistory bounds the number of drained rounds retained for post-hoc
// analysis. Only effective in ModeQueued; live mode retains nothing.
func WithHistory(rounds int) Option {
	return func(b *Bus) {
		if rounds > 0 {
			b.historyLimit = rounds
		}
	}
}

// New creates a bus in the given mode.
func New(mode Mode, opts ...Option) *Bus {
	b := &Bus{
		mode:     mode,
		handlers: make(map[schema.EventType][]Handler),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler for an event kind. Dispatch order for a kind
// follows registration order.
func (b *Bus) Subscribe(kind schema.EventType, handler Handler) {
	if handler == nil || !kind.IsAvailable() {
		return
	}
	b.handlers[kind] = append(b.handlers[kind], handler)
}

// Publish hands an event to the bus. The bus assigns the sequence number and
// stamps the timestamp when the caller left it zero. In queued mode the event
// is buffered into the current round; in immediate mode it is dispatched to
// every subscriber before Publish returns.
func (b *Bus) Publish(e *schema.Event) {
	if e == nil || !e.Type.IsAvailable() {
		return
	}
	b.seq++
	e.Seq = b.seq
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if b.mode == ModeImmediate {
		b.dispatch(e)
		return
	}
	b.pending = append(b.pending, e)
}

// Drain dispatches every buffered event round by round. Events published by
// handlers during a round are buffered into the next round, so a round always
// completes against consistent state before its consequences are delivered.
// Returns the number of rounds dispatched.
func (b *Bus) Drain() int {
	if b.mode != ModeQueued {
		return 0
	}
	rounds := 0
	for len(b.pending) > 0 {
		round := b.pending
		b.pending = nil
		b.recordRound(round)
		for _, e := range round {
			b.dispatch(e)
		}
		rounds++
	}
	return rounds
}

// PendingLen reports the number of events buffered for the next round.
func (b *Bus) PendingLen() int {
	return len(b.pending)
}

// History returns the drained rounds retained so far, oldest first.
// Always empty in immediate mode.
func (b *Bus) History() [][]*schema.Event {
	return b.history
}

func (b *Bus) recordRound(round []*schema.Event) {
	if b.historyLimit <= 0 {
		return
	}
	b.history = append(b.history, round)
	if len(b.history) > b.historyLimit {
		b.history = b.history[len(b.history)-b.historyLimit:]
	}
}

func (b *Bus) dispatch(e *schema.Event) {
	for _, handler := range b.handlers[e.Type] {
		b.call(handler, e)
	}
}

// call isolates handler failures: a panic is logged and does not abort
// delivery to the remaining subscribers of the same event.
func (b *Bus) call(handler Handler, e *schema.Event) {
	defer func() {
		if r := recover(); r != nil {
			logs.Errorf("handler panic on %s event seq=%d: %+v", e.Type, e.Seq, r)
		}
	}()
	handler(e)
}
