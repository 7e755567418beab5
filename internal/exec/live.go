package exec

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/schema"
)

var (
	ErrSubmitTimeout = errors.New("order submit timed out")
	ErrVenueRejected = errors.New("venue rejected order")
)

// Broker submits orders to a live venue and reports their fills.
type Broker interface {
	Submit(ctx context.Context, order *schema.Order) (*schema.Fill, error)
	Cancel(ctx context.Context, orderID string) error
}

// RetryableError marks a broker error as transient. Errors that do not
// implement it fail fast.
type RetryableError interface {
	error
	Retryable() bool
}

// LiveConfig controls live order submission.
type LiveConfig struct {
	SubmitTimeout time.Duration `json:"submitTimeout"`
	MaxAttempts   int           `json:"maxAttempts"`
}

// Live routes approved orders to a broker with timeout and retry, publishing
// the resulting fills. It is the live-venue counterpart of Simulator.
type Live struct {
	cfg     LiveConfig
	broker  Broker
	backoff Backoff
}

// NewLive creates a live executor around a broker.
func NewLive(cfg LiveConfig, broker Broker) *Live {
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 5 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Live{
		cfg:     cfg,
		broker:  broker,
		backoff: DefaultBackoff(),
	}
}

// Execute submits an order, retrying transient failures with backoff.
func (l *Live) Execute(ctx context.Context, order *schema.Order) (*schema.Fill, error) {
	var lastErr error
	for attempt := 1; attempt <= l.cfg.MaxAttempts; attempt++ {
		submitCtx, cancel := context.WithTimeout(ctx, l.cfg.SubmitTimeout)
		fill, err := l.broker.Submit(submitCtx, order)
		cancel()
		if err == nil {
			return fill, nil
		}
		lastErr = err

		if !retryable(err) {
			return nil, errors.Wrap(ErrVenueRejected, err.Error())
		}
		wait := l.backoff.Next(attempt)
		logs.Warnf("submit %s attempt %d failed, retrying in %s: %+v",
			order.ID, attempt, wait, err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, errors.Wrap(ErrSubmitTimeout, lastErr.Error())
}

// Bind subscribes the live executor to order events, publishing fills.
func (l *Live) Bind(ctx context.Context, b *bus.Bus) {
	b.Subscribe(schema.EventOrder, func(ev *schema.Event) {
		fill, err := l.Execute(ctx, ev.Order)
		if err != nil {
			logs.Errorf("order %s failed: %+v", ev.Order.ID, err)
			return
		}
		b.Publish(schema.NewFillEvent(time.Now(), fill))
	})
}

func retryable(err error) bool {
	var re RetryableError
	if stderrors.As(err, &re) {
		return re.Retryable()
	}
	// Timeouts are transient; anything else from the venue is treated as
	// a hard reject.
	return stderrors.Is(err, context.DeadlineExceeded)
}
