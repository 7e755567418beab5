package exec

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

type transientErr struct{ msg string }

func (e transientErr) Error() string   { return e.msg }
func (e transientErr) Retryable() bool { return true }

// flakyBroker fails a fixed number of submits before succeeding.
type flakyBroker struct {
	failures int
	err      error
	attempts int
}

func (b *flakyBroker) Submit(ctx context.Context, order *schema.Order) (*schema.Fill, error) {
	b.attempts++
	if b.attempts <= b.failures {
		return nil, b.err
	}
	return &schema.Fill{OrderID: order.ID, Quantity: order.Quantity, Price: 100}, nil
}

func (b *flakyBroker) Cancel(ctx context.Context, orderID string) error { return nil }

func fastLive(broker Broker) *Live {
	l := NewLive(LiveConfig{SubmitTimeout: time.Second, MaxAttempts: 3}, broker)
	l.backoff = Backoff{Min: time.Millisecond, Max: time.Millisecond, Factor: 1}
	return l
}

func TestRetryableDetectsWrappedErrors(t *testing.T) {
	require.True(t, retryable(transientErr{"busy"}))
	require.True(t, retryable(fmt.Errorf("submit: %w", transientErr{"busy"})))
	require.True(t, retryable(fmt.Errorf("submit: %w", context.DeadlineExceeded)))
	require.False(t, retryable(fmt.Errorf("margin check failed")))
}

func TestExecuteRetriesTransientFailure(t *testing.T) {
	broker := &flakyBroker{failures: 2, err: transientErr{"busy"}}
	l := fastLive(broker)

	fill, err := l.Execute(context.Background(), &schema.Order{ID: "O1", Quantity: 1})
	require.NoError(t, err)
	require.Equal(t, "O1", fill.OrderID)
	require.Equal(t, 3, broker.attempts)
}

func TestExecuteFailsFastOnHardReject(t *testing.T) {
	broker := &flakyBroker{failures: 5, err: fmt.Errorf("insufficient margin")}
	l := fastLive(broker)

	_, err := l.Execute(context.Background(), &schema.Order{ID: "O1", Quantity: 1})
	require.Error(t, err)
	require.Equal(t, 1, broker.attempts)
}

func TestExecuteGivesUpAfterMaxAttempts(t *testing.T) {
	broker := &flakyBroker{failures: 5, err: transientErr{"busy"}}
	l := fastLive(broker)

	_, err := l.Execute(context.Background(), &schema.Order{ID: "O1", Quantity: 1})
	require.Error(t, err)
	require.Equal(t, 3, broker.attempts)
}
