package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canopy-press/canopy-engagement/pkg/circuitbreaker"
	"github.com/canopy-press/canopy-engagement/pkg/logging"
	"github.com/canopy-press/canopy-engagement/pkg/retry"
)

// flakyNotifier fails a fixed number of times before succeeding.
type flakyNotifier struct {
	failures int
	calls    int
}

func (f *flakyNotifier) Notify(ctx context.Context, n Notification) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("channel unavailable")
	}
	return nil
}

func fastRetrier() *retry.Retrier {
	return retry.New(
		retry.WithMaxAttempts(3),
		retry.WithInitialDelay(time.Millisecond),
		retry.WithMaxDelay(2*time.Millisecond),
	)
}

func TestNewAssignsID(t *testing.T) {
	n := New("123", KindBadgeEarned, "New badge earned", "You earned: Well Read")

	assert.NotEmpty(t, n.ID)
	assert.Equal(t, "123", n.UserID)
	assert.Equal(t, KindBadgeEarned, n.Kind)
}

func TestLogNotifierAlwaysSucceeds(t *testing.T) {
	n := NewLogNotifier(logging.Discard())

	err := n.Notify(context.Background(), New("123", KindBadgeEarned, "t", "b"))
	assert.NoError(t, err)
}

func TestReliableNotifierRetriesTransientFailures(t *testing.T) {
	inner := &flakyNotifier{failures: 2}
	n := NewReliableNotifier(inner, ReliableConfig{
		Retrier: fastRetrier(),
		Logger:  logging.Discard(),
	})

	err := n.Notify(context.Background(), New("123", KindBadgeEarned, "t", "b"))
	require.NoError(t, err)
	assert.Equal(t, 3, inner.calls)
}

func TestReliableNotifierGivesUpAfterMaxAttempts(t *testing.T) {
	inner := &flakyNotifier{failures: 10}
	n := NewReliableNotifier(inner, ReliableConfig{
		Retrier: fastRetrier(),
		Logger:  logging.Discard(),
	})

	err := n.Notify(context.Background(), New("123", KindBadgeEarned, "t", "b"))
	require.Error(t, err)
	assert.Equal(t, 3, inner.calls)
}

func TestReliableNotifierOpensCircuit(t *testing.T) {
	inner := &flakyNotifier{failures: 1000}
	breaker := circuitbreaker.New("notifier-test",
		circuitbreaker.WithFailureThreshold(3),
	)
	n := NewReliableNotifier(inner, ReliableConfig{
		Retrier: fastRetrier(),
		Breaker: breaker,
		Logger:  logging.Discard(),
	})

	ctx := context.Background()
	notification := New("123", KindBadgeEarned, "t", "b")

	for i := 0; i < 3; i++ {
		require.Error(t, n.Notify(ctx, notification))
	}
	require.Equal(t, circuitbreaker.StateOpen, breaker.State())

	callsBefore := inner.calls
	err := n.Notify(ctx, notification)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, callsBefore, inner.calls)
}

func TestReliableNotifierDoesNotRetryPermanentErrors(t *testing.T) {
	calls := 0
	inner := notifierFunc(func(ctx context.Context, n Notification) error {
		calls++
		return retry.Permanent(errors.New("unknown user"))
	})
	n := NewReliableNotifier(inner, ReliableConfig{
		Retrier: fastRetrier(),
		Logger:  logging.Discard(),
	})

	err := n.Notify(context.Background(), New("123", KindBadgeEarned, "t", "b"))
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

type notifierFunc func(ctx context.Context, n Notification) error

func (f notifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}
