// Package notify delivers user-facing notifications for engagement events.
// The engine treats delivery as best-effort: a failed notification is logged
// and dropped, never surfaced to the write that triggered it.
package notify

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/canopy-press/canopy-engagement/pkg/circuitbreaker"
	"github.com/canopy-press/canopy-engagement/pkg/retry"
)

// Notification kinds.
const (
	KindBadgeEarned = "badge_earned"
)

// Notification is a message destined for a single user.
type Notification struct {
	ID     string
	UserID string
	Kind   string
	Title  string
	Body   string
}

// New builds a notification with a generated identifier.
func New(userID, kind, title, body string) Notification {
	return Notification{
		ID:     uuid.NewString(),
		UserID: userID,
		Kind:   kind,
		Title:  title,
		Body:   body,
	}
}

// Notifier sends notifications to users.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the log instead of sending them.
// It stands in for a real delivery channel in development and tests.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier that only logs.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs the notification and reports success.
func (n *LogNotifier) Notify(ctx context.Context, notification Notification) error {
	n.logger.Info("would send notification",
		"notification_id", notification.ID,
		"user_id", notification.UserID,
		"kind", notification.Kind,
		"title", notification.Title,
	)
	return nil
}

// ReliableNotifier wraps another notifier with retries and a circuit
// breaker. Transient delivery failures are retried; a degraded channel
// trips the breaker so the engine stops hammering it.
type ReliableNotifier struct {
	inner   Notifier
	retrier *retry.Retrier
	breaker *circuitbreaker.CircuitBreaker
	logger  *slog.Logger
}

// ReliableConfig contains configuration for ReliableNotifier.
// Zero-value fields fall back to the notifier presets.
type ReliableConfig struct {
	Retrier *retry.Retrier
	Breaker *circuitbreaker.CircuitBreaker
	Logger  *slog.Logger
}

// NewReliableNotifier wraps inner with retry and circuit breaking.
func NewReliableNotifier(inner Notifier, config ReliableConfig) *ReliableNotifier {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	retrier := config.Retrier
	if retrier == nil {
		retrier = retry.NotifierRetrier()
	}

	breaker := config.Breaker
	if breaker == nil {
		breaker = circuitbreaker.NotifierBreaker(func(name string, from, to circuitbreaker.State) {
			logger.Warn("circuit state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		})
	}

	return &ReliableNotifier{
		inner:   inner,
		retrier: retrier,
		breaker: breaker,
		logger:  logger,
	}
}

// Notify attempts delivery through the breaker, retrying transient errors.
// Delivery failures count as transient unless the channel marks them
// permanent (an unknown user is permanent, a flaky connection is not).
func (n *ReliableNotifier) Notify(ctx context.Context, notification Notification) error {
	return n.breaker.Execute(ctx, func(ctx context.Context) error {
		return n.retrier.Do(ctx, func(ctx context.Context) error {
			err := n.inner.Notify(ctx, notification)
			if err != nil && !retry.IsPermanent(err) {
				return retry.Retryable(err)
			}
			return err
		})
	})
}
