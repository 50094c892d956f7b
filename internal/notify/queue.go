package notify

import (
	"context"
	"log/slog"
	"time"
)

// Notification is a queued outbound message.
type Notification struct {
	Kind       string
	Recipient  string
	Payload    map[string]string
	EnqueuedAt time.Time
}

// Sender delivers a single notification. Implementations handle
// rendering and transport (email, webhook, etc.).
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// LogSender logs notifications instead of delivering them. Used in
// development and as a fallback when no transport is configured.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send implements Sender.
func (s *LogSender) Send(ctx context.Context, n Notification) error {
	s.logger.InfoContext(ctx, "notification",
		"kind", n.Kind,
		"recipient", n.Recipient,
		"payload", n.Payload,
	)
	return nil
}

// Queue is a bounded notification queue drained by a single consumer.
// Enqueue is fire-and-forget: a full queue drops the notification with
// a log line rather than blocking the caller. Once accepted, a
// notification is never dropped or reordered; the consumer sleeps when
// the rate limit is hit.
type Queue struct {
	ch      chan Notification
	limiter *SlidingWindowLimiter
	sender  Sender
	logger  *slog.Logger
}

// NewQueue creates a queue with the given buffer size.
func NewQueue(size int, limiter *SlidingWindowLimiter, sender Sender, logger *slog.Logger) *Queue {
	if size <= 0 {
		size = 256
	}
	return &Queue{
		ch:      make(chan Notification, size),
		limiter: limiter,
		sender:  sender,
		logger:  logger,
	}
}

// Enqueue submits a notification without blocking. Failures to deliver
// never affect the caller.
func (q *Queue) Enqueue(kind, recipient string, payload map[string]string) {
	n := Notification{
		Kind:       kind,
		Recipient:  recipient,
		Payload:    payload,
		EnqueuedAt: time.Now(),
	}
	select {
	case q.ch <- n:
	default:
		q.logger.Warn("notification queue full, dropping",
			"kind", kind,
			"recipient", recipient,
		)
	}
}

// Run drains the queue until the context is cancelled. It is the only
// consumer: notifications are processed strictly in enqueue order, one
// at a time, with the rate limiter as a gate before each send.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-q.ch:
			if err := q.limiter.Acquire(ctx); err != nil {
				return
			}
			if err := q.sender.Send(ctx, n); err != nil {
				q.logger.ErrorContext(ctx, "notification send failed",
					"kind", n.Kind,
					"recipient", n.Recipient,
					"error", err,
				)
			}
		}
	}
}
