package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/ndole/internal/domain"
	"github.com/felixgeelhaar/ndole/internal/progression"
)

// Producer publishes completion events, results and notifications
type Producer struct {
	pub Publisher
}

// NewProducer creates a new queue producer
func NewProducer(pub Publisher) *Producer {
	return &Producer{pub: pub}
}

// NewCompletionMessage wraps event with a fresh message id. Callers that wait
// for the result subscribe to the id before publishing.
func NewCompletionMessage(event domain.CompletionEvent) *CompletionMessage {
	msg := &CompletionMessage{
		ID:        uuid.New(),
		Event:     event,
		CreatedAt: time.Now(),
	}
	if msg.Event.OccurredAt.IsZero() {
		msg.Event.OccurredAt = msg.CreatedAt
	}
	return msg
}

// PublishCompletion validates event and publishes it to the completions queue
func (p *Producer) PublishCompletion(ctx context.Context, event domain.CompletionEvent) (*CompletionMessage, error) {
	msg := NewCompletionMessage(event)
	if err := p.Publish(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// Publish validates and publishes a prepared completion message
func (p *Producer) Publish(ctx context.Context, msg *CompletionMessage) error {
	if err := msg.Event.Validate(); err != nil {
		return err
	}

	if err := p.pub.PublishJSON(ctx, CompletionQueueName, msg); err != nil {
		return fmt.Errorf("failed to publish completion: %w", err)
	}

	slog.Info("published completion",
		"message_id", msg.ID,
		"user_id", msg.Event.UserID,
		"lesson_id", msg.Event.LessonID,
		"stage", msg.Event.Stage,
	)
	return nil
}

// PublishResult publishes a completion result to the results queue
func (p *Producer) PublishResult(ctx context.Context, result *CompletionResult) error {
	if result.CompletedAt.IsZero() {
		result.CompletedAt = time.Now()
	}

	if err := p.pub.PublishJSON(ctx, ResultQueueName, result); err != nil {
		return fmt.Errorf("failed to publish completion result: %w", err)
	}

	slog.Debug("published completion result",
		"message_id", result.MessageID,
		"status", result.Status,
		"duration", result.Duration,
	)
	return nil
}

// Notify publishes a notification for downstream delivery (push, email)
func (p *Producer) Notify(ctx context.Context, n domain.Notification) error {
	if err := p.pub.PublishJSON(ctx, NotificationQueueName, n); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

var _ progression.Notifier = (*Producer)(nil)
