// Package queue carries completion events and their outcomes over RabbitMQ.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/felixgeelhaar/ndole/internal/domain"
)

// Queue names
const (
	CompletionQueueName   = "ndole.completions"
	ResultQueueName       = "ndole.results"
	NotificationQueueName = "ndole.notifications"
	DeadLetterQueueName   = "ndole.completions.dead"
)

// Result statuses
const (
	StatusApplied  = "applied"
	StatusRejected = "rejected"
	StatusFailed   = "failed"
)

// CompletionMessage wraps a completion event published by a client app
type CompletionMessage struct {
	ID        uuid.UUID              `json:"id"`
	Event     domain.CompletionEvent `json:"event"`
	CreatedAt time.Time              `json:"created_at"`
}

// CompletionResult reports what the coordinator did with a CompletionMessage
type CompletionResult struct {
	MessageID   uuid.UUID         `json:"message_id"`
	UserID      string            `json:"user_id"`
	LessonID    string            `json:"lesson_id"`
	Status      string            `json:"status"` // applied, rejected, failed
	ChangeSet   *domain.ChangeSet `json:"change_set,omitempty"`
	Error       string            `json:"error,omitempty"`
	Duration    time.Duration     `json:"duration"`
	CompletedAt time.Time         `json:"completed_at"`
}

// Publisher publishes JSON payloads to a named queue
type Publisher interface {
	PublishJSON(ctx context.Context, queue string, data any) error
}

// Connection manages the RabbitMQ connection with automatic reconnection
type Connection struct {
	url        string
	conn       *amqp.Connection
	channel    *amqp.Channel
	mu         sync.RWMutex
	closed     bool
	reconnects int
}

// NewConnection creates a new RabbitMQ connection
func NewConnection(url string) (*Connection, error) {
	c := &Connection{
		url: url,
	}

	if err := c.connect(); err != nil {
		return nil, err
	}

	return c, nil
}

// connect establishes connection and channel
func (c *Connection) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	c.conn, err = amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	c.channel, err = c.conn.Channel()
	if err != nil {
		c.conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := c.declareQueues(); err != nil {
		c.channel.Close()
		c.conn.Close()
		return err
	}

	go c.handleReconnect()

	slog.Info("connected to RabbitMQ", "url", sanitizeURL(c.url))
	return nil
}

// queueSpec describes one durable queue
type queueSpec struct {
	name string
	ttl  time.Duration
	// quorum queues stamp x-delivery-count on every redelivery
	quorum     bool
	deadLetter string
}

var queues = []queueSpec{
	// the dead-letter target must exist before the queue that routes to it
	{name: DeadLetterQueueName, ttl: 7 * 24 * time.Hour},
	// completions are the source of truth for progress; keep them a day
	{name: CompletionQueueName, ttl: 24 * time.Hour, quorum: true, deadLetter: DeadLetterQueueName},
	{name: ResultQueueName, ttl: 5 * time.Minute},
	{name: NotificationQueueName, ttl: time.Hour},
}

// args builds the x-arguments for a queue declaration
func (q queueSpec) args() amqp.Table {
	args := amqp.Table{
		"x-message-ttl": int32(q.ttl / time.Millisecond),
	}
	if q.quorum {
		args["x-queue-type"] = "quorum"
	}
	if q.deadLetter != "" {
		args["x-dead-letter-exchange"] = ""
		args["x-dead-letter-routing-key"] = q.deadLetter
	}
	return args
}

// declareQueues creates the necessary queues
func (c *Connection) declareQueues() error {
	for _, q := range queues {
		_, err := c.channel.QueueDeclare(
			q.name,
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			q.args(),
		)
		if err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", q.name, err)
		}
	}
	return nil
}

// handleReconnect listens for connection close and attempts to reconnect
func (c *Connection) handleReconnect() {
	notifyClose := c.conn.NotifyClose(make(chan *amqp.Error, 1))

	err := <-notifyClose
	if err == nil {
		return // normal close
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	slog.Warn("RabbitMQ connection closed, attempting to reconnect",
		"error", err,
		"reconnects", c.reconnects,
	)

	for i := 0; i < 10; i++ {
		c.reconnects++
		time.Sleep(reconnectBackoff(i))

		if err := c.connect(); err != nil {
			slog.Error("reconnection failed", "error", err, "attempt", i+1)
			continue
		}

		slog.Info("reconnected to RabbitMQ", "attempts", i+1)
		return
	}

	slog.Error("failed to reconnect to RabbitMQ after 10 attempts")
}

// reconnectBackoff doubles from one second and caps at thirty
func reconnectBackoff(attempt int) time.Duration {
	if attempt >= 5 {
		return 30 * time.Second
	}
	return time.Duration(1<<attempt) * time.Second
}

// Channel returns the current channel (thread-safe)
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// Close closes the connection
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true

	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// IsConnected checks if the connection is active
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.conn.IsClosed()
}

// PublishJSON publishes a JSON message to a queue
func (c *Connection) PublishJSON(ctx context.Context, queue string, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	c.mu.RLock()
	ch := c.channel
	c.mu.RUnlock()

	return ch.PublishWithContext(
		ctx,
		"",    // exchange
		queue, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

// sanitizeURL hides the password of an AMQP URL for logging
func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "amqp://<invalid>"
	}
	return u.Redacted()
}
