package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/felixgeelhaar/ndole/internal/domain"
)

// CompletionHandler applies a completion event; progression.Service satisfies it
type CompletionHandler interface {
	HandleCompletion(ctx context.Context, event domain.CompletionEvent) (*domain.ChangeSet, error)
}

// Consumer feeds completion events from the queue into the coordinator
type Consumer struct {
	conn       *Connection
	handler    CompletionHandler
	producer   *Producer
	workers    int
	prefetch   int
	timeout    time.Duration
	maxTries   int
	retryDelay time.Duration
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	Workers  int           // Number of concurrent workers
	Prefetch int           // Prefetch count per worker
	Timeout  time.Duration // Per-event processing deadline

	// MaxDeliveries caps how often a failing event is handed to the
	// coordinator before it is dead-lettered
	MaxDeliveries int
	// RequeueDelay is held before a failed delivery goes back on the queue
	RequeueDelay time.Duration
}

// DefaultConsumerConfig returns sensible defaults
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Workers:  3,
		Prefetch: 1, // Process one at a time per worker for fairness
		Timeout:  30 * time.Second,

		MaxDeliveries: 5,
		RequeueDelay:  time.Second,
	}
}

// NewConsumer creates a new queue consumer
func NewConsumer(conn *Connection, handler CompletionHandler, cfg ConsumerConfig) *Consumer {
	c := newConsumer(handler, NewProducer(conn), cfg)
	c.conn = conn
	return c
}

func newConsumer(handler CompletionHandler, producer *Producer, cfg ConsumerConfig) *Consumer {
	def := DefaultConsumerConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = def.Prefetch
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxDeliveries <= 0 {
		cfg.MaxDeliveries = def.MaxDeliveries
	}
	if cfg.RequeueDelay <= 0 {
		cfg.RequeueDelay = def.RequeueDelay
	}

	return &Consumer{
		handler:  handler,
		producer: producer,
		workers:  cfg.Workers,
		prefetch: cfg.Prefetch,
		timeout:  cfg.Timeout,

		maxTries:   cfg.MaxDeliveries,
		retryDelay: cfg.RequeueDelay,
	}
}

// Start begins consuming messages
func (c *Consumer) Start(ctx context.Context) error {
	ctx, c.cancelFunc = context.WithCancel(ctx)

	ch := c.conn.Channel()

	if err := ch.Qos(c.prefetch*c.workers, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		CompletionQueueName,
		"",    // consumer tag (auto-generated)
		false, // auto-ack (manual ack for reliability)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	slog.Info("starting completion consumer", "workers", c.workers, "prefetch", c.prefetch)

	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i, msgs)
	}

	return nil
}

// worker processes messages from the queue
func (c *Consumer) worker(ctx context.Context, id int, msgs <-chan amqp.Delivery) {
	defer c.wg.Done()

	slog.Debug("worker started", "worker_id", id)

	for {
		select {
		case <-ctx.Done():
			slog.Debug("worker stopping", "worker_id", id)
			return

		case msg, ok := <-msgs:
			if !ok {
				slog.Info("message channel closed", "worker_id", id)
				return
			}

			c.processMessage(ctx, id, msg)
		}
	}
}

// disposition is what happens to a delivery after processing
type disposition int

const (
	dispositionAck disposition = iota
	dispositionReject
	dispositionRequeue
)

// classify maps a coordinator error to a delivery disposition. Bad input
// never succeeds on redelivery; store trouble and lost races may.
func classify(err error) (disposition, string) {
	switch {
	case err == nil:
		return dispositionAck, StatusApplied
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidArgument):
		return dispositionReject, StatusRejected
	default:
		return dispositionRequeue, StatusFailed
	}
}

// deliveryAttempt reports which delivery of msg this is, starting at 1.
// Quorum queues count prior deliveries in x-delivery-count; elsewhere only
// the redelivered flag is known.
func deliveryAttempt(msg amqp.Delivery) int {
	switch n := msg.Headers["x-delivery-count"].(type) {
	case int64:
		return int(n) + 1
	case int32:
		return int(n) + 1
	case int:
		return n + 1
	}
	if msg.Redelivered {
		return 2
	}
	return 1
}

// processMessage handles a single message
func (c *Consumer) processMessage(ctx context.Context, workerID int, msg amqp.Delivery) {
	start := time.Now()

	var cm CompletionMessage
	if err := json.Unmarshal(msg.Body, &cm); err != nil {
		slog.Error("failed to unmarshal completion",
			"worker_id", workerID,
			"error", err,
		)
		// Reject without requeue for malformed messages
		_ = msg.Reject(false)
		return
	}

	eventCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cs, err := c.handler.HandleCompletion(eventCtx, cm.Event)
	duration := time.Since(start)
	action, status := classify(err)

	result := &CompletionResult{
		MessageID: cm.ID,
		UserID:    cm.Event.UserID,
		LessonID:  cm.Event.LessonID,
		Status:    status,
		ChangeSet: cs,
		Duration:  duration,
	}
	if err != nil {
		result.Error = err.Error()
	}

	logArgs := []any{
		"worker_id", workerID,
		"message_id", cm.ID,
		"user_id", cm.Event.UserID,
		"lesson_id", cm.Event.LessonID,
		"status", status,
		"duration", duration,
	}

	switch action {
	case dispositionAck:
		slog.Info("completion applied", logArgs...)
		c.publishResult(ctx, result)
		if err := msg.Ack(false); err != nil {
			slog.Error("failed to ack message", "message_id", cm.ID, "error", err)
		}

	case dispositionReject:
		slog.Warn("completion rejected", append(logArgs, "error", err)...)
		c.publishResult(ctx, result)
		if err := msg.Reject(false); err != nil {
			slog.Error("failed to reject message", "message_id", cm.ID, "error", err)
		}

	case dispositionRequeue:
		attempt := deliveryAttempt(msg)
		if attempt >= c.maxTries {
			slog.Error("completion failed, dead-lettering",
				append(logArgs, "attempt", attempt, "error", err)...)
			c.publishResult(ctx, result)
			if err := msg.Reject(false); err != nil {
				slog.Error("failed to reject message", "message_id", cm.ID, "error", err)
			}
			return
		}

		// no result yet: the redelivery will publish one
		slog.Error("completion failed, requeueing",
			append(logArgs, "attempt", attempt, "error", err)...)
		c.holdBeforeRequeue(ctx)
		if err := msg.Nack(false, true); err != nil {
			slog.Error("failed to nack message", "message_id", cm.ID, "error", err)
		}
	}
}

// holdBeforeRequeue keeps an open breaker from spinning a failing event
// straight back through the worker
func (c *Consumer) holdBeforeRequeue(ctx context.Context) {
	t := time.NewTimer(c.retryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (c *Consumer) publishResult(ctx context.Context, result *CompletionResult) {
	if err := c.producer.PublishResult(ctx, result); err != nil {
		slog.Error("failed to publish result",
			"message_id", result.MessageID,
			"error", err,
		)
	}
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
	c.wg.Wait()
	slog.Info("consumer stopped")
}

// ResultConsumer consumes completion results so a publisher can wait for the
// outcome of its own messages
type ResultConsumer struct {
	conn       *Connection
	handlers   map[string]ResultHandler
	handlersMu sync.RWMutex
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// ResultHandler handles the result for a specific message
type ResultHandler func(result *CompletionResult)

// NewResultConsumer creates a result consumer
func NewResultConsumer(conn *Connection) *ResultConsumer {
	return &ResultConsumer{
		conn:     conn,
		handlers: make(map[string]ResultHandler),
	}
}

// Subscribe registers a handler for the result of a specific message
func (rc *ResultConsumer) Subscribe(messageID string, handler ResultHandler) {
	rc.handlersMu.Lock()
	defer rc.handlersMu.Unlock()
	rc.handlers[messageID] = handler
}

// Unsubscribe removes a handler
func (rc *ResultConsumer) Unsubscribe(messageID string) {
	rc.handlersMu.Lock()
	defer rc.handlersMu.Unlock()
	delete(rc.handlers, messageID)
}

// Await blocks until the result for messageID arrives or ctx is done
func (rc *ResultConsumer) Await(ctx context.Context, messageID string) (*CompletionResult, error) {
	ch := make(chan *CompletionResult, 1)
	rc.Subscribe(messageID, func(result *CompletionResult) {
		select {
		case ch <- result:
		default:
		}
	})
	defer rc.Unsubscribe(messageID)

	select {
	case result := <-ch:
		return result, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for result of %s: %w", messageID, ctx.Err())
	}
}

// Start begins consuming results
func (rc *ResultConsumer) Start(ctx context.Context) error {
	ctx, rc.cancelFunc = context.WithCancel(ctx)

	ch := rc.conn.Channel()

	msgs, err := ch.Consume(
		ResultQueueName,
		"",    // consumer tag
		true,  // auto-ack (results are fire-and-forget)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to start result consumer: %w", err)
	}

	rc.wg.Add(1)
	go rc.consume(ctx, msgs)

	return nil
}

func (rc *ResultConsumer) consume(ctx context.Context, msgs <-chan amqp.Delivery) {
	defer rc.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			rc.dispatch(msg.Body)
		}
	}
}

func (rc *ResultConsumer) dispatch(body []byte) {
	var result CompletionResult
	if err := json.Unmarshal(body, &result); err != nil {
		slog.Error("failed to unmarshal result", "error", err)
		return
	}

	rc.handlersMu.RLock()
	handler, ok := rc.handlers[result.MessageID.String()]
	rc.handlersMu.RUnlock()

	if ok {
		handler(&result)
	}
}

// Stop stops the result consumer
func (rc *ResultConsumer) Stop() {
	if rc.cancelFunc != nil {
		rc.cancelFunc()
	}
	rc.wg.Wait()
}
