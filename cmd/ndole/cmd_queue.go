package main

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/ndole/internal/domain"
	"github.com/felixgeelhaar/ndole/internal/queue"
)

// cmdEnqueue publishes a completion to RabbitMQ and waits for the daemon's result
func cmdEnqueue(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: ndole enqueue <user> <lesson> <stage> [score]")
	}
	body, err := parseCompletionArgs(args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Queue.URL == "" {
		return fmt.Errorf("no rabbitmq url configured (secrets.yaml or RABBITMQ_URL)")
	}

	conn, err := queue.NewConnection(cfg.Queue.URL)
	if err != nil {
		return fmt.Errorf("connect queue: %w", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	results := queue.NewResultConsumer(conn)
	if err := results.Start(ctx); err != nil {
		return fmt.Errorf("start result consumer: %w", err)
	}
	defer results.Stop()

	msg := queue.NewCompletionMessage(domain.CompletionEvent{
		UserID:     args[0],
		LessonID:   body.LessonID,
		Stage:      domain.StageType(body.Stage),
		QuizScore:  body.QuizScore,
		OccurredAt: time.Now(),
	})

	// Subscribe before publishing so a fast result is not dropped
	done := make(chan *queue.CompletionResult, 1)
	results.Subscribe(msg.ID.String(), func(r *queue.CompletionResult) {
		select {
		case done <- r:
		default:
		}
	})
	defer results.Unsubscribe(msg.ID.String())

	if err := queue.NewProducer(conn).Publish(ctx, msg); err != nil {
		return fmt.Errorf("publish completion: %w", err)
	}
	fmt.Printf("Published %s, waiting for result...\n", msg.ID)

	var result *queue.CompletionResult
	select {
	case result = <-done:
	case <-ctx.Done():
		return fmt.Errorf("no result for %s: %w", msg.ID, ctx.Err())
	}

	switch result.Status {
	case queue.StatusApplied:
		if result.ChangeSet != nil {
			printChangeSet(result.ChangeSet)
		}
		return nil
	default:
		return fmt.Errorf("completion %s: %s", result.Status, result.Error)
	}
}
