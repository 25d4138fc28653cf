package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/ndole/internal/domain"
	"github.com/felixgeelhaar/ndole/internal/progression"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"
)

// Outbox stores notifications in Postgres until a relay hands them to a
// downstream sink. It doubles as the per-user inbox read by the daemon.
type Outbox struct {
	db *sql.DB
}

// OpenOutbox opens a database/sql handle on the lib/pq driver.
func OpenOutbox(ctx context.Context, dsn string) (*Outbox, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	db.SetMaxOpenConns(4)
	return &Outbox{db: db}, nil
}

// NewOutbox wraps an existing handle
func NewOutbox(db *sql.DB) *Outbox {
	return &Outbox{db: db}
}

// Close releases the database handle
func (o *Outbox) Close() error {
	return o.db.Close()
}

// Notify records n as pending
func (o *Outbox) Notify(ctx context.Context, n domain.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}

	payload, err := encodePayload(n)
	if err != nil {
		return err
	}

	_, err = o.db.ExecContext(ctx, `
		INSERT INTO notification_outbox (id, user_id, type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`,
		n.ID, n.UserID, string(n.Type), payload, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox row: %w", err)
	}
	return nil
}

// List returns a user's notifications, newest first
func (o *Outbox) List(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := o.db.QueryContext(ctx, `
		SELECT id, user_id, type, payload, created_at
		FROM notification_outbox
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()
	return scanNotifications(rows)
}

// Pending returns up to limit undispatched notifications, oldest first
func (o *Outbox) Pending(ctx context.Context, limit int) ([]domain.Notification, error) {
	rows, err := o.db.QueryContext(ctx, `
		SELECT id, user_id, type, payload, created_at
		FROM notification_outbox
		WHERE dispatched_at IS NULL
		ORDER BY created_at, id
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending outbox: %w", err)
	}
	defer rows.Close()
	return scanNotifications(rows)
}

// MarkDispatched flags the given notifications as delivered
func (o *Outbox) MarkDispatched(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}
	_, err := o.db.ExecContext(ctx,
		`UPDATE notification_outbox SET dispatched_at = now() WHERE id = ANY($1::uuid[])`,
		pq.Array(keys),
	)
	if err != nil {
		return fmt.Errorf("mark outbox dispatched: %w", err)
	}
	return nil
}

// Relay moves pending outbox rows to sink every interval until ctx is done.
func (o *Outbox) Relay(ctx context.Context, sink progression.Notifier, interval time.Duration, batch int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := o.DispatchPending(ctx, sink, batch); err != nil && ctx.Err() == nil {
			slog.Warn("outbox relay failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// DispatchPending delivers one batch of pending notifications and returns how
// many were delivered. Rows whose delivery fails stay pending.
func (o *Outbox) DispatchPending(ctx context.Context, sink progression.Notifier, batch int) (int, error) {
	if batch <= 0 {
		batch = 100
	}
	pending, err := o.Pending(ctx, batch)
	if err != nil {
		return 0, err
	}

	var delivered []uuid.UUID
	for _, n := range pending {
		if err := sink.Notify(ctx, n); err != nil {
			slog.Warn("outbox delivery failed", "id", n.ID, "error", err)
			continue
		}
		delivered = append(delivered, n.ID)
	}
	if err := o.MarkDispatched(ctx, delivered); err != nil {
		return 0, err
	}
	return len(delivered), nil
}

func encodePayload(n domain.Notification) (pqtype.NullRawMessage, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return pqtype.NullRawMessage{}, fmt.Errorf("marshal notification: %w", err)
	}
	return pqtype.NullRawMessage{RawMessage: data, Valid: true}, nil
}

func scanNotifications(rows *sql.Rows) ([]domain.Notification, error) {
	out := []domain.Notification{}
	for rows.Next() {
		var (
			id        uuid.UUID
			userID    string
			typ       string
			payload   pqtype.NullRawMessage
			createdAt time.Time
		)
		if err := rows.Scan(&id, &userID, &typ, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}

		var n domain.Notification
		if payload.Valid {
			if err := json.Unmarshal(payload.RawMessage, &n); err != nil {
				return nil, fmt.Errorf("unmarshal outbox payload: %w", err)
			}
		}
		n.ID = id
		n.UserID = userID
		n.Type = domain.NotificationType(typ)
		n.CreatedAt = createdAt
		out = append(out, n)
	}
	return out, rows.Err()
}
