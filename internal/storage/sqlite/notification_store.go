package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/felixgeelhaar/ndole/internal/domain"
	"github.com/google/uuid"
)

// NotificationStore keeps a per-user notification inbox. It implements
// progression.Notifier so the coordinator can write to it directly.
type NotificationStore struct {
	db *DB
}

// NewNotificationStore creates a new SQLite-backed notification inbox.
func NewNotificationStore(db *DB) *NotificationStore {
	return &NotificationStore{db: db}
}

// Notify stores n in the user's inbox.
func (s *NotificationStore) Notify(ctx context.Context, n domain.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, type, achievement_id, title, level, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		n.ID.String(), n.UserID, string(n.Type),
		nullString(string(n.AchievementID)), nullString(n.Title), nullInt(n.Level),
		n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// List returns a user's notifications, newest first.
func (s *NotificationStore) List(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, type, achievement_id, title, level, created_at
		FROM notifications
		WHERE user_id = ?
		ORDER BY created_at DESC, id
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	out := []domain.Notification{}
	for rows.Next() {
		var (
			n             domain.Notification
			id, typ       string
			achievementID sql.NullString
			title         sql.NullString
			level         sql.NullInt64
			createdAt     time.Time
		)
		if err := rows.Scan(&id, &n.UserID, &typ, &achievementID, &title, &level, &createdAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parse notification id: %w", err)
		}
		n.Type = domain.NotificationType(typ)
		n.AchievementID = domain.AchievementID(achievementID.String)
		n.Title = title.String
		n.Level = int(level.Int64)
		n.CreatedAt = createdAt
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead flags every unread notification of a user as read and returns how many changed.
func (s *NotificationStore) MarkRead(ctx context.Context, userID string) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET read_at = ? WHERE user_id = ? AND read_at IS NULL`,
		time.Now().UTC(), userID)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// Unread returns the number of unread notifications of a user.
func (s *NotificationStore) Unread(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND read_at IS NULL`, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return n, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(v), Valid: v != 0}
}
