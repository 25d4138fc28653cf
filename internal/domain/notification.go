package domain

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType tags a Notification's payload
type NotificationType string

const (
	NotificationAchievementUnlocked NotificationType = "achievement_unlocked"
	NotificationLevelUp             NotificationType = "level_up"
)

// Notification is emitted to the notification sink after a completion is persisted.
// Achievement notifications carry AchievementID and Title; level-up notifications carry Level.
type Notification struct {
	ID            uuid.UUID        `json:"id"`
	UserID        string           `json:"user_id"`
	Type          NotificationType `json:"type"`
	AchievementID AchievementID    `json:"achievement_id,omitempty"`
	Title         string           `json:"title,omitempty"`
	Level         int              `json:"level,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

// NewAchievementNotification builds an achievement_unlocked notification
func NewAchievementNotification(userID string, a Achievement, at time.Time) Notification {
	return Notification{
		ID:            uuid.New(),
		UserID:        userID,
		Type:          NotificationAchievementUnlocked,
		AchievementID: a.ID,
		Title:         a.Title,
		CreatedAt:     at,
	}
}

// NewLevelUpNotification builds a level_up notification
func NewLevelUpNotification(userID string, level int, at time.Time) Notification {
	return Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      NotificationLevelUp,
		Level:     level,
		CreatedAt: at,
	}
}
