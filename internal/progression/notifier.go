package progression

import (
	"context"
	"errors"
	"log/slog"

	"github.com/felixgeelhaar/ndole/internal/domain"
)

// MultiNotifier fans a notification out to several sinks. Every sink is
// attempted; the errors of failing sinks are joined.
type MultiNotifier struct {
	sinks []Notifier
}

// NewMultiNotifier creates a notifier over the given sinks, skipping nil ones
func NewMultiNotifier(sinks ...Notifier) *MultiNotifier {
	m := &MultiNotifier{}
	for _, n := range sinks {
		if n != nil {
			m.sinks = append(m.sinks, n)
		}
	}
	return m
}

// Add registers another sink
func (m *MultiNotifier) Add(n Notifier) {
	if n != nil {
		m.sinks = append(m.sinks, n)
	}
}

// Len returns the number of sinks
func (m *MultiNotifier) Len() int {
	return len(m.sinks)
}

// Notify delivers n to every sink
func (m *MultiNotifier) Notify(ctx context.Context, n domain.Notification) error {
	var errs []error
	for _, sink := range m.sinks {
		if err := sink.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogNotifier writes notifications to a structured logger
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier; a nil logger selects slog.Default
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs n
func (l *LogNotifier) Notify(ctx context.Context, n domain.Notification) error {
	attrs := []any{
		"id", n.ID.String(),
		"user_id", n.UserID,
		"type", n.Type,
	}
	switch n.Type {
	case domain.NotificationLevelUp:
		attrs = append(attrs, "level", n.Level)
	case domain.NotificationAchievementUnlocked:
		attrs = append(attrs, "achievement", n.AchievementID, "title", n.Title)
	}
	l.logger.InfoContext(ctx, "progression notification", attrs...)
	return nil
}

// NotifierFunc adapts a function to the Notifier interface
type NotifierFunc func(ctx context.Context, n domain.Notification) error

// Notify calls f
func (f NotifierFunc) Notify(ctx context.Context, n domain.Notification) error {
	return f(ctx, n)
}
