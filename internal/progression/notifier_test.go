package progression

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/felixgeelhaar/ndole/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiNotifier(t *testing.T) {
	first := &recordingNotifier{}
	failing := &recordingNotifier{errFn: func(domain.Notification) error { return errors.New("sink down") }}
	last := &recordingNotifier{}

	m := NewMultiNotifier(first, nil, failing)
	m.Add(last)
	m.Add(nil)
	require.Equal(t, 3, m.Len())

	n := domain.NewLevelUpNotification("u1", 2, time.Now())
	err := m.Notify(context.Background(), n)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink down")

	for i, r := range []*recordingNotifier{first, failing, last} {
		assert.Len(t, r.notifications(), 1, "sink %d", i)
	}
}

func TestMultiNotifier_Empty(t *testing.T) {
	m := NewMultiNotifier()
	assert.NoError(t, m.Notify(context.Background(), domain.Notification{}))
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	l := NewLogNotifier(logger)

	a, _ := domain.LookupAchievement(domain.AchievementPerfectQuiz)
	require.NoError(t, l.Notify(context.Background(), domain.NewAchievementNotification("u1", a, time.Now())))

	out := buf.String()
	for _, want := range []string{`"user_id":"u1"`, `"achievement":"PERFECT_QUIZ"`, `"type":"achievement_unlocked"`} {
		assert.Contains(t, out, want)
	}
}

func TestNotifierFunc(t *testing.T) {
	called := false
	var n Notifier = NotifierFunc(func(ctx context.Context, n domain.Notification) error {
		called = true
		return nil
	})
	_ = n.Notify(context.Background(), domain.Notification{})
	assert.True(t, called, "NotifierFunc was not called")
}
