package progression

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/felixgeelhaar/ndole/internal/domain"
)

// Completion outcomes reported to the Recorder
const (
	OutcomeApplied  = "applied"
	OutcomeRepeated = "repeated"
	OutcomeRejected = "rejected"
	OutcomeNotFound = "not_found"
	OutcomeConflict = "conflict"
	OutcomeFailed   = "failed"
)

const lockKeyUserScope = "progression:user:"

// Service coordinates a user's progression: it is the only component that
// mutates snapshots.
type Service struct {
	store     SnapshotStore
	catalog   Catalog
	evaluator *Evaluator
	notifier  Notifier
	locker    Locker
	recorder  Recorder
	clock     Clock
	location  *time.Location
	logger    *slog.Logger
}

// Option configures a Service
type Option func(*Service)

// WithNotifier sets the sink for level-up and achievement notifications
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithLocker replaces the default in-process per-user lock
func WithLocker(l Locker) Option {
	return func(s *Service) { s.locker = l }
}

// WithClock overrides time.Now
func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithLocation sets the time zone used to derive the calendar day of an event
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRecorder sets the completion observer
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// NewService creates a progression coordinator around a store and a catalog
func NewService(store SnapshotStore, catalog Catalog, opts ...Option) *Service {
	s := &Service{
		store:     store,
		catalog:   catalog,
		evaluator: NewEvaluator(catalog),
		locker:    NewKeyedMutex(),
		clock:     time.Now,
		location:  time.Local,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Evaluator returns the unlock evaluator bound to the service catalog
func (s *Service) Evaluator() *Evaluator {
	return s.evaluator
}

// HandleCompletion applies one completion event to the user's snapshot and
// returns what changed. The snapshot is saved exactly once; when the save
// fails nothing is notified and the stored state is left as it was.
func (s *Service) HandleCompletion(ctx context.Context, event domain.CompletionEvent) (cs *domain.ChangeSet, err error) {
	start := time.Now()
	defer func() {
		s.record(event.Stage, cs, err, time.Since(start))
	}()

	if err := event.Validate(); err != nil {
		return nil, err
	}
	lesson, err := s.catalog.GetLesson(event.LessonID)
	if err != nil {
		return nil, fmt.Errorf("completion of lesson %q: %w", event.LessonID, err)
	}

	unlock, err := s.locker.Lock(ctx, lockKeyUserScope+event.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrConcurrencyConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: lock user %q: %v", domain.ErrConcurrencyConflict, event.UserID, err)
	}
	defer unlock()

	now := s.clock()
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = now
	}

	current, err := s.load(ctx, event.UserID, now)
	if err != nil {
		return nil, err
	}

	next := current.Clone()
	next.Normalize()
	previousLevel := next.Level
	lessonsBefore := s.evaluator.UnlockedLessons(next)
	levelsBefore := s.evaluator.UnlockedLevels(next)

	if event.Stage == domain.StageQuiz && event.QuizScore != nil {
		if err := next.RecordQuiz(event.LessonID, *event.QuizScore, occurred); err != nil {
			return nil, err
		}
	}
	next.RecordStage(event.LessonID, event.Stage)

	xpGained := 0
	alreadyCompleted := next.HasCompleted(event.LessonID)
	if event.Stage.Terminal() && !alreadyCompleted {
		next.MarkCompleted(event.LessonID)
		if err := next.GrantXP(lesson.XPReward); err != nil {
			return nil, err
		}
		xpGained = lesson.XPReward
	}

	streak, err := domain.UpdateStreak(next.Streak, domain.DateOf(occurred.In(s.location)))
	if err != nil {
		return nil, err
	}
	next.Streak = streak

	var unlocked []domain.Achievement
	for _, id := range domain.EvaluateAchievements(next) {
		if !next.UnlockAchievement(id, now) {
			continue
		}
		if a, ok := domain.LookupAchievement(id); ok {
			unlocked = append(unlocked, a)
		}
	}

	next.UpdatedAt = now
	if err := s.store.Save(ctx, next); err != nil {
		if errors.Is(err, domain.ErrConcurrencyConflict) {
			return nil, fmt.Errorf("save progression for %q: %w", event.UserID, err)
		}
		return nil, fmt.Errorf("%w: save progression for %q: %v", domain.ErrPersistence, event.UserID, err)
	}

	cs = &domain.ChangeSet{
		UserID:                    event.UserID,
		LessonID:                  event.LessonID,
		TotalXP:                   next.TotalXP,
		XPGained:                  xpGained,
		Level:                     next.Level,
		PreviousLevel:             previousLevel,
		LeveledUp:                 next.Level > previousLevel,
		Progress:                  next.Progress(),
		NewlyUnlockedAchievements: unlocked,
		Streak:                    next.Streak,
		NewlyUnlockedLessons:      newlyOpened(lessonsBefore, s.evaluator.UnlockedLessons(next)),
		NewlyUnlockedLevels:       newlyOpened(levelsBefore, s.evaluator.UnlockedLevels(next)),
		AlreadyCompleted:          alreadyCompleted,
	}
	if cs.NewlyUnlockedAchievements == nil {
		cs.NewlyUnlockedAchievements = []domain.Achievement{}
	}

	s.logger.Info("completion applied",
		"user_id", event.UserID,
		"lesson_id", event.LessonID,
		"stage", event.Stage,
		"xp_gained", xpGained,
		"total_xp", cs.TotalXP,
		"level", cs.Level,
		"achievements", len(unlocked),
	)

	s.notify(ctx, cs, now)
	return cs, nil
}

// load returns the stored snapshot or a fresh one for a first activity
func (s *Service) load(ctx context.Context, userID string, now time.Time) (*domain.Snapshot, error) {
	snap, err := s.store.Load(ctx, userID)
	switch {
	case err == nil:
		return snap, nil
	case errors.Is(err, domain.ErrNotFound):
		return domain.NewSnapshot(userID, now), nil
	default:
		return nil, fmt.Errorf("%w: load progression for %q: %v", domain.ErrPersistence, userID, err)
	}
}

func (s *Service) notify(ctx context.Context, cs *domain.ChangeSet, now time.Time) {
	if s.notifier == nil {
		return
	}

	var pending []domain.Notification
	if cs.LeveledUp {
		pending = append(pending, domain.NewLevelUpNotification(cs.UserID, cs.Level, now))
	}
	for _, a := range cs.NewlyUnlockedAchievements {
		pending = append(pending, domain.NewAchievementNotification(cs.UserID, a, now))
	}

	for _, n := range pending {
		if err := s.notifier.Notify(ctx, n); err != nil {
			s.logger.Warn("notification failed",
				"user_id", n.UserID,
				"type", n.Type,
				"error", err,
			)
		}
	}
}

func (s *Service) record(stage domain.StageType, cs *domain.ChangeSet, err error, d time.Duration) {
	if s.recorder == nil {
		return
	}

	var outcome string
	xp := 0
	switch {
	case err == nil && cs != nil:
		xp = cs.XPGained
		outcome = OutcomeApplied
		if cs.AlreadyCompleted {
			outcome = OutcomeRepeated
		}
	case errors.Is(err, domain.ErrInvalidArgument):
		outcome = OutcomeRejected
	case errors.Is(err, domain.ErrNotFound):
		outcome = OutcomeNotFound
	case errors.Is(err, domain.ErrConcurrencyConflict):
		outcome = OutcomeConflict
	default:
		outcome = OutcomeFailed
	}
	s.recorder.ObserveCompletion(stage, outcome, xp, d)
}

// GetSnapshot returns a copy of the stored progression of a user
func (s *Service) GetSnapshot(ctx context.Context, userID string) (*domain.Snapshot, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidArgument)
	}

	snap, err := s.store.Load(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("progression for %q: %w", userID, err)
		}
		return nil, fmt.Errorf("%w: load progression for %q: %v", domain.ErrPersistence, userID, err)
	}

	out := snap.Clone()
	out.Normalize()
	return out, nil
}

// IsUnlocked reports whether a catalog entry is available for a snapshot
func (s *Service) IsUnlocked(entry domain.Unlockable, snapshot *domain.Snapshot) (bool, error) {
	return s.evaluator.IsUnlocked(entry, snapshot)
}

// CatalogView returns the catalog annotated with the user's unlock and
// completion state. Users without progression see the catalog as a newcomer.
func (s *Service) CatalogView(ctx context.Context, userID string) (*CatalogView, error) {
	snap, err := s.GetSnapshot(ctx, userID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		snap = domain.NewSnapshot(userID, s.clock())
	}
	return s.evaluator.View(snap), nil
}
