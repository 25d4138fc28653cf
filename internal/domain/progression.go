package domain

import (
	"fmt"
	"maps"
	"slices"
	"time"
)

// QuizResult is the latest score recorded for a lesson's quiz
type QuizResult struct {
	Score       int       `json:"score"`
	CompletedAt time.Time `json:"completed_at"`
}

// Snapshot is a user's complete progression record.
//
// Level always equals LevelOf(TotalXP); it is recomputed by GrantXP and
// Normalize and never set directly. CompletedLessonIDs and
// UnlockedAchievements are sets kept sorted without duplicates.
type Snapshot struct {
	UserID                string                      `json:"user_id"`
	TotalXP               int                         `json:"total_xp"`
	Level                 int                         `json:"level"`
	CompletedLessonIDs    []string                    `json:"completed_lesson_ids"`
	CompletedQuizzes      map[string]QuizResult       `json:"completed_quizzes"`
	LessonStages          map[string][]StageType      `json:"lesson_stages"`
	Streak                StreakState                 `json:"streak"`
	UnlockedAchievements  []AchievementID             `json:"unlocked_achievements"`
	AchievementUnlockedAt map[AchievementID]time.Time `json:"achievement_unlocked_at"`
	Version               int64                       `json:"version"`
	CreatedAt             time.Time                   `json:"created_at"`
	UpdatedAt             time.Time                   `json:"updated_at"`
}

// NewSnapshot creates the zero progression for a user's first activity
func NewSnapshot(userID string, now time.Time) *Snapshot {
	return &Snapshot{
		UserID:                userID,
		TotalXP:               0,
		Level:                 1,
		CompletedLessonIDs:    []string{},
		CompletedQuizzes:      make(map[string]QuizResult),
		LessonStages:          make(map[string][]StageType),
		UnlockedAchievements:  []AchievementID{},
		AchievementUnlockedAt: make(map[AchievementID]time.Time),
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

// Normalize repairs a snapshot decoded from storage: nil collections become
// empty, sets are sorted and deduplicated, and Level is recomputed.
func (s *Snapshot) Normalize() {
	if s.CompletedLessonIDs == nil {
		s.CompletedLessonIDs = []string{}
	}
	slices.Sort(s.CompletedLessonIDs)
	s.CompletedLessonIDs = slices.Compact(s.CompletedLessonIDs)

	if s.UnlockedAchievements == nil {
		s.UnlockedAchievements = []AchievementID{}
	}
	slices.Sort(s.UnlockedAchievements)
	s.UnlockedAchievements = slices.Compact(s.UnlockedAchievements)

	if s.CompletedQuizzes == nil {
		s.CompletedQuizzes = make(map[string]QuizResult)
	}
	if s.LessonStages == nil {
		s.LessonStages = make(map[string][]StageType)
	}
	if s.AchievementUnlockedAt == nil {
		s.AchievementUnlockedAt = make(map[AchievementID]time.Time)
	}
	if s.TotalXP < 0 {
		s.TotalXP = 0
	}
	s.Level, _ = LevelOf(s.TotalXP)
}

// Clone returns a deep copy so callers can compute on it without touching the original
func (s *Snapshot) Clone() *Snapshot {
	c := *s
	c.CompletedLessonIDs = slices.Clone(s.CompletedLessonIDs)
	c.UnlockedAchievements = slices.Clone(s.UnlockedAchievements)
	c.CompletedQuizzes = maps.Clone(s.CompletedQuizzes)
	c.AchievementUnlockedAt = maps.Clone(s.AchievementUnlockedAt)
	if s.LessonStages != nil {
		c.LessonStages = make(map[string][]StageType, len(s.LessonStages))
		for id, stages := range s.LessonStages {
			c.LessonStages[id] = slices.Clone(stages)
		}
	}
	return &c
}

// HasCompleted reports whether the lesson is in the completed set.
// The set may arrive in any order from a caller-built snapshot.
func (s *Snapshot) HasCompleted(lessonID string) bool {
	return slices.Contains(s.CompletedLessonIDs, lessonID)
}

// MarkCompleted adds lessonID to the completed set and reports whether it was new
func (s *Snapshot) MarkCompleted(lessonID string) bool {
	if s.HasCompleted(lessonID) {
		return false
	}
	s.CompletedLessonIDs = append(s.CompletedLessonIDs, lessonID)
	slices.Sort(s.CompletedLessonIDs)
	return true
}

// HasAchievement reports whether the achievement is already unlocked
func (s *Snapshot) HasAchievement(id AchievementID) bool {
	return slices.Contains(s.UnlockedAchievements, id)
}

// UnlockAchievement adds id to the unlocked set and reports whether it was new
func (s *Snapshot) UnlockAchievement(id AchievementID, at time.Time) bool {
	if s.HasAchievement(id) {
		return false
	}
	s.UnlockedAchievements = append(s.UnlockedAchievements, id)
	slices.Sort(s.UnlockedAchievements)
	if s.AchievementUnlockedAt == nil {
		s.AchievementUnlockedAt = make(map[AchievementID]time.Time)
	}
	s.AchievementUnlockedAt[id] = at
	return true
}

// GrantXP adds a non-negative delta and recomputes the level
func (s *Snapshot) GrantXP(delta int) error {
	if delta < 0 {
		return fmt.Errorf("%w: negative xp delta %d", ErrInvalidArgument, delta)
	}
	s.TotalXP += delta
	s.Level, _ = LevelOf(s.TotalXP)
	return nil
}

// RecordQuiz records or overwrites the quiz result for a lesson
func (s *Snapshot) RecordQuiz(lessonID string, score int, at time.Time) error {
	if err := ValidateQuizScore(score); err != nil {
		return err
	}
	if s.CompletedQuizzes == nil {
		s.CompletedQuizzes = make(map[string]QuizResult)
	}
	s.CompletedQuizzes[lessonID] = QuizResult{Score: score, CompletedAt: at}
	return nil
}

// RecordStage notes that a stage of a lesson was finished
func (s *Snapshot) RecordStage(lessonID string, stage StageType) {
	if s.LessonStages == nil {
		s.LessonStages = make(map[string][]StageType)
	}
	if slices.Contains(s.LessonStages[lessonID], stage) {
		return
	}
	s.LessonStages[lessonID] = append(s.LessonStages[lessonID], stage)
}

// Progress returns the level progress for the snapshot's total XP
func (s *Snapshot) Progress() LevelProgress {
	return ProgressOf(s.TotalXP)
}

// ValidateQuizScore checks that score lies in [0, 100]
func ValidateQuizScore(score int) error {
	if score < 0 || score > 100 {
		return fmt.Errorf("%w: quiz score %d outside [0, 100]", ErrInvalidArgument, score)
	}
	return nil
}
