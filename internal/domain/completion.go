package domain

import (
	"fmt"
	"strings"
	"time"
)

// StageType identifies which part of a lesson was finished
type StageType string

const (
	StageIntro  StageType = "intro"
	StageSteps  StageType = "steps"
	StageQuiz   StageType = "quiz"
	StageRecipe StageType = "recipe"
)

// ParseStageType converts user input into a StageType
func ParseStageType(s string) (StageType, error) {
	st := StageType(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: unknown stage %q", ErrInvalidArgument, s)
	}
	return st, nil
}

// Valid reports whether st is one of the four known stages
func (st StageType) Valid() bool {
	switch st {
	case StageIntro, StageSteps, StageQuiz, StageRecipe:
		return true
	}
	return false
}

// Terminal reports whether finishing this stage completes the lesson.
// Intro and steps are sub-steps; the quiz and the recipe itself finish a lesson.
func (st StageType) Terminal() bool {
	switch st {
	case StageQuiz, StageRecipe:
		return true
	}
	return false
}

// CompletionEvent is the input to the progression coordinator
type CompletionEvent struct {
	UserID     string    `json:"user_id"`
	LessonID   string    `json:"lesson_id"`
	Stage      StageType `json:"stage"`
	QuizScore  *int      `json:"quiz_score,omitempty"`
	OccurredAt time.Time `json:"occurred_at,omitempty"`
}

// Validate checks the event's shape. It does not consult the catalog.
func (e *CompletionEvent) Validate() error {
	if strings.TrimSpace(e.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(e.LessonID) == "" {
		return fmt.Errorf("%w: lesson id is required", ErrInvalidArgument)
	}
	if !e.Stage.Valid() {
		return fmt.Errorf("%w: unknown stage %q", ErrInvalidArgument, e.Stage)
	}
	if e.QuizScore != nil {
		if err := ValidateQuizScore(*e.QuizScore); err != nil {
			return err
		}
	}
	return nil
}

// ChangeSet is what a single completion changed, for the caller to render or notify
type ChangeSet struct {
	UserID                    string        `json:"user_id"`
	LessonID                  string        `json:"lesson_id"`
	TotalXP                   int           `json:"total_xp"`
	XPGained                  int           `json:"xp_gained"`
	Level                     int           `json:"level"`
	PreviousLevel             int           `json:"previous_level"`
	LeveledUp                 bool          `json:"leveled_up"`
	Progress                  LevelProgress `json:"progress"`
	NewlyUnlockedAchievements []Achievement `json:"newly_unlocked_achievements"`
	Streak                    StreakState   `json:"streak"`
	NewlyUnlockedLessons      []string      `json:"newly_unlocked_lessons"`
	NewlyUnlockedLevels       []string      `json:"newly_unlocked_levels"`
	AlreadyCompleted          bool          `json:"already_completed"`
}
