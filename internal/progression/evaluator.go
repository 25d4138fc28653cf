package progression

import (
	"fmt"

	"github.com/felixgeelhaar/ndole/internal/domain"
)

// Evaluator decides whether catalog entries are available to a snapshot.
// It never mutates the snapshot.
type Evaluator struct {
	catalog Catalog
}

// NewEvaluator creates an evaluator over a catalog
func NewEvaluator(catalog Catalog) *Evaluator {
	return &Evaluator{catalog: catalog}
}

// IsUnlocked reports whether entry is available for s.
//
// A level is open when it is the first catalog level or s has its required XP.
// A lesson is open when its owning level is open and all of its own
// requirements hold. Entries unknown to the catalog return domain.ErrNotFound.
func (e *Evaluator) IsUnlocked(entry domain.Unlockable, s *domain.Snapshot) (bool, error) {
	if s == nil {
		return false, fmt.Errorf("%w: snapshot is required", domain.ErrInvalidArgument)
	}

	switch v := entry.(type) {
	case *domain.CatalogLevel:
		if v == nil {
			return false, fmt.Errorf("%w: nil level", domain.ErrInvalidArgument)
		}
		return e.levelUnlocked(v.ID, s)

	case *domain.CatalogLesson:
		if v == nil {
			return false, fmt.Errorf("%w: nil lesson", domain.ErrInvalidArgument)
		}
		lesson, err := e.catalog.GetLesson(v.ID)
		if err != nil {
			return false, err
		}
		return e.lessonUnlocked(lesson, s)

	default:
		return false, fmt.Errorf("%w: unsupported catalog entry %T", domain.ErrInvalidArgument, entry)
	}
}

// IsLessonUnlocked is IsUnlocked for a lesson id
func (e *Evaluator) IsLessonUnlocked(lessonID string, s *domain.Snapshot) (bool, error) {
	lesson, err := e.catalog.GetLesson(lessonID)
	if err != nil {
		return false, err
	}
	return e.IsUnlocked(lesson, s)
}

func (e *Evaluator) levelUnlocked(levelID string, s *domain.Snapshot) (bool, error) {
	level, err := e.catalog.GetLevel(levelID)
	if err != nil {
		return false, err
	}
	return domain.LevelUnlocked(level, e.isFirstLevel(level.ID), s), nil
}

func (e *Evaluator) lessonUnlocked(lesson *domain.CatalogLesson, s *domain.Snapshot) (bool, error) {
	open, err := e.levelUnlocked(lesson.LevelID, s)
	if err != nil {
		return false, fmt.Errorf("owning level of lesson %q: %w", lesson.ID, err)
	}
	if !open {
		return false, nil
	}
	return domain.LessonRequirementsMet(lesson, s), nil
}

func (e *Evaluator) isFirstLevel(levelID string) bool {
	levels := e.catalog.ListLevels()
	return len(levels) > 0 && levels[0].ID == levelID
}

// UnlockedLessons returns the ids of every open lesson, in catalog order
func (e *Evaluator) UnlockedLessons(s *domain.Snapshot) []string {
	var ids []string
	for i, level := range e.catalog.ListLevels() {
		if !domain.LevelUnlocked(level, i == 0, s) {
			continue
		}
		for j := range level.Lessons {
			if domain.LessonRequirementsMet(&level.Lessons[j], s) {
				ids = append(ids, level.Lessons[j].ID)
			}
		}
	}
	return ids
}

// UnlockedLevels returns the ids of every open level, in catalog order
func (e *Evaluator) UnlockedLevels(s *domain.Snapshot) []string {
	var ids []string
	for i, level := range e.catalog.ListLevels() {
		if domain.LevelUnlocked(level, i == 0, s) {
			ids = append(ids, level.ID)
		}
	}
	return ids
}

// newlyOpened returns the ids in after that are not in before, preserving order
func newlyOpened(before, after []string) []string {
	seen := make(map[string]bool, len(before))
	for _, id := range before {
		seen[id] = true
	}
	opened := []string{}
	for _, id := range after {
		if !seen[id] {
			opened = append(opened, id)
		}
	}
	return opened
}

// CatalogView is the catalog annotated with one user's progress
type CatalogView struct {
	UserID   string               `json:"user_id"`
	TotalXP  int                  `json:"total_xp"`
	Level    int                  `json:"level"`
	Levels   []LevelView          `json:"levels"`
	Progress domain.LevelProgress `json:"progress"`
}

// LevelView is a catalog level with its unlock state
type LevelView struct {
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	Category   domain.Category `json:"category"`
	RequiredXP int             `json:"required_xp"`
	Unlocked   bool            `json:"unlocked"`
	Lessons    []LessonView    `json:"lessons"`
}

// LessonView is a catalog lesson with its unlock and completion state
type LessonView struct {
	domain.CatalogLesson
	Unlocked  bool `json:"unlocked"`
	Completed bool `json:"completed"`
	QuizScore *int `json:"quiz_score,omitempty"`
}

// View builds the annotated catalog for s
func (e *Evaluator) View(s *domain.Snapshot) *CatalogView {
	view := &CatalogView{
		UserID:   s.UserID,
		TotalXP:  s.TotalXP,
		Level:    s.Level,
		Progress: s.Progress(),
	}

	for i, level := range e.catalog.ListLevels() {
		open := domain.LevelUnlocked(level, i == 0, s)
		lv := LevelView{
			ID:         level.ID,
			Title:      level.Title,
			Category:   level.Category,
			RequiredXP: level.RequiredXP,
			Unlocked:   open,
			Lessons:    make([]LessonView, 0, len(level.Lessons)),
		}
		for j := range level.Lessons {
			lesson := level.Lessons[j]
			item := LessonView{
				CatalogLesson: lesson,
				Unlocked:      open && domain.LessonRequirementsMet(&lesson, s),
				Completed:     s.HasCompleted(lesson.ID),
			}
			if q, ok := s.CompletedQuizzes[lesson.ID]; ok {
				score := q.Score
				item.QuizScore = &score
			}
			lv.Lessons = append(lv.Lessons, item)
		}
		view.Levels = append(view.Levels, lv)
	}

	return view
}
