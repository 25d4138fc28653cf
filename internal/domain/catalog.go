package domain

// Category groups catalog levels by audience
type Category string

const (
	CategoryBeginner     Category = "beginner"
	CategoryIntermediate Category = "intermediate"
	CategoryAdvanced     Category = "advanced"
)

// Valid reports whether c is a known category
func (c Category) Valid() bool {
	switch c {
	case CategoryBeginner, CategoryIntermediate, CategoryAdvanced:
		return true
	}
	return false
}

// Difficulty represents how demanding a lesson's recipe is
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is a known difficulty
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// CatalogLevel is an immutable group of lessons gated by total XP
type CatalogLevel struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Category    Category        `json:"category"`
	RequiredXP  int             `json:"required_xp"`
	Order       int             `json:"order"`
	RewardXP    int             `json:"reward_xp,omitempty"` // display only
	Lessons     []CatalogLesson `json:"lessons"`
}

// CatalogLesson is a single guided recipe
type CatalogLesson struct {
	ID              string              `json:"id"`
	LevelID         string              `json:"level_id"`
	Name            string              `json:"name"`
	Description     string              `json:"description,omitempty"`
	Region          string              `json:"region,omitempty"`
	DurationMinutes int                 `json:"duration_minutes,omitempty"`
	Difficulty      Difficulty          `json:"difficulty"`
	XPReward        int                 `json:"xp_reward"`
	Requirements    *UnlockRequirements `json:"unlock_requirements,omitempty"`
}

// UnlockRequirements are the optional per-lesson gates. Zero values mean "no requirement".
type UnlockRequirements struct {
	MinLevel      int      `json:"min_level,omitempty"`
	MinXP         int      `json:"min_xp,omitempty"`
	Prerequisites []string `json:"prerequisites,omitempty"`
}

// Unlockable is a catalog entry whose availability can be evaluated.
// It is implemented by *CatalogLevel and *CatalogLesson only.
type Unlockable interface {
	EntryID() string
	unlockable()
}

func (l *CatalogLevel) EntryID() string { return l.ID }
func (l *CatalogLevel) unlockable()     {}

func (l *CatalogLesson) EntryID() string { return l.ID }
func (l *CatalogLesson) unlockable()     {}

// LessonIDs returns the ids of the level's lessons in catalog order
func (l *CatalogLevel) LessonIDs() []string {
	ids := make([]string, len(l.Lessons))
	for i, lesson := range l.Lessons {
		ids[i] = lesson.ID
	}
	return ids
}
