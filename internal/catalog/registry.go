package catalog

import (
	"fmt"
	"slices"
	"sync"

	"github.com/felixgeelhaar/ndole/internal/domain"
)

// Registry provides read access to levels and lessons.
// Returned entries are shared and must not be modified.
type Registry struct {
	loader  *Loader
	mu      sync.RWMutex
	levels  []*domain.CatalogLevel
	byLevel map[string]*domain.CatalogLevel
	lessons map[string]*domain.CatalogLesson
	loaded  bool
}

// NewRegistry creates a new catalog registry
func NewRegistry(loader *Loader) *Registry {
	return &Registry{
		loader:  loader,
		byLevel: make(map[string]*domain.CatalogLevel),
		lessons: make(map[string]*domain.CatalogLesson),
	}
}

// NewRegistryFromLevels builds a registry around levels assembled in code.
// The levels are copied, ordered by Order, and every lesson is tied to the
// level it is nested in, as Parse does for catalog files.
func NewRegistryFromLevels(levels []*domain.CatalogLevel) (*Registry, error) {
	if slices.Contains(levels, nil) {
		return nil, fmt.Errorf("%w: nil level", domain.ErrInvalidArgument)
	}
	if err := Validate(levels); err != nil {
		return nil, err
	}

	owned := make([]*domain.CatalogLevel, len(levels))
	for i, level := range levels {
		c := *level
		c.Lessons = slices.Clone(level.Lessons)
		for j := range c.Lessons {
			c.Lessons[j].LevelID = c.ID
		}
		owned[i] = &c
	}
	sortByOrder(owned)

	r := NewRegistry(nil)
	r.index(owned)
	return r, nil
}

// Load loads the catalog into memory
func (r *Registry) Load() error {
	if r.loader == nil {
		return fmt.Errorf("registry has no loader")
	}

	levels, err := r.loader.Load()
	if err != nil {
		return fmt.Errorf("load catalog from %s: %w", r.loader.Source(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.index(levels)
	return nil
}

// Reload re-reads the catalog. On failure the previous catalog stays active.
func (r *Registry) Reload() error {
	return r.Load()
}

// index replaces the registry contents. Callers hold the write lock or own r exclusively.
func (r *Registry) index(levels []*domain.CatalogLevel) {
	byLevel := make(map[string]*domain.CatalogLevel, len(levels))
	lessons := make(map[string]*domain.CatalogLesson)
	for _, level := range levels {
		byLevel[level.ID] = level
		for i := range level.Lessons {
			lessons[level.Lessons[i].ID] = &level.Lessons[i]
		}
	}

	r.levels = levels
	r.byLevel = byLevel
	r.lessons = lessons
	r.loaded = true
}

// GetLevel returns a level by ID
func (r *Registry) GetLevel(id string) (*domain.CatalogLevel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	level, ok := r.byLevel[id]
	if !ok {
		return nil, fmt.Errorf("%w: level %q", domain.ErrNotFound, id)
	}
	return level, nil
}

// GetLesson returns a lesson by ID
func (r *Registry) GetLesson(id string) (*domain.CatalogLesson, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lesson, ok := r.lessons[id]
	if !ok {
		return nil, fmt.Errorf("%w: lesson %q", domain.ErrNotFound, id)
	}
	return lesson, nil
}

// ListLevels returns all levels ordered by their catalog order
func (r *Registry) ListLevels() []*domain.CatalogLevel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	levels := make([]*domain.CatalogLevel, len(r.levels))
	copy(levels, r.levels)
	return levels
}

// GetLessonsByDifficulty returns lessons filtered by difficulty, in catalog order
func (r *Registry) GetLessonsByDifficulty(difficulty domain.Difficulty) []*domain.CatalogLesson {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var lessons []*domain.CatalogLesson
	for _, level := range r.levels {
		for i := range level.Lessons {
			if level.Lessons[i].Difficulty == difficulty {
				lessons = append(lessons, &level.Lessons[i])
			}
		}
	}
	return lessons
}

// Stats returns statistics about the loaded catalog
func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := RegistryStats{
		Loaded:       r.loaded,
		LevelCount:   len(r.levels),
		LessonCount:  len(r.lessons),
		ByDifficulty: make(map[string]int),
	}

	for _, lesson := range r.lessons {
		stats.ByDifficulty[string(lesson.Difficulty)]++
		stats.TotalXP += lesson.XPReward
	}

	return stats
}

// RegistryStats holds statistics about the registry
type RegistryStats struct {
	Loaded       bool           `json:"loaded"`
	LevelCount   int            `json:"level_count"`
	LessonCount  int            `json:"lesson_count"`
	TotalXP      int            `json:"total_xp"`
	ByDifficulty map[string]int `json:"by_difficulty"`
}
