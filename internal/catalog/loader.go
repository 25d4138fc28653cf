package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"slices"

	"github.com/felixgeelhaar/ndole/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultCatalog []byte

// File represents the YAML structure of a catalog file
type File struct {
	Levels []LevelFile `yaml:"levels"`
}

// LevelFile represents a level entry in the catalog file
type LevelFile struct {
	ID          string       `yaml:"id"`
	Title       string       `yaml:"title"`
	Description string       `yaml:"description"`
	Category    string       `yaml:"category"`
	RequiredXP  int          `yaml:"required_xp"`
	Order       int          `yaml:"order"`
	RewardXP    int          `yaml:"reward_xp"`
	Lessons     []LessonFile `yaml:"lessons"`
}

// LessonFile represents a lesson entry in the catalog file
type LessonFile struct {
	ID                 string `yaml:"id"`
	Name               string `yaml:"name"`
	Description        string `yaml:"description"`
	Region             string `yaml:"region"`
	DurationMinutes    int    `yaml:"duration_minutes"`
	Difficulty         string `yaml:"difficulty"`
	XPReward           int    `yaml:"xp_reward"`
	UnlockRequirements *struct {
		MinLevel      int      `yaml:"min_level"`
		MinXP         int      `yaml:"min_xp"`
		Prerequisites []string `yaml:"prerequisites"`
	} `yaml:"unlock_requirements"`
}

// Loader reads catalog definitions from a YAML file, or from the built-in
// learning path when no path is configured.
type Loader struct {
	path string
}

// NewLoader creates a new catalog loader. An empty path selects the embedded default catalog.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Source describes where the catalog is loaded from
func (l *Loader) Source() string {
	if l.path == "" {
		return "embedded"
	}
	return l.path
}

// Load reads, parses and validates the catalog
func (l *Loader) Load() ([]*domain.CatalogLevel, error) {
	data := defaultCatalog
	if l.path != "" {
		var err error
		data, err = os.ReadFile(l.path)
		if err != nil {
			return nil, fmt.Errorf("read catalog file: %w", err)
		}
	}
	return Parse(data)
}

// Parse decodes catalog YAML into levels sorted by order
func Parse(data []byte) ([]*domain.CatalogLevel, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog file: %w", err)
	}

	levels := make([]*domain.CatalogLevel, 0, len(file.Levels))
	for _, lf := range file.Levels {
		level := &domain.CatalogLevel{
			ID:          lf.ID,
			Title:       lf.Title,
			Description: lf.Description,
			Category:    domain.Category(lf.Category),
			RequiredXP:  lf.RequiredXP,
			Order:       lf.Order,
			RewardXP:    lf.RewardXP,
			Lessons:     make([]domain.CatalogLesson, len(lf.Lessons)),
		}

		for i, ls := range lf.Lessons {
			lesson := domain.CatalogLesson{
				ID:              ls.ID,
				LevelID:         lf.ID,
				Name:            ls.Name,
				Description:     ls.Description,
				Region:          ls.Region,
				DurationMinutes: ls.DurationMinutes,
				Difficulty:      domain.Difficulty(ls.Difficulty),
				XPReward:        ls.XPReward,
			}
			if req := ls.UnlockRequirements; req != nil {
				lesson.Requirements = &domain.UnlockRequirements{
					MinLevel:      req.MinLevel,
					MinXP:         req.MinXP,
					Prerequisites: req.Prerequisites,
				}
			}
			level.Lessons[i] = lesson
		}

		levels = append(levels, level)
	}

	sortByOrder(levels)

	if err := Validate(levels); err != nil {
		return nil, err
	}
	return levels, nil
}

// sortByOrder puts levels in progression order; ties keep their input order
func sortByOrder(levels []*domain.CatalogLevel) {
	slices.SortStableFunc(levels, func(a, b *domain.CatalogLevel) int {
		return a.Order - b.Order
	})
}

// Validate checks catalog integrity: unique ids, known enums, positive
// rewards and prerequisites that point at existing lessons.
func Validate(levels []*domain.CatalogLevel) error {
	if len(levels) == 0 {
		return fmt.Errorf("%w: catalog has no levels", domain.ErrInvalidArgument)
	}

	levelIDs := make(map[string]bool)
	lessonIDs := make(map[string]bool)

	for _, level := range levels {
		if level.ID == "" {
			return fmt.Errorf("%w: level without id", domain.ErrInvalidArgument)
		}
		if levelIDs[level.ID] {
			return fmt.Errorf("%w: duplicate level id %q", domain.ErrInvalidArgument, level.ID)
		}
		levelIDs[level.ID] = true

		if !level.Category.Valid() {
			return fmt.Errorf("%w: level %q has unknown category %q", domain.ErrInvalidArgument, level.ID, level.Category)
		}
		if level.RequiredXP < 0 {
			return fmt.Errorf("%w: level %q has negative required_xp", domain.ErrInvalidArgument, level.ID)
		}

		for _, lesson := range level.Lessons {
			if lesson.ID == "" {
				return fmt.Errorf("%w: lesson without id in level %q", domain.ErrInvalidArgument, level.ID)
			}
			if lessonIDs[lesson.ID] {
				return fmt.Errorf("%w: duplicate lesson id %q", domain.ErrInvalidArgument, lesson.ID)
			}
			lessonIDs[lesson.ID] = true

			if lesson.LevelID != "" && lesson.LevelID != level.ID {
				return fmt.Errorf("%w: lesson %q nested in level %q names level %q",
					domain.ErrInvalidArgument, lesson.ID, level.ID, lesson.LevelID)
			}
			if !lesson.Difficulty.Valid() {
				return fmt.Errorf("%w: lesson %q has unknown difficulty %q", domain.ErrInvalidArgument, lesson.ID, lesson.Difficulty)
			}
			if lesson.XPReward <= 0 {
				return fmt.Errorf("%w: lesson %q must reward positive xp", domain.ErrInvalidArgument, lesson.ID)
			}
		}
	}

	// Prerequisites may point forward in the file, so check them after collecting every id.
	for _, level := range levels {
		for _, lesson := range level.Lessons {
			if lesson.Requirements == nil {
				continue
			}
			if lesson.Requirements.MinLevel < 0 || lesson.Requirements.MinXP < 0 {
				return fmt.Errorf("%w: lesson %q has negative requirements", domain.ErrInvalidArgument, lesson.ID)
			}
			for _, pre := range lesson.Requirements.Prerequisites {
				if pre == lesson.ID {
					return fmt.Errorf("%w: lesson %q requires itself", domain.ErrInvalidArgument, lesson.ID)
				}
				if !lessonIDs[pre] {
					return fmt.Errorf("%w: lesson %q requires unknown lesson %q", domain.ErrInvalidArgument, lesson.ID, pre)
				}
			}
		}
	}

	return nil
}
