package domain

// AchievementID identifies a fixed achievement rule
type AchievementID string

const (
	AchievementFirstRecipe AchievementID = "FIRST_RECIPE"
	AchievementFiveRecipes AchievementID = "FIVE_RECIPES"
	AchievementPerfectQuiz AchievementID = "PERFECT_QUIZ"
	AchievementStreakWeek  AchievementID = "STREAK_WEEK"
)

// Achievement is a badge unlocked when its predicate holds for a snapshot
type Achievement struct {
	ID          AchievementID `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`

	predicate func(*Snapshot) bool
}

// Holds reports whether the achievement's condition is met by s
func (a Achievement) Holds(s *Snapshot) bool {
	return a.predicate != nil && a.predicate(s)
}

// achievements is the rule set in evaluation order. New badges are added here.
var achievements = []Achievement{
	{
		ID:          AchievementFirstRecipe,
		Title:       "Premier pas",
		Description: "Compléter votre première recette",
		predicate: func(s *Snapshot) bool {
			return len(s.CompletedLessonIDs) == 1
		},
	},
	{
		ID:          AchievementFiveRecipes,
		Title:       "Chef en herbe",
		Description: "Compléter 5 recettes",
		predicate: func(s *Snapshot) bool {
			return len(s.CompletedLessonIDs) >= 5
		},
	},
	{
		ID:          AchievementPerfectQuiz,
		Title:       "Expert culinaire",
		Description: "Obtenir un score parfait au quiz",
		predicate: func(s *Snapshot) bool {
			for _, q := range s.CompletedQuizzes {
				if q.Score == 100 {
					return true
				}
			}
			return false
		},
	},
	{
		ID:          AchievementStreakWeek,
		Title:       "Régularité",
		Description: "Maintenir une série de 7 jours",
		predicate: func(s *Snapshot) bool {
			return s.Streak.Best >= 7
		},
	},
}

// Achievements returns all achievement definitions in evaluation order
func Achievements() []Achievement {
	out := make([]Achievement, len(achievements))
	copy(out, achievements)
	return out
}

// LookupAchievement returns the definition for id
func LookupAchievement(id AchievementID) (Achievement, bool) {
	for _, a := range achievements {
		if a.ID == id {
			return a, true
		}
	}
	return Achievement{}, false
}

// EvaluateAchievements returns the achievements whose predicate holds for s and
// which s has not unlocked yet. It does not modify s, so calling it again on the
// same snapshot after merging the result yields nothing.
func EvaluateAchievements(s *Snapshot) []AchievementID {
	var unlocked []AchievementID
	for _, a := range achievements {
		if s.HasAchievement(a.ID) {
			continue
		}
		if a.Holds(s) {
			unlocked = append(unlocked, a.ID)
		}
	}
	return unlocked
}
