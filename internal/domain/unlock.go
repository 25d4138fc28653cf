package domain

// LevelUnlocked reports whether a level is open for s. The first level of a
// catalog is the entry point and is always open; any other level needs
// TotalXP >= RequiredXP.
func LevelUnlocked(level *CatalogLevel, first bool, s *Snapshot) bool {
	if first {
		return true
	}
	return s.TotalXP >= level.RequiredXP
}

// LessonRequirementsMet checks a lesson's own requirements. Every set
// requirement must hold; unset ones always pass. The owning level is
// checked separately by the caller.
func LessonRequirementsMet(lesson *CatalogLesson, s *Snapshot) bool {
	req := lesson.Requirements
	if req == nil {
		return true
	}
	if req.MinLevel > 0 && s.Level < req.MinLevel {
		return false
	}
	if req.MinXP > 0 && s.TotalXP < req.MinXP {
		return false
	}
	for _, id := range req.Prerequisites {
		if !s.HasCompleted(id) {
			return false
		}
	}
	return true
}
