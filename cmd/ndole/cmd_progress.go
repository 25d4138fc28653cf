package main

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/felixgeelhaar/ndole/internal/domain"
	"github.com/felixgeelhaar/ndole/internal/progression"
)

var weekdays = [7]string{"Mo", "Tu", "We", "Th", "Fr", "Sa", "Su"}

// progressView mirrors GET /v1/users/{id}/progress
type progressView struct {
	domain.Snapshot
	Progress domain.LevelProgress `json:"progress"`
}

// cmdProgress prints a user's XP, level, streak and achievements
func cmdProgress(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: ndole progress <user>")
	}
	userID := args[0]

	var view progressView
	if err := getJSON("/v1/users/"+url.PathEscape(userID)+"/progress", &view); err != nil {
		return err
	}

	fmt.Printf("Progress for %s\n", userID)
	fmt.Println(strings.Repeat("=", 14+len(userID)))
	fmt.Println()
	printLevel(view.Progress, view.TotalXP)
	fmt.Println()
	printStreak(view.Streak)
	fmt.Println()

	fmt.Printf("Recipes completed: %d\n", len(view.CompletedLessonIDs))
	for _, id := range view.CompletedLessonIDs {
		line := "  ✓ " + id
		if q, ok := view.CompletedQuizzes[id]; ok {
			line += fmt.Sprintf(" (quiz %d%%)", q.Score)
		}
		fmt.Println(line)
	}

	fmt.Println()
	fmt.Printf("Achievements: %d/%d\n", len(view.UnlockedAchievements), len(domain.Achievements()))
	for _, id := range view.UnlockedAchievements {
		title := string(id)
		if a, ok := domain.LookupAchievement(id); ok {
			title = fmt.Sprintf("%s (%s)", a.Title, id)
		}
		fmt.Printf("  🏆 %s\n", title)
	}

	return nil
}

func printLevel(p domain.LevelProgress, totalXP int) {
	fmt.Printf("Level %d  %s %d/%d XP\n",
		p.Level,
		renderProgressBar(p.Percent/100, 20),
		p.XPIntoLevel,
		p.XPForNextLevel,
	)
	fmt.Printf("Total XP: %d (%d to level %d)\n", totalXP, p.XPToNextLevel, p.Level+1)
}

func printStreak(s domain.StreakState) {
	fmt.Printf("Streak: %d day(s), best %d\n", s.Current, s.Best)
	var week []string
	for i, active := range s.Week {
		mark := "·"
		if active {
			mark = "●"
		}
		week = append(week, weekdays[i]+" "+mark)
	}
	fmt.Printf("This week: %s\n", strings.Join(week, "  "))
}

// cmdComplete records a finished lesson stage
func cmdComplete(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: ndole complete <user> <lesson> <stage> [score]")
	}
	req, err := parseCompletionArgs(args)
	if err != nil {
		return err
	}

	var cs domain.ChangeSet
	path := "/v1/users/" + url.PathEscape(args[0]) + "/completions"
	if err := postJSON(path, req, &cs); err != nil {
		return err
	}

	printChangeSet(&cs)
	return nil
}

// completionBody is the request body of POST /v1/users/{id}/completions
type completionBody struct {
	LessonID  string `json:"lesson_id"`
	Stage     string `json:"stage"`
	QuizScore *int   `json:"quiz_score,omitempty"`
}

// parseCompletionArgs reads <user> <lesson> <stage> [score]
func parseCompletionArgs(args []string) (completionBody, error) {
	stage, err := domain.ParseStageType(args[2])
	if err != nil {
		return completionBody{}, err
	}
	body := completionBody{LessonID: args[1], Stage: string(stage)}

	if len(args) > 3 {
		score, err := strconv.Atoi(args[3])
		if err != nil {
			return completionBody{}, fmt.Errorf("invalid score %q: %w", args[3], err)
		}
		if score < 0 || score > 100 {
			return completionBody{}, fmt.Errorf("score must be between 0 and 100, got %d", score)
		}
		body.QuizScore = &score
	}
	return body, nil
}

func printChangeSet(cs *domain.ChangeSet) {
	if cs.AlreadyCompleted {
		fmt.Printf("%s was already completed, no XP granted\n", cs.LessonID)
	} else if cs.XPGained > 0 {
		fmt.Printf("✓ %s completed: +%d XP\n", cs.LessonID, cs.XPGained)
	} else {
		fmt.Printf("✓ %s progress recorded\n", cs.LessonID)
	}

	if cs.LeveledUp {
		fmt.Printf("🎉 Level up! %d → %d\n", cs.PreviousLevel, cs.Level)
	}
	fmt.Println()
	printLevel(cs.Progress, cs.TotalXP)
	fmt.Printf("Streak: %d day(s)\n", cs.Streak.Current)

	for _, a := range cs.NewlyUnlockedAchievements {
		fmt.Printf("🏆 %s: %s\n", a.Title, a.Description)
	}
	if len(cs.NewlyUnlockedLevels) > 0 {
		fmt.Printf("New levels: %s\n", strings.Join(cs.NewlyUnlockedLevels, ", "))
	}
	if len(cs.NewlyUnlockedLessons) > 0 {
		fmt.Printf("New recipes: %s\n", strings.Join(cs.NewlyUnlockedLessons, ", "))
	}
}

// cmdCatalog lists the learning path, annotated for a user when one is given
func cmdCatalog(args []string) error {
	if len(args) == 0 {
		var resp struct {
			Levels []domain.CatalogLevel `json:"levels"`
		}
		if err := getJSON("/v1/catalog", &resp); err != nil {
			return err
		}
		for _, level := range resp.Levels {
			fmt.Printf("%s  %s (%d XP required)\n", level.ID, level.Title, level.RequiredXP)
			for _, lesson := range level.Lessons {
				fmt.Printf("    %-5s %-28s %-8s %3d XP\n", lesson.ID, lesson.Name, lesson.Difficulty, lesson.XPReward)
			}
		}
		return nil
	}

	var view progression.CatalogView
	if err := getJSON("/v1/catalog?user_id="+url.QueryEscape(args[0]), &view); err != nil {
		return err
	}

	fmt.Printf("Learning path for %s (level %d, %d XP)\n\n", view.UserID, view.Level, view.TotalXP)
	for _, level := range view.Levels {
		fmt.Printf("%s %s  %s (%d XP required)\n", lockIcon(level.Unlocked), level.ID, level.Title, level.RequiredXP)
		for _, lesson := range level.Lessons {
			state := lockIcon(lesson.Unlocked)
			if lesson.Completed {
				state = "✓"
			}
			fmt.Printf("    %s %-5s %-28s %3d XP\n", state, lesson.ID, lesson.Name, lesson.XPReward)
		}
	}
	return nil
}

func lockIcon(unlocked bool) string {
	if unlocked {
		return "○"
	}
	return "🔒"
}

// cmdAchievements lists the achievement rules
func cmdAchievements() error {
	var resp struct {
		Achievements []domain.Achievement `json:"achievements"`
	}
	if err := getJSON("/v1/achievements", &resp); err != nil {
		return err
	}
	for _, a := range resp.Achievements {
		fmt.Printf("%-14s %-16s %s\n", a.ID, a.Title, a.Description)
	}
	return nil
}

// cmdNotifications prints a user's notifications, newest first
func cmdNotifications(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: ndole notifications <user> [limit]")
	}
	path := "/v1/users/" + url.PathEscape(args[0]) + "/notifications"
	if len(args) > 1 {
		path += "?limit=" + url.QueryEscape(args[1])
	}

	var resp struct {
		Notifications []domain.Notification `json:"notifications"`
	}
	if err := getJSON(path, &resp); err != nil {
		return err
	}

	if len(resp.Notifications) == 0 {
		fmt.Println("No notifications")
		return nil
	}
	for _, n := range resp.Notifications {
		fmt.Printf("%s  %s\n", n.CreatedAt.Local().Format("2006-01-02 15:04"), describeNotification(n))
	}
	return nil
}

func describeNotification(n domain.Notification) string {
	switch n.Type {
	case domain.NotificationAchievementUnlocked:
		return fmt.Sprintf("🏆 %s (%s)", n.Title, n.AchievementID)
	case domain.NotificationLevelUp:
		return fmt.Sprintf("🎉 reached level %d", n.Level)
	default:
		return string(n.Type)
	}
}
