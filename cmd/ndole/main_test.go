package main

import (
	"errors"
	"testing"

	"github.com/felixgeelhaar/ndole/internal/domain"
)

func TestRenderProgressBar(t *testing.T) {
	tests := []struct {
		value float64
		width int
		want  string
	}{
		{0, 4, "[░░░░]"},
		{0.5, 4, "[██░░]"},
		{1, 4, "[████]"},
		{1.7, 4, "[████]"},
		{-0.2, 4, "[░░░░]"},
	}

	for _, tt := range tests {
		if got := renderProgressBar(tt.value, tt.width); got != tt.want {
			t.Errorf("renderProgressBar(%v, %d) = %q; want %q", tt.value, tt.width, got, tt.want)
		}
	}
}

func TestParseCompletionArgs(t *testing.T) {
	body, err := parseCompletionArgs([]string{"amara", "101", "Quiz", "90"})
	if err != nil {
		t.Fatalf("parseCompletionArgs() error = %v", err)
	}
	if body.LessonID != "101" || body.Stage != "quiz" {
		t.Errorf("body = %+v", body)
	}
	if body.QuizScore == nil || *body.QuizScore != 90 {
		t.Errorf("QuizScore = %v; want 90", body.QuizScore)
	}

	body, err = parseCompletionArgs([]string{"amara", "102", "recipe"})
	if err != nil {
		t.Fatalf("parseCompletionArgs() error = %v", err)
	}
	if body.QuizScore != nil {
		t.Errorf("QuizScore = %v; want nil", *body.QuizScore)
	}
}

func TestParseCompletionArgs_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown stage", []string{"amara", "101", "bake"}},
		{"non-numeric score", []string{"amara", "101", "quiz", "ninety"}},
		{"score too high", []string{"amara", "101", "quiz", "101"}},
		{"negative score", []string{"amara", "101", "quiz", "-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseCompletionArgs(tt.args); err == nil {
				t.Errorf("parseCompletionArgs(%v) succeeded; want error", tt.args)
			}
		})
	}

	_, err := parseCompletionArgs([]string{"amara", "101", "bake"})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("unknown stage error = %v; want ErrInvalidArgument", err)
	}
}

func TestDescribeNotification(t *testing.T) {
	got := describeNotification(domain.Notification{
		Type:          domain.NotificationAchievementUnlocked,
		AchievementID: domain.AchievementFirstRecipe,
		Title:         "Premier pas",
	})
	if got != "🏆 Premier pas (FIRST_RECIPE)" {
		t.Errorf("achievement = %q", got)
	}

	got = describeNotification(domain.Notification{Type: domain.NotificationLevelUp, Level: 3})
	if got != "🎉 reached level 3" {
		t.Errorf("level up = %q", got)
	}
}

func TestDaemonAddr_EnvOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("NDOLE_PORT", "9001")
	t.Setenv("NDOLE_BIND", "0.0.0.0")

	if got := daemonAddr(); got != "http://127.0.0.1:9001" {
		t.Errorf("daemonAddr() = %q; want http://127.0.0.1:9001", got)
	}
}
