package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageType(t *testing.T) {
	tests := []struct {
		stage    StageType
		valid    bool
		terminal bool
	}{
		{StageIntro, true, false},
		{StageSteps, true, false},
		{StageQuiz, true, true},
		{StageRecipe, true, true},
		{StageType("dessert"), false, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.valid, tt.stage.Valid(), "%s.Valid()", tt.stage)
		assert.Equal(t, tt.terminal, tt.stage.Terminal(), "%s.Terminal()", tt.stage)
	}
}

func TestParseStageType(t *testing.T) {
	st, err := ParseStageType(" Recipe ")
	require.NoError(t, err)
	assert.Equal(t, StageRecipe, st)

	_, err = ParseStageType("lunch")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCompletionEvent_Validate(t *testing.T) {
	score := func(v int) *int { return &v }

	tests := []struct {
		name    string
		event   CompletionEvent
		wantErr bool
	}{
		{"valid recipe", CompletionEvent{UserID: "u", LessonID: "101", Stage: StageRecipe}, false},
		{"valid quiz", CompletionEvent{UserID: "u", LessonID: "101", Stage: StageQuiz, QuizScore: score(100)}, false},
		{"missing user", CompletionEvent{LessonID: "101", Stage: StageRecipe}, true},
		{"blank lesson", CompletionEvent{UserID: "u", LessonID: "  ", Stage: StageRecipe}, true},
		{"unknown stage", CompletionEvent{UserID: "u", LessonID: "101", Stage: "plating"}, true},
		{"score too high", CompletionEvent{UserID: "u", LessonID: "101", Stage: StageQuiz, QuizScore: score(120)}, true},
		{"negative score", CompletionEvent{UserID: "u", LessonID: "101", Stage: StageQuiz, QuizScore: score(-5)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidArgument)
				return
			}
			assert.NoError(t, err)
		})
	}
}
