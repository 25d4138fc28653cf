package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	mcp "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/server"

	"github.com/felixgeelhaar/ndole/internal/domain"
	"github.com/felixgeelhaar/ndole/internal/progression"
)

// Server wraps the MCP server with Ndolé progression tools
type Server struct {
	mcpServer *server.Server
	service   progression.ProgressionService
	catalog   progression.Catalog
	clock     func() time.Time
}

// Config contains configuration for the MCP server
type Config struct {
	Service progression.ProgressionService
	Catalog progression.Catalog
	Version string
}

// NewServer creates a new MCP server for Ndolé
func NewServer(cfg Config) *Server {
	s := &Server{
		service: cfg.Service,
		catalog: cfg.Catalog,
		clock:   time.Now,
	}

	version := cfg.Version
	if version == "" {
		version = "0.1.0"
	}

	s.mcpServer = server.New(server.Info{
		Name:    "ndole",
		Version: version,
	}, server.WithInstructions(`
Ndolé tracks a learner's progress through a path of Cameroonian recipes.
Lessons have four stages: intro, steps, quiz, recipe. Finishing the quiz or
recipe stage completes the lesson and grants its XP once.

Available tools:
- ndole_progress: XP, level, streak and achievements for a user
- ndole_complete: Record a finished lesson stage
- ndole_catalog: The learning path annotated with what the user has unlocked
- ndole_unlocked: Whether a single lesson is available to a user
- ndole_achievements: The achievement rules
`))

	s.registerTools()

	return s
}

// registerTools registers all Ndolé MCP tools
func (s *Server) registerTools() {
	s.mcpServer.Tool("ndole_progress").
		Description("Get a user's progression: XP, level, streak and achievements").
		Handler(s.handleProgress)

	s.mcpServer.Tool("ndole_complete").
		Description("Record a completed lesson stage (intro, steps, quiz, recipe) for a user").
		Handler(s.handleComplete)

	s.mcpServer.Tool("ndole_catalog").
		Description("List levels and lessons with unlocked and completed flags for a user").
		Handler(s.handleCatalog)

	s.mcpServer.Tool("ndole_unlocked").
		Description("Check whether a lesson is unlocked for a user").
		Handler(s.handleUnlocked)

	s.mcpServer.Tool("ndole_achievements").
		Description("List the achievements a learner can earn").
		Handler(s.handleAchievements)
}

// Input/Output types for tools

type UserInput struct {
	UserID string `json:"user_id" jsonschema:"description=Learner identifier"`
}

type ProgressOutput struct {
	UserID       string               `json:"user_id"`
	TotalXP      int                  `json:"total_xp"`
	Level        int                  `json:"level"`
	Progress     domain.LevelProgress `json:"progress"`
	Completed    []string             `json:"completed_lessons"`
	Streak       int                  `json:"streak"`
	BestStreak   int                  `json:"best_streak"`
	Achievements []string             `json:"achievements"`
	Summary      string               `json:"summary"`
}

type CompleteInput struct {
	UserID    string `json:"user_id" jsonschema:"description=Learner identifier"`
	LessonID  string `json:"lesson_id" jsonschema:"description=Lesson ID from ndole_catalog"`
	Stage     string `json:"stage" jsonschema:"description=Finished stage,enum=intro,enum=steps,enum=quiz,enum=recipe"`
	QuizScore *int   `json:"quiz_score,omitempty" jsonschema:"description=Quiz score 0-100 (quiz stage only)"`
}

type CompleteOutput struct {
	XPGained         int      `json:"xp_gained"`
	TotalXP          int      `json:"total_xp"`
	Level            int      `json:"level"`
	LeveledUp        bool     `json:"leveled_up"`
	AlreadyCompleted bool     `json:"already_completed"`
	Achievements     []string `json:"new_achievements"`
	UnlockedLessons  []string `json:"newly_unlocked_lessons"`
	Streak           int      `json:"streak"`
	Message          string   `json:"message"`
}

type CatalogOutput struct {
	Levels []progression.LevelView `json:"levels"`
}

type UnlockedInput struct {
	UserID   string `json:"user_id" jsonschema:"description=Learner identifier"`
	LessonID string `json:"lesson_id" jsonschema:"description=Lesson ID"`
}

type UnlockedOutput struct {
	LessonID string `json:"lesson_id"`
	Unlocked bool   `json:"unlocked"`
	Reason   string `json:"reason,omitempty"`
}

type AchievementsInput struct{}

type AchievementsOutput struct {
	Achievements []domain.Achievement `json:"achievements"`
}

// Tool handlers

func (s *Server) handleProgress(ctx context.Context, input UserInput) (ProgressOutput, error) {
	snap, err := s.snapshot(ctx, input.UserID)
	if err != nil {
		return ProgressOutput{}, err
	}

	achievements := make([]string, len(snap.UnlockedAchievements))
	for i, id := range snap.UnlockedAchievements {
		achievements[i] = string(id)
	}

	progress := snap.Progress()
	return ProgressOutput{
		UserID:       snap.UserID,
		TotalXP:      snap.TotalXP,
		Level:        snap.Level,
		Progress:     progress,
		Completed:    snap.CompletedLessonIDs,
		Streak:       snap.Streak.Current,
		BestStreak:   snap.Streak.Best,
		Achievements: achievements,
		Summary: fmt.Sprintf("Level %d, %d XP (%d to next level), %d lessons completed, streak %d",
			snap.Level, snap.TotalXP, progress.XPToNextLevel, len(snap.CompletedLessonIDs), snap.Streak.Current),
	}, nil
}

func (s *Server) handleComplete(ctx context.Context, input CompleteInput) (CompleteOutput, error) {
	stage, err := domain.ParseStageType(input.Stage)
	if err != nil {
		return CompleteOutput{}, err
	}

	cs, err := s.service.HandleCompletion(ctx, domain.CompletionEvent{
		UserID:     input.UserID,
		LessonID:   input.LessonID,
		Stage:      stage,
		QuizScore:  input.QuizScore,
		OccurredAt: s.clock(),
	})
	if err != nil {
		return CompleteOutput{}, fmt.Errorf("record completion: %w", err)
	}

	achievements := make([]string, len(cs.NewlyUnlockedAchievements))
	for i, a := range cs.NewlyUnlockedAchievements {
		achievements[i] = a.Title
	}

	return CompleteOutput{
		XPGained:         cs.XPGained,
		TotalXP:          cs.TotalXP,
		Level:            cs.Level,
		LeveledUp:        cs.LeveledUp,
		AlreadyCompleted: cs.AlreadyCompleted,
		Achievements:     achievements,
		UnlockedLessons:  cs.NewlyUnlockedLessons,
		Streak:           cs.Streak.Current,
		Message:          completionMessage(cs, achievements),
	}, nil
}

func completionMessage(cs *domain.ChangeSet, achievements []string) string {
	var parts []string
	switch {
	case cs.AlreadyCompleted:
		parts = append(parts, fmt.Sprintf("Lesson %s was already completed", cs.LessonID))
	case cs.XPGained > 0:
		parts = append(parts, fmt.Sprintf("+%d XP", cs.XPGained))
	default:
		parts = append(parts, "Stage recorded")
	}
	if cs.LeveledUp {
		parts = append(parts, fmt.Sprintf("level up to %d", cs.Level))
	}
	if len(achievements) > 0 {
		parts = append(parts, "unlocked "+strings.Join(achievements, ", "))
	}
	if len(cs.NewlyUnlockedLessons) > 0 {
		parts = append(parts, "new lessons "+strings.Join(cs.NewlyUnlockedLessons, ", "))
	}
	return strings.Join(parts, "; ")
}

func (s *Server) handleCatalog(ctx context.Context, input UserInput) (CatalogOutput, error) {
	view, err := s.service.CatalogView(ctx, input.UserID)
	if err != nil {
		return CatalogOutput{}, err
	}
	return CatalogOutput{Levels: view.Levels}, nil
}

func (s *Server) handleUnlocked(ctx context.Context, input UnlockedInput) (UnlockedOutput, error) {
	lesson, err := s.catalog.GetLesson(input.LessonID)
	if err != nil {
		return UnlockedOutput{}, err
	}
	snap, err := s.snapshot(ctx, input.UserID)
	if err != nil {
		return UnlockedOutput{}, err
	}

	ok, err := s.service.IsUnlocked(lesson, snap)
	if err != nil {
		return UnlockedOutput{}, err
	}

	out := UnlockedOutput{LessonID: lesson.ID, Unlocked: ok}
	if !ok {
		out.Reason = lockedReason(lesson, snap)
	}
	return out, nil
}

// lockedReason names the first requirement the snapshot misses
func lockedReason(lesson *domain.CatalogLesson, snap *domain.Snapshot) string {
	req := lesson.Requirements
	if req == nil {
		return "level " + lesson.LevelID + " is locked"
	}
	if req.MinLevel > 0 && snap.Level < req.MinLevel {
		return fmt.Sprintf("requires level %d", req.MinLevel)
	}
	if req.MinXP > 0 && snap.TotalXP < req.MinXP {
		return fmt.Sprintf("requires %d XP", req.MinXP)
	}
	for _, p := range req.Prerequisites {
		if !snap.HasCompleted(p) {
			return "complete lesson " + p + " first"
		}
	}
	return "level " + lesson.LevelID + " is locked"
}

func (s *Server) handleAchievements(ctx context.Context, input AchievementsInput) (AchievementsOutput, error) {
	return AchievementsOutput{Achievements: domain.Achievements()}, nil
}

// snapshot loads a user's progress; a user with no activity yet starts empty
func (s *Server) snapshot(ctx context.Context, userID string) (*domain.Snapshot, error) {
	snap, err := s.service.GetSnapshot(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewSnapshot(userID, s.clock()), nil
	}
	return snap, err
}

// ServeStdio starts the MCP server on stdio
func (s *Server) ServeStdio(ctx context.Context) error {
	return mcp.ServeStdio(ctx, s.mcpServer)
}

// ServeHTTP starts the MCP server on HTTP (alternative transport)
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	return mcp.ServeHTTP(ctx, s.mcpServer, addr)
}

// GetMCPServer returns the underlying MCP server (for testing)
func (s *Server) GetMCPServer() *server.Server {
	return s.mcpServer
}
