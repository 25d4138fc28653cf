package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/felixgeelhaar/ndole/internal/config"
	"github.com/felixgeelhaar/ndole/internal/domain"
)

func testConfig(backend string) *config.LocalConfig {
	cfg := config.DefaultLocalConfig()
	cfg.Storage.Backend = backend
	cfg.Progression.Timezone = "UTC"
	return cfg
}

func completeRecipe(t *testing.T, a *App, user, lesson string) *domain.ChangeSet {
	t.Helper()
	cs, err := a.Service.HandleCompletion(context.Background(), domain.CompletionEvent{
		UserID:   user,
		LessonID: lesson,
		Stage:    domain.StageRecipe,
	})
	if err != nil {
		t.Fatalf("HandleCompletion(%s, %s) error = %v", user, lesson, err)
	}
	return cs
}

func TestBuild_Backends(t *testing.T) {
	for _, backend := range []string{config.BackendSQLite, config.BackendLocal} {
		t.Run(backend, func(t *testing.T) {
			dir := t.TempDir()
			a, err := Build(context.Background(), testConfig(backend), dir, Options{})
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			defer a.Close()

			cs := completeRecipe(t, a, "amara", "102")
			if cs.XPGained != 30 {
				t.Errorf("XPGained = %d; want 30", cs.XPGained)
			}
			if len(cs.NewlyUnlockedAchievements) != 1 || cs.NewlyUnlockedAchievements[0].ID != domain.AchievementFirstRecipe {
				t.Errorf("achievements = %+v; want FIRST_RECIPE", cs.NewlyUnlockedAchievements)
			}

			snap, err := a.Service.GetSnapshot(context.Background(), "amara")
			if err != nil {
				t.Fatalf("GetSnapshot() error = %v", err)
			}
			if snap.TotalXP != 30 {
				t.Errorf("TotalXP = %d; want 30", snap.TotalXP)
			}

			inbox, err := a.Inbox.List(context.Background(), "amara", 10)
			if err != nil {
				t.Fatalf("Inbox.List() error = %v", err)
			}
			if len(inbox) != 1 || inbox[0].Type != domain.NotificationAchievementUnlocked {
				t.Errorf("inbox = %+v; want one achievement notification", inbox)
			}

			if got := a.Store.State(); got != "closed" {
				t.Errorf("store breaker = %s; want closed", got)
			}
			if a.Producer != nil {
				t.Error("Producer set without a queue")
			}
		})
	}
}

func TestBuild_SQLitePersistsAcrossRestarts(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(config.BackendSQLite)

	a, err := Build(context.Background(), cfg, dir, Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	completeRecipe(t, a, "u1", "101")
	a.Close()

	if _, err := os.Stat(filepath.Join(dir, "data", "ndole.db")); err != nil {
		t.Fatalf("sqlite file should live under data/: %v", err)
	}

	b, err := Build(context.Background(), cfg, dir, Options{})
	if err != nil {
		t.Fatalf("Build() after restart error = %v", err)
	}
	defer b.Close()

	snap, err := b.Service.GetSnapshot(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetSnapshot() error = %v", err)
	}
	if snap.TotalXP != 50 || !snap.HasCompleted("101") {
		t.Errorf("snapshot = %d xp, completed %v; want 50 xp with 101", snap.TotalXP, snap.CompletedLessonIDs)
	}
}

func TestBuild_RecordsMetrics(t *testing.T) {
	a, err := Build(context.Background(), testConfig(config.BackendLocal), t.TempDir(), Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer a.Close()

	completeRecipe(t, a, "u1", "101")

	families, err := a.Metrics.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"ndole_completions_total",
		"ndole_xp_granted_total",
		"ndole_achievements_unlocked_total",
		"ndole_store_available",
	} {
		if !names[want] {
			t.Errorf("missing metric %s", want)
		}
	}
}

func TestBuild_CacheUnavailableDegrades(t *testing.T) {
	cfg := testConfig(config.BackendLocal)
	cfg.Cache.Enabled = true
	cfg.Cache.Addr = "127.0.0.1:1"
	cfg.Cache.DistributedLock = true

	a, err := Build(context.Background(), cfg, t.TempDir(), Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer a.Close()

	if cs := completeRecipe(t, a, "u1", "102"); cs.TotalXP != 30 {
		t.Errorf("TotalXP = %d; want 30", cs.TotalXP)
	}
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *config.LocalConfig)
	}{
		{"unknown backend", func(cfg *config.LocalConfig) { cfg.Storage.Backend = "mongo" }},
		{"missing catalog", func(cfg *config.LocalConfig) { cfg.Catalog.Path = "/nonexistent/catalog.yaml" }},
		{"bad timezone", func(cfg *config.LocalConfig) { cfg.Progression.Timezone = "Mars/Olympus" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(config.BackendLocal)
			tt.mutate(cfg)
			if _, err := Build(context.Background(), cfg, t.TempDir(), Options{}); err == nil {
				t.Error("Build() succeeded; want error")
			}
		})
	}
}
