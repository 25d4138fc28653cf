package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/ndole/internal/domain"
)

func TestSnapshotStore_SaveAndLoad(t *testing.T) {
	db := openTestDB(t)
	store := NewSnapshotStore(db)
	ctx := context.Background()

	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	snap := domain.NewSnapshot("u1", now)
	snap.MarkCompleted("102")
	if err := snap.GrantXP(30); err != nil {
		t.Fatal(err)
	}
	if err := snap.RecordQuiz("102", 90, now); err != nil {
		t.Fatal(err)
	}
	snap.UnlockAchievement(domain.AchievementFirstRecipe, now)
	snap.Streak, _ = domain.UpdateStreak(snap.Streak, domain.DateOf(now))

	if err := store.Save(ctx, snap); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if snap.Version != 1 {
		t.Errorf("Version after first save = %d; want 1", snap.Version)
	}

	got, err := store.Load(ctx, "u1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.TotalXP != 30 || got.Level != 1 {
		t.Errorf("TotalXP/Level = %d/%d; want 30/1", got.TotalXP, got.Level)
	}
	if !got.HasCompleted("102") {
		t.Error("completed lesson 102 not persisted")
	}
	if got.CompletedQuizzes["102"].Score != 90 {
		t.Errorf("quiz score = %d; want 90", got.CompletedQuizzes["102"].Score)
	}
	if !got.HasAchievement(domain.AchievementFirstRecipe) {
		t.Error("achievement not persisted")
	}
	if got.Streak.LastActivity.String() != "2024-03-01" {
		t.Errorf("LastActivity = %s; want 2024-03-01", got.Streak.LastActivity)
	}
	if got.Version != 1 {
		t.Errorf("loaded Version = %d; want 1", got.Version)
	}
}

func TestSnapshotStore_LoadNotFound(t *testing.T) {
	store := NewSnapshotStore(openTestDB(t))

	_, err := store.Load(context.Background(), "ghost")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Load() error = %v; want ErrNotFound", err)
	}
}

func TestSnapshotStore_VersionConflict(t *testing.T) {
	store := NewSnapshotStore(openTestDB(t))
	ctx := context.Background()

	if err := store.Save(ctx, domain.NewSnapshot("u1", time.Now())); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// a second first-time insert for the same user loses
	if err := store.Save(ctx, domain.NewSnapshot("u1", time.Now())); !errors.Is(err, domain.ErrConcurrencyConflict) {
		t.Errorf("duplicate insert error = %v; want ErrConcurrencyConflict", err)
	}

	a, _ := store.Load(ctx, "u1")
	b, _ := store.Load(ctx, "u1")

	a.TotalXP = 10
	if err := store.Save(ctx, a); err != nil {
		t.Fatalf("Save(a) error = %v", err)
	}
	b.TotalXP = 20
	if err := store.Save(ctx, b); !errors.Is(err, domain.ErrConcurrencyConflict) {
		t.Errorf("stale Save(b) error = %v; want ErrConcurrencyConflict", err)
	}

	got, _ := store.Load(ctx, "u1")
	if got.TotalXP != 10 || got.Version != 2 {
		t.Errorf("TotalXP/Version = %d/%d; want 10/2", got.TotalXP, got.Version)
	}
}

func TestSnapshotStore_DeleteAndCount(t *testing.T) {
	store := NewSnapshotStore(openTestDB(t))
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if err := store.Save(ctx, domain.NewSnapshot(id, time.Now())); err != nil {
			t.Fatalf("Save(%s) error = %v", id, err)
		}
	}

	n, err := store.Count(ctx)
	if err != nil || n != 2 {
		t.Fatalf("Count() = %d, %v; want 2", n, err)
	}

	if err := store.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Delete(ctx, "a"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second Delete() error = %v; want ErrNotFound", err)
	}
}

func TestSnapshotStore_InvalidSnapshot(t *testing.T) {
	store := NewSnapshotStore(openTestDB(t))

	if err := store.Save(context.Background(), &domain.Snapshot{}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("Save() error = %v; want ErrInvalidArgument", err)
	}
}
