package local

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/felixgeelhaar/ndole/internal/domain"
)

type record struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

func TestNewStore_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "store")

	if _, err := NewStore(dir); err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("store directory not created: %v", err)
	}
}

func TestStore_SaveLoad(t *testing.T) {
	store, _ := NewStore(t.TempDir())

	if err := store.Save("things", "a", record{Name: "ndole", Value: 50}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Save("things", "a", record{Name: "ndole", Value: 60}); err != nil {
		t.Fatalf("overwrite Save() error = %v", err)
	}

	var got record
	if err := store.Load("things", "a", &got); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Value != 60 {
		t.Errorf("Value = %d; want 60", got.Value)
	}
}

func TestStore_NotFound(t *testing.T) {
	store, _ := NewStore(t.TempDir())

	var got record
	err := store.Load("things", "missing", &got)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Load() error = %v; want domain.ErrNotFound", err)
	}
	if err := store.Delete("things", "missing"); err != ErrNotFound {
		t.Errorf("Delete() error = %v; want ErrNotFound", err)
	}
}

func TestStore_EscapesIDs(t *testing.T) {
	base := t.TempDir()
	store, _ := NewStore(base)

	ids := []string{"../escape", "user@example.com", "a/b"}
	for _, id := range ids {
		if err := store.Save("users", id, record{Name: id}); err != nil {
			t.Fatalf("Save(%q) error = %v", id, err)
		}
	}

	if _, err := os.Stat(filepath.Join(base, "escape.json")); err == nil {
		t.Fatal("id escaped the collection directory")
	}

	got, err := store.List("users")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	sort.Strings(got)
	want := []string{"../escape", "a/b", "user@example.com"}
	if len(got) != len(want) {
		t.Fatalf("List() = %v; want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("List()[%d] = %q; want %q", i, got[i], want[i])
		}
	}
	if !store.Exists("users", "a/b") {
		t.Error("Exists() = false for saved id")
	}
}

func TestStore_ListEmptyCollection(t *testing.T) {
	store, _ := NewStore(t.TempDir())

	ids, err := store.List("nothing")
	if err != nil || len(ids) != 0 {
		t.Errorf("List() = %v, %v; want empty", ids, err)
	}
}

func TestStore_Update(t *testing.T) {
	store, _ := NewStore(t.TempDir())

	var r record
	err := store.Update("counters", "c", &r, func(found bool) error {
		if found {
			t.Error("found = true for a new record")
		}
		r.Value = 1
		return nil
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	failure := errors.New("rejected")
	r = record{}
	err = store.Update("counters", "c", &r, func(found bool) error {
		r.Value = 99
		return failure
	})
	if err != failure {
		t.Fatalf("Update() error = %v; want %v", err, failure)
	}

	var got record
	_ = store.Load("counters", "c", &got)
	if got.Value != 1 {
		t.Errorf("Value = %d; want 1 after rejected update", got.Value)
	}
}

func TestStore_ConcurrentUpdates(t *testing.T) {
	store, _ := NewStore(t.TempDir())

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var r record
			_ = store.Update("counters", "shared", &r, func(bool) error {
				r.Value++
				return nil
			})
		}()
	}
	wg.Wait()

	var got record
	if err := store.Load("counters", "shared", &got); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Value != 25 {
		t.Errorf("Value = %d; want 25", got.Value)
	}
}
