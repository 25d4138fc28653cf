package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/felixgeelhaar/ndole/internal/domain"
)

func TestObserveCompletion(t *testing.T) {
	m := New()

	m.ObserveCompletion(domain.StageRecipe, "applied", 30, 5*time.Millisecond)
	m.ObserveCompletion(domain.StageRecipe, "applied", 0, time.Millisecond)
	m.ObserveCompletion(domain.StageIntro, "rejected", 0, time.Millisecond)

	if got := testutil.ToFloat64(m.completions.WithLabelValues("recipe", "applied")); got != 2 {
		t.Errorf("recipe/applied = %v; want 2", got)
	}
	if got := testutil.ToFloat64(m.completions.WithLabelValues("intro", "rejected")); got != 1 {
		t.Errorf("intro/rejected = %v; want 1", got)
	}
	if got := testutil.ToFloat64(m.xpGranted); got != 30 {
		t.Errorf("xp granted = %v; want 30", got)
	}
	if got := testutil.CollectAndCount(m.completionDuration); got != 2 {
		t.Errorf("duration series = %d; want 2", got)
	}
}

func TestNotify(t *testing.T) {
	m := New()
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	a, ok := domain.LookupAchievement(domain.AchievementFirstRecipe)
	if !ok {
		t.Fatal("FIRST_RECIPE not defined")
	}

	for _, n := range []domain.Notification{
		domain.NewLevelUpNotification("u1", 2, now),
		domain.NewAchievementNotification("u1", a, now),
		domain.NewAchievementNotification("u2", a, now),
	} {
		if err := m.Notify(ctx, n); err != nil {
			t.Fatalf("Notify() error = %v", err)
		}
	}

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"level ups", testutil.ToFloat64(m.levelUps), 1},
		{"first recipe", testutil.ToFloat64(m.achievements.WithLabelValues(string(domain.AchievementFirstRecipe))), 2},
		{"level up notifications", testutil.ToFloat64(m.notifications.WithLabelValues(string(domain.NotificationLevelUp))), 1},
		{"achievement notifications", testutil.ToFloat64(m.notifications.WithLabelValues(string(domain.NotificationAchievementUnlocked))), 2},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v; want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestMiddleware_LabelsByPattern(t *testing.T) {
	m := New()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/users/{id}/progress", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	handler := m.Middleware(mux)

	for _, id := range []string{"a", "b", "c"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/users/"+id+"/progress", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d; want 404", rec.Code)
		}
	}

	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "GET /v1/users/{id}/progress", "404")); got != 3 {
		t.Errorf("requests = %v; want 3", got)
	}
	if got := testutil.CollectAndCount(m.requests); got != 1 {
		t.Errorf("request series = %d; want one regardless of user id", got)
	}
}

func TestWatchStore(t *testing.T) {
	m := New()
	state := "closed"
	m.WatchStore("sqlite", func() string { return state })

	scrape := func() string {
		rec := httptest.NewRecorder()
		m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		body, _ := io.ReadAll(rec.Body)
		return string(body)
	}

	if body := scrape(); !strings.Contains(body, `ndole_store_available{store="sqlite"} 1`) {
		t.Errorf("closed breaker not reported as available:\n%s", body)
	}

	state = "open"
	if body := scrape(); !strings.Contains(body, `ndole_store_available{store="sqlite"} 0`) {
		t.Errorf("open breaker not reported as unavailable:\n%s", body)
	}
}

func TestHandler_ExposesMetrics(t *testing.T) {
	m := New()
	m.ObserveCompletion(domain.StageQuiz, "applied", 50, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, name := range []string{
		"ndole_completions_total",
		"ndole_xp_granted_total 50",
		"go_goroutines",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("missing %s", name)
		}
	}
}
