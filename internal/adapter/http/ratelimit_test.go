package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func TestControlLimiterPerAgent(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	l := NewControlLimiter(1, 2)
	l.now = func() time.Time { return now }

	for i := range 2 {
		if _, ok := l.allow("a1"); !ok {
			t.Fatalf("request %d within burst was refused", i+1)
		}
	}
	retry, ok := l.allow("a1")
	if ok {
		t.Fatal("expected third request to be refused")
	}
	if retry <= 0 || retry > 1 {
		t.Fatalf("unexpected retry-after %v", retry)
	}

	if _, ok := l.allow("a2"); !ok {
		t.Fatal("buckets must be independent per agent")
	}

	now = now.Add(time.Second)
	if _, ok := l.allow("a1"); !ok {
		t.Fatal("expected a refilled token after one second")
	}
}

func TestControlLimiterForget(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	l := NewControlLimiter(1, 1)
	l.now = func() time.Time { return now }

	l.allow("a1")
	now = now.Add(time.Minute)
	l.allow("a2")

	if n := l.Forget(30 * time.Second); n != 1 {
		t.Fatalf("expected 1 bucket forgotten, got %d", n)
	}
	if _, ok := l.buckets["a2"]; !ok {
		t.Fatal("recent bucket must survive")
	}
}

func TestControlLimiterHandler(t *testing.T) {
	l := NewControlLimiter(0.001, 1)
	r := chi.NewRouter()
	r.With(l.Handler).Post("/agents/{id}/controls/{control}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	send := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/agents/a1/controls/pause", nil))
		return rec
	}

	if rec := send(); rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	rec := send()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}
