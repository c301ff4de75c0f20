package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"icsnotes/internal/config"
	"icsnotes/internal/ics"
	"icsnotes/internal/model"
	"icsnotes/internal/note"
	feedsync "icsnotes/internal/sync"
)

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	sched := feedsync.NewScheduler(feedsync.NewRunner(note.NewDirStore(t.TempDir()), ics.NewFetcher()))
	t.Cleanup(sched.Stop)
	return NewServer(cfg, sched)
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t, config.DefaultConfig())

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != "OK" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestHandleStatus(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Feeds = []config.FeedConfig{
		{ID: "work", Name: "Work", Enabled: true},
		{ID: "home", Name: "Home", Enabled: false},
	}
	s := newTestServer(t, cfg)

	s.RecordResult(model.SyncRunResult{
		FeedID: "work", FeedName: "Work", Success: true,
		Created: 3, FinishedAt: time.Now(),
	})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var out []feedStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("entries = %d, want 2", len(out))
	}
	// Sorted by name: Home first.
	if out[0].Name != "Home" || out[0].LastRun != nil {
		t.Errorf("out[0] = %+v", out[0])
	}
	if out[1].Name != "Work" || out[1].LastRun == nil || out[1].LastRun.Created != 3 {
		t.Errorf("out[1] = %+v", out[1])
	}
}

func TestHandleSync_MethodAndValidation(t *testing.T) {
	s := newTestServer(t, config.DefaultConfig())

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sync?id=x", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sync", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing id status = %d", rec.Code)
	}

	// Scheduler not started: any id is unknown.
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sync?id=ghost", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown id status = %d", rec.Code)
	}
}

func TestBasicAuth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "u", Password: "p"}
	s := newTestServer(t, cfg)
	h := s.Handler()

	// /health stays open.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("/health status = %d, want open", rec.Code)
	}

	// No credentials.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d", rec.Code)
	}

	// Wrong credentials.
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.SetBasicAuth("u", "wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d", rec.Code)
	}

	// Correct credentials.
	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.SetBasicAuth("u", "p")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("authenticated status = %d", rec.Code)
	}
}
