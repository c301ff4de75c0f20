package web

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"sort"
	stdsync "sync"

	"icsnotes/internal/config"
	appLog "icsnotes/internal/log"
	"icsnotes/internal/model"
	feedsync "icsnotes/internal/sync"
)

// Server provides the HTTP API for sync status and manual triggers.
type Server struct {
	sched *feedsync.Scheduler
	mux   *http.ServeMux

	// cfg is swapped wholesale on hot reload; handlers read it through
	// current().
	cfgMu stdsync.RWMutex
	cfg   *config.Config

	// Last result per feed, updated via RecordResult as runs complete.
	resultsMu   stdsync.RWMutex
	lastResults map[string]model.SyncRunResult
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, sched *feedsync.Scheduler) *Server {
	s := &Server{
		cfg:         cfg,
		sched:       sched,
		mux:         http.NewServeMux(),
		lastResults: make(map[string]model.SyncRunResult),
	}
	s.registerRoutes()
	return s
}

// SetConfig swaps in a new config after a hot reload.
func (s *Server) SetConfig(cfg *config.Config) {
	s.cfgMu.Lock()
	s.cfg = cfg
	s.cfgMu.Unlock()
}

func (s *Server) current() *config.Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// RecordResult stores the latest run result for a feed. Wired as the
// scheduler's onResult callback by the caller.
func (s *Server) RecordResult(res model.SyncRunResult) {
	s.resultsMu.Lock()
	s.lastResults[res.FeedID] = res
	s.resultsMu.Unlock()
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.current().Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	cfg := s.current()
	if cfg == nil || cfg.BasicAuth == nil {
		return false
	}
	// Treat empty username or password as disabled.
	if cfg.BasicAuth.Username == "" || cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.current().BasicAuth.Username
	password := s.current().BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// /health stays unauthenticated for probes.
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="icsnotes", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/sync", s.handleSync)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// feedStatus is one entry in the /api/status response.
type feedStatus struct {
	ID       string               `json:"id"`
	Name     string               `json:"name"`
	Enabled  bool                 `json:"enabled"`
	LastSync string               `json:"last_sync,omitempty"`
	LastRun  *model.SyncRunResult `json:"last_run,omitempty"`
}

// handleStatus returns the configured feeds and the last run result for
// each feed that has run since startup.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}

	cfg := s.current()

	s.resultsMu.RLock()
	defer s.resultsMu.RUnlock()

	out := make([]feedStatus, 0, len(cfg.Feeds))
	for _, f := range cfg.Feeds {
		st := feedStatus{
			ID:       f.ID,
			Name:     f.Name,
			Enabled:  f.Enabled,
			LastSync: f.LastSync,
		}
		if res, ok := s.lastResults[f.ID]; ok {
			resCopy := res
			st.LastRun = &resCopy
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	writeJSON(w, http.StatusOK, out)
}

// handleSync queues a manual sync run for one feed (?id=...) and returns
// immediately; results show up on /api/status once the run completes.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing feed id")
		return
	}

	if err := s.sched.Trigger(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	appLog.Info("manual sync triggered", "feed", id)
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte("queued"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
