// Package admin exposes the thin read/administrative HTTP surface
// spec.md §6 requires of the core, grounded on the teacher's
// server/server.go gorilla/mux server but reduced to adapters over the
// Activity Tracker and Workload Driver — no independent state of its
// own.
package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/nite-io/wakeproxy/internal/activity"
	"github.com/nite-io/wakeproxy/internal/config"
	"github.com/nite-io/wakeproxy/internal/driver"
	"github.com/nite-io/wakeproxy/internal/metrics"
)

// readyCheckDeadline bounds how long GET .../ready waits on the
// backend's own root endpoint before reporting it not ready.
const readyCheckDeadline = 5 * time.Second

type Server struct {
	router  *mux.Router
	logger  *logrus.Logger
	tracker *activity.Tracker
	reg     driver.Registry
	store   *config.Store
	client  *http.Client
}

func New(logger *logrus.Logger, tracker *activity.Tracker, reg driver.Registry, store *config.Store) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		logger:  logger,
		tracker: tracker,
		reg:     reg,
		store:   store,
		client:  &http.Client{Timeout: readyCheckDeadline},
	}

	s.router.HandleFunc("/api/containers/{name}/status", s.status).Methods(http.MethodGet)
	s.router.HandleFunc("/api/containers/{name}/ready", s.ready).Methods(http.MethodGet)
	s.router.HandleFunc("/api/containers/{name}/start", s.start).Methods(http.MethodPost)
	s.router.HandleFunc("/api/containers/{name}/stop", s.stop).Methods(http.MethodPost)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) backend(name string) (*config.Backend, bool) {
	b, ok := s.store.Snapshot().Containers[name]
	return b, ok
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	b, ok := s.backend(name)
	if !ok {
		http.NotFound(w, r)
		return
	}

	drv := s.reg.For(name)
	running := false
	if drv != nil {
		ctx, cancel := context.WithTimeout(r.Context(), driver.StatusDeadline)
		defer cancel()
		if ok, err := drv.IsRunning(ctx, name); err == nil {
			running = ok
		}
	}

	lastActivity, hasActivity := s.tracker.LastActivity(name)

	resp := map[string]any{
		"name":     name,
		"active":   b.Active,
		"running":  running,
		"stopping": s.tracker.IsStopping(name),
	}
	if hasActivity {
		resp["lastActivity"] = lastActivity
	}

	s.writeJSON(w, resp)
}

// ready reports whether the backend is not only running but answering
// its own root endpoint, per spec.md §6's readiness probe.
func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	b, ok := s.backend(name)
	if !ok {
		http.NotFound(w, r)
		return
	}

	drv := s.reg.For(name)
	if drv == nil {
		s.writeJSON(w, map[string]any{"name": name, "ready": false})
		return
	}

	statusCtx, cancel := context.WithTimeout(r.Context(), driver.StatusDeadline)
	running, err := drv.IsRunning(statusCtx, name)
	cancel()
	if err != nil || !running {
		s.writeJSON(w, map[string]any{"name": name, "ready": false})
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, b.URL, nil)
	if err != nil {
		s.writeJSON(w, map[string]any{"name": name, "ready": false})
		return
	}

	resp, err := s.client.Do(req)
	ready := err == nil && resp.StatusCode == http.StatusOK
	if resp != nil {
		resp.Body.Close()
	}

	s.writeJSON(w, map[string]any{"name": name, "ready": ready})
}

func (s *Server) start(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	b, ok := s.backend(name)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if !b.Active {
		http.Error(w, "backend inactive", http.StatusForbidden)
		return
	}

	drv := s.reg.For(name)
	if drv == nil {
		http.Error(w, "driver unavailable", http.StatusServiceUnavailable)
		return
	}

	if !s.tracker.TryStart(name, time.Now()) {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), driver.ActionInitDeadline+driver.ActionPollDeadline)
	go func() {
		defer cancel()
		if err := drv.Start(ctx, name); err != nil {
			s.logger.WithFields(logrus.Fields{"backend": name, "error": err}).Error("admin start failed")
		}
	}()

	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) stop(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	if _, ok := s.backend(name); !ok {
		http.NotFound(w, r)
		return
	}

	drv := s.reg.For(name)
	if drv == nil {
		http.Error(w, "driver unavailable", http.StatusServiceUnavailable)
		return
	}

	if !s.tracker.TryStop(name) {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), driver.ActionInitDeadline+driver.ActionPollDeadline)
	defer cancel()

	err := drv.Stop(ctx, name)
	s.tracker.ReleaseStop(name)
	if err != nil {
		s.logger.WithFields(logrus.Fields{"backend": name, "error": err}).Error("admin stop failed")
		http.Error(w, "stop failed", http.StatusBadGateway)
		return
	}
	metrics.StopCount.Inc(1)

	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithField("error", err).Error("admin: encoding response failed")
	}
}
