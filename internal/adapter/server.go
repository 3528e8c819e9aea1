// Package adapter serves the hardware adapter HTTP API from a front panel.
// It is the peer the control-panel daemon polls.
package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/sweeney/pacemaker-panel/internal/frontpanel"
	"github.com/sweeney/pacemaker-panel/internal/hardware"
	"github.com/sweeney/pacemaker-panel/internal/pacing"
)

// Server exposes a frontpanel.Panel over HTTP.
type Server struct {
	httpServer *http.Server
	panel      *frontpanel.Panel
}

// New creates a Server for panel listening on addr.
func New(addr string, panel *frontpanel.Panel) *Server {
	s := &Server{panel: panel}

	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/mode/set", s.handleMode).Methods("POST")
	api.HandleFunc("/active_control/set", s.handleActiveControl).Methods("POST")
	api.HandleFunc("/lock/toggle", s.handleToggleLock).Methods("POST")
	api.HandleFunc("/lock", s.handleLock).Methods("GET")
	api.HandleFunc("/{field}/set", s.handleSetValue).Methods("POST")

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the routed API handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.panel.Health())
}

func (s *Server) handleSetValue(w http.ResponseWriter, r *http.Request) {
	field := pacing.Field(mux.Vars(r)["field"])
	var req hardware.ValueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
		return
	}
	s.reply(w, s.panel.SetValue(field, req.Value, req.ActiveControl), "set "+string(field))
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	var req hardware.ModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
		return
	}
	s.reply(w, s.panel.SetMode(pacing.Mode(req.Mode)), "set mode")
}

func (s *Server) handleActiveControl(w http.ResponseWriter, r *http.Request) {
	var req hardware.ActiveControlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
		return
	}
	s.reply(w, s.panel.SetActiveControl(req.ActiveControl), "set active control")
}

func (s *Server) handleToggleLock(w http.ResponseWriter, r *http.Request) {
	locked := s.panel.ToggleLock()
	log.Printf("adapter: lock toggled, locked=%v", locked)
	writeJSON(w, http.StatusOK, hardware.LockResponse{Locked: locked})
}

func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, hardware.LockResponse{Locked: s.panel.Locked()})
}

// reply maps a panel error onto the status codes the client expects:
// a locked device answers 403.
func (s *Server) reply(w http.ResponseWriter, err error, op string) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case errors.Is(err, frontpanel.ErrLocked):
		log.Printf("adapter: %s rejected, device locked", op)
		writeError(w, http.StatusForbidden, err.Error())
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
