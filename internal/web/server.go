// Package web serves the operator panel: an HTML page, a JSON API that feeds
// commands into the event loop, and a WebSocket stream of session state.
package web

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
	"github.com/gorilla/websocket"

	"github.com/sweeney/pacemaker-panel/internal/pacing"
	"github.com/sweeney/pacemaker-panel/internal/status"
)

// commandTimeout bounds how long a handler waits for the event loop.
const commandTimeout = 2 * time.Second

// Server serves the panel over HTTP.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	tracker    *status.Tracker
	commander  Commander
	users      *userStore
	upgrader   websocket.Upgrader
}

// New creates a Server that reads state from tracker and sends operator
// commands to commander.
func New(addr string, tracker *status.Tracker, commander Commander) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		tracker:   tracker,
		commander: commander,
		users:     newUserStore(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/", s.handleIndex).Methods("GET")
	s.router.HandleFunc("/index.html", s.handleIndex).Methods("GET")
	s.router.HandleFunc("/index.json", s.handleState).Methods("GET")
	s.router.HandleFunc("/ws", s.handleWebSocket)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/state", s.handleState).Methods("GET")
	api.HandleFunc("/controls/{field}", s.handleSetControl).Methods("POST")
	api.HandleFunc("/controls/{field}/step", s.handleStep).Methods("POST")
	api.HandleFunc("/controls/{field}/slider", s.handleSlider).Methods("POST")
	api.HandleFunc("/mode/navigate", s.handleNavigate).Methods("POST")
	api.HandleFunc("/mode/commit", s.handleSimple(pacing.OpCommit)).Methods("POST")
	api.HandleFunc("/emergency", s.handleSimple(pacing.OpEmergency)).Methods("POST")
	api.HandleFunc("/lock/toggle", s.handleSimple(pacing.OpToggleLock)).Methods("POST")
	api.HandleFunc("/settings/{screen}/{field}", s.handleSettings).Methods("POST")
	api.HandleFunc("/auth/login", s.handleLogin).Methods("POST")
	api.HandleFunc("/auth/register", s.handleRegister).Methods("POST")
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server. Open WebSocket streams are
// hijacked connections and close when their subscriptions are dropped.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		log.Printf("web: render index: %v", err)
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(s.tracker.Snapshot()))
}

type valueRequest struct {
	Value *float64 `json:"value"`
}

type directionRequest struct {
	Direction pacing.Direction `json:"direction"`
}

type sliderRequest struct {
	Position *float64 `json:"position"`
}

func (s *Server) handleSetControl(w http.ResponseWriter, r *http.Request) {
	var req valueRequest
	if err := decodeBody(r, &req); err != nil || req.Value == nil {
		writeError(w, http.StatusBadRequest, "value required")
		return
	}
	s.run(w, r, pacing.Command{
		Op:    pacing.OpSetControl,
		Field: pacing.Field(mux.Vars(r)["field"]),
		Value: *req.Value,
	})
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	var req directionRequest
	if err := decodeBody(r, &req); err != nil || !validDirection(req.Direction) {
		writeError(w, http.StatusBadRequest, "direction must be up or down")
		return
	}
	s.run(w, r, pacing.Command{
		Op:        pacing.OpNudge,
		Field:     pacing.Field(mux.Vars(r)["field"]),
		Direction: req.Direction,
	})
}

func (s *Server) handleSlider(w http.ResponseWriter, r *http.Request) {
	var req sliderRequest
	if err := decodeBody(r, &req); err != nil || req.Position == nil {
		writeError(w, http.StatusBadRequest, "position required")
		return
	}
	s.run(w, r, pacing.Command{
		Op:    pacing.OpSlide,
		Field: pacing.Field(mux.Vars(r)["field"]),
		Value: *req.Position,
	})
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req directionRequest
	if err := decodeBody(r, &req); err != nil || !validDirection(req.Direction) {
		writeError(w, http.StatusBadRequest, "direction must be up or down")
		return
	}
	s.run(w, r, pacing.Command{Op: pacing.OpNavigate, Direction: req.Direction})
}

func (s *Server) handleSimple(op pacing.Op) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.run(w, r, pacing.Command{Op: op})
	}
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	screen, ok := pacing.ParseScreen(vars["screen"])
	if !ok || screen == pacing.ScreenNone {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown screen %q", vars["screen"]))
		return
	}
	var req valueRequest
	if err := decodeBody(r, &req); err != nil || req.Value == nil {
		writeError(w, http.StatusBadRequest, "value required")
		return
	}
	s.run(w, r, pacing.Command{
		Op:     pacing.OpSetSettings,
		Screen: screen,
		Field:  pacing.Field(vars["field"]),
		Value:  *req.Value,
	})
}

// run hands cmd to the event loop and answers with the resulting state.
func (s *Server) run(w http.ResponseWriter, r *http.Request, cmd pacing.Command) {
	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()

	err := s.commander.Do(ctx, cmd)
	switch {
	case err == nil:
		s.handleState(w, r)
	case errors.Is(err, pacing.ErrLocked):
		writeError(w, http.StatusLocked, "locked")
	case errors.Is(err, ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

func validDirection(d pacing.Direction) bool {
	return d == pacing.Up || d == pacing.Down
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
