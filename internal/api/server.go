// Package api is the HTTP boundary between the control plane and the
// transmitter. Every action answers with a structured JSON result.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/rclink/internal/profile"
	"github.com/banshee-data/rclink/internal/transmitter"
	"github.com/banshee-data/rclink/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// CarController is the part of transmitter.Controller the server drives.
type CarController interface {
	Start() transmitter.Result
	Stop() transmitter.Result
	Status() transmitter.Status
}

// ModeStore reads and persists the active driving mode.
type ModeStore interface {
	profile.ModeSource
	Save(profile.DrivingMode) error
}

type Server struct {
	ctrl  CarController
	modes ModeStore
}

func NewServer(ctrl CarController, modes ModeStore) *Server {
	return &Server{
		ctrl:  ctrl,
		modes: modes,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.health)
	mux.HandleFunc("/status", s.status)
	mux.HandleFunc("/actions/start_car_control", s.startCarControl)
	mux.HandleFunc("/actions/stop_car_control", s.stopCarControl)
	mux.HandleFunc("/control/profile", s.controlProfile)
	return mux
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to write response: %v", err)
	}
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) startCarControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	res := s.ctrl.Start()
	s.writeJSON(w, resultCode(res), res)
}

func (s *Server) stopCarControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	res := s.ctrl.Stop()
	s.writeJSON(w, resultCode(res), res)
}

// resultCode maps an action result to its HTTP status. Idempotent repeats
// are not errors.
func resultCode(res transmitter.Result) int {
	if res.Status == transmitter.StatusError {
		return http.StatusInternalServerError
	}
	return http.StatusOK
}

type profileBody struct {
	ActiveMode string   `json:"active_mode"`
	Modes      []string `json:"modes,omitempty"`
}

func (s *Server) controlProfile(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, s.profileBody())
	case http.MethodPut:
		var body profileBody
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&body); err != nil {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
		mode, ok := profile.ParseMode(body.ActiveMode)
		if !ok {
			s.writeJSONError(w, http.StatusBadRequest, "Unknown driving mode: "+strconv.Quote(body.ActiveMode))
			return
		}
		if err := s.modes.Save(mode); err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, "Failed to save driving mode: "+err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, s.profileBody())
	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) profileBody() profileBody {
	body := profileBody{ActiveMode: s.modes.ActiveMode().String()}
	for _, m := range profile.Modes() {
		body.Modes = append(body.Modes, m.String())
	}
	return body
}
