package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/copyleftdev/STRUT/internal/logging"
	"github.com/copyleftdev/STRUT/internal/optimization"
)

// Logger defines the logging interface used by the server
// This allows us to be flexible with our logging implementation
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	Fatal(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
}

// runState is the server's view of the optimization run. It is updated by
// the sink callbacks and read by the HTTP handlers, so all access goes
// through the mutex.
type runState struct {
	Info      optimization.RunInfo
	Status    string // "pending", "running", "finished"
	StartTime time.Time
	EndTime   *time.Time
	Latest    *optimization.IterationRecord
	Records   []optimization.IterationRecord
	Summary   *optimization.RunSummary
}

// Server exposes the run status and history over HTTP while the
// optimization progresses. It implements optimization.Sink so the
// orchestrator publishes to it like any other sink.
type Server struct {
	logger Logger

	mu    sync.RWMutex
	state runState
}

// NewServer creates a new server instance with the given logger
// The logger parameter accepts any type that implements the Logger interface
func NewServer(logger Logger) *Server {
	return &Server{
		logger: logger,
		state:  runState{Status: "pending"},
	}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/history", s.handleHistory)
	})
}

// Start implements optimization.Sink.
func (s *Server) Start(info optimization.RunInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Info = info
	s.state.Status = "running"
	s.state.StartTime = time.Now()
	s.state.Records = s.state.Records[:0]

	s.logger.Info("Optimization run started", map[string]interface{}{
		"run_id": info.ID,
		"study":  info.Study,
	})
	return nil
}

// Record implements optimization.Sink.
func (s *Server) Record(rec optimization.IterationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Records = append(s.state.Records, rec)
	s.state.Latest = &s.state.Records[len(s.state.Records)-1]
	return nil
}

// Snapshot implements optimization.Sink. Geometry snapshots are not served.
func (s *Server) Snapshot(iteration int) error { return nil }

// Finish implements optimization.Sink.
func (s *Server) Finish(summary optimization.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Status = "finished"
	now := time.Now()
	s.state.EndTime = &now
	s.state.Summary = &summary

	s.logger.Info("Optimization run finished", map[string]interface{}{
		"run_id":     s.state.Info.ID,
		"iterations": summary.Iterations,
		"converged":  summary.Converged,
	})
	return nil
}

// handleStatus handles the HTTP GET /api/v1/status endpoint: run metadata
// plus the latest iteration record.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	response := map[string]interface{}{
		"status": s.state.Status,
		"run":    s.state.Info,
	}
	if !s.state.StartTime.IsZero() {
		response["start_time"] = s.state.StartTime.Format(time.RFC3339)
	}
	if s.state.EndTime != nil {
		response["end_time"] = s.state.EndTime.Format(time.RFC3339)
	}
	if s.state.Latest != nil {
		response["latest"] = s.state.Latest
	}
	if s.state.Summary != nil {
		response["summary"] = s.state.Summary
	}

	s.respondJSON(w, http.StatusOK, response)
}

// handleHistory handles the HTTP GET /api/v1/history endpoint: every
// iteration record so far in order.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]optimization.IterationRecord, len(s.state.Records))
	copy(records, s.state.Records)

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":  s.state.Info.ID,
		"count":   len(records),
		"history": records,
	})
}

// respondJSON writes v as a JSON response body.
func (s *Server) respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Response encoding failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
