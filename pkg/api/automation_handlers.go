package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/connectrunner/connectrunner/pkg/automation"
	"github.com/connectrunner/connectrunner/pkg/logging"
	"github.com/connectrunner/connectrunner/pkg/storage"
)

// handleStatus returns the current automation state snapshot
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.controller.Status())
}

// handleStart launches an automation run. The run outlives the request; the
// response only acknowledges that it was accepted.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	runID, err := s.controller.StartAsync(context.Background())
	if err != nil {
		if errors.Is(err, automation.ErrAlreadyRunning) {
			http.Error(w, "Automation run already in progress", http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"run_id": runID,
	})
}

// handleStop cancels the in-flight run, if any, and returns the resulting
// state. Stopping an idle controller is a no-op.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.controller.Stop()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.controller.Status())
}

// handleLogs returns buffered log entries, optionally filtered by level and
// truncated to the last N entries.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	level := logging.Level(r.URL.Query().Get("level"))

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "Invalid limit parameter", http.StatusBadRequest)
			return
		}
		limit = n
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.bus.Snapshot(level, limit))
}

// handleListRuns returns archived run summaries, most recent first
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "Invalid limit parameter", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := s.runStore.ListRuns(limit)
	if err != nil {
		http.Error(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(runs)
}

// handleGetRun returns one archived run summary
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	runID := vars["id"]

	run, err := s.runStore.GetRun(runID)
	if err != nil {
		if errors.Is(err, storage.ErrRunNotFound) {
			http.Error(w, "Run not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to retrieve run", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(run)
}
