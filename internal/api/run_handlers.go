package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs := s.Runs.List()
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) GetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run := s.Runs.Get(id)
	if run == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// GetRunReport returns just the engine report of a finished run.
func (s *Server) GetRunReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run := s.Runs.Get(id)
	if run == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if run.CurrentStatus() == "running" {
		writeJSON(w, http.StatusConflict, map[string]string{
			"status":  "running",
			"message": "run is still in progress",
		})
		return
	}
	report := run.GetReport()
	if report == nil {
		writeError(w, http.StatusNotFound, "run produced no report")
		return
	}
	writeJSON(w, http.StatusOK, report)
}
