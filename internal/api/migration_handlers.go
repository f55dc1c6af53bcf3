package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rflorenc/psa-automation-workbench/internal/migration"
	"github.com/rflorenc/psa-automation-workbench/internal/models"
)

// MigrateContact starts an async contact move.
func (s *Server) MigrateContact(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConnectionID string `json:"connection_id"`
		migration.ContactMoveRequest
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	conn := s.Connections.Get(req.ConnectionID)
	if conn == nil {
		writeError(w, http.StatusNotFound, "connection not found")
		return
	}

	run := s.Runs.Create("contact-move", conn.ID, req.DryRun)
	deps := s.deps(conn, run)
	moveReq := req.ContactMoveRequest

	go func() {
		report, err := migration.MoveContact(context.Background(), deps, moveReq)
		finishRun(run, report, err)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": run.ID})
}

// MigrateConfigurationItem starts an async configuration item move.
func (s *Server) MigrateConfigurationItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConnectionID string `json:"connection_id"`
		migration.ConfigurationItemMoveRequest
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	conn := s.Connections.Get(req.ConnectionID)
	if conn == nil {
		writeError(w, http.StatusNotFound, "connection not found")
		return
	}

	run := s.Runs.Create("configuration-item-move", conn.ID, req.DryRun)
	deps := s.deps(conn, run)
	moveReq := req.ConfigurationItemMoveRequest

	go func() {
		report, err := migration.MoveConfigurationItem(context.Background(), deps, moveReq)
		finishRun(run, report, err)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": run.ID})
}

// MigrateWorkload starts an async staff workload reassignment.
func (s *Server) MigrateWorkload(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConnectionID string `json:"connection_id"`
		migration.WorkloadReassignRequest
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	conn := s.Connections.Get(req.ConnectionID)
	if conn == nil {
		writeError(w, http.StatusNotFound, "connection not found")
		return
	}

	run := s.Runs.Create("workload-reassignment", conn.ID, req.DryRun)
	deps := s.deps(conn, run)
	reassignReq := req.WorkloadReassignRequest

	go func() {
		report, err := migration.ReassignWorkload(context.Background(), deps, reassignReq)
		finishRun(run, report, err)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": run.ID})
}

// finishRun records the engine outcome on the API-layer run. A report is
// attached even on failure when the engine got far enough to build one.
func finishRun(run *models.Run, report *models.Report, err error) {
	if err != nil {
		run.AppendLog("ERROR: " + err.Error())
		run.Fail(err.Error(), report)
		return
	}
	run.Complete(report)
}
