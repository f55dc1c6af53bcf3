package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rflorenc/psa-automation-workbench/internal/models"
	"github.com/rflorenc/psa-automation-workbench/internal/platform"
)

// connectionRequest carries the credential fields that Connection itself
// keeps out of JSON responses.
type connectionRequest struct {
	models.Connection
	Secret          string `json:"secret"`
	IntegrationCode string `json:"integration_code"`
}

func (r connectionRequest) connection() models.Connection {
	conn := r.Connection
	conn.Secret = r.Secret
	conn.IntegrationCode = r.IntegrationCode
	return conn
}

func (s *Server) CreateConnection(w http.ResponseWriter, r *http.Request) {
	var req connectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	conn := req.connection()
	if conn.Host == "" {
		writeError(w, http.StatusBadRequest, "host is required")
		return
	}
	if conn.Username == "" || conn.Secret == "" || conn.IntegrationCode == "" {
		writeError(w, http.StatusBadRequest, "username, secret and integration_code are required")
		return
	}
	if conn.Scheme == "" {
		conn.Scheme = "https"
	}
	if conn.Port == 0 {
		if conn.Scheme == "https" {
			conn.Port = 443
		} else {
			conn.Port = 80
		}
	}
	s.Connections.Create(&conn)
	writeJSON(w, http.StatusCreated, conn)
}

func (s *Server) ListConnections(w http.ResponseWriter, r *http.Request) {
	conns := s.Connections.List()
	writeJSON(w, http.StatusOK, conns)
}

func (s *Server) UpdateConnection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req connectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	conn := req.connection()
	conn.ID = id
	// Omitted credentials mean "keep the existing ones".
	if existing := s.Connections.Get(id); existing != nil {
		if conn.Secret == "" {
			conn.Secret = existing.Secret
		}
		if conn.IntegrationCode == "" {
			conn.IntegrationCode = existing.IntegrationCode
		}
	}
	if !s.Connections.Update(&conn) {
		writeError(w, http.StatusNotFound, "connection not found")
		return
	}
	s.dropFieldCache(id)
	writeJSON(w, http.StatusOK, conn)
}

func (s *Server) DeleteConnection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.Connections.Delete(id) {
		writeError(w, http.StatusNotFound, "connection not found")
		return
	}
	s.dropFieldCache(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) TestConnection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	conn := s.Connections.Get(id)
	if conn == nil {
		writeError(w, http.StatusNotFound, "connection not found")
		return
	}
	client := platform.NewClient(conn)
	if err := client.Ping(); err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok":    false,
			"error": err.Error(),
		})
		return
	}
	if err := client.CheckAuth(); err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok":    false,
			"error": "reachable but credentials rejected: " + err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok": true,
	})
}
