package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rflorenc/psa-automation-workbench/internal/platform"
)

func (s *Server) ListEntityTypes(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.Connections.Get(id) == nil {
		writeError(w, http.StatusNotFound, "connection not found")
		return
	}
	writeJSON(w, http.StatusOK, platform.EntityTypes())
}

func (s *Server) ListEntitiesOfKind(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	kind := chi.URLParam(r, "kind")
	conn := s.Connections.Get(id)
	if conn == nil {
		writeError(w, http.StatusNotFound, "connection not found")
		return
	}
	if _, ok := platform.FindEntityType(kind); !ok {
		writeError(w, http.StatusNotFound, "unknown entity kind: "+kind)
		return
	}
	client := platform.NewClient(conn)
	// The query endpoint requires at least one filter; id >= 0 matches all.
	items, err := client.Query(kind, []platform.Filter{
		{Op: "gte", Field: "id", Value: 0},
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"kind":  kind,
		"count": len(items),
		"items": items,
	})
}

func (s *Server) GetEntityFields(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	kind := chi.URLParam(r, "kind")
	conn := s.Connections.Get(id)
	if conn == nil {
		writeError(w, http.StatusNotFound, "connection not found")
		return
	}
	if _, ok := platform.FindEntityType(kind); !ok {
		writeError(w, http.StatusNotFound, "unknown entity kind: "+kind)
		return
	}
	fields, err := s.fieldCache(conn).Fields(kind)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, fields)
}
