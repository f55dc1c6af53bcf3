package api

import (
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rflorenc/psa-automation-workbench/internal/metrics"
	"github.com/rflorenc/psa-automation-workbench/internal/migration"
	"github.com/rflorenc/psa-automation-workbench/internal/models"
	"github.com/rflorenc/psa-automation-workbench/internal/platform"
)

// Server holds shared state for all API handlers.
type Server struct {
	Connections *models.ConnectionStore
	Runs        *models.RunStore
	Metrics     *metrics.Recorder

	mu     sync.Mutex
	fields map[string]*platform.FieldCache // keyed by connection ID
}

// fieldCache returns the field metadata cache for a connection, creating
// it on first use. Caches are dropped when the connection changes.
func (s *Server) fieldCache(conn *models.Connection) *platform.FieldCache {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fields == nil {
		s.fields = make(map[string]*platform.FieldCache)
	}
	fc, ok := s.fields[conn.ID]
	if !ok {
		fc = platform.NewFieldCache(platform.NewClient(conn))
		s.fields[conn.ID] = fc
	}
	return fc
}

// WarmFieldCaches prefetches field metadata for the entity kinds the
// migration workflows write to, so the first run does not pay for the
// metadata round trips.
func (s *Server) WarmFieldCaches(conn *models.Connection, logf func(string)) {
	s.fieldCache(conn).Warm([]string{
		"Contacts", "Companies", "CompanyNotes", "ContactGroupContacts",
		"ConfigurationItems", "ConfigurationItemNotes", "ConfigurationItemAttachments",
		"TicketNotes", "TicketSecondaryResources",
	}, logf)
}

func (s *Server) dropFieldCache(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.fields, connID)
}

// deps assembles the engine collaborators for one run against one
// connection.
func (s *Server) deps(conn *models.Connection, run *models.Run) migration.Deps {
	d := migration.Deps{
		Transport: platform.NewClient(conn),
		Fields:    s.fieldCache(conn),
		Log:       run.AppendLog,
	}
	if s.Metrics != nil {
		d.Observer = s.Metrics
	}
	return d
}

// NewRouter builds the chi router with all API routes.
func NewRouter(s *Server) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Connections
		r.Post("/connections", s.CreateConnection)
		r.Get("/connections", s.ListConnections)
		r.Put("/connections/{id}", s.UpdateConnection)
		r.Delete("/connections/{id}", s.DeleteConnection)
		r.Post("/connections/{id}/test", s.TestConnection)

		// Entity browsing
		r.Get("/connections/{id}/entities", s.ListEntityTypes)
		r.Get("/connections/{id}/entities/{kind}", s.ListEntitiesOfKind)
		r.Get("/connections/{id}/entities/{kind}/fields", s.GetEntityFields)

		// Migrations (async)
		r.Post("/migrate/contact", s.MigrateContact)
		r.Post("/migrate/configuration-item", s.MigrateConfigurationItem)
		r.Post("/migrate/reassignment", s.MigrateWorkload)

		// Runs
		r.Get("/runs", s.ListRuns)
		r.Get("/runs/{id}", s.GetRun)
		r.Get("/runs/{id}/report", s.GetRunReport)
	})

	// WebSocket (outside /api to avoid JSON content-type assumptions)
	r.Get("/ws/runs/{id}/logs", s.StreamRunLogs)

	// Prometheus scrape endpoint
	r.Handle("/metrics", metrics.Handler())

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
