package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/ignite/analytics-import/internal/pkg/httputil"
)

// Server is the HTTP front end for the import service.
type Server struct {
	handler http.Handler
	server  *http.Server
}

// NewServer wires the router: site-scoped import routes behind the
// authorizer, admin ops routes behind the operator token, and a public
// health probe.
func NewServer(imports *ImportHandlers, admin *AdminHandlers, authorizer Authorizer) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		httputil.OK(w, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/sites/{siteID}", func(r chi.Router) {
			r.Use(RequireSiteAccess(authorizer))
			imports.RegisterRoutes(r)
		})
		r.Post("/admin/reclamation/run", admin.HandleRunReclamation)
	})

	return &Server{handler: r}
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.handler,
		// Batch submissions carry up to a few thousand events; generous
		// write timeout covers slow event-store inserts.
		ReadTimeout:       2 * time.Minute,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.handler
}
