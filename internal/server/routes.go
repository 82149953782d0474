package server

import (
	"net/http"
)

// setupRoutes registers all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Rewrite pipeline
	mux.HandleFunc("/api/rewrite", s.app.RewriteHandler.SubmitHandler)  // POST - submit a rewrite job
	mux.HandleFunc("/api/rewrite/", s.app.RewriteHandler.StatusHandler) // GET /{id} - job status with inlined result
	mux.HandleFunc("/api/jobs", s.app.RewriteHandler.ListHandler)       // GET - list jobs, newest first

	// Operational endpoints
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/status", s.app.APIHandler.StatusHandler)

	// Everything else is a JSON 404
	mux.HandleFunc("/", s.app.APIHandler.NotFoundHandler)

	return mux
}
