package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/veridoc/rescribo/internal/common"
	"github.com/veridoc/rescribo/internal/services/status"
)

type APIHandler struct {
	statusService *status.Service
	logger        arbor.ILogger
}

func NewAPIHandler(statusService *status.Service, logger arbor.ILogger) *APIHandler {
	return &APIHandler{
		statusService: statusService,
		logger:        logger,
	}
}

// VersionHandler returns version information
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"version":    common.GetVersion(),
		"build":      common.Build,
		"git_commit": common.GitCommit,
	})
}

// HealthHandler returns health check status
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// StatusHandler handles GET /api/status
func (h *APIHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, h.statusService.Snapshot(r.Context()))
}

// NotFoundHandler handles 404 errors with JSON response
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusNotFound, map[string]interface{}{
		"error":   "Not Found",
		"path":    r.URL.Path,
		"message": "The requested endpoint does not exist",
	})
}
