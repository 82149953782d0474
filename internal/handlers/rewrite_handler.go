package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/veridoc/rescribo/internal/interfaces"
	"github.com/veridoc/rescribo/internal/models"
	"github.com/veridoc/rescribo/internal/services/jobs"
)

// RewriteHandler handles rewrite job submission and status queries
type RewriteHandler struct {
	jobService *jobs.Service
	logger     arbor.ILogger
}

// NewRewriteHandler creates a new RewriteHandler
func NewRewriteHandler(jobService *jobs.Service, logger arbor.ILogger) *RewriteHandler {
	return &RewriteHandler{
		jobService: jobService,
		logger:     logger,
	}
}

// submitResponse is the immediate answer to a submission
type submitResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

// statusResponse carries every status-query variant; omitempty keeps each
// variant to the fields its state defines.
type statusResponse struct {
	Status           string     `json:"status"`
	JobID            string     `json:"jobId"`
	SessionID        string     `json:"sessionId,omitempty"`
	RewrittenText    string     `json:"rewrittenText,omitempty"`
	ResultLength     int        `json:"resultLength,omitempty"`
	OriginalLength   int        `json:"originalLength,omitempty"`
	Model            string     `json:"model,omitempty"`
	ValidationPassed *bool      `json:"validationPassed,omitempty"`
	Violations       []string   `json:"violations,omitempty"`
	Error            string     `json:"error,omitempty"`
	ErrorType        string     `json:"errorType,omitempty"`
	CreatedAt        *time.Time `json:"createdAt,omitempty"`
	UpdatedAt        *time.Time `json:"updatedAt,omitempty"`
}

// SubmitHandler handles POST /api/rewrite
func (h *RewriteHandler) SubmitHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req models.RewriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	job, err := h.jobService.Submit(r.Context(), &req)
	if err != nil {
		if errors.Is(err, jobs.ErrInvalidRequest) {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error().Err(err).Msg("Job submission failed")
		WriteError(w, http.StatusInternalServerError, "failed to submit rewrite job")
		return
	}

	WriteJSON(w, http.StatusAccepted, submitResponse{
		JobID:  job.ID,
		Status: string(job.Status),
	})
}

// StatusHandler handles GET /api/rewrite/{id}
func (h *RewriteHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	jobID := strings.TrimPrefix(r.URL.Path, "/api/rewrite/")
	jobID = strings.Trim(jobID, "/")
	if jobID == "" || strings.Contains(jobID, "/") {
		WriteError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	result, err := h.jobService.Status(r.Context(), jobID)
	switch {
	case errors.Is(err, interfaces.ErrJobNotFound):
		WriteJSON(w, http.StatusNotFound, statusResponse{
			Status: "NOT_FOUND",
			JobID:  jobID,
		})
		return
	case errors.Is(err, interfaces.ErrResultMissing):
		// The record says COMPLETED but the blob is gone. This is an
		// internal inconsistency, not a "still processing" state.
		h.logger.Error().Str("job_id", jobID).Msg("Completed job has no result blob")
		WriteError(w, http.StatusInternalServerError, "job completed but result is missing")
		return
	case err != nil:
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Status query failed")
		WriteError(w, http.StatusInternalServerError, "failed to query job status")
		return
	}

	job := result.Job
	resp := statusResponse{
		Status:    string(job.Status),
		JobID:     job.ID,
		SessionID: job.SessionID,
		CreatedAt: &job.CreatedAt,
	}

	switch job.Status {
	case models.JobStatusCompleted:
		passed := job.ValidationPassed
		resp.RewrittenText = result.Text
		resp.ResultLength = job.ResultLength
		resp.OriginalLength = job.OriginalLength
		resp.Model = job.Model
		resp.ValidationPassed = &passed
		resp.Violations = job.Violations
		resp.UpdatedAt = &job.UpdatedAt
	case models.JobStatusFailed:
		resp.Error = job.Error
		resp.ErrorType = job.ErrorType
		resp.UpdatedAt = &job.UpdatedAt
	}

	WriteJSON(w, http.StatusOK, resp)
}

// jobSummary is one row in the job listing
type jobSummary struct {
	JobID     string    `json:"jobId"`
	SessionID string    `json:"sessionId,omitempty"`
	Status    string    `json:"status"`
	ErrorType string    `json:"errorType,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ListHandler handles GET /api/jobs
func (h *RewriteHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	opts := &interfaces.JobListOptions{Limit: 50}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 && limit <= 500 {
			opts.Limit = limit
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			opts.Offset = offset
		}
	}
	opts.Status = r.URL.Query().Get("status")

	jobList, err := h.jobService.ListJobs(r.Context(), opts)
	if err != nil {
		h.logger.Error().Err(err).Msg("Job listing failed")
		WriteError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	summaries := make([]jobSummary, 0, len(jobList))
	for _, job := range jobList {
		summaries = append(summaries, jobSummary{
			JobID:     job.ID,
			SessionID: job.SessionID,
			Status:    string(job.Status),
			ErrorType: job.ErrorType,
			CreatedAt: job.CreatedAt,
			UpdatedAt: job.UpdatedAt,
		})
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  summaries,
		"count": len(summaries),
	})
}
