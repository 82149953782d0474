// -----------------------------------------------------------------------
// Rewrite Job - Persisted job record for the rewrite pipeline
// -----------------------------------------------------------------------

package models

import (
	"time"
)

// JobStatus represents the lifecycle state of a rewrite job
type JobStatus string

const (
	// JobStatusProcessing is the initial state, set at submission
	JobStatusProcessing JobStatus = "PROCESSING"
	// JobStatusCompleted is a terminal state with a persisted result
	JobStatusCompleted JobStatus = "COMPLETED"
	// JobStatusFailed is a terminal state with error details
	JobStatusFailed JobStatus = "FAILED"
)

// Error classification for failed jobs
const (
	ErrorTypeValidation = "validation" // input missing or oversized
	ErrorTypeInference  = "inference"  // LLM collaborator failure
	ErrorTypeStorage    = "storage"    // blob read/write failure
	ErrorTypeInternal   = "internal"   // everything else (panics, dead-letters)
)

// RewriteJob is the persisted record for one asynchronous rewrite request.
// It is created once by Submit with status PROCESSING and transitions exactly
// once to a terminal state (COMPLETED or FAILED) by the execution worker.
// The job record is the only coordination point between Submit, Execute and
// Status - there is no shared in-process state.
type RewriteJob struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id,omitempty"` // caller-supplied correlation tag, informational only
	Status    JobStatus `json:"status"`

	// SourceRef points to the blob holding the original text. Submit writes
	// it for inline submissions; for storage-reference submissions it is the
	// caller's key verbatim.
	SourceRef string `json:"source_ref"`

	// Completion metadata, present only when Status == COMPLETED
	ResultRef        string   `json:"result_ref,omitempty"`
	ResultLength     int      `json:"result_length,omitempty"`
	OriginalLength   int      `json:"original_length,omitempty"`
	Model            string   `json:"model,omitempty"`
	ValidationPassed bool     `json:"validation_passed"`
	Violations       []string `json:"violations,omitempty"`

	// Failure details, present only when Status == FAILED
	Error     string `json:"error,omitempty"`
	ErrorType string `json:"error_type,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"` // set on every status write
}

// NewRewriteJob creates a new job in the PROCESSING state
func NewRewriteJob(id, sessionID, sourceRef string) *RewriteJob {
	now := time.Now().UTC()
	return &RewriteJob{
		ID:        id,
		SessionID: sessionID,
		Status:    JobStatusProcessing,
		SourceRef: sourceRef,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CompletionResult carries the metadata recorded on a successful transition
type CompletionResult struct {
	ResultRef        string
	ResultLength     int
	OriginalLength   int
	Model            string
	ValidationPassed bool
	Violations       []string
}

// MarkCompleted transitions the job to COMPLETED with result metadata.
// Violations is never nil afterwards so the persisted record always carries
// an (possibly empty) ordered list.
func (j *RewriteJob) MarkCompleted(result *CompletionResult) {
	j.Status = JobStatusCompleted
	j.ResultRef = result.ResultRef
	j.ResultLength = result.ResultLength
	j.OriginalLength = result.OriginalLength
	j.Model = result.Model
	j.ValidationPassed = result.ValidationPassed
	j.Violations = result.Violations
	if j.Violations == nil {
		j.Violations = []string{}
	}
	j.UpdatedAt = time.Now().UTC()
}

// MarkFailed transitions the job to FAILED with an error classification
func (j *RewriteJob) MarkFailed(errorType, message string) {
	j.Status = JobStatusFailed
	j.ErrorType = errorType
	j.Error = message
	j.UpdatedAt = time.Now().UTC()
}

// IsTerminal returns true once the job reached COMPLETED or FAILED
func (j *RewriteJob) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
