// -----------------------------------------------------------------------
// Job Service - submission, execution and status of rewrite jobs
// -----------------------------------------------------------------------

package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/veridoc/rescribo/internal/common"
	"github.com/veridoc/rescribo/internal/interfaces"
	"github.com/veridoc/rescribo/internal/models"
	"github.com/veridoc/rescribo/internal/rewrite"
)

// ErrInvalidRequest wraps submission validation failures so the handler can
// map them to a 400 without string matching.
var ErrInvalidRequest = errors.New("invalid rewrite request")

// StatusResult is the answer to a status query. Text is populated only for
// COMPLETED jobs, inlined from the result blob.
type StatusResult struct {
	Job  *models.RewriteJob
	Text string
}

// Service coordinates the rewrite pipeline. Submit persists the job and
// enqueues it; Execute runs the pipeline for one dequeued job; Status reads
// the record back. The three operations share nothing but the job record,
// so any worker can execute any job.
type Service struct {
	config    *common.Config
	storage   interfaces.StorageManager
	queue     interfaces.JobQueue
	engine    *rewrite.Engine
	validator *rewrite.Validator
	validate  *validator.Validate
	logger    arbor.ILogger
}

// NewService creates the job service
func NewService(
	cfg *common.Config,
	storage interfaces.StorageManager,
	queue interfaces.JobQueue,
	engine *rewrite.Engine,
	resultValidator *rewrite.Validator,
	logger arbor.ILogger,
) *Service {
	return &Service{
		config:    cfg,
		storage:   storage,
		queue:     queue,
		engine:    engine,
		validator: resultValidator,
		validate:  validator.New(),
		logger:    logger,
	}
}

// Submit validates the request, persists the source text and the initial
// PROCESSING record, and enqueues the job for a worker. It returns as soon
// as the job is durable; the actual rewrite happens asynchronously.
func (s *Service) Submit(ctx context.Context, req *models.RewriteRequest) (*models.RewriteJob, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: empty request body", ErrInvalidRequest)
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: either text or storageRef is required", ErrInvalidRequest)
	}

	sourceRef := req.StorageRef
	if req.Text != "" {
		// Inline submissions get their own source blob so Execute always
		// reads from storage, regardless of how the text arrived.
		sourceRef = common.NewSourceKey()
		if err := s.storage.ObjectStorage().Put(ctx, sourceRef, []byte(req.Text), "text/plain"); err != nil {
			return nil, fmt.Errorf("failed to store source text: %w", err)
		}
	} else {
		// Reference submissions must point at an existing object.
		if _, err := s.storage.ObjectStorage().Get(ctx, req.StorageRef); err != nil {
			if errors.Is(err, interfaces.ErrObjectNotFound) {
				return nil, fmt.Errorf("%w: storageRef %q does not exist", ErrInvalidRequest, req.StorageRef)
			}
			return nil, fmt.Errorf("failed to read storageRef %q: %w", req.StorageRef, err)
		}
	}

	job := models.NewRewriteJob(common.NewJobID(), req.SessionID, sourceRef)
	job.Model = req.Model
	if job.Model == "" {
		job.Model = s.config.Rewrite.Model
	}

	if err := s.storage.JobStorage().SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	if err := s.queue.Enqueue(ctx, &interfaces.JobMessage{JobID: job.ID}); err != nil {
		// The record exists but no worker will ever pick it up; fail it
		// now so status queries do not report PROCESSING forever.
		job.MarkFailed(models.ErrorTypeInternal, "failed to enqueue job for execution")
		if saveErr := s.storage.JobStorage().SaveJob(ctx, job); saveErr != nil {
			s.logger.Error().Err(saveErr).Str("job_id", job.ID).Msg("Failed to record enqueue failure")
		}
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("session_id", job.SessionID).
		Str("source_ref", job.SourceRef).
		Msg("Rewrite job submitted")

	return job, nil
}

// Execute runs the rewrite pipeline for one job. It is invoked by queue
// workers and must be idempotent under redelivery: a job already in a
// terminal state is acknowledged without rework.
//
// A nil return acknowledges the message. Pipeline failures are recorded on
// the job record and still return nil; only infrastructure errors (context
// cancellation, storage write failures) propagate so the message is
// redelivered.
func (s *Service) Execute(ctx context.Context, jobID string) error {
	job, err := s.storage.JobStorage().GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, interfaces.ErrJobNotFound) {
			// Message refers to a record that was never persisted or was
			// removed; nothing to execute.
			s.logger.Warn().Str("job_id", jobID).Msg("Dequeued job has no record, dropping")
			return nil
		}
		return fmt.Errorf("failed to load job %s: %w", jobID, err)
	}

	if job.IsTerminal() {
		s.logger.Debug().
			Str("job_id", job.ID).
			Str("status", string(job.Status)).
			Msg("Job already terminal, skipping redelivery")
		return nil
	}

	data, err := s.storage.ObjectStorage().Get(ctx, job.SourceRef)
	if err != nil {
		if errors.Is(err, interfaces.ErrObjectNotFound) {
			return s.failJob(ctx, job, models.ErrorTypeStorage,
				fmt.Sprintf("source object %s not found", job.SourceRef))
		}
		return fmt.Errorf("failed to read source for job %s: %w", job.ID, err)
	}

	original := string(data)
	if len(original) == 0 {
		return s.failJob(ctx, job, models.ErrorTypeValidation, "source document is empty")
	}
	if len(original) > s.config.Rewrite.MaxTotalChars {
		return s.failJob(ctx, job, models.ErrorTypeValidation,
			fmt.Sprintf("source document is %d characters, limit is %d", len(original), s.config.Rewrite.MaxTotalChars))
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Int("input_chars", len(original)).
		Int("chunks", s.engine.ChunkCount(len(original))).
		Msg("Executing rewrite job")

	rewritten, model, err := s.engine.Rewrite(ctx, original)
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown or timeout, not a model failure. Leave the job
			// PROCESSING and let redelivery retry it.
			return ctx.Err()
		}
		return s.failJob(ctx, job, models.ErrorTypeInference, err.Error())
	}

	passed, sanitized, violations := s.validator.ValidateAndSanitize(original, rewritten)

	resultRef := common.NewResultKey()
	if err := s.storage.ObjectStorage().Put(ctx, resultRef, []byte(sanitized), "text/plain"); err != nil {
		return s.failJob(ctx, job, models.ErrorTypeStorage,
			fmt.Sprintf("failed to store result: %v", err))
	}

	// The result blob is durable before the status flips, so a COMPLETED
	// record always has a readable result.
	job.MarkCompleted(&models.CompletionResult{
		ResultRef:        resultRef,
		ResultLength:     len(sanitized),
		OriginalLength:   len(original),
		Model:            model,
		ValidationPassed: passed,
		Violations:       violations,
	})
	if err := s.storage.JobStorage().SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to persist completion of job %s: %w", job.ID, err)
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Int("result_chars", len(sanitized)).
		Bool("validation_passed", passed).
		Int("violations", len(violations)).
		Msg("Rewrite job completed")

	return nil
}

// failJob records a terminal failure on the job. The persisted failure is the
// outcome of this execution, so a successful write acknowledges the message.
func (s *Service) failJob(ctx context.Context, job *models.RewriteJob, errorType, message string) error {
	job.MarkFailed(errorType, message)
	if err := s.storage.JobStorage().SaveJob(ctx, job); err != nil {
		return fmt.Errorf("failed to persist failure of job %s: %w", job.ID, err)
	}

	s.logger.Warn().
		Str("job_id", job.ID).
		Str("error_type", errorType).
		Str("error", message).
		Msg("Rewrite job failed")

	return nil
}

// Status returns the job record, inlining the rewritten text for COMPLETED
// jobs. A COMPLETED record whose result blob is missing returns the job
// together with ErrResultMissing; callers must surface that as an internal
// error, never as "still processing".
func (s *Service) Status(ctx context.Context, jobID string) (*StatusResult, error) {
	job, err := s.storage.JobStorage().GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	result := &StatusResult{Job: job}
	if job.Status != models.JobStatusCompleted {
		return result, nil
	}

	data, err := s.storage.ObjectStorage().Get(ctx, job.ResultRef)
	if err != nil {
		if errors.Is(err, interfaces.ErrObjectNotFound) {
			return result, interfaces.ErrResultMissing
		}
		return result, fmt.Errorf("failed to read result for job %s: %w", jobID, err)
	}

	result.Text = string(data)
	return result, nil
}

// ListJobs returns persisted jobs, newest first
func (s *Service) ListJobs(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.RewriteJob, error) {
	return s.storage.JobStorage().ListJobs(ctx, opts)
}

// HandleDeadLetter marks a job FAILED after the queue exhausted redelivery.
// Terminal jobs are left untouched; the dead-letter then only means the ack
// was lost, not the work.
func (s *Service) HandleDeadLetter(msg *interfaces.JobMessage, receiveCount int) {
	ctx := context.Background()

	job, err := s.storage.JobStorage().GetJob(ctx, msg.JobID)
	if err != nil {
		s.logger.Warn().Err(err).Str("job_id", msg.JobID).Msg("Dead-lettered job has no record")
		return
	}
	if job.IsTerminal() {
		return
	}

	job.MarkFailed(models.ErrorTypeInternal,
		fmt.Sprintf("execution abandoned after %d delivery attempts", receiveCount))
	if err := s.storage.JobStorage().SaveJob(ctx, job); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to persist dead-letter failure")
		return
	}

	s.logger.Error().
		Str("job_id", job.ID).
		Int("receive_count", receiveCount).
		Msg("Job dead-lettered after repeated execution failures")
}
