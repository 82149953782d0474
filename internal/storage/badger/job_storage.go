package badger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
	"github.com/veridoc/rescribo/internal/interfaces"
	"github.com/veridoc/rescribo/internal/models"
)

// JobStorage implements the JobStorage interface for Badger.
// Records are stored by job id; BadgerHold key prefixes are derived from the
// concrete type name, so values are always stored dereferenced for
// consistency with Find queries.
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

// SaveJob upserts a job record by id
func (s *JobStorage) SaveJob(ctx context.Context, job *models.RewriteJob) error {
	if job.ID == "" {
		return fmt.Errorf("job ID is required")
	}

	if err := s.db.Store().Upsert(job.ID, *job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}

	s.logger.Trace().
		Str("job_id", job.ID).
		Str("status", string(job.Status)).
		Msg("Job record saved")

	return nil
}

// GetJob retrieves a job record by id
func (s *JobStorage) GetJob(ctx context.Context, jobID string) (*models.RewriteJob, error) {
	var job models.RewriteJob
	err := s.db.Store().Get(jobID, &job)
	if err == badgerhold.ErrNotFound {
		return nil, interfaces.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// ListJobs returns job records, newest first, with optional status filter
// and pagination. Filtering happens in memory; job volume for a single
// office is small enough that index tuning is not worth the complexity.
func (s *JobStorage) ListJobs(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.RewriteJob, error) {
	var jobs []models.RewriteJob
	if err := s.db.Store().Find(&jobs, nil); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	var result []*models.RewriteJob
	for i := range jobs {
		if opts != nil && opts.Status != "" && string(jobs[i].Status) != opts.Status {
			continue
		}
		result = append(result, &jobs[i])
	}

	// Newest first
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if opts != nil {
		if opts.Offset > 0 {
			if opts.Offset >= len(result) {
				return []*models.RewriteJob{}, nil
			}
			result = result[opts.Offset:]
		}
		if opts.Limit > 0 && opts.Limit < len(result) {
			result = result[:opts.Limit]
		}
	}

	return result, nil
}

// CountJobs returns the total number of job records
func (s *JobStorage) CountJobs(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.RewriteJob{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return int(count), nil
}

// CountJobsByStatus returns the number of jobs in a given status
func (s *JobStorage) CountJobsByStatus(ctx context.Context, status models.JobStatus) (int, error) {
	count, err := s.db.Store().Count(&models.RewriteJob{}, badgerhold.Where("Status").Eq(status))
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs by status: %w", err)
	}
	return int(count), nil
}

// GetStaleJobs returns PROCESSING jobs whose last update is older than the
// threshold. The staleness filter runs in memory to keep the query free of
// time arithmetic inside BadgerHold.
func (s *JobStorage) GetStaleJobs(ctx context.Context, olderThan time.Duration) ([]*models.RewriteJob, error) {
	var processing []models.RewriteJob
	err := s.db.Store().Find(&processing, badgerhold.Where("Status").Eq(models.JobStatusProcessing))
	if err != nil {
		return nil, fmt.Errorf("failed to find processing jobs: %w", err)
	}

	threshold := time.Now().UTC().Add(-olderThan)
	var stale []*models.RewriteJob
	for i := range processing {
		if processing[i].UpdatedAt.Before(threshold) {
			stale = append(stale, &processing[i])
		}
	}

	return stale, nil
}
