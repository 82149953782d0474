package status

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/veridoc/rescribo/internal/common"
	"github.com/veridoc/rescribo/internal/interfaces"
	"github.com/veridoc/rescribo/internal/models"
)

// Snapshot is the operational state reported by the status endpoint
type Snapshot struct {
	Environment string    `json:"environment"`
	Version     string    `json:"version"`
	StartedAt   time.Time `json:"started_at"`
	Uptime      string    `json:"uptime"`

	TotalJobs      int `json:"total_jobs"`
	ProcessingJobs int `json:"processing_jobs"`
	CompletedJobs  int `json:"completed_jobs"`
	FailedJobs     int `json:"failed_jobs"`

	QueueDepth int   `json:"queue_depth"`
	Goroutines int64 `json:"goroutines"`
}

// QueueDepther reports how many messages wait in the work queue
type QueueDepther interface {
	Depth() (int, error)
}

// Service assembles the operational snapshot for the status endpoint
type Service struct {
	environment string
	startedAt   time.Time
	jobStorage  interfaces.JobStorage
	queue       QueueDepther
	logger      arbor.ILogger
}

// NewService creates the status service. startedAt is captured here, so
// construct it early in startup.
func NewService(environment string, jobStorage interfaces.JobStorage, queue QueueDepther, logger arbor.ILogger) *Service {
	return &Service{
		environment: environment,
		startedAt:   time.Now().UTC(),
		jobStorage:  jobStorage,
		queue:       queue,
		logger:      logger,
	}
}

// Snapshot collects current job counts and queue depth. Count failures are
// logged and reported as zero rather than failing the whole endpoint.
func (s *Service) Snapshot(ctx context.Context) *Snapshot {
	snap := &Snapshot{
		Environment: s.environment,
		Version:     common.GetVersion(),
		StartedAt:   s.startedAt,
		Uptime:      time.Since(s.startedAt).Round(time.Second).String(),
		Goroutines:  common.GetGoroutineCount(),
	}

	if total, err := s.jobStorage.CountJobs(ctx); err == nil {
		snap.TotalJobs = total
	} else {
		s.logger.Warn().Err(err).Msg("Failed to count jobs for status snapshot")
	}

	counts := map[models.JobStatus]*int{
		models.JobStatusProcessing: &snap.ProcessingJobs,
		models.JobStatusCompleted:  &snap.CompletedJobs,
		models.JobStatusFailed:     &snap.FailedJobs,
	}
	for jobStatus, target := range counts {
		if n, err := s.jobStorage.CountJobsByStatus(ctx, jobStatus); err == nil {
			*target = n
		} else {
			s.logger.Warn().Err(err).Str("status", string(jobStatus)).Msg("Failed to count jobs by status")
		}
	}

	if s.queue != nil {
		if depth, err := s.queue.Depth(); err == nil {
			snap.QueueDepth = depth
		} else {
			s.logger.Warn().Err(err).Msg("Failed to read queue depth")
		}
	}

	return snap
}
