// -----------------------------------------------------------------------
// Stale Job Monitor - periodic reporting of jobs stuck in PROCESSING
// -----------------------------------------------------------------------

package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/veridoc/rescribo/internal/common"
	"github.com/veridoc/rescribo/internal/interfaces"
)

// Service periodically reports jobs that have been PROCESSING longer than
// the configured threshold. It never mutates job records: redelivery and
// dead-lettering own the recovery path, the monitor only makes stuck work
// visible to operators.
type Service struct {
	config     *common.MonitorConfig
	jobStorage interfaces.JobStorage
	logger     arbor.ILogger
	cron       *cron.Cron
}

// NewService creates the stale-job monitor
func NewService(cfg *common.MonitorConfig, jobStorage interfaces.JobStorage, logger arbor.ILogger) *Service {
	return &Service{
		config:     cfg,
		jobStorage: jobStorage,
		logger:     logger,
		cron:       cron.New(),
	}
}

// Start schedules the periodic check. Disabled monitors start as a no-op.
func (s *Service) Start() error {
	if !s.config.Enabled {
		s.logger.Debug().Msg("Stale job monitor disabled")
		return nil
	}

	schedule := s.config.Schedule
	if schedule == "" {
		schedule = "*/5 * * * *"
	}

	if _, err := s.cron.AddFunc(schedule, s.reportStaleJobs); err != nil {
		return fmt.Errorf("failed to schedule stale job monitor: %w", err)
	}

	s.cron.Start()

	s.logger.Info().
		Str("schedule", schedule).
		Str("stale_after", s.config.StaleAfter).
		Msg("Stale job monitor started")

	return nil
}

// Stop halts the schedule and waits for a running check to finish
func (s *Service) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Service) reportStaleJobs() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	threshold := s.config.StaleAfterDuration()

	stale, err := s.jobStorage.GetStaleJobs(ctx, threshold)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Stale job check failed")
		return
	}
	if len(stale) == 0 {
		return
	}

	for _, job := range stale {
		s.logger.Warn().
			Str("job_id", job.ID).
			Str("session_id", job.SessionID).
			Dur("age", time.Since(job.UpdatedAt)).
			Msg("Job still PROCESSING past staleness threshold")
	}

	s.logger.Warn().
		Int("count", len(stale)).
		Dur("threshold", threshold).
		Msg("Stale jobs detected")
}
