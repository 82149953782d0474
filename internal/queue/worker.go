package queue

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/veridoc/rescribo/internal/common"
	"github.com/veridoc/rescribo/internal/interfaces"
)

// JobHandler processes a single dequeued job message.
type JobHandler func(ctx context.Context, msg *interfaces.JobMessage) error

// WorkerPool runs a fixed number of workers that poll the queue and hand
// messages to the registered handler. A message is acknowledged only after
// the handler returns without error, so handler failures leave the message
// to be redelivered once its visibility timeout expires.
type WorkerPool struct {
	queueMgr     *Manager
	handler      JobHandler
	concurrency  int
	pollInterval time.Duration
	logger       arbor.ILogger
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewWorkerPool creates a worker pool over the given queue manager.
func NewWorkerPool(queueMgr *Manager, concurrency int, pollInterval time.Duration, logger arbor.ILogger) *WorkerPool {
	if concurrency < 1 {
		concurrency = 1
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		queueMgr:     queueMgr,
		concurrency:  concurrency,
		pollInterval: pollInterval,
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// SetHandler registers the handler invoked for every dequeued message.
func (wp *WorkerPool) SetHandler(handler JobHandler) {
	wp.handler = handler
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start() error {
	if wp.handler == nil {
		return errors.New("worker pool started without a handler")
	}

	wp.logger.Info().
		Int("concurrency", wp.concurrency).
		Dur("poll_interval", wp.pollInterval).
		Msg("Starting worker pool")

	for i := 0; i < wp.concurrency; i++ {
		workerID := i
		common.SafeGo(wp.logger, "queue-worker", func() {
			wp.worker(workerID)
		})
	}

	return nil
}

// Stop signals all workers to exit after their current message.
func (wp *WorkerPool) Stop() error {
	wp.logger.Info().Msg("Stopping worker pool")
	wp.cancel()
	return nil
}

func (wp *WorkerPool) worker(workerID int) {
	// Stagger worker starts to spread polling across the interval and
	// reduce transaction conflicts on the shared Badger store.
	staggerDelay := (wp.pollInterval / time.Duration(wp.concurrency)) * time.Duration(workerID)
	if staggerDelay > 0 {
		select {
		case <-wp.ctx.Done():
			return
		case <-time.After(staggerDelay):
		}
	}

	wp.logger.Debug().
		Int("worker_id", workerID).
		Dur("stagger_delay", staggerDelay).
		Msg("Worker started")

	ticker := time.NewTicker(wp.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-wp.ctx.Done():
			wp.logger.Debug().
				Int("worker_id", workerID).
				Msg("Worker stopped")
			return

		case <-ticker.C:
			if err := wp.processMessage(workerID); err != nil && !errors.Is(err, ErrNoMessage) {
				wp.logger.Warn().
					Err(err).
					Int("worker_id", workerID).
					Msg("Error processing message")
			}
		}
	}
}

func (wp *WorkerPool) processMessage(workerID int) error {
	msg, ack, err := wp.queueMgr.Receive(wp.ctx)
	if err != nil {
		return err
	}

	wp.logger.Debug().
		Str("job_id", msg.JobID).
		Int("worker_id", workerID).
		Msg("Processing message")

	startTime := time.Now()
	handlerErr := wp.handler(wp.ctx, msg)
	duration := time.Since(startTime)

	if handlerErr != nil {
		wp.logger.Error().
			Err(handlerErr).
			Str("job_id", msg.JobID).
			Dur("duration", duration).
			Int("worker_id", workerID).
			Msg("Job handler failed")
		// Leave the message unacknowledged so it is redelivered after
		// the visibility timeout, or dead-lettered once max receives
		// is exhausted.
		return handlerErr
	}

	wp.logger.Info().
		Str("job_id", msg.JobID).
		Dur("duration", duration).
		Int("worker_id", workerID).
		Msg("Job processed")

	if err := ack(); err != nil {
		wp.logger.Warn().
			Err(err).
			Str("job_id", msg.JobID).
			Msg("Failed to acknowledge message")
		return err
	}

	return nil
}
