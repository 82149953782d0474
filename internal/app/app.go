// -----------------------------------------------------------------------
// Application wiring - storage, queue, services and handlers
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/veridoc/rescribo/internal/common"
	"github.com/veridoc/rescribo/internal/handlers"
	"github.com/veridoc/rescribo/internal/interfaces"
	"github.com/veridoc/rescribo/internal/queue"
	"github.com/veridoc/rescribo/internal/rewrite"
	"github.com/veridoc/rescribo/internal/services/jobs"
	"github.com/veridoc/rescribo/internal/services/llm"
	"github.com/veridoc/rescribo/internal/services/monitor"
	"github.com/veridoc/rescribo/internal/services/status"
	badgerstorage "github.com/veridoc/rescribo/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager *badgerstorage.Manager

	// Work queue and execution workers
	QueueManager *queue.Manager
	WorkerPool   *queue.WorkerPool

	// Pipeline components
	LLMService      interfaces.CompletionService
	RewriteEngine   *rewrite.Engine
	ResultValidator *rewrite.Validator

	// Services
	JobService     *jobs.Service
	StatusService  *status.Service
	MonitorService *monitor.Service

	// HTTP handlers
	APIHandler     *handlers.APIHandler
	RewriteHandler *handlers.RewriteHandler
}

// New initializes the application with all dependencies. Workers and the
// stale-job monitor are started before New returns; the HTTP server is the
// caller's responsibility.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := app.initQueue(); err != nil {
		app.StorageManager.Close()
		return nil, fmt.Errorf("failed to initialize queue: %w", err)
	}

	app.initServices()
	app.initHandlers()

	if err := app.start(); err != nil {
		app.Close()
		return nil, err
	}

	logger.Info().
		Int("workers", cfg.Queue.Concurrency).
		Str("default_provider", string(cfg.LLM.DefaultProvider)).
		Msg("Application initialization complete")

	return app, nil
}

// initStorage initializes the Badger storage layer
func (a *App) initStorage() error {
	storageManager, err := badgerstorage.NewManager(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return err
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	return nil
}

// initQueue creates the work queue on the same Badger instance as storage
func (a *App) initQueue() error {
	queueManager, err := queue.NewManager(
		a.StorageManager.DB().Store().Badger(),
		a.Config.Queue.QueueName,
		a.Config.Queue.VisibilityTimeoutDuration(),
		a.Config.Queue.MaxReceive,
	)
	if err != nil {
		return err
	}

	a.QueueManager = queueManager
	a.WorkerPool = queue.NewWorkerPool(
		queueManager,
		a.Config.Queue.Concurrency,
		a.Config.Queue.PollIntervalDuration(),
		a.Logger,
	)

	return nil
}

// initServices wires the rewrite pipeline and supporting services
func (a *App) initServices() {
	a.LLMService = llm.NewService(a.Config, a.StorageManager.KeyValueStorage(), a.Logger)
	a.RewriteEngine = rewrite.NewEngine(a.LLMService, &a.Config.Rewrite, a.Logger)
	a.ResultValidator = rewrite.NewValidator(rewrite.NewAnalyzer())

	a.JobService = jobs.NewService(
		a.Config,
		a.StorageManager,
		a.QueueManager,
		a.RewriteEngine,
		a.ResultValidator,
		a.Logger,
	)

	a.StatusService = status.NewService(
		a.Config.Environment,
		a.StorageManager.JobStorage(),
		a.QueueManager,
		a.Logger,
	)

	a.MonitorService = monitor.NewService(&a.Config.Monitor, a.StorageManager.JobStorage(), a.Logger)
}

// initHandlers creates the HTTP handlers
func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.StatusService, a.Logger)
	a.RewriteHandler = handlers.NewRewriteHandler(a.JobService, a.Logger)
}

// start connects the queue to the job service and launches background work
func (a *App) start() error {
	a.QueueManager.SetDeadLetterHandler(a.JobService.HandleDeadLetter)

	a.WorkerPool.SetHandler(func(ctx context.Context, msg *interfaces.JobMessage) error {
		return a.JobService.Execute(ctx, msg.JobID)
	})
	if err := a.WorkerPool.Start(); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	if err := a.MonitorService.Start(); err != nil {
		return fmt.Errorf("failed to start stale job monitor: %w", err)
	}

	return nil
}

// Close shuts down background work and storage in dependency order
func (a *App) Close() error {
	if a.MonitorService != nil {
		a.MonitorService.Stop()
	}
	if a.WorkerPool != nil {
		a.WorkerPool.Stop()
	}
	if a.LLMService != nil {
		a.LLMService.Close()
	}
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
	}
	return nil
}
