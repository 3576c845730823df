// Workflow runtime server: DAG validation, execution, and task dispatch.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smilemakc/workflowrt/internal/api"
	"github.com/smilemakc/workflowrt/internal/cache"
	"github.com/smilemakc/workflowrt/internal/config"
	"github.com/smilemakc/workflowrt/internal/dispatcher"
	"github.com/smilemakc/workflowrt/internal/dispatcher/builtin"
	"github.com/smilemakc/workflowrt/internal/engine"
	"github.com/smilemakc/workflowrt/internal/logger"
	"github.com/smilemakc/workflowrt/internal/models"
	"github.com/smilemakc/workflowrt/internal/observer"
	"github.com/smilemakc/workflowrt/internal/queue"
	"github.com/smilemakc/workflowrt/internal/repository"
	"github.com/smilemakc/workflowrt/internal/state"
	"github.com/smilemakc/workflowrt/internal/tracing"
	"github.com/smilemakc/workflowrt/internal/validator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger := logger.New(cfg.Logging)
	logger.SetDefault(appLogger)

	appLogger.Info("Starting workflow runtime",
		"version", "1.0.0",
		"port", cfg.Server.Port,
	)

	// Tracing is optional; a disabled provider is nil and all spans no-op.
	tracingProvider, err := tracing.NewProvider(context.Background(), tracing.ConfigFromEnv())
	if err != nil {
		appLogger.Warn("Failed to initialize tracing", "error", err)
	} else if tracingProvider != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracingProvider.Shutdown(ctx); err != nil {
				appLogger.Error("Tracing shutdown failed", "error", err)
			}
		}()
		appLogger.Info("Tracing initialized")
	}

	db, err := repository.NewDB(repository.DBConfig{
		DSN:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxConnections,
		MaxIdleConns:    cfg.Database.MinConnections,
		ConnMaxLifetime: cfg.Database.MaxConnLifetime,
		ConnMaxIdleTime: cfg.Database.MaxIdleTime,
		Debug:           cfg.Logging.Level == "debug",
	})
	if err != nil {
		appLogger.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer repository.CloseDB(db)

	repo := repository.New(db)
	appLogger.Info("Database connected", "max_conns", cfg.Database.MaxConnections)

	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		appLogger.Error("Failed to initialize Redis", "error", err)
		os.Exit(1)
	}
	defer redisCache.Close()
	appLogger.Info("Redis connected")

	stateStore := state.New(redisCache, repo.State)

	executorManager := dispatcher.NewManager()
	if err := builtin.RegisterAll(executorManager); err != nil {
		appLogger.Error("Failed to register built-in executors", "error", err)
		os.Exit(1)
	}
	disp := dispatcher.New(executorManager)
	appLogger.Info("Registered executors", "types", executorManager.List())

	nodeTypes := validator.NewRegistry()
	wfValidator := validator.New(nodeTypes)

	observerManager := observer.NewObserverManager(
		observer.WithLogger(appLogger),
		observer.WithBufferSize(cfg.Observer.BufferSize),
	)
	if cfg.Observer.EnableLogger {
		if err := observerManager.Register(observer.NewLoggerObserver(appLogger)); err != nil {
			appLogger.Error("Failed to register logger observer", "error", err)
		}
	}
	if cfg.Observer.EnableHTTP && cfg.Observer.HTTPCallbackURL != "" {
		httpObserver := observer.NewHTTPCallbackObserver(
			cfg.Observer.HTTPCallbackURL,
			observer.WithHTTPMethod(cfg.Observer.HTTPMethod),
			observer.WithHTTPHeaders(cfg.Observer.HTTPHeaders),
			observer.WithHTTPTimeout(cfg.Observer.HTTPTimeout),
			observer.WithHTTPRetry(cfg.Observer.HTTPMaxRetries, cfg.Observer.HTTPRetryDelay, 2.0),
		)
		if err := observerManager.Register(httpObserver); err != nil {
			appLogger.Error("Failed to register HTTP observer", "error", err)
		}
	}
	appLogger.Info("Observer system initialized", "observer_count", observerManager.Count())

	eng := engine.New(repo, stateStore, disp, wfValidator, observerManager, appLogger)
	appLogger.Info("Execution engine initialized")

	taskRegistry := queue.NewRegistry()
	registerTasks(taskRegistry, eng, stateStore, appLogger)

	queueManager := queue.NewManager(redisCache, taskRegistry, queue.Config{
		Workers:      cfg.Queue.Workers,
		PollInterval: cfg.Queue.PollInterval,
	}, appLogger)
	queueManager.Start(context.Background())
	appLogger.Info("Worker pool started",
		"workers", cfg.Queue.Workers,
		"tasks", queue.DefaultTaskNames(),
	)

	router := api.NewRouter(cfg.Server, eng, repo, stateStore, queueManager, redisCache, appLogger)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		appLogger.Info("HTTP server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		appLogger.Error("Server error", "error", err)
		os.Exit(1)

	case sig := <-shutdown:
		appLogger.Info("Server shutdown initiated", "signal", sig)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		appLogger.Info("Stopping worker pool...")
		queueManager.Stop()
		appLogger.Info("Worker pool stopped")

		if err := server.Shutdown(ctx); err != nil {
			appLogger.Error("Graceful shutdown failed", "error", err)
			if err := server.Close(); err != nil {
				appLogger.Error("Server close failed", "error", err)
			}
		}

		appLogger.Info("Server stopped")
	}
}

// registerTasks binds the fixed task names to their handlers. The engine
// owns workflow.execute and system.cleanup_expired_data; form, integration,
// and notification payloads are opaque here — their handlers acknowledge
// receipt and hand the payload back, since those surfaces consume results
// through their own services.
func registerTasks(r *queue.Registry, eng *engine.Engine, st *state.Store, log *logger.Logger) {
	queue.RegisterDefault(r, queue.TaskWorkflowExecute, func(ctx context.Context, task *queue.Task) (map[string]any, error) {
		workflowID, _ := task.Args["workflowId"].(string)
		triggerData, _ := task.Args["triggerData"].(map[string]any)
		principalID, _ := task.Args["principalId"].(string)

		run, err := eng.ExecuteWorkflow(ctx, workflowID, triggerData, models.Principal{ID: principalID})
		if err != nil {
			return nil, err
		}
		return map[string]any{"runId": run.ID, "workflowId": run.WorkflowID}, nil
	})

	queue.RegisterDefault(r, queue.TaskSystemCleanupExpired, func(ctx context.Context, task *queue.Task) (map[string]any, error) {
		maxAgeDays := 30
		if v, ok := task.Args["maxAgeDays"].(float64); ok && v > 0 {
			maxAgeDays = int(v)
		}
		removed, err := st.CleanupExpired(ctx, maxAgeDays)
		if err != nil {
			return nil, err
		}
		return map[string]any{"removed": removed}, nil
	})

	for _, name := range []string{queue.TaskFormsProcessSubmission, queue.TaskIntegrationSyncData, queue.TaskNotificationsSend} {
		taskName := name
		queue.RegisterDefault(r, taskName, func(ctx context.Context, task *queue.Task) (map[string]any, error) {
			log.Info("task acknowledged", "task", taskName, "task_id", task.ID)
			return map[string]any{"acknowledged": true, "payload": task.Args}, nil
		})
	}
}
