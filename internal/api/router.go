// Package api is the HTTP surface: a gin router exposing the workflow and
// execution endpoints behind request logging, panic recovery, and
// opaque-principal middleware.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/smilemakc/workflowrt/internal/cache"
	"github.com/smilemakc/workflowrt/internal/config"
	"github.com/smilemakc/workflowrt/internal/engine"
	"github.com/smilemakc/workflowrt/internal/logger"
	"github.com/smilemakc/workflowrt/internal/queue"
	"github.com/smilemakc/workflowrt/internal/repository"
	"github.com/smilemakc/workflowrt/internal/state"
)

// NewRouter builds the gin.Engine wiring every handler to its dependency.
func NewRouter(cfg config.ServerConfig, eng *engine.Engine, repo *repository.Facade, st *state.Store, q *queue.Manager, redis *cache.RedisCache, log *logger.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(Recovery(log), RequestLogger(log))

	if cfg.CORS {
		router.Use(corsMiddleware())
	}

	router.GET("/health", healthHandler(repo, redis))
	router.GET("/ready", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ready"}) })

	workflowHandlers := NewWorkflowHandlers(eng, log)
	executionHandlers := NewExecutionHandlers(eng, repo, st, q, log)

	v1 := router.Group("/api/v1")
	v1.Use(Principal())
	{
		workflows := v1.Group("/workflows")
		{
			workflows.POST("", workflowHandlers.HandleCreateWorkflow)
			workflows.PUT("/:id", workflowHandlers.HandleUpdateWorkflow)
		}

		executions := v1.Group("/executions")
		{
			executions.POST("", executionHandlers.HandleStartExecution)
			executions.GET("", executionHandlers.HandleListExecutions)
			executions.POST("/batch", executionHandlers.HandleBatchExecutions)
			executions.GET("/:id", executionHandlers.HandleGetExecution)
			executions.POST("/:id/stop", executionHandlers.HandleStopExecution)
			executions.POST("/:id/retry", executionHandlers.HandleRetryExecution)
			executions.GET("/:id/state", executionHandlers.HandleGetState)
			executions.GET("/:id/metrics", executionHandlers.HandleGetMetrics)
		}
	}

	return router
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func healthHandler(repo *repository.Facade, redis *cache.RedisCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		if err := repo.Health(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database: " + err.Error()})
			return
		}
		if redis != nil {
			if err := redis.Health(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "redis: " + err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	}
}
