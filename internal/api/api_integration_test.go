//go:build integration

package api_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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
	"github.com/smilemakc/workflowrt/internal/validator"
	"github.com/smilemakc/workflowrt/testutil"
)

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()

	testDB := testutil.SetupTestDB(t)
	repo := repository.New(testDB.DB)

	mr := miniredis.RunT(t)
	redisCache, err := cache.NewRedisCache(config.RedisConfig{URL: "redis://" + mr.Addr(), PoolSize: 10})
	require.NoError(t, err)
	t.Cleanup(func() { redisCache.Close() })

	st := state.New(redisCache, repo.State)

	manager := dispatcher.NewManager()
	require.NoError(t, builtin.RegisterAll(manager))
	disp := dispatcher.New(manager)

	eng := engine.New(repo, st, disp, validator.New(validator.NewRegistry()),
		observer.NewObserverManager(), logger.Default())

	registry := queue.NewRegistry()
	queue.RegisterDefault(registry, queue.TaskWorkflowExecute, func(ctx context.Context, task *queue.Task) (map[string]any, error) {
		return map[string]any{"acknowledged": true}, nil
	})
	q := queue.NewManager(redisCache, registry, queue.Config{Workers: 1}, logger.Default())

	return api.NewRouter(config.ServerConfig{}, eng, repo, st, q, redisCache, logger.Default())
}

func validWorkflowBody() map[string]any {
	return map[string]any{
		"name": "invoice sync",
		"definition": map[string]any{
			"nodes": []map[string]any{
				{"id": "A", "type": "ScheduleTrigger", "config": map[string]any{"cron": "* * * * *"}},
				{"id": "B", "type": "DataMapper", "config": map[string]any{
					"input_schema": map[string]any{}, "output_schema": map[string]any{}, "mapping_rules": map[string]any{},
				}},
			},
			"edges": []map[string]any{
				{"from": "A", "to": "B"},
			},
		},
	}
}

func createActiveWorkflow(t *testing.T, router *gin.Engine) string {
	t.Helper()

	w := testutil.MakeRequest(t, router, http.MethodPost, "/api/v1/workflows", validWorkflowBody())
	created := testutil.AssertWorkflowCreated(t, w)
	id := created["id"].(string)

	w = testutil.MakeRequest(t, router, http.MethodPut, "/api/v1/workflows/"+id, map[string]any{"status": "ACTIVE"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return id
}

func startRun(t *testing.T, router *gin.Engine, workflowID string, triggerData map[string]any) string {
	t.Helper()

	w := testutil.MakeRequest(t, router, http.MethodPost, "/api/v1/executions", map[string]any{
		"workflowId":  workflowID,
		"triggerData": triggerData,
	})
	run := testutil.AssertExecutionStarted(t, w)
	return run["id"].(string)
}

func waitForStatus(t *testing.T, router *gin.Engine, runID string, want models.RunStatus) map[string]any {
	t.Helper()

	var last map[string]any
	require.Eventually(t, func() bool {
		w := testutil.MakeRequest(t, router, http.MethodGet, "/api/v1/executions/"+runID, nil)
		if w.Code != http.StatusOK {
			return false
		}
		var body struct {
			Data map[string]any `json:"data"`
		}
		testutil.ParseResponse(t, w, &body)
		last = body.Data
		return body.Data["status"] == string(want)
	}, 15*time.Second, 50*time.Millisecond, "run %s never reached %s (last: %v)", runID, want, last)
	return last
}

func TestCreateWorkflow(t *testing.T) {
	router := setupRouter(t)

	t.Run("valid definition is persisted as draft", func(t *testing.T) {
		w := testutil.MakeRequest(t, router, http.MethodPost, "/api/v1/workflows", validWorkflowBody())
		created := testutil.AssertWorkflowCreated(t, w)
		assert.Equal(t, "DRAFT", created["status"])
		assert.Equal(t, float64(1), created["version"])
	})

	t.Run("cyclic definition rejected", func(t *testing.T) {
		body := validWorkflowBody()
		body["definition"].(map[string]any)["edges"] = []map[string]any{
			{"from": "A", "to": "B"},
			{"from": "B", "to": "A"},
		}
		w := testutil.MakeRequest(t, router, http.MethodPost, "/api/v1/workflows", body)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "VALIDATION_FAILED")
	})

	t.Run("missing body fields rejected", func(t *testing.T) {
		w := testutil.MakeRequest(t, router, http.MethodPost, "/api/v1/workflows", map[string]any{"name": "no definition"})
		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestStartExecution(t *testing.T) {
	router := setupRouter(t)
	workflowID := createActiveWorkflow(t, router)

	t.Run("active workflow runs to completion", func(t *testing.T) {
		runID := startRun(t, router, workflowID, map[string]any{"k": 1})
		final := waitForStatus(t, router, runID, models.RunStatusCompleted)

		progress := final["progress"].(map[string]any)
		assert.Equal(t, float64(2), progress["totalNodes"])
		assert.Equal(t, float64(2), progress["completedNodes"])
	})

	t.Run("include_nodes returns per-node rows", func(t *testing.T) {
		runID := startRun(t, router, workflowID, nil)
		waitForStatus(t, router, runID, models.RunStatusCompleted)

		w := testutil.MakeRequest(t, router, http.MethodGet, "/api/v1/executions/"+runID+"?include_nodes=true", nil)
		var body struct {
			Data map[string]any `json:"data"`
		}
		testutil.AssertJSONResponse(t, w, http.StatusOK, &body)
		assert.Len(t, body.Data["nodeExecutions"], 2)
	})

	t.Run("unknown workflow is 404", func(t *testing.T) {
		w := testutil.MakeRequest(t, router, http.MethodPost, "/api/v1/executions", map[string]any{
			"workflowId": "00000000-0000-0000-0000-000000000000",
		})
		require.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("draft workflow is rejected", func(t *testing.T) {
		w := testutil.MakeRequest(t, router, http.MethodPost, "/api/v1/workflows", validWorkflowBody())
		created := testutil.AssertWorkflowCreated(t, w)

		w = testutil.MakeRequest(t, router, http.MethodPost, "/api/v1/executions", map[string]any{
			"workflowId": created["id"],
		})
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "WORKFLOW_NOT_ACTIVE")
	})
}

func TestListExecutions(t *testing.T) {
	router := setupRouter(t)
	workflowID := createActiveWorkflow(t, router)

	runID := startRun(t, router, workflowID, nil)
	waitForStatus(t, router, runID, models.RunStatusCompleted)

	w := testutil.MakeRequest(t, router, http.MethodGet, "/api/v1/executions?workflowId="+workflowID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), runID)

	w = testutil.MakeRequest(t, router, http.MethodGet, "/api/v1/executions?status=FAILED", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), runID)
}

func TestExecutionState(t *testing.T) {
	router := setupRouter(t)
	workflowID := createActiveWorkflow(t, router)

	runID := startRun(t, router, workflowID, map[string]any{"k": 1})
	waitForStatus(t, router, runID, models.RunStatusCompleted)

	w := testutil.MakeRequest(t, router, http.MethodGet, fmt.Sprintf("/api/v1/executions/%s/state", runID), nil)
	var body struct {
		Data map[string]any `json:"data"`
	}
	testutil.AssertJSONResponse(t, w, http.StatusOK, &body)
	assert.Equal(t, "completed", body.Data["status"])

	outputs := body.Data["nodeOutputs"].(map[string]any)
	assert.Contains(t, outputs, "A")
	assert.Contains(t, outputs, "B")

	path := body.Data["executionPath"].([]any)
	require.Len(t, path, 2)
}

func TestExecutionMetrics(t *testing.T) {
	router := setupRouter(t)
	workflowID := createActiveWorkflow(t, router)

	runID := startRun(t, router, workflowID, nil)
	waitForStatus(t, router, runID, models.RunStatusCompleted)

	w := testutil.MakeRequest(t, router, http.MethodGet, fmt.Sprintf("/api/v1/executions/%s/metrics", runID), nil)
	var body struct {
		Data map[string]any `json:"data"`
	}
	testutil.AssertJSONResponse(t, w, http.StatusOK, &body)
	assert.Equal(t, float64(2), body.Data["totalNodes"])
	assert.Len(t, body.Data["nodes"], 2)
}

func TestRetryExecution(t *testing.T) {
	router := setupRouter(t)
	workflowID := createActiveWorkflow(t, router)

	runID := startRun(t, router, workflowID, nil)
	waitForStatus(t, router, runID, models.RunStatusCompleted)

	// A completed run is not retryable; only FAILED/CANCELLED are.
	w := testutil.MakeRequest(t, router, http.MethodPost, fmt.Sprintf("/api/v1/executions/%s/retry", runID), nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "RUN_NOT_RETRYABLE")
}

func TestStopExecution_NotInFlight(t *testing.T) {
	router := setupRouter(t)
	workflowID := createActiveWorkflow(t, router)

	runID := startRun(t, router, workflowID, nil)
	waitForStatus(t, router, runID, models.RunStatusCompleted)

	w := testutil.MakeRequest(t, router, http.MethodPost, fmt.Sprintf("/api/v1/executions/%s/stop", runID), nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestBatchExecutions(t *testing.T) {
	router := setupRouter(t)
	workflowID := createActiveWorkflow(t, router)

	t.Run("submits tasks and returns their ids", func(t *testing.T) {
		w := testutil.MakeRequest(t, router, http.MethodPost, "/api/v1/executions/batch", map[string]any{
			"runs": []map[string]any{
				{"workflowId": workflowID, "triggerData": map[string]any{"n": 1}},
				{"workflowId": workflowID, "triggerData": map[string]any{"n": 2}},
			},
		})
		var body struct {
			Data map[string]any `json:"data"`
		}
		testutil.AssertJSONResponse(t, w, http.StatusCreated, &body)
		taskIDs := body.Data["taskIds"].([]any)
		assert.Len(t, taskIDs, 2)
		assert.NotEqual(t, taskIDs[0], taskIDs[1])
	})

	t.Run("rejects more than 100 items", func(t *testing.T) {
		runs := make([]map[string]any, 101)
		for i := range runs {
			runs[i] = map[string]any{"workflowId": workflowID}
		}
		w := testutil.MakeRequest(t, router, http.MethodPost, "/api/v1/executions/batch", map[string]any{"runs": runs})
		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestPrincipalStamping(t *testing.T) {
	router := setupRouter(t)

	// Principal ids are persisted as UUIDs; non-UUID bearer values are
	// dropped to NULL by the repository.
	principalID := "7b8c4a2e-1d3f-4e5a-9b6c-8d7e6f5a4b3c"
	w := testutil.MakeRequestWithHeaders(t, router, http.MethodPost, "/api/v1/workflows", validWorkflowBody(),
		map[string]string{"Authorization": "Bearer " + principalID})
	created := testutil.AssertWorkflowCreated(t, w)
	assert.Equal(t, principalID, created["createdBy"])
}

func TestHealthEndpoint(t *testing.T) {
	router := setupRouter(t)

	w := testutil.MakeRequest(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}
