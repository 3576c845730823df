//go:build integration

package state_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/workflowrt/internal/cache"
	"github.com/smilemakc/workflowrt/internal/config"
	"github.com/smilemakc/workflowrt/internal/models"
	"github.com/smilemakc/workflowrt/internal/repository"
	"github.com/smilemakc/workflowrt/internal/state"
	"github.com/smilemakc/workflowrt/testutil"
)

type storeHarness struct {
	store *state.Store
	redis *miniredis.Miniredis
	repo  *repository.Facade
}

func setupStore(t *testing.T) *storeHarness {
	t.Helper()

	testDB := testutil.SetupTestDB(t)
	repo := repository.New(testDB.DB)

	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCache(config.RedisConfig{URL: "redis://" + mr.Addr(), PoolSize: 10})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	return &storeHarness{
		store: state.New(c, repo.State),
		redis: mr,
		repo:  repo,
	}
}

// newRun persists a workflow and a run row so state writes satisfy the
// durable tier's foreign keys, returning the run id.
func (h *storeHarness) newRun(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	wf, err := h.repo.Workflows.Create(ctx, &models.Workflow{
		ID:     uuid.NewString(),
		Name:   "state test workflow",
		Status: models.WorkflowStatusActive,
	})
	require.NoError(t, err)

	run, err := h.repo.Runs.Create(ctx, &models.WorkflowRun{
		ID:         uuid.NewString(),
		WorkflowID: wf.ID,
		Status:     models.RunStatusPending,
		Priority:   models.DefaultPriority,
	})
	require.NoError(t, err)
	return run.ID
}

func TestInitWorkflowState_WritesBothTiers(t *testing.T) {
	h := setupStore(t)
	ctx := context.Background()
	runID := h.newRun(t)

	ws, err := h.store.InitWorkflowState(ctx, runID, map[string]any{"k": float64(1)})
	require.NoError(t, err)
	assert.Equal(t, "running", ws.Status)
	assert.Equal(t, map[string]any{"k": float64(1)}, ws.Variables)
	assert.Empty(t, ws.NodeOutputs)
	assert.Empty(t, ws.ExecutionPath)

	// Cache tier has the entry.
	assert.True(t, h.redis.Exists("wfstate:"+runID))

	// Durable tier is authoritative: wipe the cache and read through.
	h.redis.FlushAll()
	got, err := h.store.GetWorkflowState(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, "running", got.Status)
	assert.Equal(t, map[string]any{"k": float64(1)}, got.Variables)

	// The read-through repopulated the cache.
	assert.True(t, h.redis.Exists("wfstate:"+runID))
}

func TestSaveNodeOutput_MirrorsIntoWorkflowState(t *testing.T) {
	h := setupStore(t)
	ctx := context.Background()
	runID := h.newRun(t)

	_, err := h.store.InitWorkflowState(ctx, runID, nil)
	require.NoError(t, err)

	output := map[string]any{"rows": float64(3)}
	require.NoError(t, h.store.SaveNodeOutput(ctx, runID, "writer", output))

	ws, err := h.store.GetWorkflowState(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, output, ws.NodeOutputs["writer"])

	// The node-scoped audit row carries the same value.
	ns, err := h.store.GetNodeState(ctx, runID, "writer", models.NodeStateOutput)
	require.NoError(t, err)
	assert.Equal(t, output, ns.Value)
}

func TestGetNodeInput_Envelope(t *testing.T) {
	h := setupStore(t)
	ctx := context.Background()
	runID := h.newRun(t)

	_, err := h.store.InitWorkflowState(ctx, runID, map[string]any{"x": float64(5)})
	require.NoError(t, err)
	require.NoError(t, h.store.SaveNodeOutput(ctx, runID, "upstream", map[string]any{"ok": true}))

	envelope, err := h.store.GetNodeInput(ctx, runID)
	require.NoError(t, err)

	assert.Equal(t, runID, envelope.Workflow.RunID)
	assert.Equal(t, "running", envelope.Workflow.Status)
	assert.Equal(t, map[string]any{"x": float64(5)}, envelope.Workflow.Variables)
	assert.Equal(t, map[string]any{"ok": true}, envelope.Nodes["upstream"])
	assert.Equal(t, map[string]any{"x": float64(5)}, envelope.Trigger)
}

func TestWorkflowVariables(t *testing.T) {
	h := setupStore(t)
	ctx := context.Background()
	runID := h.newRun(t)

	_, err := h.store.InitWorkflowState(ctx, runID, nil)
	require.NoError(t, err)

	require.NoError(t, h.store.SetWorkflowVariable(ctx, runID, "count", float64(7)))

	got, err := h.store.GetWorkflowVariable(ctx, runID, "count", nil)
	require.NoError(t, err)
	assert.Equal(t, float64(7), got)

	got, err = h.store.GetWorkflowVariable(ctx, runID, "missing", "dflt")
	require.NoError(t, err)
	assert.Equal(t, "dflt", got)
}

func TestAddExecutionStep_AppendOnly(t *testing.T) {
	h := setupStore(t)
	ctx := context.Background()
	runID := h.newRun(t)

	_, err := h.store.InitWorkflowState(ctx, runID, nil)
	require.NoError(t, err)

	require.NoError(t, h.store.AddExecutionStep(ctx, runID, "A", nil))
	require.NoError(t, h.store.AddExecutionStep(ctx, runID, "B", map[string]any{"status": "running"}))

	ws, err := h.store.GetWorkflowState(ctx, runID)
	require.NoError(t, err)
	require.Len(t, ws.ExecutionPath, 2)
	assert.Equal(t, "A", ws.ExecutionPath[0].NodeID)
	assert.Equal(t, "B", ws.ExecutionPath[1].NodeID)
	assert.False(t, ws.ExecutionPath[1].Timestamp.Before(ws.ExecutionPath[0].Timestamp))
}

func TestNodeStateRoundtrip(t *testing.T) {
	h := setupStore(t)
	ctx := context.Background()
	runID := h.newRun(t)

	value := map[string]any{"attempt": float64(1)}
	require.NoError(t, h.store.SaveNodeState(ctx, runID, "caller", models.NodeStateIntermediate, value))

	// Served from cache.
	ns, err := h.store.GetNodeState(ctx, runID, "caller", models.NodeStateIntermediate)
	require.NoError(t, err)
	assert.Equal(t, value, ns.Value)

	// And from the durable tier after a cache wipe.
	h.redis.FlushAll()
	ns, err = h.store.GetNodeState(ctx, runID, "caller", models.NodeStateIntermediate)
	require.NoError(t, err)
	assert.Equal(t, value, ns.Value)
	assert.Equal(t, models.NodeStateIntermediate, ns.StateType)
}

func TestUpdateWorkflowState_MergesUnderLock(t *testing.T) {
	h := setupStore(t)
	ctx := context.Background()
	runID := h.newRun(t)

	_, err := h.store.InitWorkflowState(ctx, runID, nil)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			_, _ = h.store.UpdateWorkflowState(ctx, runID, func(ws *models.WorkflowState) {
				ws.Variables["a"] = i
			})
		}
	}()
	for i := 0; i < 20; i++ {
		_, err := h.store.UpdateWorkflowState(ctx, runID, func(ws *models.WorkflowState) {
			ws.Variables["b"] = i
		})
		require.NoError(t, err)
	}
	<-done

	ws, err := h.store.GetWorkflowState(ctx, runID)
	require.NoError(t, err)
	assert.Contains(t, ws.Variables, "a")
	assert.Contains(t, ws.Variables, "b")
}

func TestCleanupRun_PreservesDurableTier(t *testing.T) {
	h := setupStore(t)
	ctx := context.Background()
	runID := h.newRun(t)

	_, err := h.store.InitWorkflowState(ctx, runID, map[string]any{"k": float64(1)})
	require.NoError(t, err)
	require.NoError(t, h.store.SaveNodeOutput(ctx, runID, "writer", map[string]any{"rows": float64(1)}))

	require.NoError(t, h.store.CleanupRun(ctx, runID))
	assert.False(t, h.redis.Exists("wfstate:"+runID))
	assert.False(t, h.redis.Exists("nodestate:"+runID+":writer:output"))

	// Durable retention keeps the rows for audit.
	ws, err := h.store.GetWorkflowState(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"k": float64(1)}, ws.Variables)

	ns, err := h.store.GetNodeState(ctx, runID, "writer", models.NodeStateOutput)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"rows": float64(1)}, ns.Value)
}

func TestGetWorkflowState_UnknownRun(t *testing.T) {
	h := setupStore(t)

	_, err := h.store.GetWorkflowState(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, models.ErrRunNotFound)
}
