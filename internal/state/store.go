// Package state implements the two-tier state store: a fast,
// volatile cache tier backed by Redis, and a durable, authoritative tier
// backed by the repository facade. Reads prefer the cache and repopulate
// it on miss; writes go to both, cache first, with the durable write
// completing before the caller considers the mutation persisted.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/smilemakc/workflowrt/internal/cache"
	"github.com/smilemakc/workflowrt/internal/models"
	"github.com/smilemakc/workflowrt/internal/repository"
)

// cacheTTL bounds how long a run's cached state survives without being
// refreshed; durable retention is a separate, longer-lived policy.
const cacheTTL = 6 * time.Hour

// Store is the two-tier state store.
type Store struct {
	cache *cache.RedisCache
	state *repository.StateRepository

	runLocks sync.Map // runID -> *sync.Mutex, serializes read-merge-write per run
}

// New builds a Store over the given cache and durable-state repository.
func New(c *cache.RedisCache, s *repository.StateRepository) *Store {
	return &Store{cache: c, state: s}
}

func (s *Store) lockFor(runID string) *sync.Mutex {
	v, _ := s.runLocks.LoadOrStore(runID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// cacheKey flattens a StateKey into the cache tier's key namespace. The
// three scopes map to distinct prefixes so CleanupRun can remove a run's
// entries without touching globals.
func cacheKey(k models.StateKey) string {
	switch k.Scope {
	case models.ScopeNode:
		return fmt.Sprintf("nodestate:%s:%s:%s", k.RunID, k.NodeID, k.SubKey)
	case models.ScopeGlobal:
		return "global:" + k.SubKey
	default:
		return "wfstate:" + k.RunID
	}
}

func workflowStateKey(runID string) string {
	return cacheKey(models.StateKey{Scope: models.ScopeWorkflow, RunID: runID})
}

func nodeStateKey(runID, nodeID string, stateType models.NodeStateType) string {
	return cacheKey(models.StateKey{Scope: models.ScopeNode, RunID: runID, NodeID: nodeID, SubKey: string(stateType)})
}

func globalVarKey(name string) string {
	return cacheKey(models.StateKey{Scope: models.ScopeGlobal, SubKey: name})
}

// InitWorkflowState creates the initial WorkflowState for a run in both
// tiers.
func (s *Store) InitWorkflowState(ctx context.Context, runID string, initial map[string]any) (*models.WorkflowState, error) {
	now := time.Now().UTC()
	ws := &models.WorkflowState{
		RunID:         runID,
		Status:        "running",
		StartedAt:     now,
		UpdatedAt:     now,
		Variables:     initial,
		NodeOutputs:   map[string]any{},
		ExecutionPath: []models.ExecutionStep{},
		TriggerData:   initial,
	}
	if ws.Variables == nil {
		ws.Variables = map[string]any{}
	}
	if err := s.writeWorkflowState(ctx, ws); err != nil {
		return nil, fmt.Errorf("state: init workflow state: %w", err)
	}
	return ws, nil
}

// GetWorkflowState reads the current WorkflowState, preferring the cache
// and repopulating it from the durable store on a miss.
func (s *Store) GetWorkflowState(ctx context.Context, runID string) (*models.WorkflowState, error) {
	if raw, err := s.cache.Get(ctx, workflowStateKey(runID)); err == nil {
		var ws models.WorkflowState
		if jsonErr := json.Unmarshal([]byte(raw), &ws); jsonErr == nil {
			return &ws, nil
		}
	}

	ws, err := s.state.GetWorkflowState(ctx, runID)
	if err != nil {
		return nil, err
	}
	_ = s.cacheWorkflowState(ctx, ws)
	return ws, nil
}

// UpdateWorkflowState applies patch to the current state under a per-run
// mutex and persists the result to both tiers.
func (s *Store) UpdateWorkflowState(ctx context.Context, runID string, patch func(*models.WorkflowState)) (*models.WorkflowState, error) {
	lock := s.lockFor(runID)
	lock.Lock()
	defer lock.Unlock()

	ws, err := s.GetWorkflowState(ctx, runID)
	if err != nil {
		return nil, err
	}
	patch(ws)
	ws.UpdatedAt = time.Now().UTC()
	if err := s.writeWorkflowState(ctx, ws); err != nil {
		return nil, fmt.Errorf("state: update workflow state: %w", err)
	}
	return ws, nil
}

func (s *Store) writeWorkflowState(ctx context.Context, ws *models.WorkflowState) error {
	if err := s.cacheWorkflowState(ctx, ws); err != nil {
		return err
	}
	if err := s.state.UpsertWorkflowState(ctx, ws); err != nil {
		return err
	}
	return nil
}

func (s *Store) cacheWorkflowState(ctx context.Context, ws *models.WorkflowState) error {
	raw, err := json.Marshal(ws)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, workflowStateKey(ws.RunID), raw, cacheTTL)
}

// SaveNodeOutput writes a node's output into node-scoped audit state and
// mirrors it into WorkflowState.nodeOutputs for cheap downstream lookup.
func (s *Store) SaveNodeOutput(ctx context.Context, runID, nodeID string, output map[string]any) error {
	if err := s.SaveNodeState(ctx, runID, nodeID, models.NodeStateOutput, output); err != nil {
		return err
	}
	_, err := s.UpdateWorkflowState(ctx, runID, func(ws *models.WorkflowState) {
		if ws.NodeOutputs == nil {
			ws.NodeOutputs = map[string]any{}
		}
		ws.NodeOutputs[nodeID] = output
	})
	return err
}

// GetNodeInput constructs the canonical node input envelope:
// {workflow, nodes, trigger}.
func (s *Store) GetNodeInput(ctx context.Context, runID string) (models.NodeInput, error) {
	ws, err := s.GetWorkflowState(ctx, runID)
	if err != nil {
		return models.NodeInput{}, err
	}
	return models.NodeInput{
		Workflow: models.NodeInputWorkflow{
			RunID:     runID,
			Status:    ws.Status,
			Variables: ws.Variables,
		},
		Nodes:   ws.NodeOutputs,
		Trigger: ws.TriggerData,
	}, nil
}

// SaveNodeState writes a generic (runId, nodeId, stateType) audit row to
// both tiers.
func (s *Store) SaveNodeState(ctx context.Context, runID, nodeID string, stateType models.NodeStateType, value map[string]any) error {
	ns := &models.NodeState{
		RunID:     runID,
		NodeID:    nodeID,
		StateType: stateType,
		Value:     value,
		UpdatedAt: time.Now().UTC(),
	}
	raw, err := json.Marshal(ns)
	if err != nil {
		return fmt.Errorf("state: save node state: %w", err)
	}
	if err := s.cache.Set(ctx, nodeStateKey(runID, nodeID, stateType), raw, cacheTTL); err != nil {
		return fmt.Errorf("state: save node state: %w", err)
	}
	if err := s.state.UpsertNodeState(ctx, ns); err != nil {
		return fmt.Errorf("state: save node state: %w", err)
	}
	return nil
}

// GetNodeState reads a single (runId, nodeId, stateType) audit row.
func (s *Store) GetNodeState(ctx context.Context, runID, nodeID string, stateType models.NodeStateType) (*models.NodeState, error) {
	if raw, err := s.cache.Get(ctx, nodeStateKey(runID, nodeID, stateType)); err == nil {
		var ns models.NodeState
		if jsonErr := json.Unmarshal([]byte(raw), &ns); jsonErr == nil {
			return &ns, nil
		}
	}
	ns, err := s.state.GetNodeState(ctx, runID, nodeID, stateType)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(ns); err == nil {
		_ = s.cache.Set(ctx, nodeStateKey(runID, nodeID, stateType), raw, cacheTTL)
	}
	return ns, nil
}

// SetWorkflowVariable sets a single run-scoped variable.
func (s *Store) SetWorkflowVariable(ctx context.Context, runID, name string, value any) error {
	_, err := s.UpdateWorkflowState(ctx, runID, func(ws *models.WorkflowState) {
		if ws.Variables == nil {
			ws.Variables = map[string]any{}
		}
		ws.Variables[name] = value
	})
	return err
}

// GetWorkflowVariable reads a single run-scoped variable, falling back to
// def when absent.
func (s *Store) GetWorkflowVariable(ctx context.Context, runID, name string, def any) (any, error) {
	ws, err := s.GetWorkflowState(ctx, runID)
	if err != nil {
		return nil, err
	}
	if v, ok := ws.Variables[name]; ok {
		return v, nil
	}
	return def, nil
}

// SetGlobalVariable sets a value shared across runs, with an optional TTL
// (zero means no expiry). The store provides atomic Set only; there is no
// multi-key transaction across global variables.
func (s *Store) SetGlobalVariable(ctx context.Context, name string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("state: set global variable: %w", err)
	}
	return s.cache.Set(ctx, globalVarKey(name), raw, ttl)
}

// GetGlobalVariable reads a shared global variable, falling back to def
// when absent or expired.
func (s *Store) GetGlobalVariable(ctx context.Context, name string, def any) (any, error) {
	raw, err := s.cache.Get(ctx, globalVarKey(name))
	if err != nil {
		return def, nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return def, nil
	}
	return v, nil
}

// AddExecutionStep appends a node transition to the run's append-only
// executionPath.
func (s *Store) AddExecutionStep(ctx context.Context, runID, nodeID string, data map[string]any) error {
	_, err := s.UpdateWorkflowState(ctx, runID, func(ws *models.WorkflowState) {
		ws.ExecutionPath = append(ws.ExecutionPath, models.ExecutionStep{
			NodeID:    nodeID,
			Timestamp: time.Now().UTC(),
			Data:      data,
		})
	})
	return err
}

// CleanupRun removes all cache entries for a run: its WorkflowState and
// every node-scoped audit entry. Durable retention is a policy knob
// handled separately by CleanupExpired; by default completed runs are
// kept for audit.
func (s *Store) CleanupRun(ctx context.Context, runID string) error {
	if err := s.cache.Delete(ctx, workflowStateKey(runID)); err != nil {
		return fmt.Errorf("state: cleanup run: %w", err)
	}
	if _, err := s.cache.DeleteByPattern(ctx, "nodestate:"+runID+":*"); err != nil {
		return fmt.Errorf("state: cleanup run: %w", err)
	}
	s.runLocks.Delete(runID)
	return nil
}

// CleanupExpired removes durable rows for terminal runs older than
// maxAgeDays, returning the number of runs removed.
func (s *Store) CleanupExpired(ctx context.Context, maxAgeDays int) (int, error) {
	return s.state.CleanupExpired(ctx, maxAgeDays)
}
