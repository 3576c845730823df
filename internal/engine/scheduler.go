package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/expr-lang/expr"
	"github.com/google/uuid"

	"github.com/smilemakc/workflowrt/internal/dispatcher"
	"github.com/smilemakc/workflowrt/internal/models"
	"github.com/smilemakc/workflowrt/internal/observer"
)

// nodeRuntime tracks the scheduling bookkeeping for a single node across
// one run: how many incoming edges it has, how many have resolved (source
// reached a terminal status), and how many of those resolved edges are
// "active" (condition true, source completed rather than skipped).
type nodeRuntime struct {
	node             models.Node
	index            int
	incomingTotal    int
	incomingResolved int
	incomingActive   int
	status           models.NodeExecutionStatus
	output           map[string]any
	skipReason       string
}

// runGraph is the per-run scheduling state derived from a workflow
// definition: node runtimes keyed by id, plus the outgoing-edge index
// needed to propagate resolution.
type runGraph struct {
	order    []string // node ids in definition order, for deterministic tie-break
	nodes    map[string]*nodeRuntime
	outgoing map[string][]models.Edge
}

func buildRunGraph(def models.Definition) *runGraph {
	g := &runGraph{
		nodes:    make(map[string]*nodeRuntime, len(def.Nodes)),
		outgoing: make(map[string][]models.Edge),
		order:    make([]string, 0, len(def.Nodes)),
	}
	for i, n := range def.Nodes {
		g.nodes[n.ID] = &nodeRuntime{node: n, index: i, status: models.NodeExecutionPending}
		g.order = append(g.order, n.ID)
	}
	for _, e := range def.Edges {
		g.outgoing[e.From] = append(g.outgoing[e.From], e)
		if target, ok := g.nodes[e.To]; ok {
			target.incomingTotal++
		}
	}
	return g
}

// roots returns the node ids with no incoming edges, in definition order.
func (g *runGraph) roots() []string {
	var out []string
	for _, id := range g.order {
		if g.nodes[id].incomingTotal == 0 {
			out = append(out, id)
		}
	}
	return out
}

// scheduler drives one run's DAG to completion, one node at a time.
// Siblings made ready in the same tick are still dispatched sequentially,
// by ascending original-definition index, so a run's node order is
// deterministic.
type scheduler struct {
	eng   *Engine
	runID string
	wf    *models.Workflow
	graph *runGraph
}

func newScheduler(eng *Engine, runID string, wf *models.Workflow) *scheduler {
	return &scheduler{eng: eng, runID: runID, wf: wf, graph: buildRunGraph(wf.Definition)}
}

// run executes the DAG to completion or until ctx is cancelled. It returns
// the terminal RunStatus and, on failure or cancellation, the offending
// node id and error.
func (s *scheduler) run(ctx context.Context) (models.RunStatus, string, error) {
	toRun := s.graph.roots()
	var toSkip []string

	for len(toRun) > 0 || len(toSkip) > 0 {
		for len(toSkip) > 0 {
			id := toSkip[0]
			toSkip = toSkip[1:]
			runnable, skippable := s.markSkipped(ctx, id)
			toRun = append(toRun, runnable...)
			toSkip = append(toSkip, skippable...)
		}
		if len(toRun) == 0 {
			continue
		}

		if ctx.Err() != nil {
			id := toRun[0]
			return models.RunStatusCancelled, id, ctx.Err()
		}

		id := popLowestIndex(toRun, s.graph)
		toRun = removeID(toRun, id)

		status, runnable, skippable, err := s.executeNode(ctx, id)
		switch status {
		case models.NodeExecutionCompleted:
			toRun = append(toRun, runnable...)
			toSkip = append(toSkip, skippable...)
		case models.NodeExecutionFailed:
			return models.RunStatusFailed, id, err
		case models.NodeExecutionCancelled:
			return models.RunStatusCancelled, id, err
		}
	}

	return models.RunStatusCompleted, "", nil
}

func popLowestIndex(ids []string, g *runGraph) string {
	best := ids[0]
	for _, id := range ids[1:] {
		if g.nodes[id].index < g.nodes[best].index {
			best = id
		}
	}
	return best
}

func removeID(ids []string, target string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

// markSkipped marks id SKIPPED — its incoming edges resolved with none
// active, or it was cascaded from an upstream skip — and propagates
// resolution to its successors.
func (s *scheduler) markSkipped(ctx context.Context, id string) (runnable, skippable []string) {
	rt := s.graph.nodes[id]
	if rt.status.IsTerminal() {
		return nil, nil
	}
	rt.status = models.NodeExecutionSkipped
	if rt.skipReason == "" {
		rt.skipReason = fmt.Sprintf("no active incoming edge reached %s", id)
	}

	s.eng.logger.Debug("node skipped", "runId", s.runID, "nodeId", id, "reason", rt.skipReason)
	s.persistSkipped(ctx, rt)
	s.notify(ctx, observer.EventTypeNodeSkipped, id, rt.node.Type, "skipped", rt.skipReason, nil, nil)

	return s.resolveOutgoing(id, false, nil)
}

// resolveOutgoing marks every (id -> target) edge as resolved, given
// whether id is "active" (completed, not skipped) and its output (used to
// evaluate conditions). It returns the successors that became fully
// resolved: those with at least one active incoming edge go to runnable,
// the rest go to skippable.
func (s *scheduler) resolveOutgoing(id string, sourceActive bool, sourceOutput map[string]any) (runnable, skippable []string) {
	for _, edge := range s.graph.outgoing[id] {
		target, ok := s.graph.nodes[edge.To]
		if !ok || target.status != models.NodeExecutionPending {
			continue
		}
		active := sourceActive
		if active && edge.HasCondition() {
			result, err := s.evaluateCondition(edge.ConditionExpr(), id, sourceOutput)
			if err != nil {
				s.eng.logger.Warn("edge condition evaluation failed, treating as false",
					"runId", s.runID, "from", edge.From, "to", edge.To, "error", err)
				active = false
			} else {
				active = result
			}
		}
		target.incomingResolved++
		if active {
			target.incomingActive++
		}
		if target.incomingResolved == target.incomingTotal {
			if target.incomingActive > 0 {
				runnable = append(runnable, target.node.ID)
			} else {
				target.skipReason = fmt.Sprintf("no active incoming edge reached %s", target.node.ID)
				skippable = append(skippable, target.node.ID)
			}
		}
	}
	return runnable, skippable
}

func (s *scheduler) evaluateCondition(exprStr string, sourceNodeID string, sourceOutput map[string]any) (bool, error) {
	env := map[string]any{
		"output": sourceOutput,
		"node":   sourceNodeID,
	}
	program, err := s.eng.conditionCache.CompileAndCache(exprStr, env)
	if err != nil {
		return false, fmt.Errorf("compile condition: %w", err)
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("evaluate condition: %w", err)
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("condition did not evaluate to a boolean")
	}
	return b, nil
}

// executeNode dispatches a single node, persists its attempt, updates
// state, and returns the successor node ids newly made runnable or
// skippable by its completion.
func (s *scheduler) executeNode(ctx context.Context, id string) (models.NodeExecutionStatus, []string, []string, error) {
	rt := s.graph.nodes[id]
	startedAt := time.Now().UTC()

	s.notify(ctx, observer.EventTypeNodeStarted, id, rt.node.Type, "running", "", nil, nil)
	_ = s.eng.state.AddExecutionStep(ctx, s.runID, id, map[string]any{"status": "running"})

	envelope, err := s.eng.state.GetNodeInput(ctx, s.runID)
	if err != nil {
		_, _, _, ferr := s.failNode(ctx, rt, startedAt, fmt.Errorf("load node input: %w", err), 0)
		return models.NodeExecutionFailed, nil, nil, ferr
	}
	input := augmentWithParents(envelope, s.parentOutputs(id))

	retry := dispatcherRetryPolicy(s.eng.dispatcher.RetryPolicyFor(rt.node.Type))
	attemptStart := startedAt
	// Each failed attempt that is retried keeps its own row.
	retry.OnRetry = func(attempt int, err error) {
		failedAt := time.Now().UTC()
		s.persistAttempt(ctx, rt, &attemptStart, &failedAt, models.NodeExecutionFailed, input, nil, err.Error(), attempt-1)
	}

	var output any
	attempts := 0
	dispatchErr := retry.Execute(ctx, func() error {
		attempts++
		attemptStart = time.Now().UTC()
		var execErr error
		// A stop request cancels ctx but does not preempt the executor.
		output, execErr = s.eng.dispatcher.Dispatch(context.WithoutCancel(ctx), rt.node.Type, rt.node.Config, input)
		return execErr
	})
	retryCount := attempts - 1
	if retryCount < 0 {
		retryCount = 0
	}

	if dispatchErr != nil {
		if ctx.Err() != nil {
			return s.cancelNode(ctx, rt, attemptStart, retryCount, ctx.Err())
		}
		return s.failNode(ctx, rt, attemptStart, dispatchErr, retryCount)
	}
	// A stop that arrived while the node ran is observed at the next node
	// boundary; this node's output and row are still recorded.
	ctx = context.WithoutCancel(ctx)

	outMap, _ := output.(map[string]any)
	if outMap == nil {
		outMap = map[string]any{}
	}
	rt.status = models.NodeExecutionCompleted
	rt.output = outMap

	if err := s.eng.state.SaveNodeOutput(ctx, s.runID, id, outMap); err != nil {
		s.eng.logger.Error("save node output failed", "runId", s.runID, "nodeId", id, "error", err)
	}
	completedAt := time.Now().UTC()
	durMs := completedAt.Sub(startedAt).Milliseconds()
	s.persistAttempt(ctx, rt, &attemptStart, &completedAt, models.NodeExecutionCompleted, input, outMap, "", retryCount)
	s.notify(ctx, observer.EventTypeNodeCompleted, id, rt.node.Type, "completed", "", outMap, &durMs)

	runnable, skippable := s.resolveOutgoing(id, true, outMap)
	return models.NodeExecutionCompleted, runnable, skippable, nil
}

// parentOutputs resolves the direct completed predecessors of id: nil if
// none, the bare output map for a single parent, or a node-id-keyed map
// under "__byNode" when id has more than one completed parent.
func (s *scheduler) parentOutputs(id string) map[string]any {
	var parents []string
	for from, edges := range s.graph.outgoing {
		for _, e := range edges {
			if e.To == id && s.graph.nodes[from].status == models.NodeExecutionCompleted {
				parents = append(parents, from)
			}
		}
	}
	if len(parents) == 0 {
		return nil
	}
	if len(parents) == 1 {
		return s.graph.nodes[parents[0]].output
	}
	byNode := make(map[string]any, len(parents))
	for _, p := range parents {
		byNode[p] = s.graph.nodes[p].output
	}
	return map[string]any{"__byNode": byNode}
}

func (s *scheduler) failNode(ctx context.Context, rt *nodeRuntime, startedAt time.Time, err error, retryCount int) (models.NodeExecutionStatus, []string, []string, error) {
	rt.status = models.NodeExecutionFailed
	completedAt := time.Now().UTC()
	durMs := completedAt.Sub(startedAt).Milliseconds()
	s.persistAttempt(ctx, rt, &startedAt, &completedAt, models.NodeExecutionFailed, nil, nil, err.Error(), retryCount)
	s.notify(ctx, observer.EventTypeNodeFailed, rt.node.ID, rt.node.Type, "failed", err.Error(), nil, &durMs)
	return models.NodeExecutionFailed, nil, nil, err
}

func (s *scheduler) cancelNode(ctx context.Context, rt *nodeRuntime, startedAt time.Time, retryCount int, err error) (models.NodeExecutionStatus, []string, []string, error) {
	rt.status = models.NodeExecutionCancelled
	completedAt := time.Now().UTC()
	// ctx is already cancelled here; the audit row still has to land.
	s.persistAttempt(context.WithoutCancel(ctx), rt, &startedAt, &completedAt, models.NodeExecutionCancelled, nil, nil, err.Error(), retryCount)
	return models.NodeExecutionCancelled, nil, nil, err
}

func (s *scheduler) persistAttempt(ctx context.Context, rt *nodeRuntime, startedAt, completedAt *time.Time, status models.NodeExecutionStatus, input, output map[string]any, errMsg string, retryCount int) {
	ne := &models.NodeExecution{
		ID:             uuid.New().String(),
		WorkflowRunID:  s.runID,
		NodeID:         rt.node.ID,
		NodeType:       rt.node.Type,
		Status:         status,
		InputData:      input,
		OutputData:     output,
		Error:          errMsg,
		StartedAt:      startedAt,
		CompletedAt:    completedAt,
		ExecutionOrder: rt.index,
		RetryCount:     retryCount,
	}
	if _, err := s.eng.repo.NodeExecutions.Append(ctx, ne); err != nil {
		s.eng.logger.Error("persist node execution failed", "runId", s.runID, "nodeId", rt.node.ID, "error", err)
	}
}

func (s *scheduler) persistSkipped(ctx context.Context, rt *nodeRuntime) {
	now := time.Now().UTC()
	ne := &models.NodeExecution{
		ID:             uuid.New().String(),
		WorkflowRunID:  s.runID,
		NodeID:         rt.node.ID,
		NodeType:       rt.node.Type,
		Status:         models.NodeExecutionSkipped,
		Error:          rt.skipReason,
		CompletedAt:    &now,
		ExecutionOrder: rt.index,
	}
	if _, err := s.eng.repo.NodeExecutions.Append(ctx, ne); err != nil {
		s.eng.logger.Error("persist skipped node failed", "runId", s.runID, "nodeId", rt.node.ID, "error", err)
	}
}

func (s *scheduler) notify(ctx context.Context, evtType observer.EventType, nodeID, nodeType, status, message string, output map[string]any, durMs *int64) {
	if s.eng.observers == nil {
		return
	}
	evt := observer.Event{
		Type:        evtType,
		ExecutionID: s.runID,
		WorkflowID:  s.wf.ID,
		Timestamp:   time.Now().UTC(),
		NodeID:      &nodeID,
		NodeType:    &nodeType,
		Status:      status,
		Output:      output,
		DurationMs:  durMs,
	}
	if message != "" {
		evt.Message = &message
	}
	s.eng.observers.Notify(ctx, evt)
}

// augmentWithParents converts the canonical NodeInput envelope to a map
// and injects a `parent` key carrying the direct predecessor output(s),
// so executors can address their immediate upstream without digging
// through the full nodeOutputs map.
func augmentWithParents(envelope models.NodeInput, parent map[string]any) map[string]any {
	m := map[string]any{
		"workflow": map[string]any{
			"runId":     envelope.Workflow.RunID,
			"status":    envelope.Workflow.Status,
			"variables": envelope.Workflow.Variables,
		},
		"nodes":   envelope.Nodes,
		"trigger": envelope.Trigger,
	}
	if parent != nil {
		m["parent"] = parent
	}
	return m
}

// dispatcherRetryPolicy converts a dispatcher-declared RetryPolicy into
// the engine's backoff-executing RetryPolicy. Only failures classified
// Transient by the dispatcher are retried.
func dispatcherRetryPolicy(rp dispatcher.RetryPolicy) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:     rp.MaxRetries + 1,
		InitialDelay:    time.Duration(rp.InitialBackoff) * time.Millisecond,
		MaxDelay:        30 * time.Second,
		BackoffStrategy: BackoffExponential,
		RetryIf:         dispatcher.IsTransient,
	}
}
