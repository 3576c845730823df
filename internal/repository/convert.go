package repository

import (
	"time"

	"github.com/google/uuid"

	"github.com/smilemakc/workflowrt/internal/models"
	repomodels "github.com/smilemakc/workflowrt/internal/repository/models"
)

// workflowStatusToDB lowercases a domain lifecycle status for storage; DB check
// constraints and the domain's own uppercase constants must stay in sync
// with this mapping.
func workflowStatusToDB(s models.WorkflowStatus) string {
	switch s {
	case models.WorkflowStatusDraft:
		return "draft"
	case models.WorkflowStatusActive:
		return "active"
	case models.WorkflowStatusArchived:
		return "archived"
	default:
		return "draft"
	}
}

func workflowStatusFromDB(s string) models.WorkflowStatus {
	switch s {
	case "active":
		return models.WorkflowStatusActive
	case "archived":
		return models.WorkflowStatusArchived
	default:
		return models.WorkflowStatusDraft
	}
}

func runStatusToDB(s models.RunStatus) string {
	switch s {
	case models.RunStatusRunning:
		return "running"
	case models.RunStatusCompleted:
		return "completed"
	case models.RunStatusFailed:
		return "failed"
	case models.RunStatusCancelled:
		return "cancelled"
	default:
		return "pending"
	}
}

func runStatusFromDB(s string) models.RunStatus {
	switch s {
	case "running":
		return models.RunStatusRunning
	case "completed":
		return models.RunStatusCompleted
	case "failed":
		return models.RunStatusFailed
	case "cancelled":
		return models.RunStatusCancelled
	default:
		return models.RunStatusPending
	}
}

func nodeExecutionStatusToDB(s models.NodeExecutionStatus) string {
	switch s {
	case models.NodeExecutionRunning:
		return "running"
	case models.NodeExecutionCompleted:
		return "completed"
	case models.NodeExecutionFailed:
		return "failed"
	case models.NodeExecutionSkipped:
		return "skipped"
	case models.NodeExecutionCancelled:
		return "cancelled"
	default:
		return "pending"
	}
}

func nodeExecutionStatusFromDB(s string) models.NodeExecutionStatus {
	switch s {
	case "running":
		return models.NodeExecutionRunning
	case "completed":
		return models.NodeExecutionCompleted
	case "failed":
		return models.NodeExecutionFailed
	case "skipped":
		return models.NodeExecutionSkipped
	case "cancelled":
		return models.NodeExecutionCancelled
	default:
		return models.NodeExecutionPending
	}
}

func toJSONBMap(m map[string]any) repomodels.JSONBMap {
	if m == nil {
		return make(repomodels.JSONBMap)
	}
	out := make(repomodels.JSONBMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func fromJSONBMap(m repomodels.JSONBMap) map[string]any {
	if len(m) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.UUID{}, nil
	}
	return uuid.Parse(s)
}

func optionalUUID(s string) *uuid.UUID {
	if s == "" {
		return nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil
	}
	return &id
}

func stringFromOptionalUUID(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

// workflowToModel converts a persisted WorkflowModel into the engine-facing
// domain type.
func workflowToModel(w *repomodels.WorkflowModel) *models.Workflow {
	def := models.Definition{}
	if raw, ok := w.Definition["nodes"]; ok {
		def.Nodes = decodeNodes(raw)
	}
	if raw, ok := w.Definition["edges"]; ok {
		def.Edges = decodeEdges(raw)
	}
	return &models.Workflow{
		ID:          w.ID.String(),
		Name:        w.Name,
		Description: w.Description,
		Version:     w.Version,
		Definition:  def,
		Status:      workflowStatusFromDB(w.Status),
		CreatedBy:   stringFromOptionalUUID(w.CreatedBy),
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   w.UpdatedAt,
	}
}

func workflowFromModel(w *models.Workflow) (*repomodels.WorkflowModel, error) {
	id, err := parseUUID(w.ID)
	if err != nil {
		return nil, err
	}
	def := repomodels.JSONBMap{
		"nodes": encodeNodes(w.Definition.Nodes),
		"edges": encodeEdges(w.Definition.Edges),
	}
	return &repomodels.WorkflowModel{
		ID:          id,
		Name:        w.Name,
		Description: w.Description,
		Version:     w.Version,
		Definition:  def,
		Status:      workflowStatusToDB(w.Status),
		CreatedBy:   optionalUUID(w.CreatedBy),
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   w.UpdatedAt,
	}, nil
}

// mapSlice normalizes a definition list that is either fresh from
// encodeNodes/encodeEdges ([]map[string]any) or deserialized from JSONB
// ([]any of maps).
func mapSlice(raw any) []map[string]any {
	switch items := raw.(type) {
	case []map[string]any:
		return items
	case []any:
		out := make([]map[string]any, 0, len(items))
		for _, item := range items {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

func decodeNodes(raw any) []models.Node {
	items := mapSlice(raw)
	nodes := make([]models.Node, 0, len(items))
	for _, m := range items {
		n := models.Node{
			ID:   stringField(m, "id"),
			Type: stringField(m, "type"),
		}
		if cfg, ok := m["config"].(map[string]any); ok {
			n.Config = cfg
		} else {
			n.Config = map[string]any{}
		}
		if pos, ok := m["position"].(map[string]any); ok {
			n.Position = pos
		}
		nodes = append(nodes, n)
	}
	return nodes
}

func encodeNodes(nodes []models.Node) []map[string]any {
	out := make([]map[string]any, 0, len(nodes))
	for _, n := range nodes {
		entry := map[string]any{
			"id":     n.ID,
			"type":   n.Type,
			"config": n.Config,
		}
		if n.Position != nil {
			entry["position"] = n.Position
		}
		out = append(out, entry)
	}
	return out
}

func decodeEdges(raw any) []models.Edge {
	items := mapSlice(raw)
	edges := make([]models.Edge, 0, len(items))
	for _, m := range items {
		e := models.Edge{
			From: stringField(m, "from"),
			To:   stringField(m, "to"),
		}
		if cond, ok := m["condition"].(string); ok {
			e.Condition = &cond
		}
		edges = append(edges, e)
	}
	return edges
}

func encodeEdges(edges []models.Edge) []map[string]any {
	out := make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		entry := map[string]any{"from": e.From, "to": e.To}
		if e.Condition != nil {
			entry["condition"] = *e.Condition
		}
		out = append(out, entry)
	}
	return out
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func runToModel(r *repomodels.RunModel) *models.WorkflowRun {
	run := &models.WorkflowRun{
		ID:          r.ID.String(),
		WorkflowID:  r.WorkflowID.String(),
		Status:      runStatusFromDB(r.Status),
		TriggerData: fromJSONBMap(r.TriggerData),
		ResultData:  fromJSONBMap(r.ResultData),
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		StartedBy:   stringFromOptionalUUID(r.StartedBy),
		Priority:    r.Priority,
	}
	if r.ErrorCode != "" || r.ErrorMsg != "" {
		run.Error = &models.RunError{Code: r.ErrorCode, Message: r.ErrorMsg, NodeID: r.ErrorNodeID}
	}
	return run
}

func runFromModel(r *models.WorkflowRun) (*repomodels.RunModel, error) {
	id, err := parseUUID(r.ID)
	if err != nil {
		return nil, err
	}
	workflowID, err := parseUUID(r.WorkflowID)
	if err != nil {
		return nil, err
	}
	m := &repomodels.RunModel{
		ID:          id,
		WorkflowID:  workflowID,
		Status:      runStatusToDB(r.Status),
		Priority:    r.Priority,
		TriggerData: toJSONBMap(r.TriggerData),
		ResultData:  toJSONBMap(r.ResultData),
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		StartedBy:   optionalUUID(r.StartedBy),
	}
	if r.Error != nil {
		m.ErrorCode = r.Error.Code
		m.ErrorMsg = r.Error.Message
		m.ErrorNodeID = r.Error.NodeID
	}
	return m, nil
}

func nodeExecutionToModel(n *repomodels.NodeExecutionModel) *models.NodeExecution {
	return &models.NodeExecution{
		ID:             n.ID.String(),
		WorkflowRunID:  n.WorkflowRunID.String(),
		NodeID:         n.NodeID,
		NodeType:       n.NodeType,
		Status:         nodeExecutionStatusFromDB(n.Status),
		InputData:      fromJSONBMap(n.InputData),
		OutputData:     fromJSONBMap(n.OutputData),
		Error:          n.Error,
		StartedAt:      n.StartedAt,
		CompletedAt:    n.CompletedAt,
		ExecutionOrder: n.ExecutionOrder,
		RetryCount:     n.RetryCount,
	}
}

func nodeExecutionFromModel(n *models.NodeExecution) (*repomodels.NodeExecutionModel, error) {
	var id uuid.UUID
	var err error
	if n.ID != "" {
		id, err = parseUUID(n.ID)
		if err != nil {
			return nil, err
		}
	} else {
		id = uuid.New()
	}
	runID, err := parseUUID(n.WorkflowRunID)
	if err != nil {
		return nil, err
	}
	return &repomodels.NodeExecutionModel{
		ID:             id,
		WorkflowRunID:  runID,
		NodeID:         n.NodeID,
		NodeType:       n.NodeType,
		Status:         nodeExecutionStatusToDB(n.Status),
		InputData:      toJSONBMap(n.InputData),
		OutputData:     toJSONBMap(n.OutputData),
		Error:          n.Error,
		StartedAt:      n.StartedAt,
		CompletedAt:    n.CompletedAt,
		ExecutionOrder: n.ExecutionOrder,
		RetryCount:     n.RetryCount,
	}, nil
}

func workflowStateToModel(s *repomodels.WorkflowStateModel) *models.WorkflowState {
	state := &models.WorkflowState{
		RunID:       s.RunID.String(),
		Status:      s.Status,
		Variables:   fromJSONBMap(s.Variables),
		NodeOutputs: fromJSONBMap(s.NodeOutputs),
		TriggerData: fromJSONBMap(s.TriggerData),
		UpdatedAt:   s.UpdatedAt,
	}
	if raw, ok := s.ExecutionPath["steps"]; ok {
		state.ExecutionPath = decodeExecutionPath(raw)
	}
	if raw, ok := s.Variables["__startedAt"]; ok {
		if ts, ok := raw.(string); ok {
			if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
				state.StartedAt = t
				delete(state.Variables, "__startedAt")
			}
		}
	}
	return state
}

func workflowStateFromModel(s *models.WorkflowState) (*repomodels.WorkflowStateModel, error) {
	runID, err := parseUUID(s.RunID)
	if err != nil {
		return nil, err
	}
	variables := toJSONBMap(s.Variables)
	variables["__startedAt"] = s.StartedAt.Format(time.RFC3339Nano)
	return &repomodels.WorkflowStateModel{
		RunID:         runID,
		Status:        s.Status,
		Variables:     variables,
		NodeOutputs:   toJSONBMap(s.NodeOutputs),
		ExecutionPath: repomodels.JSONBMap{"steps": encodeExecutionPath(s.ExecutionPath)},
		TriggerData:   toJSONBMap(s.TriggerData),
		UpdatedAt:     s.UpdatedAt,
	}, nil
}

func encodeExecutionPath(steps []models.ExecutionStep) []map[string]any {
	out := make([]map[string]any, 0, len(steps))
	for _, s := range steps {
		entry := map[string]any{
			"nodeId":    s.NodeID,
			"timestamp": s.Timestamp.Format(time.RFC3339Nano),
		}
		if s.Data != nil {
			entry["data"] = s.Data
		}
		out = append(out, entry)
	}
	return out
}

func decodeExecutionPath(raw any) []models.ExecutionStep {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	steps := make([]models.ExecutionStep, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		step := models.ExecutionStep{NodeID: stringField(m, "id")}
		if step.NodeID == "" {
			step.NodeID = stringField(m, "nodeId")
		}
		if ts, ok := m["timestamp"].(string); ok {
			if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
				step.Timestamp = t
			}
		}
		if data, ok := m["data"].(map[string]any); ok {
			step.Data = data
		}
		steps = append(steps, step)
	}
	return steps
}

func nodeStateToModel(n *repomodels.NodeStateModel) *models.NodeState {
	return &models.NodeState{
		RunID:     n.RunID.String(),
		NodeID:    n.NodeID,
		StateType: models.NodeStateType(n.StateType),
		Value:     fromJSONBMap(n.Value),
		UpdatedAt: n.UpdatedAt,
	}
}

func nodeStateFromModel(n *models.NodeState) (*repomodels.NodeStateModel, error) {
	runID, err := parseUUID(n.RunID)
	if err != nil {
		return nil, err
	}
	return &repomodels.NodeStateModel{
		RunID:     runID,
		NodeID:    n.NodeID,
		StateType: string(n.StateType),
		Value:     toJSONBMap(n.Value),
		UpdatedAt: n.UpdatedAt,
	}, nil
}
