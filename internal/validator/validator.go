// Package validator certifies that a workflow definition is a legal,
// acyclic, structurally coherent DAG with well-formed nodes, per the
// rule set a Workflow must pass before it can become ACTIVE.
package validator

import (
	"fmt"
	"strings"
	"sync"

	"github.com/smilemakc/workflowrt/internal/models"
)

// requiredConfigKeys is the mandatory config key set for each known node
// type. Presence only is checked here; semantic validation of the values
// is the executor's concern.
var requiredConfigKeys = map[string][][]string{
	"ScheduleTrigger": {{"cron", "cron_expression"}},
	"FormTrigger":     {{"form_id"}},
	"WebhookTrigger":  {{"endpoint_path"}},
	"DataMapper":      {{"input_schema"}, {"output_schema"}, {"mapping_rules"}},
	"Calculator":      {{"formula"}, {"input_fields"}, {"output_field"}},
	"Conditional":     {{"conditions"}},
	"Loop":            {{"items_source"}, {"iteration_body"}},
	"DatabaseWrite":   {{"connection"}, {"table"}, {"operation"}},
	"APICall":         {{"endpoint"}, {"method"}},
	"ERPExport":       {{"system_type"}, {"connection_details"}, {"mapping"}},
}

// Registry is the mutable, shared known-type registry consulted by both
// the validator and the dispatcher. Registrations happen at startup or
// via admin paths; reads happen on every validation and dispatch, hence
// the reader/writer lock.
type Registry struct {
	mu    sync.RWMutex
	known map[string]bool
}

// NewRegistry returns a Registry pre-populated with the ten built-in
// node types.
func NewRegistry() *Registry {
	r := &Registry{known: make(map[string]bool, len(requiredConfigKeys))}
	for t := range requiredConfigKeys {
		r.known[t] = true
	}
	return r
}

// Register adds a node type name to the known-type registry. Safe for
// concurrent use.
func (r *Registry) Register(nodeType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.known[nodeType] = true
}

// IsKnown reports whether nodeType has been registered.
func (r *Registry) IsKnown(nodeType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.known[nodeType]
}

// ValidationResult is the outcome of Validate: a result with any errors
// is non-valid; warnings and infos are advisory and never block
// acceptance.
type ValidationResult struct {
	Valid    bool                      `json:"valid"`
	Errors   models.ValidationErrors   `json:"errors"`
	Warnings models.ValidationErrors   `json:"warnings"`
	Infos    models.ValidationErrors   `json:"infos"`
}

func (r *ValidationResult) addError(msg string, nodeID, edgeID string) {
	r.Errors = append(r.Errors, models.ValidationError{Message: msg, NodeID: nodeID, EdgeID: edgeID})
}

func (r *ValidationResult) addWarning(msg string, nodeID, edgeID string) {
	r.Warnings = append(r.Warnings, models.ValidationError{Message: msg, NodeID: nodeID, EdgeID: edgeID})
}

func (r *ValidationResult) addInfo(msg string) {
	r.Infos = append(r.Infos, models.ValidationError{Message: msg})
}

// Validator validates workflow definitions against the known-type
// registry.
type Validator struct {
	registry *Registry
}

// New returns a Validator backed by the given registry.
func New(registry *Registry) *Validator {
	return &Validator{registry: registry}
}

// Validate certifies a definition: structure, node schema, edge
// integrity, acyclicity, and flow health. The result is deterministic and
// idempotent for the same input — errors are appended in a fixed
// traversal order so repeated calls produce the same ordering.
func (v *Validator) Validate(def models.Definition) ValidationResult {
	result := ValidationResult{Valid: true}

	// 1. Structural
	if def.Nodes == nil {
		result.addError("definition.nodes must be present", "", "")
	}
	if len(def.Nodes) == 0 {
		result.addError("definition.nodes must be non-empty", "", "")
		result.Valid = len(result.Errors) == 0
		return result
	}

	nodeIndex := make(map[string]int, len(def.Nodes))

	// 2 & 3. Per-node + type-specific config
	for i, n := range def.Nodes {
		if n.ID == "" {
			result.addError("node id is required", n.ID, "")
		} else if _, exists := nodeIndex[n.ID]; exists {
			result.addError(fmt.Sprintf("duplicate node id %q", n.ID), n.ID, "")
		} else {
			nodeIndex[n.ID] = i
		}

		if n.Type == "" {
			result.addError("node type is required", n.ID, "")
		} else if !v.registry.IsKnown(n.Type) {
			result.addWarning(fmt.Sprintf("unknown node type %q", n.Type), n.ID, "")
		}

		if n.Config == nil {
			result.addError(fmt.Sprintf("node %q config must be an object", n.ID), n.ID, "")
		} else if keySets, ok := requiredConfigKeys[n.Type]; ok {
			for _, alternatives := range keySets {
				if !hasAny(n.Config, alternatives) {
					result.addError(
						fmt.Sprintf("node %q (%s) missing required config key %s", n.ID, n.Type, strings.Join(alternatives, " or ")),
						n.ID, "",
					)
				}
			}
		}
	}

	// 4. Per-edge
	adjacency := make(map[string][]string, len(def.Nodes))
	incoming := make(map[string]int, len(def.Nodes))
	for _, n := range def.Nodes {
		incoming[n.ID] = 0
	}

	for i, e := range def.Edges {
		edgeRef := fmt.Sprintf("%s->%s", e.From, e.To)
		_, fromOK := nodeIndex[e.From]
		_, toOK := nodeIndex[e.To]
		if e.From == "" || !fromOK {
			result.addError(fmt.Sprintf("edge %d: unknown source node %q", i, e.From), "", edgeRef)
		}
		if e.To == "" || !toOK {
			result.addError(fmt.Sprintf("edge %d: unknown target node %q", i, e.To), "", edgeRef)
		}
		if e.From != "" && e.From == e.To {
			result.addError(fmt.Sprintf("edge %d: self-loop on node %q", i, e.From), e.From, edgeRef)
		}
		if e.Condition != nil && *e.Condition == "" {
			result.addWarning(fmt.Sprintf("edge %d: empty condition", i), "", edgeRef)
		}

		if fromOK && toOK && e.From != e.To {
			adjacency[e.From] = append(adjacency[e.From], e.To)
			incoming[e.To]++
		}
	}

	// 5. Acyclicity: DFS with a recursion stack.
	if cyclePresent(def.Nodes, adjacency) {
		result.addError("cycle detected", "", "")
		result.Valid = len(result.Errors) == 0
		return result
	}

	// 6. Flow health
	var startNodes, endNodes []string
	for _, n := range def.Nodes {
		if incoming[n.ID] == 0 {
			startNodes = append(startNodes, n.ID)
		}
		if len(adjacency[n.ID]) == 0 {
			endNodes = append(endNodes, n.ID)
		}
		if incoming[n.ID] == 0 && len(adjacency[n.ID]) == 0 && len(def.Nodes) > 1 {
			result.addError(fmt.Sprintf("node %q is isolated", n.ID), n.ID, "")
		}
		if strings.HasSuffix(n.Type, "Trigger") && incoming[n.ID] != 0 {
			result.addWarning(fmt.Sprintf("node %q is a trigger but is not a start node", n.ID), n.ID, "")
		}
	}
	if len(startNodes) == 0 {
		result.addError("no start node found", "", "")
	} else if len(startNodes) > 1 {
		result.addWarning(fmt.Sprintf("multiple start nodes: %s", strings.Join(startNodes, ", ")), "", "")
	}
	if len(endNodes) == 0 {
		result.addWarning("no end node found", "", "")
	}

	// 7. Performance advisories
	if len(def.Nodes) > 100 {
		result.addWarning(fmt.Sprintf("large workflow: %d nodes", len(def.Nodes)), "", "")
	}
	if depth := maxDepth(def.Nodes, adjacency, incoming); depth > 20 {
		result.addWarning(fmt.Sprintf("deep workflow: max depth %d", depth), "", "")
	}
	for id, targets := range adjacency {
		if len(targets) > 10 {
			result.addWarning(fmt.Sprintf("node %q has high fan-out: %d", id, len(targets)), id, "")
		}
	}
	for id, n := range incoming {
		if n > 5 {
			result.addInfo(fmt.Sprintf("node %q has high fan-in: %d", id, n))
		}
	}
	if !anyErrorHandlingConfigured(def.Nodes) {
		result.addInfo("no error-handling config present across the graph")
	}

	result.Valid = len(result.Errors) == 0
	return result
}

func hasAny(config map[string]any, keys []string) bool {
	for _, k := range keys {
		if _, ok := config[k]; ok {
			return true
		}
	}
	return false
}

func cyclePresent(nodes []models.Node, adjacency map[string][]string) bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(nodes))

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		for _, next := range adjacency[id] {
			switch color[next] {
			case gray:
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		color[id] = black
		return false
	}

	for _, n := range nodes {
		if color[n.ID] == white {
			if visit(n.ID) {
				return true
			}
		}
	}
	return false
}

func maxDepth(nodes []models.Node, adjacency map[string][]string, incoming map[string]int) int {
	memo := make(map[string]int, len(nodes))
	var depth func(id string) int
	depth = func(id string) int {
		if d, ok := memo[id]; ok {
			return d
		}
		best := 0
		for _, next := range adjacency[id] {
			if d := depth(next); d > best {
				best = d
			}
		}
		memo[id] = best + 1
		return best + 1
	}

	max := 0
	for _, n := range nodes {
		if incoming[n.ID] == 0 {
			if d := depth(n.ID); d > max {
				max = d
			}
		}
	}
	return max
}

func anyErrorHandlingConfigured(nodes []models.Node) bool {
	for _, n := range nodes {
		if _, ok := n.Config["on_error"]; ok {
			return true
		}
		if _, ok := n.Config["error_handling"]; ok {
			return true
		}
	}
	return false
}
