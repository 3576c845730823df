package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEdgeCondition(t *testing.T) {
	empty := ""
	cond := "output.x > 0"

	assert.False(t, Edge{From: "a", To: "b"}.HasCondition())
	assert.False(t, Edge{From: "a", To: "b", Condition: &empty}.HasCondition())
	assert.True(t, Edge{From: "a", To: "b", Condition: &cond}.HasCondition())

	assert.Equal(t, "", Edge{}.ConditionExpr())
	assert.Equal(t, cond, Edge{Condition: &cond}.ConditionExpr())
}

func TestRunStatusIsTerminal(t *testing.T) {
	assert.False(t, RunStatusPending.IsTerminal())
	assert.False(t, RunStatusRunning.IsTerminal())
	assert.True(t, RunStatusCompleted.IsTerminal())
	assert.True(t, RunStatusFailed.IsTerminal())
	assert.True(t, RunStatusCancelled.IsTerminal())
}

func TestNodeExecutionStatusIsTerminal(t *testing.T) {
	assert.False(t, NodeExecutionPending.IsTerminal())
	assert.False(t, NodeExecutionRunning.IsTerminal())
	assert.True(t, NodeExecutionCompleted.IsTerminal())
	assert.True(t, NodeExecutionFailed.IsTerminal())
	assert.True(t, NodeExecutionSkipped.IsTerminal())
	assert.True(t, NodeExecutionCancelled.IsTerminal())
}

func TestDefinitionGetNode(t *testing.T) {
	def := Definition{Nodes: []Node{{ID: "a", Type: "FormTrigger"}}}

	n, ok := def.GetNode("a")
	assert.True(t, ok)
	assert.Equal(t, "FormTrigger", n.Type)

	_, ok = def.GetNode("missing")
	assert.False(t, ok)
}

func TestWorkflowClone(t *testing.T) {
	wf := &Workflow{
		ID: "wf-1",
		Definition: Definition{
			Nodes: []Node{{ID: "a"}},
			Edges: []Edge{{From: "a", To: "b"}},
		},
	}

	clone := wf.Clone()
	clone.Definition.Nodes[0].ID = "mutated"

	assert.Equal(t, "a", wf.Definition.Nodes[0].ID, "clone must not share node storage")
}

func TestRunErrorMessage(t *testing.T) {
	assert.Equal(t, "", (*RunError)(nil).Error())
	assert.Equal(t, "Permanent: boom", (&RunError{Code: "Permanent", Message: "boom"}).Error())
	assert.Equal(t, "Permanent at node B: boom", (&RunError{Code: "Permanent", Message: "boom", NodeID: "B"}).Error())
}

func TestValidationErrorsMessage(t *testing.T) {
	assert.Equal(t, "validation failed", ValidationErrors{}.Error())
	errs := ValidationErrors{{Message: "first"}, {Message: "second"}}
	assert.Equal(t, "first", errs.Error())
}
