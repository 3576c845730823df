package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/workflowrt/internal/dispatcher"
	"github.com/smilemakc/workflowrt/internal/logger"
	"github.com/smilemakc/workflowrt/internal/models"
)

func strPtr(s string) *string { return &s }

// graphEngine builds the minimal Engine a scheduler's pure graph
// bookkeeping needs: condition cache and logger, no storage.
func graphEngine() *Engine {
	return &Engine{
		conditionCache: NewConditionCache(16),
		logger:         logger.Default(),
	}
}

func schedulerFor(def models.Definition) *scheduler {
	wf := &models.Workflow{ID: "wf-1", Definition: def}
	return newScheduler(graphEngine(), "run-1", wf)
}

func linearDef() models.Definition {
	return models.Definition{
		Nodes: []models.Node{
			{ID: "A", Type: "ScheduleTrigger", Config: map[string]any{"cron": "* * * * *"}},
			{ID: "B", Type: "DataMapper", Config: map[string]any{}},
			{ID: "C", Type: "DatabaseWrite", Config: map[string]any{}},
		},
		Edges: []models.Edge{
			{From: "A", To: "B"},
			{From: "B", To: "C"},
		},
	}
}

func TestBuildRunGraph(t *testing.T) {
	g := buildRunGraph(linearDef())

	assert.Equal(t, []string{"A", "B", "C"}, g.order)
	assert.Equal(t, 0, g.nodes["A"].incomingTotal)
	assert.Equal(t, 1, g.nodes["B"].incomingTotal)
	assert.Equal(t, 1, g.nodes["C"].incomingTotal)
	assert.Len(t, g.outgoing["A"], 1)
	assert.Empty(t, g.outgoing["C"])

	for _, id := range g.order {
		assert.Equal(t, models.NodeExecutionPending, g.nodes[id].status)
	}
}

func TestRoots(t *testing.T) {
	t.Run("single root", func(t *testing.T) {
		g := buildRunGraph(linearDef())
		assert.Equal(t, []string{"A"}, g.roots())
	})

	t.Run("multiple roots in definition order", func(t *testing.T) {
		def := models.Definition{
			Nodes: []models.Node{
				{ID: "t2", Type: "FormTrigger"},
				{ID: "t1", Type: "WebhookTrigger"},
				{ID: "sink", Type: "DatabaseWrite"},
			},
			Edges: []models.Edge{
				{From: "t2", To: "sink"},
				{From: "t1", To: "sink"},
			},
		}
		g := buildRunGraph(def)
		assert.Equal(t, []string{"t2", "t1"}, g.roots())
	})
}

func TestPopLowestIndex(t *testing.T) {
	g := buildRunGraph(linearDef())

	assert.Equal(t, "A", popLowestIndex([]string{"C", "A", "B"}, g))
	assert.Equal(t, "B", popLowestIndex([]string{"C", "B"}, g))
}

func TestRemoveID(t *testing.T) {
	assert.Equal(t, []string{"A", "C"}, removeID([]string{"A", "B", "C"}, "B"))
	assert.Empty(t, removeID([]string{"A"}, "A"))
}

func TestResolveOutgoing_Unconditional(t *testing.T) {
	s := schedulerFor(linearDef())
	s.graph.nodes["A"].status = models.NodeExecutionCompleted

	runnable, skippable := s.resolveOutgoing("A", true, map[string]any{"fired": true})
	assert.Equal(t, []string{"B"}, runnable)
	assert.Empty(t, skippable)
}

func TestResolveOutgoing_ConditionalBranches(t *testing.T) {
	def := models.Definition{
		Nodes: []models.Node{
			{ID: "G", Type: "Conditional", Config: map[string]any{"conditions": "trigger.x > 0"}},
			{ID: "L", Type: "APICall"},
			{ID: "R", Type: "APICall"},
		},
		Edges: []models.Edge{
			{From: "G", To: "L", Condition: strPtr("output.x > 0")},
			{From: "G", To: "R", Condition: strPtr("output.x <= 0")},
		},
	}
	s := schedulerFor(def)
	s.graph.nodes["G"].status = models.NodeExecutionCompleted

	runnable, skippable := s.resolveOutgoing("G", true, map[string]any{"x": 5})
	assert.Equal(t, []string{"L"}, runnable)
	assert.Equal(t, []string{"R"}, skippable)
}

func TestResolveOutgoing_InactiveSourcePropagatesSkip(t *testing.T) {
	s := schedulerFor(linearDef())

	runnable, skippable := s.resolveOutgoing("A", false, nil)
	assert.Empty(t, runnable)
	assert.Equal(t, []string{"B"}, skippable)
}

func TestResolveOutgoing_FanInWaitsForAllEdges(t *testing.T) {
	def := models.Definition{
		Nodes: []models.Node{
			{ID: "a", Type: "FormTrigger"},
			{ID: "b", Type: "WebhookTrigger"},
			{ID: "join", Type: "DataMapper"},
		},
		Edges: []models.Edge{
			{From: "a", To: "join"},
			{From: "b", To: "join"},
		},
	}
	s := schedulerFor(def)

	runnable, skippable := s.resolveOutgoing("a", true, nil)
	assert.Empty(t, runnable, "join must wait for its second incoming edge")
	assert.Empty(t, skippable)

	runnable, skippable = s.resolveOutgoing("b", false, nil)
	assert.Equal(t, []string{"join"}, runnable, "one active incoming edge suffices")
	assert.Empty(t, skippable)
}

func TestResolveOutgoing_AllEdgesPrunedSkipsTarget(t *testing.T) {
	def := models.Definition{
		Nodes: []models.Node{
			{ID: "a", Type: "FormTrigger"},
			{ID: "b", Type: "WebhookTrigger"},
			{ID: "join", Type: "DataMapper"},
		},
		Edges: []models.Edge{
			{From: "a", To: "join"},
			{From: "b", To: "join"},
		},
	}
	s := schedulerFor(def)

	_, _ = s.resolveOutgoing("a", false, nil)
	runnable, skippable := s.resolveOutgoing("b", false, nil)
	assert.Empty(t, runnable)
	assert.Equal(t, []string{"join"}, skippable)
}

func TestResolveOutgoing_ConditionRuntimeErrorTreatedFalse(t *testing.T) {
	def := models.Definition{
		Nodes: []models.Node{
			{ID: "G", Type: "Conditional"},
			{ID: "L", Type: "APICall"},
		},
		Edges: []models.Edge{
			// `missing` is absent from the output, so the comparison fails
			// at evaluation time; the edge must be treated as inactive.
			{From: "G", To: "L", Condition: strPtr("output.missing > 0")},
		},
	}
	s := schedulerFor(def)

	runnable, skippable := s.resolveOutgoing("G", true, map[string]any{"x": 1})
	assert.Empty(t, runnable)
	assert.Equal(t, []string{"L"}, skippable)
}

func TestEvaluateCondition(t *testing.T) {
	s := schedulerFor(linearDef())

	t.Run("true", func(t *testing.T) {
		got, err := s.evaluateCondition("output.x > 0", "A", map[string]any{"x": 5})
		require.NoError(t, err)
		assert.True(t, got)
	})

	t.Run("false", func(t *testing.T) {
		got, err := s.evaluateCondition("output.x > 0", "A", map[string]any{"x": -1})
		require.NoError(t, err)
		assert.False(t, got)
	})

	t.Run("node id addressable", func(t *testing.T) {
		got, err := s.evaluateCondition(`node == "A"`, "A", nil)
		require.NoError(t, err)
		assert.True(t, got)
	})

	t.Run("compile error surfaces", func(t *testing.T) {
		_, err := s.evaluateCondition("output.x >", "A", map[string]any{"x": 1})
		assert.Error(t, err)
	})
}

func TestParentOutputs(t *testing.T) {
	def := models.Definition{
		Nodes: []models.Node{
			{ID: "a", Type: "FormTrigger"},
			{ID: "b", Type: "WebhookTrigger"},
			{ID: "join", Type: "DataMapper"},
		},
		Edges: []models.Edge{
			{From: "a", To: "join"},
			{From: "b", To: "join"},
		},
	}

	t.Run("no completed parents", func(t *testing.T) {
		s := schedulerFor(def)
		assert.Nil(t, s.parentOutputs("join"))
	})

	t.Run("single completed parent is unwrapped", func(t *testing.T) {
		s := schedulerFor(def)
		s.graph.nodes["a"].status = models.NodeExecutionCompleted
		s.graph.nodes["a"].output = map[string]any{"formId": "f"}

		assert.Equal(t, map[string]any{"formId": "f"}, s.parentOutputs("join"))
	})

	t.Run("multiple completed parents keyed by node", func(t *testing.T) {
		s := schedulerFor(def)
		s.graph.nodes["a"].status = models.NodeExecutionCompleted
		s.graph.nodes["a"].output = map[string]any{"v": 1}
		s.graph.nodes["b"].status = models.NodeExecutionCompleted
		s.graph.nodes["b"].output = map[string]any{"v": 2}

		got := s.parentOutputs("join")
		byNode, ok := got["__byNode"].(map[string]any)
		require.True(t, ok)
		assert.Len(t, byNode, 2)
		assert.Equal(t, map[string]any{"v": 1}, byNode["a"])
		assert.Equal(t, map[string]any{"v": 2}, byNode["b"])
	})
}

func TestAugmentWithParents(t *testing.T) {
	envelope := models.NodeInput{
		Workflow: models.NodeInputWorkflow{
			RunID:     "run-1",
			Status:    "running",
			Variables: map[string]any{"k": 1},
		},
		Nodes:   map[string]any{"A": map[string]any{"ok": true}},
		Trigger: map[string]any{"k": 1},
	}

	t.Run("without parent", func(t *testing.T) {
		m := augmentWithParents(envelope, nil)
		assert.NotContains(t, m, "parent")
		wf := m["workflow"].(map[string]any)
		assert.Equal(t, "run-1", wf["runId"])
		assert.Equal(t, envelope.Nodes, m["nodes"])
		assert.Equal(t, envelope.Trigger, m["trigger"])
	})

	t.Run("with parent", func(t *testing.T) {
		m := augmentWithParents(envelope, map[string]any{"mapped": true})
		assert.Equal(t, map[string]any{"mapped": true}, m["parent"])
	})
}

func TestDispatcherRetryPolicy(t *testing.T) {
	rp := dispatcherRetryPolicy(dispatcher.RetryPolicy{
		MaxRetries:     2,
		InitialBackoff: 250,
		BackoffFactor:  2,
	})

	assert.Equal(t, 3, rp.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, rp.InitialDelay)
	assert.Equal(t, BackoffExponential, rp.BackoffStrategy)
	assert.True(t, rp.ShouldRetry(assertTransientErr()))
	assert.False(t, rp.ShouldRetry(assertPermanentErr()))
}

func assertTransientErr() error {
	return dispatcher.NewTransient("APICall", assertBaseErr())
}

func assertPermanentErr() error {
	return dispatcher.NewPermanent("APICall", assertBaseErr())
}

func assertBaseErr() error { return &fakeNetError{temporary: true} }
