package builtin

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"

	"github.com/smilemakc/workflowrt/internal/dispatcher"
)

// ConditionalExecutor evaluates its `conditions` config (a map of branch
// name to expr-lang expression, or a single bare expression) against the
// input envelope and returns the evaluated results. The engine's own
// edge-condition evaluation — not this executor — decides which outgoing
// edges actually fire; this executor's output simply makes the evaluated
// values available to those edge conditions via node output lookup.
type ConditionalExecutor struct {
	*dispatcher.BaseExecutor
}

func NewConditionalExecutor() *ConditionalExecutor {
	return &ConditionalExecutor{BaseExecutor: dispatcher.NewBaseExecutor("Conditional")}
}

func (e *ConditionalExecutor) Validate(config map[string]any) error {
	return e.ValidateRequired(config, "conditions")
}

func (e *ConditionalExecutor) Execute(ctx context.Context, config map[string]any, input any) (any, error) {
	if err := e.Validate(config); err != nil {
		return nil, dispatcher.NewPermanent(e.NodeType, err)
	}

	env, _ := input.(map[string]any)
	conditions := config["conditions"]

	evaluate := func(exprStr string) (any, error) {
		program, err := expr.Compile(exprStr, expr.Env(env))
		if err != nil {
			return nil, fmt.Errorf("condition %q: %w", exprStr, err)
		}
		return expr.Run(program, env)
	}

	switch c := conditions.(type) {
	case string:
		result, err := evaluate(c)
		if err != nil {
			return nil, dispatcher.NewPermanent(e.NodeType, err)
		}
		return map[string]any{"result": result}, nil
	case map[string]any:
		output := make(map[string]any, len(c))
		for branch, raw := range c {
			exprStr, ok := raw.(string)
			if !ok {
				return nil, dispatcher.NewPermanent(e.NodeType, fmt.Errorf("branch %q: condition must be a string", branch))
			}
			result, err := evaluate(exprStr)
			if err != nil {
				return nil, dispatcher.NewPermanent(e.NodeType, err)
			}
			output[branch] = result
		}
		return output, nil
	default:
		return nil, dispatcher.NewPermanent(e.NodeType, fmt.Errorf("conditions must be a string or object"))
	}
}

// LoopExecutor evaluates items_source against the input envelope and
// returns the resulting collection. Iterating the body per item is a
// concern of the executor implementation backing `iteration_body`
// (out of scope here: node implementations are external to the engine).
type LoopExecutor struct {
	*dispatcher.BaseExecutor
}

func NewLoopExecutor() *LoopExecutor {
	return &LoopExecutor{BaseExecutor: dispatcher.NewBaseExecutor("Loop")}
}

func (e *LoopExecutor) Validate(config map[string]any) error {
	return e.ValidateRequired(config, "items_source", "iteration_body")
}

func (e *LoopExecutor) Execute(ctx context.Context, config map[string]any, input any) (any, error) {
	if err := e.Validate(config); err != nil {
		return nil, dispatcher.NewPermanent(e.NodeType, err)
	}

	source, err := e.GetString(config, "items_source")
	if err != nil {
		return nil, dispatcher.NewPermanent(e.NodeType, err)
	}

	env, _ := input.(map[string]any)
	program, err := expr.Compile(source, expr.Env(env))
	if err != nil {
		return nil, dispatcher.NewPermanent(e.NodeType, fmt.Errorf("items_source: %w", err))
	}
	items, err := expr.Run(program, env)
	if err != nil {
		return nil, dispatcher.NewTransient(e.NodeType, fmt.Errorf("items_source: %w", err))
	}

	return map[string]any{"items": items}, nil
}
