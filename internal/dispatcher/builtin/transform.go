package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/smilemakc/workflowrt/internal/dispatcher"
)

// DataMapperExecutor applies a set of mapping rules to project fields
// from the input envelope into a new output shape. A mapping rule's
// value is an expr-lang expression evaluated against the envelope; a
// bare string starting with "$." is treated as a dotted path shorthand
// into the envelope's `nodes` map.
type DataMapperExecutor struct {
	*dispatcher.BaseExecutor
}

func NewDataMapperExecutor() *DataMapperExecutor {
	return &DataMapperExecutor{BaseExecutor: dispatcher.NewBaseExecutor("DataMapper")}
}

func (e *DataMapperExecutor) Validate(config map[string]any) error {
	return e.ValidateRequired(config, "input_schema", "output_schema", "mapping_rules")
}

func (e *DataMapperExecutor) Execute(ctx context.Context, config map[string]any, input any) (any, error) {
	if err := e.Validate(config); err != nil {
		return nil, dispatcher.NewPermanent(e.NodeType, err)
	}

	rules, _ := e.GetMap(config, "mapping_rules")
	env, _ := input.(map[string]any)
	output := make(map[string]any, len(rules))

	for field, raw := range rules {
		ruleExpr, ok := raw.(string)
		if !ok {
			output[field] = raw
			continue
		}
		if strings.HasPrefix(ruleExpr, "$.") {
			var cur any = env["nodes"]
			for _, key := range strings.Split(strings.TrimPrefix(ruleExpr, "$."), ".") {
				m, _ := cur.(map[string]any)
				cur = m[key]
			}
			output[field] = cur
			continue
		}
		program, err := expr.Compile(ruleExpr, expr.Env(env))
		if err != nil {
			return nil, dispatcher.NewPermanent(e.NodeType, fmt.Errorf("mapping rule %q: %w", field, err))
		}
		result, err := expr.Run(program, env)
		if err != nil {
			return nil, dispatcher.NewTransient(e.NodeType, fmt.Errorf("mapping rule %q: %w", field, err))
		}
		output[field] = result
	}

	return output, nil
}

// CalculatorExecutor evaluates a single formula expression over the
// declared input fields and writes the result to output_field.
type CalculatorExecutor struct {
	*dispatcher.BaseExecutor
}

func NewCalculatorExecutor() *CalculatorExecutor {
	return &CalculatorExecutor{BaseExecutor: dispatcher.NewBaseExecutor("Calculator")}
}

func (e *CalculatorExecutor) Validate(config map[string]any) error {
	return e.ValidateRequired(config, "formula", "input_fields", "output_field")
}

func (e *CalculatorExecutor) Execute(ctx context.Context, config map[string]any, input any) (any, error) {
	if err := e.Validate(config); err != nil {
		return nil, dispatcher.NewPermanent(e.NodeType, err)
	}

	formula, err := e.GetString(config, "formula")
	if err != nil {
		return nil, dispatcher.NewPermanent(e.NodeType, err)
	}
	outputField, err := e.GetString(config, "output_field")
	if err != nil {
		return nil, dispatcher.NewPermanent(e.NodeType, err)
	}

	env, _ := input.(map[string]any)
	program, err := expr.Compile(formula, expr.Env(env))
	if err != nil {
		return nil, dispatcher.NewPermanent(e.NodeType, fmt.Errorf("formula: %w", err))
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return nil, dispatcher.NewTransient(e.NodeType, fmt.Errorf("formula: %w", err))
	}

	return map[string]any{outputField: result}, nil
}
