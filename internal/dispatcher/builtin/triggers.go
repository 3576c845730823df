// Package builtin provides the reference executor implementations for
// the ten known node types named by the validator's type-specific config
// rules. Trigger executors are dispatched like any other node: a trigger
// at a root of the graph passes the run's triggerData through as its
// output, and the same executor serves a trigger wired mid-graph, so the
// dispatcher never special-cases node types.
package builtin

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/smilemakc/workflowrt/internal/dispatcher"
)

// ScheduleTriggerExecutor validates and echoes a cron-based trigger's
// configuration. Its output is the run's trigger data, unmodified.
type ScheduleTriggerExecutor struct {
	*dispatcher.BaseExecutor
}

func NewScheduleTriggerExecutor() *ScheduleTriggerExecutor {
	return &ScheduleTriggerExecutor{BaseExecutor: dispatcher.NewBaseExecutor("ScheduleTrigger")}
}

func (e *ScheduleTriggerExecutor) Validate(config map[string]any) error {
	expr := e.GetStringDefault(config, "cron", e.GetStringDefault(config, "cron_expression", ""))
	if expr == "" {
		return fmt.Errorf("ScheduleTrigger requires cron or cron_expression")
	}
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

func (e *ScheduleTriggerExecutor) Execute(ctx context.Context, config map[string]any, input any) (any, error) {
	if err := e.Validate(config); err != nil {
		return nil, dispatcher.NewPermanent(e.NodeType, err)
	}
	return passthroughTrigger(input), nil
}

// FormTriggerExecutor passes through the form submission payload that
// started the run.
type FormTriggerExecutor struct {
	*dispatcher.BaseExecutor
}

func NewFormTriggerExecutor() *FormTriggerExecutor {
	return &FormTriggerExecutor{BaseExecutor: dispatcher.NewBaseExecutor("FormTrigger")}
}

func (e *FormTriggerExecutor) Validate(config map[string]any) error {
	return e.ValidateRequired(config, "form_id")
}

func (e *FormTriggerExecutor) Execute(ctx context.Context, config map[string]any, input any) (any, error) {
	if err := e.Validate(config); err != nil {
		return nil, dispatcher.NewPermanent(e.NodeType, err)
	}
	return passthroughTrigger(input), nil
}

// WebhookTriggerExecutor passes through the webhook delivery body that
// started the run.
type WebhookTriggerExecutor struct {
	*dispatcher.BaseExecutor
}

func NewWebhookTriggerExecutor() *WebhookTriggerExecutor {
	return &WebhookTriggerExecutor{BaseExecutor: dispatcher.NewBaseExecutor("WebhookTrigger")}
}

func (e *WebhookTriggerExecutor) Validate(config map[string]any) error {
	return e.ValidateRequired(config, "endpoint_path")
}

func (e *WebhookTriggerExecutor) Execute(ctx context.Context, config map[string]any, input any) (any, error) {
	if err := e.Validate(config); err != nil {
		return nil, dispatcher.NewPermanent(e.NodeType, err)
	}
	return passthroughTrigger(input), nil
}

func passthroughTrigger(input any) any {
	env, ok := input.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	if trigger, ok := env["trigger"]; ok {
		return trigger
	}
	return map[string]any{}
}
