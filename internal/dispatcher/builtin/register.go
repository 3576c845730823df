package builtin

import (
	"github.com/smilemakc/workflowrt/internal/dispatcher"
)

// RegisterAll registers the reference executor for each of the ten known
// node types into manager. Callers that also run the validator should
// register the same names into its Registry (they are the same set by
// construction: validator.NewRegistry() already seeds them).
func RegisterAll(manager dispatcher.Manager) error {
	executors := map[string]dispatcher.Executor{
		"ScheduleTrigger": NewScheduleTriggerExecutor(),
		"FormTrigger":     NewFormTriggerExecutor(),
		"WebhookTrigger":  NewWebhookTriggerExecutor(),
		"DataMapper":      NewDataMapperExecutor(),
		"Calculator":      NewCalculatorExecutor(),
		"Conditional":     NewConditionalExecutor(),
		"Loop":            NewLoopExecutor(),
		"DatabaseWrite":   NewDatabaseWriteExecutor(),
		"APICall":         NewAPICallExecutor(),
		"ERPExport":       NewERPExportExecutor(),
	}

	for nodeType, exec := range executors {
		if err := manager.Register(nodeType, exec); err != nil {
			return err
		}
	}
	return nil
}
