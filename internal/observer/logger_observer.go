package observer

import (
	"context"

	"github.com/smilemakc/workflowrt/internal/logger"
)

// LoggerObserver records every execution/node event as a structured log
// line. It never errors: a logging failure must not fail a run.
type LoggerObserver struct {
	log    *logger.Logger
	filter EventFilter
}

// NewLoggerObserver creates a LoggerObserver writing through log.
func NewLoggerObserver(log *logger.Logger) *LoggerObserver {
	return &LoggerObserver{log: log}
}

// Name returns the observer's name.
func (o *LoggerObserver) Name() string { return "logger" }

// Filter returns the event filter, nil meaning all events.
func (o *LoggerObserver) Filter() EventFilter { return o.filter }

// OnEvent logs the event at a level matching its outcome.
func (o *LoggerObserver) OnEvent(ctx context.Context, event Event) error {
	args := []any{
		"eventType", string(event.Type),
		"executionId", event.ExecutionID,
		"workflowId", event.WorkflowID,
		"status", event.Status,
	}
	if event.NodeID != nil {
		args = append(args, "nodeId", *event.NodeID)
	}
	if event.DurationMs != nil {
		args = append(args, "durationMs", *event.DurationMs)
	}
	if event.Error != nil {
		args = append(args, "error", event.Error.Error())
		o.log.ErrorContext(ctx, "workflow event", args...)
		return nil
	}
	o.log.InfoContext(ctx, "workflow event", args...)
	return nil
}
