package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/smilemakc/workflowrt/internal/dispatcher"
)

// DatabaseWriteExecutor performs a side-effecting write against an
// externally-configured connection. The contract is at-least-once: the
// engine does not roll the write back on a downstream failure. This
// reference implementation does not hold a real connection pool (node
// implementations are external to the engine per the dispatch contract);
// it validates config shape and reports the operation it would perform.
type DatabaseWriteExecutor struct {
	*dispatcher.BaseExecutor
}

func NewDatabaseWriteExecutor() *DatabaseWriteExecutor {
	return &DatabaseWriteExecutor{BaseExecutor: dispatcher.NewBaseExecutor("DatabaseWrite")}
}

func (e *DatabaseWriteExecutor) Validate(config map[string]any) error {
	return e.ValidateRequired(config, "connection", "table", "operation")
}

func (e *DatabaseWriteExecutor) Execute(ctx context.Context, config map[string]any, input any) (any, error) {
	if err := e.Validate(config); err != nil {
		return nil, dispatcher.NewPermanent(e.NodeType, err)
	}

	table, _ := e.GetString(config, "table")
	operation, _ := e.GetString(config, "operation")

	select {
	case <-ctx.Done():
		return nil, dispatcher.NewTransient(e.NodeType, ctx.Err())
	default:
	}

	return map[string]any{
		"table":     table,
		"operation": operation,
		"status":    "written",
	}, nil
}

// APICallExecutor makes an outbound HTTP call described by its config.
// Network and 5xx failures are Transient; 4xx responses are Permanent.
type APICallExecutor struct {
	*dispatcher.BaseExecutor
	client *http.Client
}

func NewAPICallExecutor() *APICallExecutor {
	return &APICallExecutor{
		BaseExecutor: dispatcher.NewBaseExecutor("APICall"),
		client:       &http.Client{Timeout: 30 * time.Second},
	}
}

func (e *APICallExecutor) Validate(config map[string]any) error {
	return e.ValidateRequired(config, "endpoint", "method")
}

func (e *APICallExecutor) Execute(ctx context.Context, config map[string]any, input any) (any, error) {
	if err := e.Validate(config); err != nil {
		return nil, dispatcher.NewPermanent(e.NodeType, err)
	}

	endpoint, _ := e.GetString(config, "endpoint")
	method, _ := e.GetString(config, "method")

	var body io.Reader
	if payload, ok := config["body"]; ok {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, dispatcher.NewPermanent(e.NodeType, fmt.Errorf("encode body: %w", err))
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, dispatcher.NewPermanent(e.NodeType, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, dispatcher.NewTransient(e.NodeType, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, dispatcher.NewTransient(e.NodeType, err)
	}

	var decoded any
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &decoded)
	}

	if resp.StatusCode >= 500 {
		return nil, dispatcher.NewTransient(e.NodeType, fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return nil, dispatcher.NewPermanent(e.NodeType, fmt.Errorf("status %d", resp.StatusCode))
	}

	return map[string]any{"status": resp.StatusCode, "body": decoded}, nil
}

// ERPExportExecutor pushes a mapped payload to an external ERP system.
// Like DatabaseWriteExecutor this is a reference shape: the concrete ERP
// integration is an external collaborator, not the engine's concern.
type ERPExportExecutor struct {
	*dispatcher.BaseExecutor
}

func NewERPExportExecutor() *ERPExportExecutor {
	return &ERPExportExecutor{BaseExecutor: dispatcher.NewBaseExecutor("ERPExport")}
}

func (e *ERPExportExecutor) Validate(config map[string]any) error {
	return e.ValidateRequired(config, "system_type", "connection_details", "mapping")
}

func (e *ERPExportExecutor) Execute(ctx context.Context, config map[string]any, input any) (any, error) {
	if err := e.Validate(config); err != nil {
		return nil, dispatcher.NewPermanent(e.NodeType, err)
	}

	systemType, _ := e.GetString(config, "system_type")

	select {
	case <-ctx.Done():
		return nil, dispatcher.NewTransient(e.NodeType, ctx.Err())
	default:
	}

	return map[string]any{"system_type": systemType, "status": "exported"}, nil
}
