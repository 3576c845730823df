package api

import (
	"errors"
	"net/http"

	"github.com/smilemakc/workflowrt/internal/models"
)

// APIError is the error envelope every non-2xx response carries.
type APIError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	HTTPStatus int            `json:"-"`
}

func (e *APIError) Error() string { return e.Message }

func NewAPIError(code, message string, httpStatus int) *APIError {
	return &APIError{Code: code, Message: message, HTTPStatus: httpStatus}
}

func NewAPIErrorWithDetails(code, message string, httpStatus int, details map[string]any) *APIError {
	return &APIError{Code: code, Message: message, Details: details, HTTPStatus: httpStatus}
}

var (
	ErrMissingParameter = NewAPIError("MISSING_PARAMETER", "required parameter is missing", http.StatusBadRequest)
	ErrInvalidJSON      = NewAPIError("INVALID_JSON", "invalid JSON in request body", http.StatusBadRequest)
	ErrTooManyItems     = NewAPIError("TOO_MANY_ITEMS", "batch exceeds the maximum of 100 items", http.StatusBadRequest)
	ErrInternalServer   = NewAPIError("INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
)

// TranslateError maps a domain/validator error to the APIError shape the
// client sees, following the not-found/invalid-state/validation taxonomy
// already defined in internal/models.
func TranslateError(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	case errors.Is(err, models.ErrWorkflowNotFound):
		return NewAPIError("WORKFLOW_NOT_FOUND", "workflow not found", http.StatusNotFound)
	case errors.Is(err, models.ErrRunNotFound):
		return NewAPIError("RUN_NOT_FOUND", "execution not found", http.StatusNotFound)
	case errors.Is(err, models.ErrNodeNotFound):
		return NewAPIError("NODE_NOT_FOUND", "node not found", http.StatusNotFound)
	case errors.Is(err, models.ErrEdgeNotFound):
		return NewAPIError("EDGE_NOT_FOUND", "edge not found", http.StatusNotFound)
	case errors.Is(err, models.ErrNotActive):
		return NewAPIError("WORKFLOW_NOT_ACTIVE", "workflow is not active", http.StatusBadRequest)
	case errors.Is(err, models.ErrNotRetryable):
		return NewAPIError("RUN_NOT_RETRYABLE", "run is not in a retryable state", http.StatusBadRequest)
	case errors.Is(err, models.ErrCyclicGraph):
		return NewAPIError("CYCLIC_GRAPH", "workflow definition contains a cycle", http.StatusBadRequest)
	case errors.Is(err, models.ErrInvalidWorkflow):
		return NewAPIError("INVALID_WORKFLOW", "invalid workflow definition", http.StatusBadRequest)
	}

	var ve models.ValidationErrors
	if errors.As(err, &ve) {
		details := make(map[string]any, len(ve))
		for _, e := range ve {
			details[e.NodeID+"#"+e.Field] = e.Message
		}
		message := "invalid workflow definition"
		if len(ve) > 0 {
			message = ve[0].Message
		}
		return NewAPIErrorWithDetails("VALIDATION_FAILED", message, http.StatusBadRequest, details)
	}

	return NewAPIError("INTERNAL_ERROR", "an unexpected error occurred", http.StatusInternalServerError)
}
