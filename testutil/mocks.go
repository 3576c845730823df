package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// SetupAPIEndpointMock creates a mock HTTP endpoint for APICall executor
// tests. It echoes the request body back under "received".
func SetupAPIEndpointMock(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		var body any
		_ = json.NewDecoder(r.Body).Decode(&body)

		json.NewEncoder(w).Encode(map[string]any{
			"ok":       true,
			"method":   r.Method,
			"path":     r.URL.Path,
			"received": body,
		})
	}))
}

// SetupAPIErrorMock creates a mock endpoint that always answers with
// statusCode, for exercising the Transient (5xx) vs Permanent (4xx)
// classification in the APICall executor.
func SetupAPIErrorMock(t *testing.T, statusCode int, message string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		json.NewEncoder(w).Encode(map[string]any{"error": message})
	}))
}

// SetupFlakyAPIMock creates a mock endpoint that fails with 503 for the
// first failures requests and succeeds afterwards, for retry-policy tests.
func SetupFlakyAPIMock(t *testing.T, failures int) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	served := 0
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		served++
		n := served
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if n <= failures {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]any{"error": "temporarily unavailable"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "attempt": n})
	}))
}

// CallbackRecorder captures HTTP callback observer deliveries.
type CallbackRecorder struct {
	mu       sync.Mutex
	payloads []map[string]any
}

// SetupCallbackMock creates a mock callback receiver and a recorder that
// accumulates every JSON payload delivered to it.
func SetupCallbackMock(t *testing.T) (*httptest.Server, *CallbackRecorder) {
	t.Helper()
	rec := &CallbackRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)

		rec.mu.Lock()
		rec.payloads = append(rec.payloads, payload)
		rec.mu.Unlock()

		w.WriteHeader(http.StatusNoContent)
	}))
	return srv, rec
}

// Payloads returns a copy of the recorded callback payloads.
func (r *CallbackRecorder) Payloads() []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]map[string]any, len(r.payloads))
	copy(out, r.payloads)
	return out
}

// Count returns the number of callbacks received.
func (r *CallbackRecorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payloads)
}

// SetupCustomMock creates a mock server with a caller-provided handler.
func SetupCustomMock(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	return httptest.NewServer(handler)
}
