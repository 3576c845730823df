package observer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type callbackSink struct {
	mu       sync.Mutex
	payloads []map[string]any
	failures int
}

func (s *callbackSink) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.failures > 0 {
			s.failures--
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		s.payloads = append(s.payloads, payload)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *callbackSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payloads)
}

func (s *callbackSink) first() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payloads[0]
}

func TestHTTPCallbackObserver_DeliversPayload(t *testing.T) {
	sink := &callbackSink{}
	srv := httptest.NewServer(sink.handler())
	defer srv.Close()

	obs := NewHTTPCallbackObserver(srv.URL)

	nodeID := "mapper"
	nodeType := "DataMapper"
	durMs := int64(42)
	err := obs.OnEvent(context.Background(), Event{
		Type:        EventTypeNodeCompleted,
		ExecutionID: "run-1",
		WorkflowID:  "wf-1",
		Timestamp:   time.Now().UTC(),
		NodeID:      &nodeID,
		NodeType:    &nodeType,
		Status:      "completed",
		Output:      map[string]any{"rows": 3},
		DurationMs:  &durMs,
	})
	require.NoError(t, err)
	require.Equal(t, 1, sink.count())

	payload := sink.first()
	assert.Equal(t, "node.completed", payload["event_type"])
	assert.Equal(t, "run-1", payload["execution_id"])
	assert.Equal(t, "mapper", payload["node_id"])
	assert.Equal(t, "DataMapper", payload["node_type"])
	assert.NotContains(t, payload, "node_name", "unset optional fields stay absent")
	assert.Equal(t, float64(42), payload["duration_ms"])
}

func TestHTTPCallbackObserver_RetriesOnServerError(t *testing.T) {
	sink := &callbackSink{failures: 2}
	srv := httptest.NewServer(sink.handler())
	defer srv.Close()

	obs := NewHTTPCallbackObserver(srv.URL,
		WithHTTPRetry(3, time.Millisecond, 1.0),
	)

	err := obs.OnEvent(context.Background(), Event{
		Type:        EventTypeExecutionCompleted,
		ExecutionID: "run-1",
		WorkflowID:  "wf-1",
		Timestamp:   time.Now().UTC(),
		Status:      "completed",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, sink.count())
}

func TestHTTPCallbackObserver_FailsAfterRetriesExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	obs := NewHTTPCallbackObserver(srv.URL, WithHTTPRetry(1, time.Millisecond, 1.0))

	err := obs.OnEvent(context.Background(), Event{
		Type:        EventTypeExecutionFailed,
		ExecutionID: "run-1",
		Timestamp:   time.Now().UTC(),
	})
	assert.Error(t, err)
}

func TestHTTPCallbackObserver_CustomHeaders(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	obs := NewHTTPCallbackObserver(srv.URL,
		WithHTTPHeaders(map[string]string{"Authorization": "Bearer cb-token"}),
	)

	require.NoError(t, obs.OnEvent(context.Background(), Event{
		Type:      EventTypeExecutionStarted,
		Timestamp: time.Now().UTC(),
	}))
	assert.Equal(t, "Bearer cb-token", gotAuth)
}
