package dispatcher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/workflowrt/internal/models"
)

type mockExecutor struct {
	executeFn func(ctx context.Context, config map[string]any, input any) (any, error)
}

func (m *mockExecutor) Execute(ctx context.Context, config map[string]any, input any) (any, error) {
	if m.executeFn != nil {
		return m.executeFn(ctx, config, input)
	}
	return map[string]any{"status": "ok"}, nil
}

func (m *mockExecutor) Validate(config map[string]any) error { return nil }

func TestRegistry_RegisterGetHasListUnregister(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Has("http"))

	require.NoError(t, r.Register("http", &mockExecutor{}))
	assert.True(t, r.Has("http"))
	assert.ElementsMatch(t, []string{"http"}, r.List())

	exec, err := r.Get("http")
	require.NoError(t, err)
	assert.NotNil(t, exec)

	require.NoError(t, r.Unregister("http"))
	assert.False(t, r.Has("http"))
}

func TestRegistry_RegisterRejectsEmptyOrNil(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register("", &mockExecutor{}))
	assert.Error(t, r.Register("http", nil))
}

func TestRegistry_GetUnknownReturnsErrExecutorNotFound(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("unknown")
	assert.True(t, errors.Is(err, models.ErrExecutorNotFound))
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		go func() {
			r.Register("type1", &mockExecutor{})
			r.Get("type1")
			r.Has("type1")
			r.List()
			done <- struct{}{}
		}()
	}
	for i := 0; i < 4; i++ {
		<-done
	}
	assert.True(t, r.Has("type1"))
}
