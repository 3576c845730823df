package dispatcher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatch_UnknownNodeTypeIsPermanent(t *testing.T) {
	d := New(NewRegistry())
	_, err := d.Dispatch(context.Background(), "NoSuchType", nil, nil)
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}

func TestDispatch_PropagatesClassifiedError(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("flaky", &mockExecutor{
		executeFn: func(ctx context.Context, config map[string]any, input any) (any, error) {
			return nil, NewTransient("flaky", errors.New("boom"))
		},
	}))

	d := New(r)
	_, err := d.Dispatch(context.Background(), "flaky", map[string]any{}, nil)
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestDispatch_UnclassifiedErrorIsTreatedPermanent(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("broken", &mockExecutor{
		executeFn: func(ctx context.Context, config map[string]any, input any) (any, error) {
			return nil, errors.New("unclassified")
		},
	}))

	d := New(r)
	_, err := d.Dispatch(context.Background(), "broken", map[string]any{}, nil)
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}
