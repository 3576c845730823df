package dispatcher

import (
	"context"
	"fmt"

	"github.com/smilemakc/workflowrt/internal/models"
)

// Dispatcher resolves a node type to an executor and invokes it with a
// prepared input envelope, translating an unregistered executor into a
// Permanent DispatchError that wraps models.ErrExecutorNotFound.
type Dispatcher struct {
	manager Manager
}

// New returns a Dispatcher backed by the given executor Manager.
func New(manager Manager) *Dispatcher {
	return &Dispatcher{manager: manager}
}

// Dispatch resolves nodeType, invokes the executor, and normalizes its
// error into a classified DispatchError.
func (d *Dispatcher) Dispatch(ctx context.Context, nodeType string, config map[string]any, input any) (any, error) {
	exec, err := d.manager.Get(nodeType)
	if err != nil {
		return nil, NewPermanent(nodeType, fmt.Errorf("%w: %s", models.ErrExecutorNotFound, nodeType))
	}

	if err := exec.Validate(config); err != nil {
		return nil, NewPermanent(nodeType, err)
	}

	output, err := exec.Execute(ctx, config, input)
	if err != nil {
		if de, ok := err.(*DispatchError); ok {
			return nil, de
		}
		// Executors that don't classify their own errors are treated as
		// permanent: the engine cannot assume an unclassified failure is
		// safe to retry against a side-effecting executor.
		return nil, NewPermanent(nodeType, err)
	}

	return output, nil
}

// RetryPolicyFor returns the executor's declared retry policy, or the
// package default if the executor does not implement RetryAware.
func (d *Dispatcher) RetryPolicyFor(nodeType string) RetryPolicy {
	exec, err := d.manager.Get(nodeType)
	if err != nil {
		return DefaultRetryPolicy
	}
	if ra, ok := exec.(RetryAware); ok {
		return ra.RetryPolicy()
	}
	return DefaultRetryPolicy
}
