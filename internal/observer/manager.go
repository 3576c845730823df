package observer

import (
	"context"
	"fmt"
	"sync"

	"github.com/smilemakc/workflowrt/internal/logger"
)

// ObserverManager fans events out to registered observers. Notification
// never blocks the caller: each observer runs on its own goroutine, and
// observer errors and panics are logged, not propagated — a broken
// callback sink must not fail a run.
type ObserverManager struct {
	mu         sync.RWMutex
	observers  []Observer
	logger     *logger.Logger
	bufferSize int
}

// ManagerOption configures an ObserverManager.
type ManagerOption func(*ObserverManager)

// WithLogger sets the logger used for observer failures.
func WithLogger(l *logger.Logger) ManagerOption {
	return func(m *ObserverManager) { m.logger = l }
}

// WithBufferSize records a notification buffer size. Notify does not read
// it: each notification starts one goroutine per observer.
func WithBufferSize(size int) ManagerOption {
	return func(m *ObserverManager) { m.bufferSize = size }
}

// NewObserverManager builds an empty manager.
func NewObserverManager(opts ...ManagerOption) *ObserverManager {
	mgr := &ObserverManager{bufferSize: 100}
	for _, opt := range opts {
		opt(mgr)
	}
	return mgr
}

// Register adds an observer; names must be unique.
func (m *ObserverManager) Register(observer Observer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, obs := range m.observers {
		if obs.Name() == observer.Name() {
			return fmt.Errorf("observer with name %q already registered", observer.Name())
		}
	}

	m.observers = append(m.observers, observer)
	return nil
}

// Unregister removes the observer registered under name.
func (m *ObserverManager) Unregister(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, obs := range m.observers {
		if obs.Name() == name {
			m.observers = append(m.observers[:i], m.observers[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("observer %q not found", name)
}

// Notify delivers event to every registered observer asynchronously.
func (m *ObserverManager) Notify(ctx context.Context, event Event) {
	m.mu.RLock()
	snapshot := make([]Observer, len(m.observers))
	copy(snapshot, m.observers)
	m.mu.RUnlock()

	for _, obs := range snapshot {
		go m.notifyObserver(ctx, obs, event)
	}
}

func (m *ObserverManager) notifyObserver(ctx context.Context, obs Observer, event Event) {
	defer func() {
		if r := recover(); r != nil && m.logger != nil {
			m.logger.ErrorContext(ctx, "Observer panic recovered",
				"observer", obs.Name(),
				"event_type", string(event.Type),
				"panic", r,
			)
		}
	}()

	if filter := obs.Filter(); filter != nil && !filter.ShouldNotify(event) {
		return
	}

	if err := obs.OnEvent(ctx, event); err != nil && m.logger != nil {
		m.logger.ErrorContext(ctx, "Observer notification failed",
			"observer", obs.Name(),
			"event_type", string(event.Type),
			"error", err,
		)
	}
}

// Count returns the number of registered observers.
func (m *ObserverManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.observers)
}
