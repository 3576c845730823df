package observer

import (
	"context"
	"fmt"
	"sync"
)

// MockObserver records every event it receives, for tests that assert on
// the engine's notification stream.
type MockObserver struct {
	mu         sync.Mutex
	name       string
	events     []Event
	callCount  int
	filter     EventFilter
	shouldFail bool
	failError  error
}

// NewMockObserver returns a recording observer registered under name.
func NewMockObserver(name string) *MockObserver {
	return &MockObserver{name: name}
}

func (m *MockObserver) Name() string { return m.name }

func (m *MockObserver) Filter() EventFilter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter
}

// OnEvent records the event and fails if configured to.
func (m *MockObserver) OnEvent(ctx context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.callCount++
	m.events = append(m.events, event)

	if m.shouldFail {
		if m.failError != nil {
			return m.failError
		}
		return fmt.Errorf("mock observer error")
	}
	return nil
}

// GetEvents returns a copy of all recorded events.
func (m *MockObserver) GetEvents() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// EventsOfType returns the recorded events matching t, in arrival order.
func (m *MockObserver) EventsOfType(t EventType) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Event
	for _, e := range m.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// GetCallCount returns how many times OnEvent was invoked.
func (m *MockObserver) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// SetFilter installs an event filter.
func (m *MockObserver) SetFilter(filter EventFilter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filter = filter
}

// SetShouldFail makes subsequent OnEvent calls return err (or a generic
// error when err is nil).
func (m *MockObserver) SetShouldFail(fail bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shouldFail = fail
	m.failError = err
}

// Reset clears recorded events and the call count.
func (m *MockObserver) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
	m.callCount = 0
}
