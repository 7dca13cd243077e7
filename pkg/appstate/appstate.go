// Package appstate delivers host application lifecycle transitions
// (foreground, background, inactive) to subscribers. The host platform
// adapter calls Notify; interested components subscribe and receive an
// unsubscribe handle for teardown.
package appstate

import (
	"sync"

	"github.com/google/uuid"
)

// State is a discrete application lifecycle state reported by the host.
type State string

const (
	// StateActive means the application is in the foreground.
	StateActive State = "active"

	// StateBackground means the application has been backgrounded.
	StateBackground State = "background"

	// StateInactive means the application is transitioning or obscured
	// (e.g. app switcher, incoming call). Treated like background for
	// session purposes.
	StateInactive State = "inactive"
)

// Foreground reports whether the state counts as the app being in front
// of the user.
func (s State) Foreground() bool {
	return s == StateActive
}

// Handler receives lifecycle state transitions.
type Handler func(State)

// Notifier fans lifecycle transitions out to subscribed handlers.
// The zero value is not usable; create one with NewNotifier.
type Notifier struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{
		handlers: make(map[string]Handler),
	}
}

// Subscribe registers a handler and returns its unsubscribe function.
// Unsubscribing more than once is a safe no-op.
func (n *Notifier) Subscribe(h Handler) func() {
	id := uuid.NewString()

	n.mu.Lock()
	n.handlers[id] = h
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		delete(n.handlers, id)
		n.mu.Unlock()
	}
}

// Notify delivers a state transition to every subscribed handler.
// Handlers run synchronously on the caller's goroutine; the handler set is
// snapshotted first so a handler may unsubscribe itself during delivery.
func (n *Notifier) Notify(state State) {
	n.mu.RLock()
	snapshot := make([]Handler, 0, len(n.handlers))
	for _, h := range n.handlers {
		snapshot = append(snapshot, h)
	}
	n.mu.RUnlock()

	for _, h := range snapshot {
		h(state)
	}
}

// SubscriberCount returns the number of active subscriptions.
func (n *Notifier) SubscriberCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.handlers)
}
