// Package engine provides the composition engine runtime: deployment
// state, schema patches for the user data directory, and a table-driven
// Cantonese/English engine implementing ime.CompositionEngine.
package engine

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrNotReady is returned when the engine is used before deployment succeeded.
	ErrNotReady = errors.New("engine: not ready")

	// ErrUnknownSchema is returned for a schema the lexicon does not define.
	ErrUnknownSchema = errors.New("engine: unknown schema")
)

// State is the deployment state of the engine.
type State int

const (
	StateUninitialized State = iota
	StateDeploying
	StateFailure
	StateSucceeded
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateDeploying:
		return "deploying"
	case StateFailure:
		return "failure"
	case StateSucceeded:
		return "succeeded"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// StateListener is called after every state change, outside the engine lock.
type StateListener func(from, to State)

type stateMachine struct {
	mu        sync.RWMutex
	state     State
	listeners []StateListener
}

func (m *stateMachine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// OnStateChange registers a listener.
func (m *stateMachine) OnStateChange(fn StateListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *stateMachine) setState(s State) {
	m.mu.Lock()
	old := m.state
	m.state = s
	listeners := make([]StateListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	if old == s {
		return
	}
	for _, fn := range listeners {
		fn(old, s)
	}
}
