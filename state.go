package avatarrelay

import (
	"fmt"
	"sync"
)

// ConnectionState is the lifecycle state of an Avatar session.
type ConnectionState int

const (
	StateUnconnected ConnectionState = iota
	StateNegotiating
	StateReady
	StateDegraded
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateUnconnected:
		return "unconnected"
	case StateNegotiating:
		return "negotiating"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("ConnectionState(%d)", int(s))
	}
}

var allowedTransitions = map[ConnectionState][]ConnectionState{
	StateUnconnected: {StateNegotiating, StateClosed},
	StateNegotiating: {StateReady, StateDegraded, StateClosed},
	StateDegraded:    {StateNegotiating, StateClosed},
	StateReady:       {StateClosed},
}

// stateMachine guards the connection state and the remaining retry budget.
type stateMachine struct {
	mu      sync.RWMutex
	state   ConnectionState
	retries int
}

func newStateMachine(budget int) *stateMachine {
	return &stateMachine{state: StateUnconnected, retries: budget}
}

func (m *stateMachine) current() (ConnectionState, int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state, m.retries
}

func (m *stateMachine) transition(to ConnectionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(to)
}

func (m *stateMachine) transitionLocked(to ConnectionState) error {
	for _, allowed := range allowedTransitions[m.state] {
		if allowed == to {
			m.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.state, to)
}

// degrade records a failed attempt and moves to StateDegraded.
func (m *stateMachine) degrade() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.transitionLocked(StateDegraded); err != nil {
		return m.retries, err
	}
	if m.retries > 0 {
		m.retries--
	}
	return m.retries, nil
}

// close moves any state to StateClosed and reports the previous state.
func (m *stateMachine) close() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.state
	m.state = StateClosed
	return prev
}
