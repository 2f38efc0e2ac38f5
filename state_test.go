package avatarrelay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateMachineHappyPath(t *testing.T) {
	m := newStateMachine(3)

	require.NoError(t, m.transition(StateNegotiating))
	require.NoError(t, m.transition(StateReady))
	require.NoError(t, m.transition(StateClosed))

	state, retries := m.current()
	assert.Equal(t, StateClosed, state)
	assert.Equal(t, 3, retries)
}

func TestStateMachineDegradeCountsDown(t *testing.T) {
	m := newStateMachine(3)
	require.NoError(t, m.transition(StateNegotiating))

	remaining, err := m.degrade()
	require.NoError(t, err)
	assert.Equal(t, 2, remaining)

	require.NoError(t, m.transition(StateNegotiating))
	remaining, err = m.degrade()
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)

	state, retries := m.current()
	assert.Equal(t, StateDegraded, state)
	assert.Equal(t, 1, retries)
}

func TestStateMachineRejectsInvalidTransitions(t *testing.T) {
	tests := []struct {
		from, to ConnectionState
	}{
		{StateUnconnected, StateReady},
		{StateUnconnected, StateDegraded},
		{StateDegraded, StateReady},
		{StateReady, StateNegotiating},
		{StateClosed, StateNegotiating},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			m := &stateMachine{state: tt.from}
			assert.ErrorIs(t, m.transition(tt.to), ErrInvalidTransition)
			state, _ := m.current()
			assert.Equal(t, tt.from, state)
		})
	}
}

func TestStateMachineCloseFromAnyState(t *testing.T) {
	for _, s := range []ConnectionState{StateUnconnected, StateNegotiating, StateDegraded, StateReady, StateClosed} {
		m := &stateMachine{state: s}
		assert.Equal(t, s, m.close())
		state, _ := m.current()
		assert.Equal(t, StateClosed, state)
	}
}

func TestConnectionStateString(t *testing.T) {
	assert.Equal(t, "degraded", StateDegraded.String())
	assert.Equal(t, "ConnectionState(42)", ConnectionState(42).String())
}
