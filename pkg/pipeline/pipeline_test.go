package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransitionFollowsValidEdges(t *testing.T) {
	m := NewMachine()
	assert.True(t, m.Transition(StateWorking))
	assert.True(t, m.Transition(StatePaused))
	assert.True(t, m.Transition(StateWorking))
	assert.True(t, m.Transition(StateFinished))
	assert.Equal(t, StateFinished, m.Current())
}

func TestTransitionRejectsInvalidEdge(t *testing.T) {
	m := NewMachine()
	assert.False(t, m.Transition(StateFinished)) // must pass through Working first
	assert.Equal(t, StatePlanned, m.Current())
}

func TestTransitionRejectsLeavingTerminalState(t *testing.T) {
	m := NewMachine()
	require := assert.New(t)
	require.True(m.Transition(StateWorking))
	require.True(m.Transition(StateFailed))
	require.False(m.Transition(StateWorking))
	require.Equal(StateFailed, m.Current())
}

func TestCancellationToken(t *testing.T) {
	c := &CancellationToken{}
	assert.False(t, c.IsCancelled())
	c.Cancel()
	assert.True(t, c.IsCancelled())
}
