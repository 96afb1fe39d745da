// Package pipeline implements the per-item state machine (§4.9):
// Planned -> Running{Working|Idle|Paused} -> Finished|Failed|Cancelled.
// The engine stops an item on context cancellation; CancellationToken
// is not read anywhere in the engine. The
// atomic-int32 state holder mirrors migration.Runner's
// getCurrentState/setCurrentState and migrationState.String().
package pipeline

import "sync/atomic"

type State int32

const (
	StatePlanned State = iota
	StateWorking
	StateIdle
	StatePaused
	StateFinished
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePlanned:
		return "planned"
	case StateWorking:
		return "working"
	case StateIdle:
		return "idle"
	case StatePaused:
		return "paused"
	case StateFinished:
		return "finished"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// terminal states cannot transition further.
func (s State) terminal() bool {
	return s == StateFinished || s == StateFailed || s == StateCancelled
}

// validTransitions enumerates the state machine's edges (§4.9).
var validTransitions = map[State][]State{
	StatePlanned:   {StateWorking, StateCancelled},
	StateWorking:   {StateIdle, StatePaused, StateFinished, StateFailed, StateCancelled},
	StateIdle:      {StateWorking, StatePaused, StateFinished, StateFailed, StateCancelled},
	StatePaused:    {StateWorking, StateCancelled},
	StateFinished:  {},
	StateFailed:    {},
	StateCancelled: {},
}

// Machine is one item's cooperative state machine.
type Machine struct {
	state atomic.Int32
}

func NewMachine() *Machine {
	m := &Machine{}
	m.state.Store(int32(StatePlanned))
	return m
}

func (m *Machine) Current() State { return State(m.state.Load()) }

// Transition moves to next if the edge is valid, returning false
// (without changing state) otherwise — the same compare-driven
// discipline as the teacher's atomic state, generalized to validate
// edges instead of always overwriting.
func (m *Machine) Transition(next State) bool {
	for {
		cur := State(m.state.Load())
		if cur.terminal() {
			return false
		}
		if !isValidEdge(cur, next) {
			return false
		}
		if m.state.CompareAndSwap(int32(cur), int32(next)) {
			return true
		}
	}
}

func isValidEdge(from, to State) bool {
	for _, candidate := range validTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// CancellationToken is a settable cancellation flag (§4.9). Neither
// the executor nor the batch coordinator checks it; they stop on
// context cancellation.
type CancellationToken struct {
	cancelled atomic.Bool
}

func (c *CancellationToken) Cancel()          { c.cancelled.Store(true) }
func (c *CancellationToken) IsCancelled() bool { return c.cancelled.Load() }
