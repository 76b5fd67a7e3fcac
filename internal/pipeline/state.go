package pipeline

import "fmt"

// State is a step of the controller state machine.
type State string

const (
	StateInit      State = "init"
	StatePreHooks  State = "pre_hooks"
	StateDispatch  State = "dispatch"
	StateMerge     State = "merge"
	StatePostHooks State = "post_hooks"
	StateDone      State = "done"
	StateFailed    State = "failed"
)

var transitions = map[State][]State{
	StateInit:      {StatePreHooks},
	StatePreHooks:  {StateDispatch},
	StateDispatch:  {StateMerge},
	StateMerge:     {StatePostHooks},
	StatePostHooks: {StateDone},
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

func (s State) canTransition(to State) bool {
	if to == StateFailed {
		return !s.Terminal()
	}
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func invalidTransition(from, to State) error {
	return fmt.Errorf("invalid pipeline transition %s -> %s", from, to)
}
