package format

import "fmt"

// State is the lifecycle stage of one request.
type State int

const (
	// StateIdle is the initial state.
	StateIdle State = iota
	// StateSpawned covers starting the formatter and feeding it the source.
	StateSpawned
	// StateStreaming covers consuming the formatter output.
	StateStreaming
	// StateCompleted is terminal: a Result was produced.
	StateCompleted
	// StateFailed is terminal: the request failed.
	StateFailed
	// StateCancelled is terminal: the request was cancelled.
	StateCancelled
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSpawned:
		return "spawned"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether s is final.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// StateHook observes state transitions of a request.
type StateHook func(from, to State)

// tracker holds the state of one request.
type tracker struct {
	state State
	hook  StateHook
}

// to moves to next. Transitions out of a terminal state are ignored.
func (t *tracker) to(next State) {
	if t.state.Terminal() || t.state == next {
		return
	}
	prev := t.state
	t.state = next
	if t.hook != nil {
		t.hook(prev, next)
	}
}
